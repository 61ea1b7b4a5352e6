package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB     DBConfig
	Redis  RedisConfig
	Server ServerConfig
	Auth   AuthConfig
	SMTP   SMTPConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	// Empty Addr selects the in-process ephemeral store, which is only
	// correct for single-instance deployments.
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port        string
	FrontendURL string
}

type SMTPConfig struct {
	// Empty Host disables outbound mail.
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

type AuthConfig struct {
	SessionLifetime    time.Duration
	ResetTokenLifetime time.Duration
	MFAChallengeTTL    time.Duration
	MFASetupTTL        time.Duration
	TrialPeriod        time.Duration
	RequestTimeout     time.Duration
	TOTPIssuer         string
	SecureCookies      bool

	ArgonMemoryKiB   uint32
	ArgonTime        uint32
	ArgonParallelism uint8
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "sitework"),
			Password: getEnv("DB_PASSWORD", "sitework_secret"),
			Name:     getEnv("DB_NAME", "sitework"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3001"),
		},
		Auth: AuthConfig{
			SessionLifetime:    getEnvAsDuration("SESSION_LIFETIME", 30*24*time.Hour),
			ResetTokenLifetime: getEnvAsDuration("RESET_TOKEN_LIFETIME", 1*time.Hour),
			MFAChallengeTTL:    getEnvAsDuration("MFA_CHALLENGE_TTL", 5*time.Minute),
			MFASetupTTL:        getEnvAsDuration("MFA_SETUP_TTL", 10*time.Minute),
			TrialPeriod:        getEnvAsDuration("TRIAL_PERIOD", 14*24*time.Hour),
			RequestTimeout:     getEnvAsDuration("AUTH_REQUEST_TIMEOUT", 10*time.Second),
			TOTPIssuer:         getEnv("TOTP_ISSUER", "Sitework"),
			SecureCookies:      getEnvAsBool("SECURE_COOKIES", getEnv("APP_ENV", "development") == "production"),
			ArgonMemoryKiB:     uint32(getEnvAsInt("ARGON_MEMORY_KIB", 19456)),
			ArgonTime:          uint32(getEnvAsInt("ARGON_TIME", 2)),
			ArgonParallelism:   uint8(getEnvAsInt("ARGON_PARALLELISM", 1)),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			From:     getEnv("SMTP_FROM", "no-reply@sitework.local"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
