package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/sitework/backend/internal/cache"
	"github.com/sitework/backend/internal/config"
	"github.com/sitework/backend/internal/mailer"
	"github.com/sitework/backend/internal/middleware"
	"github.com/sitework/backend/internal/models"
	"github.com/sitework/backend/internal/services"
	"github.com/sitework/backend/pkg/logger"
	"github.com/sitework/backend/pkg/utils"
)

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	store  *cache.MemoryStore
	auth   *services.AuthService
	cfg    *config.Config
	mailer *recordingMailer
}

// recordingMailer captures outbound reset links so tests can follow them.
type recordingMailer struct {
	mu    sync.Mutex
	sends []string
}

func (m *recordingMailer) SendPasswordReset(to, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, resetURL)
	return nil
}

func (m *recordingMailer) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

var _ mailer.Mailer = (*recordingMailer)(nil)

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		// Small parameters keep the hashing fast in tests.
		utils.ConfigurePasswordHashing(1024, 1, 1)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.Tenant{},
		&models.User{},
		&models.Session{},
		&models.VerificationToken{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	store := cache.NewMemoryStore()

	cfg := &config.Config{
		Server: config.ServerConfig{
			FrontendURL: "http://localhost:3001",
		},
		Auth: config.AuthConfig{
			SessionLifetime:    30 * 24 * time.Hour,
			ResetTokenLifetime: time.Hour,
			MFAChallengeTTL:    5 * time.Minute,
			MFASetupTTL:        10 * time.Minute,
			TrialPeriod:        14 * 24 * time.Hour,
			RequestTimeout:     10 * time.Second,
			TOTPIssuer:         "Sitework",
		},
	}

	authService := services.NewAuthService(db, store, cfg.Auth)
	mail := &recordingMailer{}

	authHandler := NewAuthHandler(authService, mail, cfg)
	mfaHandler := NewMFAHandler(authService, cfg)
	authMiddleware := middleware.NewAuthMiddleware(authService, cfg.Auth.RequestTimeout)

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/logout", authMiddleware.OptionalAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	authRoutes.Post("/mfa/setup", authMiddleware.RequireAuth, mfaHandler.Setup)
	authRoutes.Post("/mfa/enable", authMiddleware.RequireAuth, mfaHandler.Enable)
	authRoutes.Post("/mfa/disable", authMiddleware.RequireAuth, mfaHandler.Disable)
	authRoutes.Post("/mfa/verify", mfaHandler.Verify)

	authRoutes.Post("/password-reset/request", authHandler.RequestPasswordReset)
	authRoutes.Post("/password-reset/reset", authHandler.ResetPassword)

	return &testEnv{app: app, db: db, store: store, auth: authService, cfg: cfg, mailer: mail}
}

func createTestTenant(t *testing.T, db *gorm.DB, name, slug string) *models.Tenant {
	t.Helper()

	trialEnd := time.Now().Add(14 * 24 * time.Hour)
	tenant := &models.Tenant{
		Name:        name,
		Slug:        slug,
		Plan:        "free",
		Status:      models.TenantStatusTrial,
		TrialEndsAt: &trialEnd,
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("failed creating test tenant: %v", err)
	}
	return tenant
}

func createTestUser(t *testing.T, db *gorm.DB, tenant *models.Tenant, email, password string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		TenantID:     tenant.ID,
		Email:        email,
		Name:         "Test User",
		Role:         role,
		Status:       models.UserStatusActive,
		PasswordHash: &hash,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}
	return user
}

func createTestSession(t *testing.T, db *gorm.DB, user *models.User, expiresAt time.Time) *models.Session {
	t.Helper()

	id, err := utils.GenerateSecureToken()
	if err != nil {
		t.Fatalf("failed generating session id: %v", err)
	}
	session := &models.Session{
		ID:        id,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		IPAddress: "127.0.0.1",
		UserAgent: "test",
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("failed creating test session: %v", err)
	}
	return session
}

func sessionHeaders(sessionID string) map[string]string {
	return map[string]string{"Cookie": middleware.SessionCookieName + "=" + sessionID}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func dataMap(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()

	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object in response, got %v", payload)
	}
	return data
}

func sessionCookieValue(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c.Value
		}
	}
	return ""
}
