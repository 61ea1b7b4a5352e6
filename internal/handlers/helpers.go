package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/sitework/backend/internal/config"
	"github.com/sitework/backend/internal/middleware"
	"github.com/sitework/backend/internal/services"
	"github.com/sitework/backend/pkg/logger"
	"github.com/sitework/backend/pkg/utils"
)

var validate = validator.New()

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// parseBody decodes and validates the request body. Validation happens
// before any side effect; the returned error message is safe to show.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("invalid field %q", ve[0].Field())
		}
		return errors.New("invalid request body")
	}
	return nil
}

// validPassword enforces the password policy: at least 8 characters with
// an uppercase letter, a lowercase letter and a digit.
func validPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

func validSlug(slug string) bool {
	return slugPattern.MatchString(strings.ToLower(strings.TrimSpace(slug)))
}

func requestContext(c *fiber.Ctx, cfg config.AuthConfig) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), cfg.RequestTimeout)
}

func setSessionCookie(c *fiber.Ctx, cfg config.AuthConfig, sessionID string) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		HTTPOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   int(cfg.SessionLifetime.Seconds()),
		Path:     "/",
	})
}

func clearSessionCookie(c *fiber.Ctx, cfg config.AuthConfig) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		HTTPOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   -1,
		Path:     "/",
	})
}

// handleAuthError maps service errors to HTTP responses. Typed auth
// failures carry their own user-safe message; everything else is a
// transient infrastructure problem logged for operators and answered
// generically.
func handleAuthError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, services.ErrAccountSuspended):
		return utils.Error(c, fiber.StatusForbidden, "your account has been suspended, please contact support")
	case errors.Is(err, services.ErrEmailTaken):
		return utils.Error(c, fiber.StatusConflict, "an account with this email already exists")
	case errors.Is(err, services.ErrSlugTaken):
		return utils.Error(c, fiber.StatusConflict, "this workspace URL is already taken")
	case errors.Is(err, services.ErrInvalidResetToken):
		return utils.Error(c, fiber.StatusBadRequest, "invalid reset token")
	case errors.Is(err, services.ErrResetTokenExpired):
		return utils.Error(c, fiber.StatusBadRequest, "reset token expired")
	case errors.Is(err, services.ErrMFASessionExpired):
		return utils.Error(c, fiber.StatusUnauthorized, "MFA session expired, please login again")
	case errors.Is(err, services.ErrMFASetupExpired):
		return utils.Error(c, fiber.StatusBadRequest, "MFA setup session expired, please try again")
	case errors.Is(err, services.ErrInvalidVerificationCode):
		return utils.Error(c, fiber.StatusUnauthorized, "invalid verification code")
	case errors.Is(err, services.ErrInvalidMFASession):
		return utils.Error(c, fiber.StatusUnauthorized, "invalid MFA session")
	case errors.Is(err, services.ErrMFAAlreadyEnabled):
		return utils.Error(c, fiber.StatusConflict, "MFA is already enabled")
	case errors.Is(err, services.ErrMFANotEnabled):
		return utils.Error(c, fiber.StatusBadRequest, "MFA is not enabled")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("auth_request_timeout", map[string]interface{}{
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusServiceUnavailable, "request timed out, please retry")
	default:
		logger.Error("auth_internal_error", map[string]interface{}{
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusServiceUnavailable, "service temporarily unavailable")
	}
}
