package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/sitework/backend/internal/models"
	"github.com/sitework/backend/internal/services"
	"github.com/sitework/backend/pkg/logger"
	"github.com/sitework/backend/pkg/utils"
)

const (
	SessionCookieName = "session"

	currentUserKey    = "currentUser"
	currentTenantKey  = "currentTenant"
	currentSessionKey = "currentSession"
)

type AuthMiddleware struct {
	Auth    *services.AuthService
	Timeout time.Duration
}

func NewAuthMiddleware(auth *services.AuthService, timeout time.Duration) *AuthMiddleware {
	return &AuthMiddleware{Auth: auth, Timeout: timeout}
}

func CORS(frontendURL string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     frontendURL,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: true,
	})
}

// sessionToken reads the session credential from the cookie, falling back
// to an Authorization bearer header for non-browser clients.
func sessionToken(c *fiber.Ctx) string {
	if cookie := c.Cookies(SessionCookieName); cookie != "" {
		return cookie
	}
	header := c.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if token == header {
		return ""
	}
	return token
}

func (a *AuthMiddleware) resolve(c *fiber.Ctx) (bool, error) {
	token := sessionToken(c)
	if token == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), a.Timeout)
	defer cancel()

	user, tenant, sess, err := a.Auth.ResolveSession(ctx, token)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}

	c.Locals(currentUserKey, user)
	c.Locals(currentTenantKey, tenant)
	c.Locals(currentSessionKey, sess)
	return true, nil
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	ok, err := a.resolve(c)
	if err != nil {
		logger.Error("session_resolution_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusServiceUnavailable, "service temporarily unavailable")
	}
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return c.Next()
}

func (a *AuthMiddleware) OptionalAuth(c *fiber.Ctx) error {
	if _, err := a.resolve(c); err != nil {
		logger.Warn("session_resolution_failed", map[string]interface{}{
			"ip":    c.IP(),
			"error": err.Error(),
		})
	}
	return c.Next()
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(currentUserKey).(*models.User)
	return user
}

func GetCurrentTenant(c *fiber.Ctx) *models.Tenant {
	tenant, _ := c.Locals(currentTenantKey).(*models.Tenant)
	return tenant
}

func GetCurrentSession(c *fiber.Ctx) *models.Session {
	sess, _ := c.Locals(currentSessionKey).(*models.Session)
	return sess
}
