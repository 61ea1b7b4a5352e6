package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/sitework/backend/internal/config"
	"github.com/sitework/backend/internal/mailer"
	"github.com/sitework/backend/internal/middleware"
	"github.com/sitework/backend/internal/services"
	"github.com/sitework/backend/pkg/logger"
	"github.com/sitework/backend/pkg/utils"
)

type AuthHandler struct {
	Auth   *services.AuthService
	Mailer mailer.Mailer
	Config *config.Config
}

func NewAuthHandler(auth *services.AuthService, m mailer.Mailer, cfg *config.Config) *AuthHandler {
	return &AuthHandler{Auth: auth, Mailer: m, Config: cfg}
}

type registerRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=255"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	TenantName string `json:"tenantName" validate:"required,min=2,max=255"`
	TenantSlug string `json:"tenantSlug" validate:"required,min=2,max=50"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}
	if !validPassword(req.Password) {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters with an uppercase letter, a lowercase letter and a number")
	}
	if !validSlug(req.TenantSlug) {
		return utils.Error(c, fiber.StatusBadRequest, "slug can only contain lowercase letters, numbers, and hyphens")
	}

	ctx, cancel := requestContext(c, h.Config.Auth)
	defer cancel()

	result, err := h.Auth.Register(ctx, services.RegisterInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		TenantName: req.TenantName,
		TenantSlug: req.TenantSlug,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	})
	if err != nil {
		return handleAuthError(c, err)
	}

	setSessionCookie(c, h.Config.Auth, result.SessionID)
	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"user":   result.User,
		"tenant": result.Tenant,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := requestContext(c, h.Config.Auth)
	defer cancel()

	result, err := h.Auth.Login(ctx, services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})
	if err != nil {
		return handleAuthError(c, err)
	}

	if result.RequiresMFA {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"requiresMfa": true,
			"mfaToken":    result.MFAToken,
		})
	}

	setSessionCookie(c, h.Config.Auth, result.SessionID)
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"requiresMfa": false,
		"user":        result.User,
		"tenant":      result.Tenant,
	})
}

// Logout is idempotent: a missing or stale session cookie still yields
// success, and the cookie is cleared either way.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.Config.Auth)
	defer cancel()

	sessionID := ""
	if sess := middleware.GetCurrentSession(c); sess != nil {
		sessionID = sess.ID
	} else {
		sessionID = c.Cookies(middleware.SessionCookieName)
	}

	if err := h.Auth.Logout(ctx, sessionID); err != nil {
		return handleAuthError(c, err)
	}

	clearSessionCookie(c, h.Config.Auth)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	tenant := middleware.GetCurrentTenant(c)
	if user == nil || tenant == nil {
		return utils.Success(c, fiber.StatusOK, nil)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":   user,
		"tenant": tenant,
	})
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestPasswordReset answers identically whether or not the account
// exists; the token only ever leaves through the mailer.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req passwordResetRequest
	if err := parseBody(c, &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := requestContext(c, h.Config.Auth)
	defer cancel()

	token, err := h.Auth.RequestPasswordReset(ctx, req.Email)
	if err != nil {
		return handleAuthError(c, err)
	}

	if token != "" {
		resetURL := fmt.Sprintf("%s/auth/reset-password?token=%s", h.Config.Server.FrontendURL, token)
		if err := h.Mailer.SendPasswordReset(req.Email, resetURL); err != nil {
			logger.Error("password_reset_email_failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "if the account exists, a reset link has been sent"})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}
	if !validPassword(req.Password) {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters with an uppercase letter, a lowercase letter and a number")
	}

	ctx, cancel := requestContext(c, h.Config.Auth)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return handleAuthError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}
