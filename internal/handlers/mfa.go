package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sitework/backend/internal/config"
	"github.com/sitework/backend/internal/middleware"
	"github.com/sitework/backend/internal/services"
	"github.com/sitework/backend/pkg/utils"
)

type MFAHandler struct {
	Auth   *services.AuthService
	Config *config.Config
}

func NewMFAHandler(auth *services.AuthService, cfg *config.Config) *MFAHandler {
	return &MFAHandler{Auth: auth, Config: cfg}
}

// Setup generates a pending TOTP secret for the authenticated user. The
// secret is not active until Enable confirms a valid code against it.
func (h *MFAHandler) Setup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "authentication required")
	}

	ctx, cancel := requestContext(c, h.Config.Auth)
	defer cancel()

	secret, uri, err := h.Auth.SetupMFA(ctx, user)
	if err != nil {
		return handleAuthError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"secret": secret,
		"uri":    uri,
	})
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8"`
}

func (h *MFAHandler) Enable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "authentication required")
	}

	var req mfaCodeRequest
	if err := parseBody(c, &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := requestContext(c, h.Config.Auth)
	defer cancel()

	backupCodes, err := h.Auth.EnableMFA(ctx, user, req.Code)
	if err != nil {
		return handleAuthError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"backupCodes": backupCodes,
	})
}

func (h *MFAHandler) Disable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "authentication required")
	}

	var req mfaCodeRequest
	if err := parseBody(c, &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := requestContext(c, h.Config.Auth)
	defer cancel()

	if err := h.Auth.DisableMFA(ctx, user, req.Code); err != nil {
		return handleAuthError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "mfa disabled"})
}

type mfaVerifyRequest struct {
	MFAToken string `json:"mfaToken" validate:"required"`
	Code     string `json:"code" validate:"required,min=6,max=8"`
}

// Verify completes a login that was answered with requiresMfa. It accepts
// either a TOTP code or a backup code and responds with the same shape as
// a password-only login.
func (h *MFAHandler) Verify(c *fiber.Ctx) error {
	var req mfaVerifyRequest
	if err := parseBody(c, &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := requestContext(c, h.Config.Auth)
	defer cancel()

	result, err := h.Auth.VerifyMFA(ctx, req.MFAToken, req.Code, c.IP(), c.Get("User-Agent"))
	if err != nil {
		return handleAuthError(c, err)
	}

	setSessionCookie(c, h.Config.Auth, result.SessionID)
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"requiresMfa": false,
		"user":        result.User,
		"tenant":      result.Tenant,
	})
}
