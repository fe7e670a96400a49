package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tire-request-service/internal/api/dto"
	"github.com/spec-kit/tire-request-service/internal/auth"
	"github.com/spec-kit/tire-request-service/internal/service"
	apperrors "github.com/spec-kit/tire-request-service/pkg/util"
)

// AuthHandler exposes the identity-source endpoints.
type AuthHandler struct {
	identity *service.IdentityService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(identity *service.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	actor, token, expiresAt, err := h.identity.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Actor:     dto.FromActor(actor),
	})
}

// Me GET /auth/me. Revalidates the bearer identity against the store.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.FromActor(principal.Actor)})
}
