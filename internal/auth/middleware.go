package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/repository"
	apperrors "github.com/spec-kit/tire-request-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Actor domain.Actor
}

// AuthMiddleware validates bearer tokens and loads principals. The cached
// identity carried in the token is never authoritative: the actor record is
// revalidated against the store on every request.
type AuthMiddleware struct {
	tokens *TokenManager
	actors repository.ActorRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, actors repository.ActorRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, actors: actors}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	record, err := m.actors.GetByID(c.Context(), claims.ActorID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewUnauthorized("actor not found")
		}
		return apperrors.MapError(err)
	}
	if !record.Active {
		return apperrors.NewUnauthorized("actor inactive")
	}

	c.Locals(principalKey, &Principal{Actor: record.Identity()})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
