package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/tire-request-service/internal/auth"
	"github.com/spec-kit/tire-request-service/internal/config"
	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/repository"
	apperrors "github.com/spec-kit/tire-request-service/pkg/util"
)

// IdentityService is the identity source: it exchanges credentials for
// bearer tokens and resolves bearer credentials back to actor identities.
type IdentityService struct {
	actors   repository.ActorRepository
	tokenMgr *auth.TokenManager
}

// NewIdentityService builds the service.
func NewIdentityService(cfg config.Config, actors repository.ActorRepository) *IdentityService {
	return &IdentityService{
		actors:   actors,
		tokenMgr: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes the underlying manager for middleware wiring.
func (s *IdentityService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Login authenticates an actor by email and password.
func (s *IdentityService) Login(ctx context.Context, email, password string) (domain.Actor, string, time.Time, error) {
	record, err := s.actors.GetByEmail(ctx, email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Actor{}, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return domain.Actor{}, "", time.Time{}, apperrors.MapError(err)
	}
	if !record.Active {
		return domain.Actor{}, "", time.Time{}, apperrors.NewUnauthorized("actor inactive")
	}
	if err := auth.ComparePassword(record.PasswordHash, password); err != nil {
		return domain.Actor{}, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	actor := record.Identity()
	token, expiresAt, err := s.tokenMgr.GenerateToken(actor)
	if err != nil {
		return domain.Actor{}, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return actor, token, expiresAt, nil
}

// Resolve validates a bearer credential and returns the live actor identity.
// The token's embedded identity is treated as a cache only.
func (s *IdentityService) Resolve(ctx context.Context, token string) (domain.Actor, error) {
	claims, err := s.tokenMgr.ParseToken(token)
	if err != nil {
		return domain.Actor{}, apperrors.NewUnauthorized("invalid token")
	}
	record, err := s.actors.GetByID(ctx, claims.ActorID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Actor{}, apperrors.NewUnauthorized("actor not found")
		}
		return domain.Actor{}, apperrors.MapError(err)
	}
	if !record.Active {
		return domain.Actor{}, apperrors.NewUnauthorized("actor inactive")
	}
	return record.Identity(), nil
}
