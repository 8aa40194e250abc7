package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// UserRepository resolves stored user profiles
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// currentUser loads the stored profile of the authenticated user. The auth
// middleware provisions the row, so a miss means the request is not usable.
func currentUser(ctx context.Context, users UserRepository) (*domain.User, *auth.UserContext, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, nil, service.ErrUserContextRequired
	}
	user, err := users.GetByID(ctx, userCtx.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, service.ErrUserNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return user, userCtx, nil
}

type AuthHandler struct {
	userRepo UserRepository
	logger   *zap.Logger
}

func NewAuthHandler(userRepo UserRepository, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		userRepo: userRepo,
		logger:   logger,
	}
}

// Me godoc
// @Summary Get current authenticated user
// @Description Returns the stored profile and roles of the caller
// @Tags Users
// @Produce json
// @Success 200 {object} domain.UserDTO
// @Failure 401 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /users/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, userCtx, err := currentUser(r.Context(), h.userRepo)
	if err != nil {
		respondServiceError(w, h.logger, err, "get current user")
		return
	}
	respondJSON(w, http.StatusOK, mapper.ToUserDTO(user, userCtx.Roles))
}
