package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/repository"
	"gorm.io/gorm"
)

// accessPolicy decides who may work on a customer or project.
// Owners, admins, the system user, accepted team members of the owner and
// members of a project's team are allowed.
type accessPolicy struct {
	membershipRepo *repository.MembershipRepository
}

func (a accessPolicy) check(ctx context.Context, tx *gorm.DB, user *auth.UserContext, ownerID uuid.UUID, team []uuid.UUID) error {
	if user.UserID == ownerID || user.IsAdmin() || user.IsSystem() {
		return nil
	}
	if slices.Contains(team, user.UserID) {
		return nil
	}
	repo := a.membershipRepo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	ok, err := repo.IsMember(ctx, ownerID, user.UserID)
	if err != nil {
		return fmt.Errorf("failed to check team membership: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func currentUser(ctx context.Context) (*auth.UserContext, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUserContextRequired
	}
	return userCtx, nil
}
