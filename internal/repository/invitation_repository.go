package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type InvitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *InvitationRepository) WithTx(tx *gorm.DB) *InvitationRepository {
	return &InvitationRepository{db: tx}
}

func (r *InvitationRepository) Create(ctx context.Context, inv *domain.TeamInvitation) error {
	inv.ToUserEmail = strings.ToLower(strings.TrimSpace(inv.ToUserEmail))
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *InvitationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TeamInvitation, error) {
	var inv domain.TeamInvitation
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

// FindOpen returns an existing pending or accepted invitation between from and the email
func (r *InvitationRepository) FindOpen(ctx context.Context, fromUserID uuid.UUID, email string) (*domain.TeamInvitation, error) {
	var inv domain.TeamInvitation
	err := r.db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_email = ?", fromUserID, strings.ToLower(strings.TrimSpace(email))).
		Order("created_at DESC").
		First(&inv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

func (r *InvitationRepository) ListOutgoing(ctx context.Context, userID uuid.UUID) ([]domain.TeamInvitation, error) {
	var invs []domain.TeamInvitation
	err := r.db.WithContext(ctx).Where("from_user_id = ?", userID).Order("created_at DESC").Find(&invs).Error
	return invs, err
}

// ListIncoming matches by user id or, for invitations sent before signup, by email
func (r *InvitationRepository) ListIncoming(ctx context.Context, userID uuid.UUID, email string) ([]domain.TeamInvitation, error) {
	var invs []domain.TeamInvitation
	err := r.db.WithContext(ctx).
		Where("to_user_id = ? OR to_user_email = ?", userID, strings.ToLower(email)).
		Order("created_at DESC").
		Find(&invs).Error
	return invs, err
}

// ListAccepted returns accepted invitations in either direction for a user
func (r *InvitationRepository) ListAccepted(ctx context.Context, userID uuid.UUID) ([]domain.TeamInvitation, error) {
	var invs []domain.TeamInvitation
	err := r.db.WithContext(ctx).
		Where("status = ? AND (from_user_id = ? OR to_user_id = ?)", domain.InvitationStatusAccepted, userID, userID).
		Find(&invs).Error
	return invs, err
}

// AcceptIfPending flips a pending invitation to accepted. It reports false
// when the invitation was not pending.
func (r *InvitationRepository) AcceptIfPending(ctx context.Context, id, userID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.TeamInvitation{}).
		Where("id = ? AND status = ?", id, domain.InvitationStatusPending).
		Updates(map[string]interface{}{
			"status":      domain.InvitationStatusAccepted,
			"to_user_id":  userID,
			"accepted_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
