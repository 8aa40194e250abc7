package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemberRow is a membership index entry joined with the member's profile
type MemberRow struct {
	MemberID    uuid.UUID
	DisplayName string
	Email       string
}

// MembershipRepository maintains the materialized accepted-member index
type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *MembershipRepository) WithTx(tx *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: tx}
}

// Link inserts both directions of a membership. Existing rows are kept.
func (r *MembershipRepository) Link(ctx context.Context, a, b, invitationID uuid.UUID) error {
	now := time.Now().UTC()
	rows := []domain.TeamMembership{
		{UserID: a, MemberID: b, InvitationID: invitationID, CreatedAt: now},
		{UserID: b, MemberID: a, InvitationID: invitationID, CreatedAt: now},
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// Replace swaps the user's outgoing index rows for the given set
func (r *MembershipRepository) Replace(ctx context.Context, userID uuid.UUID, rows []domain.TeamMembership) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&domain.TeamMembership{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
}

// ListMembers returns the user's indexed members ordered by display name
func (r *MembershipRepository) ListMembers(ctx context.Context, userID uuid.UUID) ([]MemberRow, error) {
	var rows []MemberRow
	err := r.db.WithContext(ctx).
		Table("team_memberships AS m").
		Select("m.member_id AS member_id, u.display_name AS display_name, u.email AS email").
		Joins("JOIN users u ON u.id = m.member_id").
		Where("m.user_id = ?", userID).
		Order("u.display_name ASC, m.member_id ASC").
		Scan(&rows).Error
	return rows, err
}

// IsMember reports whether member is in the user's index
func (r *MembershipRepository) IsMember(ctx context.Context, userID, memberID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.TeamMembership{}).
		Where("user_id = ? AND member_id = ?", userID, memberID).
		Count(&count).Error
	return count > 0, err
}
