package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type TranscriptRepository struct {
	db *gorm.DB
}

func NewTranscriptRepository(db *gorm.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *TranscriptRepository) WithTx(tx *gorm.DB) *TranscriptRepository {
	return &TranscriptRepository{db: tx}
}

func (r *TranscriptRepository) Create(ctx context.Context, t *domain.MeetingTranscript) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TranscriptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.MeetingTranscript{}, "id = ?", id).Error
}

func (r *TranscriptRepository) ListByOwner(ctx context.Context, ownerType domain.EntityType, ownerID uuid.UUID) ([]domain.MeetingTranscript, error) {
	var ts []domain.MeetingTranscript
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Order("recorded_at ASC").
		Find(&ts).Error
	return ts, err
}

// ExistsCopy reports whether a transcript has already been copied under the project
func (r *TranscriptRepository) ExistsCopy(ctx context.Context, projectID, originID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.MeetingTranscript{}).
		Where("owner_type = ? AND owner_id = ? AND origin_transcript_id = ?", domain.EntityTypeProject, projectID, originID).
		Count(&count).Error
	return count > 0, err
}
