package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

// StageHistoryRepository handles persistence of pipeline position changes
type StageHistoryRepository struct {
	db *gorm.DB
}

func NewStageHistoryRepository(db *gorm.DB) *StageHistoryRepository {
	return &StageHistoryRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *StageHistoryRepository) WithTx(tx *gorm.DB) *StageHistoryRepository {
	return &StageHistoryRepository{db: tx}
}

func (r *StageHistoryRepository) Create(ctx context.Context, h *domain.StageHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

// ListByEntity returns the history of an entity, newest first
func (r *StageHistoryRepository) ListByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]domain.StageHistory, error) {
	var rows []domain.StageHistory
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("changed_at DESC").
		Find(&rows).Error
	return rows, err
}
