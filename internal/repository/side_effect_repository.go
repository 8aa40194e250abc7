package repository

import (
	"context"
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

// SideEffectRepository is the dead-letter store for failed best-effort writes
type SideEffectRepository struct {
	db *gorm.DB
}

func NewSideEffectRepository(db *gorm.DB) *SideEffectRepository {
	return &SideEffectRepository{db: db}
}

func (r *SideEffectRepository) Create(ctx context.Context, f *domain.SideEffectFailure) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *SideEffectRepository) Update(ctx context.Context, f *domain.SideEffectFailure) error {
	return r.db.WithContext(ctx).Save(f).Error
}

// ListDue returns pending rows whose next attempt is at or before now
func (r *SideEffectRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SideEffectFailure, error) {
	var rows []domain.SideEffectFailure
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.SideEffectPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CountByStatus returns the number of rows per status
func (r *SideEffectRepository) CountByStatus(ctx context.Context) (map[domain.SideEffectStatus]int64, error) {
	var rows []struct {
		Status domain.SideEffectStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.SideEffectFailure{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.SideEffectStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
