package repository

import (
	"context"
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

// ConversionRunRepository stores the conversion saga step log
type ConversionRunRepository struct {
	db *gorm.DB
}

func NewConversionRunRepository(db *gorm.DB) *ConversionRunRepository {
	return &ConversionRunRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *ConversionRunRepository) WithTx(tx *gorm.DB) *ConversionRunRepository {
	return &ConversionRunRepository{db: tx}
}

func (r *ConversionRunRepository) Create(ctx context.Context, run *domain.ConversionRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *ConversionRunRepository) GetByID(ctx context.Context, id string) (*domain.ConversionRun, error) {
	var run domain.ConversionRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (r *ConversionRunRepository) Update(ctx context.Context, run *domain.ConversionRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// ListUnfinished returns partial runs and in_progress runs not touched since
// staleBefore, oldest first. Dead runs are left for manual resume.
func (r *ConversionRunRepository) ListUnfinished(ctx context.Context, staleBefore time.Time, limit int) ([]domain.ConversionRun, error) {
	var runs []domain.ConversionRun
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND updated_at < ?)",
			domain.ConversionRunPartial, domain.ConversionRunInProgress, staleBefore).
		Order("id ASC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// Claim moves a run to in_progress if it is in one of the from states, or
// in_progress without an update since staleBefore. It reports whether the
// caller won the run; a false result means another worker owns it.
func (r *ConversionRunRepository) Claim(ctx context.Context, run *domain.ConversionRun, staleBefore time.Time, from ...domain.ConversionRunStatus) (bool, error) {
	now := r.db.NowFunc()
	query := r.db.WithContext(ctx).Model(&domain.ConversionRun{})
	if len(from) > 0 {
		query = query.Where("id = ? AND (status IN ? OR (status = ? AND updated_at < ?))",
			run.ID, from, domain.ConversionRunInProgress, staleBefore)
	} else {
		query = query.Where("id = ? AND status = ? AND updated_at < ?", run.ID, domain.ConversionRunInProgress, staleBefore)
	}
	res := query.UpdateColumns(map[string]any{
		"status":     domain.ConversionRunInProgress,
		"updated_at": now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	run.Status = domain.ConversionRunInProgress
	run.UpdatedAt = now
	return true, nil
}
