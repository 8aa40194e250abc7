package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type QuoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *QuoteRepository) WithTx(tx *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: tx}
}

func (r *QuoteRepository) Create(ctx context.Context, quote *domain.Quote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *QuoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	var quote domain.Quote
	if err := r.db.WithContext(ctx).First(&quote, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &quote, nil
}

func (r *QuoteRepository) Update(ctx context.Context, quote *domain.Quote) error {
	return r.db.WithContext(ctx).Save(quote).Error
}

func (r *QuoteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Quote{}, "id = ?", id).Error
}

// ListByOwner returns the quotes of a customer or project, oldest first
func (r *QuoteRepository) ListByOwner(ctx context.Context, ownerType domain.EntityType, ownerID uuid.UUID) ([]domain.Quote, error) {
	var quotes []domain.Quote
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Order("created_at ASC").
		Find(&quotes).Error
	return quotes, err
}

// LatestDraft returns the most recently created un-migrated draft of a customer
func (r *QuoteRepository) LatestDraft(ctx context.Context, customerID uuid.UUID) (*domain.Quote, error) {
	var quote domain.Quote
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ? AND migrated_project_id IS NULL", domain.EntityTypeCustomer, customerID).
		Order("created_at DESC").
		First(&quote).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &quote, nil
}

// DeleteUnmigratedDrafts removes every draft of a customer that was never migrated,
// except the ids in keep. It returns the number of deleted drafts.
func (r *QuoteRepository) DeleteUnmigratedDrafts(ctx context.Context, customerID uuid.UUID, keep ...uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ? AND migrated_project_id IS NULL", domain.EntityTypeCustomer, customerID)
	if len(keep) > 0 {
		query = query.Where("id NOT IN ?", keep)
	}
	res := query.Delete(&domain.Quote{})
	return res.RowsAffected, res.Error
}

// FindCopy returns the project quote copied from origin, if any
func (r *QuoteRepository) FindCopy(ctx context.Context, projectID, originID uuid.UUID) (*domain.Quote, error) {
	var quote domain.Quote
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ? AND origin_quote_id = ?", domain.EntityTypeProject, projectID, originID).
		First(&quote).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &quote, nil
}
