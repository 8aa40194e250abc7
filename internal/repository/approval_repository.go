package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

// ApprovalRole selects which side of a request the user is on
type ApprovalRole string

const (
	ApprovalRoleRequested ApprovalRole = "requested"
	ApprovalRoleAssigned  ApprovalRole = "assigned"
	ApprovalRoleViewing   ApprovalRole = "viewing"
)

// Decision is the outcome written by DecideIfPending
type Decision struct {
	Status    domain.ApprovalStatus
	DecidedBy uuid.UUID
	DecidedAt time.Time
	Comment   *string
}

type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *ApprovalRepository) WithTx(tx *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: tx}
}

// Create inserts the request together with its viewer rows
func (r *ApprovalRepository) Create(ctx context.Context, req *domain.ApprovalRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	var req domain.ApprovalRequest
	if err := r.db.WithContext(ctx).Preload("Viewers").First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// ListForUser lists requests where the user has the given role, newest first
func (r *ApprovalRepository) ListForUser(ctx context.Context, userID uuid.UUID, role ApprovalRole, status domain.ApprovalStatus, page, pageSize int) ([]domain.ApprovalRequest, int64, error) {
	var reqs []domain.ApprovalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.ApprovalRequest{})
	switch role {
	case ApprovalRoleAssigned:
		query = query.Where("requested_to = ?", userID)
	case ApprovalRoleViewing:
		query = query.Where("id IN (?)",
			r.db.Model(&domain.ApprovalViewer{}).Select("approval_request_id").Where("user_id = ?", userID))
	default:
		query = query.Where("requested_by = ?", userID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Viewers").
		Scopes(paginate(page, pageSize)).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, total, err
}

// ListPendingForEntity returns every pending request on an entity
func (r *ApprovalRepository) ListPendingForEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]domain.ApprovalRequest, error) {
	var reqs []domain.ApprovalRequest
	err := r.db.WithContext(ctx).
		Preload("Viewers").
		Where("request_type = ? AND entity_id = ? AND status = ?", entityType, entityID, domain.ApprovalStatusPending).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

// DecideIfPending records a decision only while the request is still pending.
// It reports false when another decision won the race.
func (r *ApprovalRepository) DecideIfPending(ctx context.Context, id uuid.UUID, d Decision) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, domain.ApprovalStatusPending).
		Updates(map[string]interface{}{
			"status":           d.Status,
			"decision_by":      d.DecidedBy,
			"decision_date":    d.DecidedAt,
			"decision_comment": d.Comment,
			"updated_at":       d.DecidedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkConsumed links an approved conversion request to the project it produced.
// It reports false if the request was already consumed.
func (r *ApprovalRepository) MarkConsumed(ctx context.Context, id, projectID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.ApprovalRequest{}).
		Where("id = ? AND status = ? AND consumed_at IS NULL", id, domain.ApprovalStatusApproved).
		Updates(map[string]interface{}{
			"consumed_at":       at,
			"result_project_id": projectID,
			"updated_at":        at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
