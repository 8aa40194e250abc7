package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/events"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/templates"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// pipelineRecord is a customer or project loaded for a pipeline operation
type pipelineRecord struct {
	kind     domain.EntityType
	customer *domain.Customer
	project  *domain.Project
}

func (r *pipelineRecord) id() uuid.UUID {
	if r.customer != nil {
		return r.customer.ID
	}
	return r.project.ID
}

func (r *pipelineRecord) ownerID() uuid.UUID {
	if r.customer != nil {
		return r.customer.OwnerID
	}
	return r.project.OwnerID
}

func (r *pipelineRecord) name() string {
	if r.customer != nil {
		return r.customer.Name
	}
	return r.project.Name
}

func (r *pipelineRecord) team() []uuid.UUID {
	if r.project != nil {
		return r.project.Team
	}
	return nil
}

func (r *pipelineRecord) pipeline() *domain.StagePipeline {
	if r.customer != nil {
		return &r.customer.Pipeline
	}
	return &r.project.Pipeline
}

// PipelineEntity is a read-only view of an entity's pipeline
type PipelineEntity struct {
	Kind     domain.EntityType
	ID       uuid.UUID
	OwnerID  uuid.UUID
	Name     string
	Pipeline domain.StagePipeline
}

// StageService runs pipeline operations on customers and projects
type StageService struct {
	customerRepo *repository.CustomerRepository
	projectRepo  *repository.ProjectRepository
	approvalRepo *repository.ApprovalRepository
	historyRepo  *repository.StageHistoryRepository
	access       accessPolicy
	templates    *templates.Registry
	events       events.Publisher
	db           *gorm.DB
	logger       *zap.Logger
}

// NewStageService creates a new StageService instance
func NewStageService(
	customerRepo *repository.CustomerRepository,
	projectRepo *repository.ProjectRepository,
	approvalRepo *repository.ApprovalRepository,
	historyRepo *repository.StageHistoryRepository,
	membershipRepo *repository.MembershipRepository,
	registry *templates.Registry,
	publisher events.Publisher,
	db *gorm.DB,
	logger *zap.Logger,
) *StageService {
	return &StageService{
		customerRepo: customerRepo,
		projectRepo:  projectRepo,
		approvalRepo: approvalRepo,
		historyRepo:  historyRepo,
		access:       accessPolicy{membershipRepo: membershipRepo},
		templates:    registry,
		events:       publisher,
		db:           db,
		logger:       logger,
	}
}

func (s *StageService) load(ctx context.Context, tx *gorm.DB, kind domain.EntityType, id uuid.UUID) (*pipelineRecord, error) {
	switch kind {
	case domain.EntityTypeCustomer:
		c, err := s.customerRepo.WithTx(tx).GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrCustomerNotFound
			}
			return nil, fmt.Errorf("failed to get customer: %w", err)
		}
		return &pipelineRecord{kind: kind, customer: c}, nil
	case domain.EntityTypeProject:
		p, err := s.projectRepo.WithTx(tx).GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrProjectNotFound
			}
			return nil, fmt.Errorf("failed to get project: %w", err)
		}
		return &pipelineRecord{kind: kind, project: p}, nil
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, kind)
	}
}

func (s *StageService) persist(ctx context.Context, tx *gorm.DB, rec *pipelineRecord) error {
	if rec.customer != nil {
		return s.customerRepo.WithTx(tx).Update(ctx, rec.customer)
	}
	return s.projectRepo.WithTx(tx).Update(ctx, rec.project)
}

// Inspect returns the entity's pipeline after an access check
func (s *StageService) Inspect(ctx context.Context, kind domain.EntityType, id uuid.UUID) (*PipelineEntity, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.load(ctx, s.db.WithContext(ctx), kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.check(ctx, nil, user, rec.ownerID(), rec.team()); err != nil {
		return nil, err
	}
	return &PipelineEntity{
		Kind:     kind,
		ID:       rec.id(),
		OwnerID:  rec.ownerID(),
		Name:     rec.name(),
		Pipeline: *rec.pipeline(),
	}, nil
}

// stageChange is the outcome of one mutation applied inside mutate
type stageChange struct {
	from, to   string
	reason     domain.StageChangeReason
	approvalID *uuid.UUID
}

// mutate loads the entity, applies fn, persists it and appends a history row,
// all in one transaction
func (s *StageService) mutate(
	ctx context.Context,
	kind domain.EntityType,
	id uuid.UUID,
	fn func(tx *gorm.DB, user *auth.UserContext, rec *pipelineRecord) (*stageChange, error),
) (*pipelineRecord, *stageChange, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		rec    *pipelineRecord
		change *stageChange
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = s.load(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		if err := s.access.check(ctx, tx, user, rec.ownerID(), rec.team()); err != nil {
			return err
		}
		change, err = fn(tx, user, rec)
		if err != nil {
			return err
		}
		return s.commit(ctx, tx, user, rec, change)
	})
	if err != nil {
		return nil, nil, err
	}

	s.publish(user, rec, change)
	return rec, change, nil
}

func (s *StageService) commit(ctx context.Context, tx *gorm.DB, user *auth.UserContext, rec *pipelineRecord, change *stageChange) error {
	if err := s.persist(ctx, tx, rec); err != nil {
		return fmt.Errorf("failed to save pipeline: %w", err)
	}
	if change == nil {
		return nil
	}
	h := &domain.StageHistory{
		EntityType:        rec.kind,
		EntityID:          rec.id(),
		FromStage:         change.from,
		ToStage:           change.to,
		Reason:            change.reason,
		ApprovalRequestID: change.approvalID,
		ChangedByID:       user.UserID,
		ChangedByName:     user.DisplayName,
	}
	if err := s.historyRepo.WithTx(tx).Create(ctx, h); err != nil {
		return fmt.Errorf("failed to record stage history: %w", err)
	}
	return nil
}

func (s *StageService) publish(user *auth.UserContext, rec *pipelineRecord, change *stageChange) {
	if change == nil {
		return
	}
	data := domain.StageTransitionResponse{
		FromStage: change.from,
		ToStage:   change.to,
		Pipeline:  mapper.ToPipelineDTO(rec.pipeline()),
	}
	for _, uid := range mapper.UniqueIDs([]uuid.UUID{rec.ownerID(), user.UserID}) {
		s.events.Publish(events.Event{
			Type:     events.TypeStageChanged,
			UserID:   uid,
			EntityID: rec.id(),
			Data:     data,
		})
	}
	s.logger.Info("pipeline stage changed",
		zap.String("entityType", string(rec.kind)),
		zap.String("entityID", rec.id().String()),
		zap.String("from", change.from),
		zap.String("to", change.to),
		zap.String("reason", string(change.reason)))
}

func transition(rec *pipelineRecord, change *stageChange) *domain.StageTransitionResponse {
	resp := &domain.StageTransitionResponse{Pipeline: mapper.ToPipelineDTO(rec.pipeline())}
	if change != nil {
		resp.FromStage, resp.ToStage = change.from, change.to
	}
	return resp
}

// ensureNoPendingGate refuses when a pending stage-advancement or conversion
// request exists for the entity
func (s *StageService) ensureNoPendingGate(ctx context.Context, tx *gorm.DB, kind domain.EntityType, id uuid.UUID) error {
	pending, err := s.approvalRepo.WithTx(tx).ListPendingForEntity(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("failed to check pending approvals: %w", err)
	}
	for i := range pending {
		if pending[i].IsStageAdvancement || pending[i].IsConversion() {
			return ErrApprovalPending
		}
	}
	return nil
}

// Advance moves the entity to its next stage
func (s *StageService) Advance(ctx context.Context, kind domain.EntityType, id uuid.UUID) (*domain.StageTransitionResponse, error) {
	rec, change, err := s.mutate(ctx, kind, id, func(tx *gorm.DB, _ *auth.UserContext, rec *pipelineRecord) (*stageChange, error) {
		if err := rec.pipeline().CheckAdvance(); err != nil {
			return nil, err
		}
		if err := s.ensureNoPendingGate(ctx, tx, kind, rec.id()); err != nil {
			return nil, err
		}
		from, to, err := rec.pipeline().Advance()
		if err != nil {
			return nil, err
		}
		return &stageChange{from: from, to: to, reason: domain.StageChangeAdvance}, nil
	})
	if err != nil {
		return nil, err
	}
	return transition(rec, change), nil
}

// GoBack moves the entity to its previous stage
func (s *StageService) GoBack(ctx context.Context, kind domain.EntityType, id uuid.UUID) (*domain.StageTransitionResponse, error) {
	rec, change, err := s.mutate(ctx, kind, id, func(_ *gorm.DB, _ *auth.UserContext, rec *pipelineRecord) (*stageChange, error) {
		from, to, err := rec.pipeline().GoBack()
		if err != nil {
			return nil, err
		}
		return &stageChange{from: from, to: to, reason: domain.StageChangeBack}, nil
	})
	if err != nil {
		return nil, err
	}
	return transition(rec, change), nil
}

// Select jumps to a named stage. Admin only; tasks are not checked.
func (s *StageService) Select(ctx context.Context, kind domain.EntityType, id uuid.UUID, stage string) (*domain.StageTransitionResponse, error) {
	rec, change, err := s.mutate(ctx, kind, id, func(_ *gorm.DB, user *auth.UserContext, rec *pipelineRecord) (*stageChange, error) {
		if !user.IsAdmin() && !user.IsSystem() {
			return nil, ErrForbidden
		}
		from, to, err := rec.pipeline().Select(stage)
		if err != nil {
			return nil, err
		}
		return &stageChange{from: from, to: to, reason: domain.StageChangeSelect}, nil
	})
	if err != nil {
		return nil, err
	}
	return transition(rec, change), nil
}

// SaveStages applies a batch of editing operations to a working copy and
// persists the result atomically. Nothing is saved if any operation fails.
func (s *StageService) SaveStages(ctx context.Context, kind domain.EntityType, id uuid.UUID, ops []domain.StageEditOp, pinned string) (*domain.StageTransitionResponse, error) {
	rec, change, err := s.mutate(ctx, kind, id, func(_ *gorm.DB, _ *auth.UserContext, rec *pipelineRecord) (*stageChange, error) {
		p := rec.pipeline()
		editor := p.Edit()
		for i, op := range ops {
			if err := editor.Apply(op); err != nil {
				return nil, fmt.Errorf("operation %d (%s): %w", i, op.Op, err)
			}
		}
		saved, err := editor.Save(pinned)
		if err != nil {
			return nil, err
		}
		from := p.CurrentStage
		*p = saved
		return &stageChange{from: from, to: saved.CurrentStage, reason: domain.StageChangeEdit}, nil
	})
	if err != nil {
		return nil, err
	}
	return transition(rec, change), nil
}

// UpdateStageContent edits the notes and tasks of one stage
func (s *StageService) UpdateStageContent(ctx context.Context, kind domain.EntityType, id uuid.UUID, stage string, req *domain.UpdateStageContentRequest) (*domain.PipelineDTO, error) {
	rec, _, err := s.mutate(ctx, kind, id, func(_ *gorm.DB, _ *auth.UserContext, rec *pipelineRecord) (*stageChange, error) {
		p := rec.pipeline()
		if !p.HasStage(stage) {
			return nil, fmt.Errorf("%w: %s", ErrStageNotFound, stage)
		}

		// remove from the highest index down so earlier indexes stay valid
		removals := append([]int(nil), req.RemoveNotes...)
		sort.Sort(sort.Reverse(sort.IntSlice(removals)))
		for _, i := range removals {
			if err := p.RemoveNote(stage, i); err != nil {
				return nil, err
			}
		}
		for _, note := range req.AddNotes {
			if err := p.AddNote(stage, note); err != nil {
				return nil, err
			}
		}
		for _, task := range req.AddTasks {
			if err := p.AddTask(stage, task); err != nil {
				return nil, err
			}
		}
		for _, task := range req.CompleteTasks {
			if err := p.SetTaskDone(stage, task, true); err != nil {
				return nil, err
			}
		}
		for _, task := range req.ReopenTasks {
			if err := p.SetTaskDone(stage, task, false); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	dto := mapper.ToPipelineDTO(rec.pipeline())
	return &dto, nil
}

// ApplyTemplate replaces the pipeline with an SOP template, positioned at its first stage
func (s *StageService) ApplyTemplate(ctx context.Context, kind domain.EntityType, id uuid.UUID, name string) (*domain.StageTransitionResponse, error) {
	tpl, err := s.templates.Get(name)
	if err != nil {
		return nil, err
	}
	if !tpl.Supports(kind) {
		return nil, fmt.Errorf("%w: %s on %s", ErrTemplateNotApplicable, tpl.Name, kind)
	}

	rec, change, err := s.mutate(ctx, kind, id, func(_ *gorm.DB, _ *auth.UserContext, rec *pipelineRecord) (*stageChange, error) {
		next, err := tpl.Pipeline()
		if err != nil {
			return nil, err
		}
		p := rec.pipeline()
		from := p.CurrentStage
		*p = next
		return &stageChange{from: from, to: next.CurrentStage, reason: domain.StageChangeReset}, nil
	})
	if err != nil {
		return nil, err
	}
	return transition(rec, change), nil
}

// ListTemplates returns the SOP templates usable on the entity type, or all when kind is empty
func (s *StageService) ListTemplates(kind domain.EntityType) []domain.StageTemplateDTO {
	list := s.templates.List()
	out := make([]domain.StageTemplateDTO, 0, len(list))
	for _, t := range list {
		if kind != "" && !t.Supports(kind) {
			continue
		}
		out = append(out, domain.StageTemplateDTO{
			Name:        t.Name,
			Description: t.Description,
			AppliesTo:   t.AppliesTo,
			Stages:      t.StageNames(),
		})
	}
	return out
}

// History returns the entity's stage changes, newest first
func (s *StageService) History(ctx context.Context, kind domain.EntityType, id uuid.UUID) ([]domain.StageHistoryDTO, error) {
	if _, err := s.Inspect(ctx, kind, id); err != nil {
		return nil, err
	}
	rows, err := s.historyRepo.ListByEntity(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage history: %w", err)
	}
	out := make([]domain.StageHistoryDTO, len(rows))
	for i := range rows {
		out[i] = mapper.ToStageHistoryDTO(&rows[i])
	}
	return out, nil
}

// ApplyApprovedAdvance moves the request's entity to its approved next stage
// inside the caller's transaction. It fails with ErrStaleApproval when the
// target stage no longer exists or the entity has left the request's current stage.
func (s *StageService) ApplyApprovedAdvance(ctx context.Context, tx *gorm.DB, decider *auth.UserContext, req *domain.ApprovalRequest) (*domain.StageTransitionResponse, error) {
	rec, err := s.load(ctx, tx, req.RequestType, req.EntityID)
	if err != nil {
		return nil, err
	}
	from, err := rec.pipeline().ApplyApproved(req.CurrentStage, req.NextStage)
	if err != nil {
		if errors.Is(err, domain.ErrStageNotFound) || errors.Is(err, domain.ErrStageMoved) {
			return nil, fmt.Errorf("%w: %v", ErrStaleApproval, err)
		}
		return nil, err
	}
	change := &stageChange{from: from, to: req.NextStage, reason: domain.StageChangeApproval, approvalID: &req.ID}
	if err := s.commit(ctx, tx, decider, rec, change); err != nil {
		return nil, err
	}
	return transition(rec, change), nil
}

// PublishApprovedAdvance emits the stage event for an advance committed by ApplyApprovedAdvance
func (s *StageService) PublishApprovedAdvance(decider *auth.UserContext, req *domain.ApprovalRequest, resp *domain.StageTransitionResponse) {
	if resp == nil {
		return
	}
	for _, uid := range mapper.UniqueIDs([]uuid.UUID{req.RequestedBy, decider.UserID}) {
		s.events.Publish(events.Event{
			Type:     events.TypeStageChanged,
			UserID:   uid,
			EntityID: req.EntityID,
			Data:     resp,
		})
	}
}
