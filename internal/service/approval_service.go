package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/events"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Decision actions
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ApprovalService raises and decides approval requests for stage
// advancement and customer conversion
type ApprovalService struct {
	approvalRepo  *repository.ApprovalRepository
	userRepo      *repository.UserRepository
	team          *TeamService
	stages        *StageService
	quotes        *QuoteService
	conversions   *ConversionService
	notifications *NotificationService
	events        events.Publisher
	db            *gorm.DB
	logger        *zap.Logger
}

// NewApprovalService creates a new ApprovalService instance
func NewApprovalService(
	approvalRepo *repository.ApprovalRepository,
	userRepo *repository.UserRepository,
	team *TeamService,
	stages *StageService,
	quotes *QuoteService,
	conversions *ConversionService,
	notifications *NotificationService,
	publisher events.Publisher,
	db *gorm.DB,
	logger *zap.Logger,
) *ApprovalService {
	return &ApprovalService{
		approvalRepo:  approvalRepo,
		userRepo:      userRepo,
		team:          team,
		stages:        stages,
		quotes:        quotes,
		conversions:   conversions,
		notifications: notifications,
		events:        publisher,
		db:            db,
		logger:        logger,
	}
}

// Create raises an approval request. With BypassApproval the workflow runs
// immediately and no request is stored.
func (s *ApprovalService) Create(ctx context.Context, req *domain.CreateApprovalRequest) (*domain.CreateApprovalResponse, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if !req.RequestType.IsValid() {
		return nil, fmt.Errorf("%w: unknown request type %q", ErrInvalidInput, req.RequestType)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	conversion := req.RequestType == domain.EntityTypeCustomer && !req.IsStageAdvancement

	if req.BypassApproval {
		return s.bypass(ctx, req, conversion)
	}

	if req.RequestedTo == uuid.Nil {
		return nil, fmt.Errorf("%w: requestedTo is required", ErrInvalidInput)
	}
	if req.RequestedTo == user.UserID {
		return nil, ErrSelfApproval
	}
	viewers := mapper.UniqueIDs(req.Viewers, user.UserID, req.RequestedTo)
	if err := s.team.RequireMembers(ctx, user.UserID, append([]uuid.UUID{req.RequestedTo}, viewers...)...); err != nil {
		return nil, err
	}

	entity, err := s.stages.Inspect(ctx, req.RequestType, req.EntityID)
	if err != nil {
		return nil, err
	}
	if req.IsStageAdvancement {
		if err := checkStageRequest(&entity.Pipeline, req.CurrentStage, req.NextStage); err != nil {
			return nil, err
		}
	}

	names, err := s.userRepo.GetByIDs(ctx, append([]uuid.UUID{req.RequestedTo}, viewers...))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}

	now := time.Now().UTC()
	request := &domain.ApprovalRequest{
		RequestType:        req.RequestType,
		EntityID:           req.EntityID,
		EntityName:         entity.Name,
		Title:              title,
		Description:        req.Description,
		IsStageAdvancement: req.IsStageAdvancement,
		AttachedFiles:      mapper.ToAttachments(req.AttachedFiles, now),
		QuotationFiles:     mapper.ToAttachments(req.QuotationFiles, now),
		RequestedBy:        user.UserID,
		RequestedByName:    user.DisplayName,
		RequestedTo:        req.RequestedTo,
		RequestedToName:    names[req.RequestedTo].DisplayName,
		Status:             domain.ApprovalStatusPending,
	}
	if req.IsStageAdvancement {
		request.CurrentStage = req.CurrentStage
		request.NextStage = req.NextStage
	}
	if req.ProposedProject != nil {
		request.ProposedProject = toProposedProject(req.ProposedProject)
	}
	for _, id := range viewers {
		request.Viewers = append(request.Viewers, domain.ApprovalViewer{UserID: id, UserName: names[id].DisplayName})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending, err := s.approvalRepo.WithTx(tx).ListPendingForEntity(ctx, req.RequestType, req.EntityID)
		if err != nil {
			return fmt.Errorf("failed to check pending requests: %w", err)
		}
		for i := range pending {
			if req.IsStageAdvancement && pending[i].IsStageAdvancement {
				return ErrApprovalPending
			}
			if conversion && pending[i].IsConversion() {
				return ErrApprovalPending
			}
		}

		if conversion && req.AutoAttachQuotation {
			snap, err := s.quotes.ResolveSnapshot(ctx, tx, req.EntityID, req.SelectedQuoteID)
			if err != nil {
				return err
			}
			request.QuotationData = snap
		}

		return s.approvalRepo.WithTx(tx).Create(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("approval request created",
		zap.String("approvalID", request.ID.String()),
		zap.String("entityType", string(request.RequestType)),
		zap.String("entityID", request.EntityID.String()),
		zap.Bool("stageAdvancement", request.IsStageAdvancement))

	s.announceCreated(ctx, request)

	dto := mapper.ToApprovalRequestDTO(request)
	return &domain.CreateApprovalResponse{Request: &dto}, nil
}

func checkStageRequest(p *domain.StagePipeline, current, next string) error {
	if current != p.CurrentStage {
		return fmt.Errorf("%w: entity is at %q, not %q", ErrStageMismatch, p.CurrentStage, current)
	}
	expected, err := p.NextStage()
	if err != nil {
		return err
	}
	if next != expected {
		return fmt.Errorf("%w: next stage is %q, not %q", ErrStageMismatch, expected, next)
	}
	return p.CheckAdvance()
}

func toProposedProject(in *domain.ProposedProjectRequest) *domain.ProposedProject {
	return &domain.ProposedProject{
		Name:        in.Name,
		Description: in.Description,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Budget:      in.Budget,
		Priority:    in.Priority,
		Team:        mapper.UniqueIDs(in.Team),
	}
}

func (s *ApprovalService) bypass(ctx context.Context, req *domain.CreateApprovalRequest, conversion bool) (*domain.CreateApprovalResponse, error) {
	switch {
	case req.IsStageAdvancement:
		tr, err := s.stages.Advance(ctx, req.RequestType, req.EntityID)
		if err != nil {
			return nil, err
		}
		return &domain.CreateApprovalResponse{Bypassed: true, Transition: tr}, nil
	case conversion:
		if req.ProposedProject == nil {
			return nil, fmt.Errorf("%w: proposedProject is required to convert", ErrInvalidInput)
		}
		pp := req.ProposedProject
		result, err := s.conversions.Convert(ctx, req.EntityID, &domain.ConvertCustomerRequest{
			Name:                 pp.Name,
			Description:          pp.Description,
			StartDate:            pp.StartDate,
			EndDate:              pp.EndDate,
			Budget:               pp.Budget,
			Priority:             pp.Priority,
			Team:                 pp.Team,
			SelectedDraftQuoteID: req.SelectedQuoteID,
			BypassApproval:       true,
		})
		if err != nil {
			return nil, err
		}
		return &domain.CreateApprovalResponse{Bypassed: true, Conversion: result}, nil
	default:
		return nil, fmt.Errorf("%w: only stage advancement and conversion can bypass approval", ErrInvalidInput)
	}
}

func (s *ApprovalService) announceCreated(ctx context.Context, request *domain.ApprovalRequest) {
	ref := map[string]string{
		"entityType": string(request.RequestType),
		"entityId":   request.EntityID.String(),
	}
	s.notifications.Notify(ctx, NotificationInput{
		UserID:     request.RequestedTo,
		Type:       NotificationApprovalRequested,
		Title:      "Approval requested",
		Message:    fmt.Sprintf("%s asks you to approve: %s", request.RequestedByName, request.Title),
		EntityType: domain.EntityTypeApproval,
		EntityID:   &request.ID,
		Context:    ref,
	})
	s.notifications.NotifyAll(ctx, request.ViewerIDs(), NotificationInput{
		Type:       NotificationApprovalViewer,
		Title:      "Approval request shared with you",
		Message:    fmt.Sprintf("%s requested approval from %s: %s", request.RequestedByName, request.RequestedToName, request.Title),
		EntityType: domain.EntityTypeApproval,
		EntityID:   &request.ID,
		Context:    ref,
	})
	s.notifications.Notify(ctx, NotificationInput{
		UserID:     request.RequestedBy,
		Type:       NotificationApprovalSubmitted,
		Title:      "Approval request submitted",
		Message:    fmt.Sprintf("Your request %q was sent to %s", request.Title, request.RequestedToName),
		EntityType: domain.EntityTypeApproval,
		EntityID:   &request.ID,
		Context:    ref,
	})

	dto := mapper.ToApprovalRequestDTO(request)
	recipients := append([]uuid.UUID{request.RequestedTo, request.RequestedBy}, request.ViewerIDs()...)
	for _, uid := range mapper.UniqueIDs(recipients) {
		s.events.Publish(events.Event{
			Type:     events.TypeApprovalCreated,
			UserID:   uid,
			EntityID: request.ID,
			Data:     dto,
		})
	}
}

// Decide approves or rejects a pending request. Approving a stage
// advancement moves the entity in the same transaction as the decision.
func (s *ApprovalService) Decide(ctx context.Context, id uuid.UUID, in *domain.DecideApprovalRequest) (*domain.ApprovalRequestDTO, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var status domain.ApprovalStatus
	switch in.Action {
	case ActionApprove:
		status = domain.ApprovalStatusApproved
	case ActionReject:
		status = domain.ApprovalStatusRejected
	default:
		return nil, ErrInvalidDecision
	}

	request, err := s.approvalRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	if request.RequestedTo != user.UserID {
		return nil, ErrForbidden
	}
	if request.Status != domain.ApprovalStatusPending {
		return nil, ErrAlreadyDecided
	}

	extra := mapper.UniqueIDs(in.NotifyTeamMemberIDs, user.UserID)
	if err := s.team.RequireMembers(ctx, user.UserID, extra...); err != nil {
		return nil, err
	}

	var comment *string
	if msg := strings.TrimSpace(in.AdminMessage); msg != "" {
		comment = &msg
	}
	now := time.Now().UTC()

	var transition *domain.StageTransitionResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.approvalRepo.WithTx(tx).DecideIfPending(ctx, request.ID, repository.Decision{
			Status:    status,
			DecidedBy: user.UserID,
			DecidedAt: now,
			Comment:   comment,
		})
		if err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}
		if !ok {
			return ErrAlreadyDecided
		}
		if status == domain.ApprovalStatusApproved && request.IsStageAdvancement {
			transition, err = s.stages.ApplyApprovedAdvance(ctx, tx, user, request)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	request.Status = status
	request.DecisionBy = &user.UserID
	request.DecisionDate = &now
	request.DecisionComment = comment

	s.logger.Info("approval request decided",
		zap.String("approvalID", request.ID.String()),
		zap.String("status", string(status)),
		zap.String("decidedBy", user.UserID.String()))

	s.stages.PublishApprovedAdvance(user, request, transition)
	s.announceDecided(ctx, user, request, extra)

	dto := mapper.ToApprovalRequestDTO(request)
	return &dto, nil
}

func (s *ApprovalService) announceDecided(ctx context.Context, decider *auth.UserContext, request *domain.ApprovalRequest, extra []uuid.UUID) {
	message := fmt.Sprintf("%s %s the request %q", decider.DisplayName, request.Status, request.Title)
	if request.DecisionComment != nil {
		message += ": " + *request.DecisionComment
	}
	recipients := append([]uuid.UUID{request.RequestedBy}, request.ViewerIDs()...)
	recipients = mapper.UniqueIDs(append(recipients, extra...), decider.UserID)

	s.notifications.NotifyAll(ctx, recipients, NotificationInput{
		Type:       NotificationApprovalDecided,
		Title:      "Approval request " + string(request.Status),
		Message:    message,
		EntityType: domain.EntityTypeApproval,
		EntityID:   &request.ID,
		Context: map[string]string{
			"entityType": string(request.RequestType),
			"entityId":   request.EntityID.String(),
			"status":     string(request.Status),
		},
	})

	dto := mapper.ToApprovalRequestDTO(request)
	for _, uid := range mapper.UniqueIDs(append(recipients, decider.UserID)) {
		s.events.Publish(events.Event{
			Type:     events.TypeApprovalDecided,
			UserID:   uid,
			EntityID: request.ID,
			Data:     dto,
		})
	}
}

// GetByID returns a request visible to its requester, decision maker, viewers and admins
func (s *ApprovalService) GetByID(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequestDTO, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	request, err := s.approvalRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	visible := request.RequestedBy == user.UserID ||
		request.RequestedTo == user.UserID ||
		request.HasViewer(user.UserID) ||
		user.IsAdmin()
	if !visible {
		return nil, ErrForbidden
	}
	dto := mapper.ToApprovalRequestDTO(request)
	return &dto, nil
}

// ListForUser lists the current user's requests by role and optional status
func (s *ApprovalService) ListForUser(ctx context.Context, role repository.ApprovalRole, status domain.ApprovalStatus, page, pageSize int) (*domain.PaginatedResponse, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	switch role {
	case "":
		role = repository.ApprovalRoleAssigned
	case repository.ApprovalRoleRequested, repository.ApprovalRoleAssigned, repository.ApprovalRoleViewing:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	switch status {
	case "", domain.ApprovalStatusPending, domain.ApprovalStatusApproved, domain.ApprovalStatusRejected:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	page, pageSize = repository.NormalizePage(page, pageSize)
	requests, total, err := s.approvalRepo.ListForUser(ctx, user.UserID, role, status, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	dtos := make([]domain.ApprovalRequestDTO, len(requests))
	for i := range requests {
		dtos[i] = mapper.ToApprovalRequestDTO(&requests[i])
	}
	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// PendingForEntity returns the pending requests on a customer or project
func (s *ApprovalService) PendingForEntity(ctx context.Context, kind domain.EntityType, id uuid.UUID) ([]domain.ApprovalRequestDTO, error) {
	if _, err := s.stages.Inspect(ctx, kind, id); err != nil {
		return nil, err
	}
	requests, err := s.approvalRepo.ListPendingForEntity(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	dtos := make([]domain.ApprovalRequestDTO, len(requests))
	for i := range requests {
		dtos[i] = mapper.ToApprovalRequestDTO(&requests[i])
	}
	return dtos, nil
}
