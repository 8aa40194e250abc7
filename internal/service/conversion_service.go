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

// errWaitingForFiles keeps reset_panels pending until the files are safe on the project
var errWaitingForFiles = errors.New("waiting for migrate_files")

// conversionLease is how long an in_progress run may go without an update
// before another worker may take it over
const conversionLease = 10 * time.Minute

// ConversionService turns customers into projects. The primary write is one
// transaction; the tail is a saga of idempotent steps recorded in a run log.
type ConversionService struct {
	customerRepo   *repository.CustomerRepository
	projectRepo    *repository.ProjectRepository
	approvalRepo   *repository.ApprovalRepository
	quoteRepo      *repository.QuoteRepository
	transcriptRepo *repository.TranscriptRepository
	runRepo        *repository.ConversionRunRepository
	historyRepo    *repository.StageHistoryRepository
	access         accessPolicy
	notifications  *NotificationService
	events         events.Publisher
	projectStages  []string
	maxAttempts    int
	db             *gorm.DB
	logger         *zap.Logger
}

// NewConversionService creates a new ConversionService instance
func NewConversionService(
	customerRepo *repository.CustomerRepository,
	projectRepo *repository.ProjectRepository,
	approvalRepo *repository.ApprovalRepository,
	quoteRepo *repository.QuoteRepository,
	transcriptRepo *repository.TranscriptRepository,
	runRepo *repository.ConversionRunRepository,
	historyRepo *repository.StageHistoryRepository,
	membershipRepo *repository.MembershipRepository,
	notifications *NotificationService,
	publisher events.Publisher,
	projectStages []string,
	maxAttempts int,
	db *gorm.DB,
	logger *zap.Logger,
) *ConversionService {
	return &ConversionService{
		customerRepo:   customerRepo,
		projectRepo:    projectRepo,
		approvalRepo:   approvalRepo,
		quoteRepo:      quoteRepo,
		transcriptRepo: transcriptRepo,
		runRepo:        runRepo,
		historyRepo:    historyRepo,
		access:         accessPolicy{membershipRepo: membershipRepo},
		notifications:  notifications,
		events:         publisher,
		projectStages:  projectStages,
		maxAttempts:    maxAttempts,
		db:             db,
		logger:         logger,
	}
}

// Convert creates a project from the customer. It needs an approved, unused
// conversion request for the customer unless BypassApproval is set.
func (s *ConversionService) Convert(ctx context.Context, customerID uuid.UUID, req *domain.ConvertCustomerRequest) (*domain.ConversionResultDTO, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	pipeline, err := domain.NewStagePipeline(s.projectStages)
	if err != nil {
		return nil, fmt.Errorf("invalid default project stages: %w", err)
	}

	var (
		customer *domain.Customer
		project  *domain.Project
		run      *domain.ConversionRun
		approval *domain.ApprovalRequest
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		customer, err = s.customerRepo.WithTx(tx).GetByID(ctx, customerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCustomerNotFound
			}
			return fmt.Errorf("failed to get customer: %w", err)
		}
		if err := s.access.check(ctx, tx, user, customer.OwnerID, nil); err != nil {
			return err
		}

		if !req.BypassApproval {
			approval, err = s.approvedRequest(ctx, tx, customerID, req.ApprovalRequestID)
			if err != nil {
				return err
			}
		}
		if req.SelectedDraftQuoteID != nil {
			if err := s.checkSelectedDraft(ctx, tx, customer.ID, *req.SelectedDraftQuoteID); err != nil {
				return err
			}
		}

		priority := req.Priority
		if priority == "" {
			priority = domain.ProjectPriorityMedium
		}
		cid := customer.ID
		project = &domain.Project{
			OwnerID:               customer.OwnerID,
			Name:                  strings.TrimSpace(req.Name),
			Description:           req.Description,
			StartDate:             req.StartDate,
			EndDate:               req.EndDate,
			Budget:                req.Budget,
			Priority:              priority,
			Team:                  mapper.UniqueIDs(req.Team),
			CustomerID:            &cid,
			CustomerName:          customer.Name,
			CustomerEmail:         customer.Email,
			CustomerPhone:         customer.Phone,
			CompanyName:           customer.CompanyName,
			ConvertedFromCustomer: true,
			Pipeline:              pipeline,
			Files:                 []domain.Attachment{},
		}
		if err := s.projectRepo.WithTx(tx).Create(ctx, project); err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}

		customer.Projects = append(customer.Projects, project.ID)
		if err := s.customerRepo.WithTx(tx).Update(ctx, customer); err != nil {
			return fmt.Errorf("failed to link project to customer: %w", err)
		}

		if approval != nil {
			ok, err := s.approvalRepo.WithTx(tx).MarkConsumed(ctx, approval.ID, project.ID, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to consume approval request: %w", err)
			}
			if !ok {
				return ErrApprovalConsumed
			}
		}

		run = domain.NewConversionRun(customer.ID, project.ID)
		run.LeadScoreSnapshot = customer.LeadScore
		run.SelectedDraftQuoteID = req.SelectedDraftQuoteID
		run.CreatedByID = user.UserID
		if approval != nil {
			run.ApprovalRequestID = &approval.ID
		}
		if err := s.runRepo.WithTx(tx).Create(ctx, run); err != nil {
			return fmt.Errorf("failed to create conversion run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("customer converted",
		zap.String("customerID", customer.ID.String()),
		zap.String("projectID", project.ID.String()),
		zap.String("runID", run.ID),
		zap.Bool("bypassed", req.BypassApproval))

	s.execute(ctx, run)
	s.announce(ctx, user, customer, project, approval, run)

	if fresh, err := s.projectRepo.GetByID(ctx, project.ID); err == nil {
		project = fresh
	}
	return &domain.ConversionResultDTO{
		Project: mapper.ToProjectDTO(project),
		Run:     mapper.ToConversionRunDTO(run),
	}, nil
}

func (s *ConversionService) approvedRequest(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, id *uuid.UUID) (*domain.ApprovalRequest, error) {
	if id == nil {
		return nil, ErrApprovalRequired
	}
	req, err := s.approvalRepo.WithTx(tx).GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	if !req.IsConversion() || req.EntityID != customerID {
		return nil, ErrApprovalRequired
	}
	if req.Status != domain.ApprovalStatusApproved {
		return nil, ErrApprovalNotApproved
	}
	if req.ConsumedAt != nil {
		return nil, ErrApprovalConsumed
	}
	return req, nil
}

// checkSelectedDraft requires the quote picked for migration to be an
// unmigrated draft of the customer
func (s *ConversionService) checkSelectedDraft(ctx context.Context, tx *gorm.DB, customerID, quoteID uuid.UUID) error {
	q, err := s.quoteRepo.WithTx(tx).GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuoteNotFound
		}
		return fmt.Errorf("failed to get selected draft quote: %w", err)
	}
	if q.OwnerType != domain.EntityTypeCustomer || q.OwnerID != customerID {
		return ErrQuoteNotFound
	}
	if !q.IsUnmigratedDraft() {
		return fmt.Errorf("%w: quote %s was already migrated", ErrInvalidInput, quoteID)
	}
	return nil
}

func (s *ConversionService) announce(ctx context.Context, user *auth.UserContext, customer *domain.Customer, project *domain.Project, approval *domain.ApprovalRequest, run *domain.ConversionRun) {
	recipients := []uuid.UUID{customer.OwnerID, user.UserID}
	if approval != nil {
		recipients = append(recipients, approval.RequestedBy)
	}
	recipients = mapper.UniqueIDs(recipients, auth.SystemUserID)

	dto := mapper.ToConversionRunDTO(run)
	for _, uid := range recipients {
		s.events.Publish(events.Event{
			Type:     events.TypeConversionDone,
			UserID:   uid,
			EntityID: project.ID,
			Data:     dto,
		})
	}
	s.notifications.NotifyAll(ctx, mapper.UniqueIDs(recipients, user.UserID), NotificationInput{
		Type:       NotificationConversion,
		Title:      "Customer converted",
		Message:    fmt.Sprintf("%s was converted to project %s", customer.Name, project.Name),
		EntityType: domain.EntityTypeProject,
		EntityID:   &project.ID,
		Context:    map[string]string{"customerId": customer.ID.String(), "runId": run.ID},
	})
}

// execute runs every step that is not done yet and persists the run log after each one
func (s *ConversionService) execute(ctx context.Context, run *domain.ConversionRun) {
	for _, step := range domain.ConversionSteps {
		if run.IsDone(step) {
			continue
		}
		err := s.runStep(ctx, run, step)
		switch {
		case errors.Is(err, errWaitingForFiles):
			s.logger.Info("conversion step deferred",
				zap.String("runID", run.ID),
				zap.String("step", string(step)))
			continue
		case err != nil:
			s.logger.Warn("conversion step failed",
				zap.String("runID", run.ID),
				zap.String("step", string(step)),
				zap.Error(err))
			run.MarkFailed(step, err)
		default:
			run.MarkDone(step, time.Now().UTC())
		}
		if err := s.runRepo.Update(context.WithoutCancel(ctx), run); err != nil {
			s.logger.Error("failed to persist conversion run",
				zap.String("runID", run.ID),
				zap.String("step", string(step)),
				zap.Error(err))
		}
	}

	run.Settle(s.maxAttempts)
	if err := s.runRepo.Update(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("failed to persist conversion run status", zap.String("runID", run.ID), zap.Error(err))
	}
	if run.Status == domain.ConversionRunDead {
		s.logger.Error("conversion run gave up",
			zap.String("runID", run.ID),
			zap.Int("maxAttempts", s.maxAttempts))
	}
}

func (s *ConversionService) runStep(ctx context.Context, run *domain.ConversionRun, step domain.ConversionStep) error {
	if step == domain.StepResetPanels && !run.IsDone(domain.StepMigrateFiles) {
		return errWaitingForFiles
	}
	if step == domain.StepMigrateQuote {
		// unused drafts go even when the selected copy below fails
		if err := s.dropUnusedDrafts(ctx, run); err != nil {
			return err
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.customerRepo.WithTx(tx).GetByID(ctx, run.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer: %w", err)
		}
		project, err := s.projectRepo.WithTx(tx).GetByID(ctx, run.ProjectID)
		if err != nil {
			return fmt.Errorf("load project: %w", err)
		}

		switch step {
		case domain.StepMigrateFiles:
			return s.migrateFiles(ctx, tx, customer, project)
		case domain.StepMigrateQuote:
			return s.migrateQuote(ctx, tx, run, customer, project)
		case domain.StepMigrateTranscripts:
			return s.migrateTranscripts(ctx, tx, customer, project)
		case domain.StepFreezeScore:
			return s.freezeScore(ctx, tx, run, customer, project)
		case domain.StepResetPanels:
			return s.resetPanels(ctx, tx, run, customer)
		default:
			return fmt.Errorf("unknown conversion step %q", step)
		}
	})
}

func (s *ConversionService) migrateFiles(ctx context.Context, tx *gorm.DB, customer *domain.Customer, project *domain.Project) error {
	seen := make(map[string]struct{}, len(project.Files))
	for _, f := range project.Files {
		seen[f.URL] = struct{}{}
	}
	added := 0
	for _, f := range customer.Files {
		if _, dup := seen[f.URL]; dup {
			continue
		}
		seen[f.URL] = struct{}{}
		project.Files = append(project.Files, f)
		added++
	}
	if added == 0 {
		return nil
	}
	return s.projectRepo.WithTx(tx).Update(ctx, project)
}

func (s *ConversionService) dropUnusedDrafts(ctx context.Context, run *domain.ConversionRun) error {
	var keep []uuid.UUID
	if run.SelectedDraftQuoteID != nil {
		keep = append(keep, *run.SelectedDraftQuoteID)
	}
	if _, err := s.quoteRepo.DeleteUnmigratedDrafts(ctx, run.CustomerID, keep...); err != nil {
		return fmt.Errorf("delete unused drafts: %w", err)
	}
	return nil
}

func (s *ConversionService) migrateQuote(ctx context.Context, tx *gorm.DB, run *domain.ConversionRun, customer *domain.Customer, project *domain.Project) error {
	quotes := s.quoteRepo.WithTx(tx)

	if run.SelectedDraftQuoteID != nil {
		draftID := *run.SelectedDraftQuoteID
		_, err := quotes.FindCopy(ctx, project.ID, draftID)
		copied := err == nil
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("find quote copy: %w", err)
		}

		draft, err := quotes.GetByID(ctx, draftID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			if !copied {
				return fmt.Errorf("selected draft quote %s not found", draftID)
			}
		case err != nil:
			return fmt.Errorf("load draft quote: %w", err)
		default:
			if draft.OwnerType != domain.EntityTypeCustomer || draft.OwnerID != customer.ID {
				return fmt.Errorf("quote %s is not a draft of customer %s", draftID, customer.ID)
			}
			if !copied {
				if err := quotes.Create(ctx, draft.CopyForProject(project.ID)); err != nil {
					return fmt.Errorf("copy draft quote: %w", err)
				}
			}
			if draft.MigratedProjectID == nil {
				draft.MigratedProjectID = &project.ID
				if err := quotes.Update(ctx, draft); err != nil {
					return fmt.Errorf("mark draft migrated: %w", err)
				}
			}
		}
	}

	if _, err := quotes.DeleteUnmigratedDrafts(ctx, customer.ID); err != nil {
		return fmt.Errorf("delete unused drafts: %w", err)
	}

	// at most one quote survives under the project, the oldest
	owned, err := quotes.ListByOwner(ctx, domain.EntityTypeProject, project.ID)
	if err != nil {
		return fmt.Errorf("list project quotes: %w", err)
	}
	for i := 1; i < len(owned); i++ {
		if err := quotes.Delete(ctx, owned[i].ID); err != nil {
			return fmt.Errorf("delete extra project quote: %w", err)
		}
	}
	return nil
}

func (s *ConversionService) migrateTranscripts(ctx context.Context, tx *gorm.DB, customer *domain.Customer, project *domain.Project) error {
	repo := s.transcriptRepo.WithTx(tx)
	list, err := repo.ListByOwner(ctx, domain.EntityTypeCustomer, customer.ID)
	if err != nil {
		return fmt.Errorf("list transcripts: %w", err)
	}
	for _, t := range list {
		exists, err := repo.ExistsCopy(ctx, project.ID, t.ID)
		if err != nil {
			return fmt.Errorf("check transcript copy: %w", err)
		}
		if !exists {
			originID, customerID := t.ID, customer.ID
			cp := &domain.MeetingTranscript{
				OwnerType:          domain.EntityTypeProject,
				OwnerID:            project.ID,
				Title:              t.Title,
				Transcript:         t.Transcript,
				Summary:            t.Summary,
				RecordedAt:         t.RecordedAt,
				OriginCustomerID:   &customerID,
				OriginTranscriptID: &originID,
			}
			if err := repo.Create(ctx, cp); err != nil {
				return fmt.Errorf("copy transcript: %w", err)
			}
		}
		if err := repo.Delete(ctx, t.ID); err != nil {
			return fmt.Errorf("delete migrated transcript: %w", err)
		}
	}
	return nil
}

func (s *ConversionService) freezeScore(ctx context.Context, tx *gorm.DB, run *domain.ConversionRun, customer *domain.Customer, project *domain.Project) error {
	score := run.LeadScoreSnapshot
	project.FrozenLeadScore = &score
	if err := s.projectRepo.WithTx(tx).Update(ctx, project); err != nil {
		return fmt.Errorf("freeze project score: %w", err)
	}

	recorded := false
	for _, snap := range customer.ProjectSnapshots {
		if snap.ProjectID == project.ID {
			recorded = true
			break
		}
	}
	if !recorded {
		customer.ProjectSnapshots = append(customer.ProjectSnapshots, domain.ProjectSnapshot{
			ProjectID:   project.ID,
			Name:        project.Name,
			ConvertedAt: run.CreatedAt,
			LeadScore:   score,
		})
	}
	customer.LeadScore = 0
	if err := s.customerRepo.WithTx(tx).Update(ctx, customer); err != nil {
		return fmt.Errorf("reset customer score: %w", err)
	}
	return nil
}

func (s *ConversionService) resetPanels(ctx context.Context, tx *gorm.DB, run *domain.ConversionRun, customer *domain.Customer) error {
	from := customer.Pipeline.CurrentStage
	customer.Activities = []domain.PanelActivity{}
	customer.Reminders = []domain.Reminder{}
	customer.Files = []domain.Attachment{}
	customer.Pipeline.ClearContent()
	if err := s.customerRepo.WithTx(tx).Update(ctx, customer); err != nil {
		return fmt.Errorf("reset customer panels: %w", err)
	}

	h := &domain.StageHistory{
		EntityType:  domain.EntityTypeCustomer,
		EntityID:    customer.ID,
		FromStage:   from,
		ToStage:     customer.Pipeline.CurrentStage,
		Reason:      domain.StageChangeReset,
		ChangedByID: run.CreatedByID,
	}
	if run.ApprovalRequestID != nil {
		h.ApprovalRequestID = run.ApprovalRequestID
	}
	if err := s.historyRepo.WithTx(tx).Create(ctx, h); err != nil {
		return fmt.Errorf("record reset history: %w", err)
	}
	return nil
}

func (s *ConversionService) getRun(ctx context.Context, runID string) (*domain.ConversionRun, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversionRunNotFound
		}
		return nil, fmt.Errorf("failed to get conversion run: %w", err)
	}
	customer, err := s.customerRepo.GetByID(ctx, run.CustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if err := s.access.check(ctx, nil, user, customer.OwnerID, nil); err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun returns the step log of a conversion
func (s *ConversionService) GetRun(ctx context.Context, runID string) (*domain.ConversionRunDTO, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	dto := mapper.ToConversionRunDTO(run)
	return &dto, nil
}

// Resume re-runs the steps of a conversion that are not done. A completed
// run is returned unchanged. A dead run gets one more attempt per failed step.
// A run another worker is executing fails with ErrConversionRunBusy.
func (s *ConversionService) Resume(ctx context.Context, runID string) (*domain.ConversionRunDTO, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.ConversionRunCompleted {
		won, err := s.runRepo.Claim(ctx, run, time.Now().Add(-conversionLease),
			domain.ConversionRunPartial, domain.ConversionRunDead)
		if err != nil {
			return nil, fmt.Errorf("failed to claim conversion run: %w", err)
		}
		if !won {
			return nil, ErrConversionRunBusy
		}
		s.execute(ctx, run)
	}
	dto := mapper.ToConversionRunDTO(run)
	return &dto, nil
}

// ResumePending resumes up to limit unfinished runs and reports how many completed
func (s *ConversionService) ResumePending(ctx context.Context, limit int) (int, error) {
	staleBefore := time.Now().Add(-conversionLease)
	runs, err := s.runRepo.ListUnfinished(ctx, staleBefore, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished conversions: %w", err)
	}
	completed := 0
	for i := range runs {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		run := &runs[i]
		won, err := s.runRepo.Claim(ctx, run, staleBefore, domain.ConversionRunPartial)
		if err != nil {
			s.logger.Warn("failed to claim conversion run", zap.String("runID", run.ID), zap.Error(err))
			continue
		}
		if !won {
			continue
		}
		s.execute(ctx, run)
		if run.Status == domain.ConversionRunCompleted {
			completed++
		}
	}
	return completed, nil
}
