package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/storage"
	"github.com/straye-as/pipeline-api/internal/templates"
	"go.uber.org/zap"
)

// CustomerService manages customers and their panels
type CustomerService struct {
	customerRepo   *repository.CustomerRepository
	transcriptRepo *repository.TranscriptRepository
	access         accessPolicy
	storage        storage.Storage
	templates      *templates.Registry
	defaultStages  []string
	logger         *zap.Logger
}

// NewCustomerService creates a new CustomerService instance
func NewCustomerService(
	customerRepo *repository.CustomerRepository,
	transcriptRepo *repository.TranscriptRepository,
	membershipRepo *repository.MembershipRepository,
	store storage.Storage,
	registry *templates.Registry,
	defaultStages []string,
	logger *zap.Logger,
) *CustomerService {
	return &CustomerService{
		customerRepo:   customerRepo,
		transcriptRepo: transcriptRepo,
		access:         accessPolicy{membershipRepo: membershipRepo},
		storage:        store,
		templates:      registry,
		defaultStages:  defaultStages,
		logger:         logger,
	}
}

func (s *CustomerService) initialPipeline(req *domain.CreateCustomerRequest) (domain.StagePipeline, error) {
	if req.Template != "" {
		tpl, err := s.templates.Get(req.Template)
		if err != nil {
			return domain.StagePipeline{}, err
		}
		if !tpl.Supports(domain.EntityTypeCustomer) {
			return domain.StagePipeline{}, fmt.Errorf("%w: %s", ErrTemplateNotApplicable, tpl.Name)
		}
		return tpl.Pipeline()
	}
	stages := req.Stages
	if len(stages) == 0 {
		stages = s.defaultStages
	}
	return domain.NewStagePipeline(stages)
}

// Create creates a customer owned by the current user
func (s *CustomerService) Create(ctx context.Context, req *domain.CreateCustomerRequest) (*domain.CustomerDTO, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	pipeline, err := s.initialPipeline(req)
	if err != nil {
		return nil, err
	}

	customer := &domain.Customer{
		OwnerID:          user.UserID,
		Name:             name,
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:            req.Phone,
		CompanyName:      req.CompanyName,
		Pipeline:         pipeline,
		Activities:       []domain.PanelActivity{},
		Reminders:        []domain.Reminder{},
		Files:            []domain.Attachment{},
		Projects:         []uuid.UUID{},
		ProjectSnapshots: []domain.ProjectSnapshot{},
		LeadScore:        req.LeadScore,
	}
	if err := s.customerRepo.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	s.logger.Info("customer created",
		zap.String("customerID", customer.ID.String()),
		zap.String("ownerID", user.UserID.String()),
		zap.Strings("stages", customer.Pipeline.Stages))

	dto := mapper.ToCustomerDTO(customer)
	return &dto, nil
}

func (s *CustomerService) get(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	customer, err := s.customerRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if err := s.access.check(ctx, nil, user, customer.OwnerID, nil); err != nil {
		return nil, err
	}
	return customer, nil
}

// GetByID returns a customer
func (s *CustomerService) GetByID(ctx context.Context, id uuid.UUID) (*domain.CustomerDTO, error) {
	customer, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := mapper.ToCustomerDTO(customer)
	return &dto, nil
}

// List returns the current user's customers, most recently updated first
func (s *CustomerService) List(ctx context.Context, page, pageSize int) (*domain.PaginatedResponse, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	page, pageSize = repository.NormalizePage(page, pageSize)
	customers, total, err := s.customerRepo.ListByOwner(ctx, user.UserID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	dtos := make([]domain.CustomerDTO, len(customers))
	for i := range customers {
		dtos[i] = mapper.ToCustomerDTO(&customers[i])
	}
	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

func (s *CustomerService) update(ctx context.Context, id uuid.UUID, fn func(c *domain.Customer) error) (*domain.CustomerDTO, error) {
	customer, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(customer); err != nil {
		return nil, err
	}
	if err := s.customerRepo.Update(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	dto := mapper.ToCustomerDTO(customer)
	return &dto, nil
}

// AddActivity appends an entry to the activity panel
func (s *CustomerService) AddActivity(ctx context.Context, id uuid.UUID, req *domain.AddActivityRequest) (*domain.CustomerDTO, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, func(c *domain.Customer) error {
		c.Activities = append(c.Activities, domain.PanelActivity{
			Title:     strings.TrimSpace(req.Title),
			Body:      req.Body,
			CreatedBy: user.DisplayName,
			CreatedAt: time.Now().UTC(),
		})
		return nil
	})
}

// AddReminder appends a dated follow-up
func (s *CustomerService) AddReminder(ctx context.Context, id uuid.UUID, req *domain.AddReminderRequest) (*domain.CustomerDTO, error) {
	return s.update(ctx, id, func(c *domain.Customer) error {
		c.Reminders = append(c.Reminders, domain.Reminder{
			Title: strings.TrimSpace(req.Title),
			DueAt: req.DueAt.UTC(),
		})
		return nil
	})
}

// UpdateLeadScore sets the customer's running lead score, the value the next
// conversion freezes onto its project
func (s *CustomerService) UpdateLeadScore(ctx context.Context, id uuid.UUID, req *domain.UpdateLeadScoreRequest) (*domain.CustomerDTO, error) {
	if req.LeadScore < 0 {
		return nil, fmt.Errorf("%w: lead score must not be negative", ErrInvalidInput)
	}
	dto, err := s.update(ctx, id, func(c *domain.Customer) error {
		c.LeadScore = req.LeadScore
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("customer lead score updated",
		zap.String("customerID", id.String()),
		zap.Int("leadScore", req.LeadScore))
	return dto, nil
}

// UploadFile stores an attachment and adds it to the customer's files
func (s *CustomerService) UploadFile(ctx context.Context, id uuid.UUID, filename, contentType string, data io.Reader) (*domain.Attachment, error) {
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	obj, err := s.storage.Upload(ctx, "customers/"+id.String(), filename, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	att := domain.Attachment{URL: obj.URL, Name: filename, UploadedAt: time.Now().UTC()}
	if _, err := s.update(ctx, id, func(c *domain.Customer) error {
		c.Files = append(c.Files, att)
		return nil
	}); err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), obj.Path); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("path", obj.Path), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("customer file uploaded",
		zap.String("customerID", id.String()),
		zap.String("path", obj.Path),
		zap.Int64("size", obj.Size))
	return &att, nil
}

// AddTranscript records a meeting transcript on the customer
func (s *CustomerService) AddTranscript(ctx context.Context, id uuid.UUID, req *domain.AddTranscriptRequest) (*domain.TranscriptDTO, error) {
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	return addTranscript(ctx, s.transcriptRepo, domain.EntityTypeCustomer, id, req)
}

// ListTranscripts returns the customer's transcripts, oldest first
func (s *CustomerService) ListTranscripts(ctx context.Context, id uuid.UUID) ([]domain.TranscriptDTO, error) {
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	return listTranscripts(ctx, s.transcriptRepo, domain.EntityTypeCustomer, id)
}

func addTranscript(ctx context.Context, repo *repository.TranscriptRepository, kind domain.EntityType, ownerID uuid.UUID, req *domain.AddTranscriptRequest) (*domain.TranscriptDTO, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	recorded := time.Now().UTC()
	if req.RecordedAt != nil {
		recorded = req.RecordedAt.UTC()
	}
	t := &domain.MeetingTranscript{
		OwnerType:  kind,
		OwnerID:    ownerID,
		Title:      title,
		Transcript: req.Transcript,
		Summary:    req.Summary,
		RecordedAt: recorded,
	}
	if err := repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}
	dto := mapper.ToTranscriptDTO(t)
	return &dto, nil
}

func listTranscripts(ctx context.Context, repo *repository.TranscriptRepository, kind domain.EntityType, ownerID uuid.UUID) ([]domain.TranscriptDTO, error) {
	list, err := repo.ListByOwner(ctx, kind, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	dtos := make([]domain.TranscriptDTO, len(list))
	for i := range list {
		dtos[i] = mapper.ToTranscriptDTO(&list[i])
	}
	return dtos, nil
}
