package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/storage"
	"go.uber.org/zap"
)

// ProjectService reads projects and manages their files and transcripts
type ProjectService struct {
	projectRepo    *repository.ProjectRepository
	customerRepo   *repository.CustomerRepository
	transcriptRepo *repository.TranscriptRepository
	access         accessPolicy
	storage        storage.Storage
	logger         *zap.Logger
}

// NewProjectService creates a new ProjectService instance
func NewProjectService(
	projectRepo *repository.ProjectRepository,
	customerRepo *repository.CustomerRepository,
	transcriptRepo *repository.TranscriptRepository,
	membershipRepo *repository.MembershipRepository,
	store storage.Storage,
	logger *zap.Logger,
) *ProjectService {
	return &ProjectService{
		projectRepo:    projectRepo,
		customerRepo:   customerRepo,
		transcriptRepo: transcriptRepo,
		access:         accessPolicy{membershipRepo: membershipRepo},
		storage:        store,
		logger:         logger,
	}
}

func (s *ProjectService) get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	project, err := s.projectRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if err := s.access.check(ctx, nil, user, project.OwnerID, project.Team); err != nil {
		return nil, err
	}
	return project, nil
}

// GetByID returns a project
func (s *ProjectService) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProjectDTO, error) {
	project, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := mapper.ToProjectDTO(project)
	return &dto, nil
}

// ListForCustomer returns the projects converted from a customer, oldest first
func (s *ProjectService) ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.ProjectDTO, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	customer, err := s.customerRepo.GetByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if err := s.access.check(ctx, nil, user, customer.OwnerID, nil); err != nil {
		return nil, err
	}
	projects, err := s.projectRepo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	dtos := make([]domain.ProjectDTO, len(projects))
	for i := range projects {
		dtos[i] = mapper.ToProjectDTO(&projects[i])
	}
	return dtos, nil
}

// UploadFile stores an attachment and adds it to the project's files
func (s *ProjectService) UploadFile(ctx context.Context, id uuid.UUID, filename, contentType string, data io.Reader) (*domain.Attachment, error) {
	project, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	obj, err := s.storage.Upload(ctx, "projects/"+id.String(), filename, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	att := domain.Attachment{URL: obj.URL, Name: filename, UploadedAt: time.Now().UTC()}
	project.Files = append(project.Files, att)
	if err := s.projectRepo.Update(ctx, project); err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), obj.Path); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("path", obj.Path), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return &att, nil
}

// AddTranscript records a meeting transcript on the project
func (s *ProjectService) AddTranscript(ctx context.Context, id uuid.UUID, req *domain.AddTranscriptRequest) (*domain.TranscriptDTO, error) {
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	return addTranscript(ctx, s.transcriptRepo, domain.EntityTypeProject, id, req)
}

// ListTranscripts returns the project's transcripts, including migrated ones
func (s *ProjectService) ListTranscripts(ctx context.Context, id uuid.UUID) ([]domain.TranscriptDTO, error) {
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	return listTranscripts(ctx, s.transcriptRepo, domain.EntityTypeProject, id)
}
