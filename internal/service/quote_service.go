package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuoteService manages line-item quotations on customers and projects
type QuoteService struct {
	quoteRepo    *repository.QuoteRepository
	customerRepo *repository.CustomerRepository
	projectRepo  *repository.ProjectRepository
	access       accessPolicy
	db           *gorm.DB
	logger       *zap.Logger
}

// NewQuoteService creates a new QuoteService instance
func NewQuoteService(
	quoteRepo *repository.QuoteRepository,
	customerRepo *repository.CustomerRepository,
	projectRepo *repository.ProjectRepository,
	membershipRepo *repository.MembershipRepository,
	db *gorm.DB,
	logger *zap.Logger,
) *QuoteService {
	return &QuoteService{
		quoteRepo:    quoteRepo,
		customerRepo: customerRepo,
		projectRepo:  projectRepo,
		access:       accessPolicy{membershipRepo: membershipRepo},
		db:           db,
		logger:       logger,
	}
}

// authorizeOwner checks the current user may work on the quote's owning entity
func (s *QuoteService) authorizeOwner(ctx context.Context, ownerType domain.EntityType, ownerID uuid.UUID) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	switch ownerType {
	case domain.EntityTypeCustomer:
		c, err := s.customerRepo.GetByID(ctx, ownerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCustomerNotFound
			}
			return fmt.Errorf("failed to get customer: %w", err)
		}
		return s.access.check(ctx, nil, user, c.OwnerID, nil)
	case domain.EntityTypeProject:
		p, err := s.projectRepo.GetByID(ctx, ownerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrProjectNotFound
			}
			return fmt.Errorf("failed to get project: %w", err)
		}
		return s.access.check(ctx, nil, user, p.OwnerID, p.Team)
	default:
		return fmt.Errorf("%w: unknown quote owner %q", ErrInvalidInput, ownerType)
	}
}

func (s *QuoteService) create(ctx context.Context, ownerType domain.EntityType, ownerID uuid.UUID, req *domain.CreateQuoteRequest) (*domain.QuoteDTO, error) {
	if err := s.authorizeOwner(ctx, ownerType, ownerID); err != nil {
		return nil, err
	}
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: a quote needs at least one item", ErrInvalidInput)
	}

	quote := &domain.Quote{
		QuoteNumber: domain.GenerateQuoteNumber(time.Now()),
		Title:       strings.TrimSpace(req.Title),
		OwnerType:   ownerType,
		OwnerID:     ownerID,
		Status:      domain.QuoteStatusDraft,
		TaxRate:     req.TaxRate,
		Discount:    req.Discount,
		Notes:       req.Notes,
		ValidUntil:  req.ValidUntil,
		CreatedByID: user.UserID,
	}
	for _, item := range mapper.ToQuoteItems(req.Items) {
		if _, err := quote.AddItem(item); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	if err := s.quoteRepo.Create(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to create quote: %w", err)
	}

	s.logger.Info("quote created",
		zap.String("quoteID", quote.ID.String()),
		zap.String("quoteNumber", quote.QuoteNumber),
		zap.String("ownerType", string(ownerType)),
		zap.String("ownerID", ownerID.String()))

	dto := mapper.ToQuoteDTO(quote)
	return &dto, nil
}

// CreateDraft creates a draft quote on a customer
func (s *QuoteService) CreateDraft(ctx context.Context, customerID uuid.UUID, req *domain.CreateQuoteRequest) (*domain.QuoteDTO, error) {
	return s.create(ctx, domain.EntityTypeCustomer, customerID, req)
}

// CreateForProject creates a quote owned by a project
func (s *QuoteService) CreateForProject(ctx context.Context, projectID uuid.UUID, req *domain.CreateQuoteRequest) (*domain.QuoteDTO, error) {
	return s.create(ctx, domain.EntityTypeProject, projectID, req)
}

// ListForOwner returns the quotes of a customer or project, oldest first
func (s *QuoteService) ListForOwner(ctx context.Context, ownerType domain.EntityType, ownerID uuid.UUID) ([]domain.QuoteDTO, error) {
	if err := s.authorizeOwner(ctx, ownerType, ownerID); err != nil {
		return nil, err
	}
	quotes, err := s.quoteRepo.ListByOwner(ctx, ownerType, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	dtos := make([]domain.QuoteDTO, len(quotes))
	for i := range quotes {
		dtos[i] = mapper.ToQuoteDTO(&quotes[i])
	}
	return dtos, nil
}

func (s *QuoteService) get(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	quote, err := s.quoteRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	if err := s.authorizeOwner(ctx, quote.OwnerType, quote.OwnerID); err != nil {
		return nil, err
	}
	return quote, nil
}

// GetByID returns a quote
func (s *QuoteService) GetByID(ctx context.Context, id uuid.UUID) (*domain.QuoteDTO, error) {
	quote, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := mapper.ToQuoteDTO(quote)
	return &dto, nil
}

// mutate applies fn to a quote and persists it with its recomputed totals.
// draftOnly refuses the change unless the quote is a draft.
func (s *QuoteService) mutate(ctx context.Context, id uuid.UUID, draftOnly bool, fn func(q *domain.Quote) error) (*domain.QuoteDTO, error) {
	quote, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draftOnly && quote.Status != domain.QuoteStatusDraft {
		return nil, ErrQuoteNotEditable
	}
	if err := fn(quote); err != nil {
		return nil, err
	}
	quote.Recalculate()
	if err := s.quoteRepo.Update(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}
	dto := mapper.ToQuoteDTO(quote)
	return &dto, nil
}

// AddItem appends a line item
func (s *QuoteService) AddItem(ctx context.Context, id uuid.UUID, req *domain.QuoteItemRequest) (*domain.QuoteDTO, error) {
	return s.mutate(ctx, id, true, func(q *domain.Quote) error {
		_, err := q.AddItem(mapper.ToQuoteItems([]domain.QuoteItemRequest{*req})[0])
		return err
	})
}

// UpdateItem replaces a line item's fields
func (s *QuoteService) UpdateItem(ctx context.Context, id, itemID uuid.UUID, req *domain.QuoteItemRequest) (*domain.QuoteDTO, error) {
	return s.mutate(ctx, id, true, func(q *domain.Quote) error {
		item := mapper.ToQuoteItems([]domain.QuoteItemRequest{*req})[0]
		item.ID = itemID
		return q.UpdateItem(item)
	})
}

// RemoveItem deletes a line item. The last item cannot be removed.
func (s *QuoteService) RemoveItem(ctx context.Context, id, itemID uuid.UUID) (*domain.QuoteDTO, error) {
	return s.mutate(ctx, id, true, func(q *domain.Quote) error {
		return q.RemoveItem(itemID)
	})
}

// SetPricing changes the tax rate and/or the absolute discount
func (s *QuoteService) SetPricing(ctx context.Context, id uuid.UUID, req *domain.UpdateQuotePricingRequest) (*domain.QuoteDTO, error) {
	return s.mutate(ctx, id, true, func(q *domain.Quote) error {
		taxRate, discount := q.TaxRate, q.Discount
		if req.TaxRate != nil {
			taxRate = *req.TaxRate
		}
		if req.Discount != nil {
			discount = *req.Discount
		}
		q.SetPricing(taxRate, discount)
		return nil
	})
}

// Associate links an additional customer/project pair, with an optional fee line
func (s *QuoteService) Associate(ctx context.Context, id uuid.UUID, req *domain.AssociateProjectRequest) (*domain.QuoteDTO, error) {
	return s.mutate(ctx, id, true, func(q *domain.Quote) error {
		return q.Associate(domain.QuoteAssociation{
			CustomerID:  req.CustomerID,
			ProjectID:   req.ProjectID,
			ProjectName: req.ProjectName,
			Fee:         req.Fee,
		})
	})
}

// Dissociate removes a project association and its fee line
func (s *QuoteService) Dissociate(ctx context.Context, id, projectID uuid.UUID) (*domain.QuoteDTO, error) {
	return s.mutate(ctx, id, true, func(q *domain.Quote) error {
		return q.Dissociate(projectID)
	})
}

// TransitionStatus moves the quote through draft, sent, accepted and rejected
func (s *QuoteService) TransitionStatus(ctx context.Context, id uuid.UUID, to domain.QuoteStatus) (*domain.QuoteDTO, error) {
	return s.mutate(ctx, id, false, func(q *domain.Quote) error {
		return q.TransitionTo(to)
	})
}

// ResolveSnapshot freezes the quote to attach to a conversion request: the
// selected quote when given, otherwise the customer's most recent draft.
func (s *QuoteService) ResolveSnapshot(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, selected *uuid.UUID) (*domain.QuoteSnapshot, error) {
	repo := s.quoteRepo.WithTx(tx)

	var (
		quote *domain.Quote
		err   error
	)
	if selected != nil {
		quote, err = repo.GetByID(ctx, *selected)
		if err == nil && (quote.OwnerType != domain.EntityTypeCustomer || quote.OwnerID != customerID) {
			return nil, fmt.Errorf("%w: quote %s does not belong to the customer", ErrInvalidInput, *selected)
		}
	} else {
		quote, err = repo.LatestDraft(ctx, customerID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuotationRequired
		}
		return nil, fmt.Errorf("failed to resolve quotation: %w", err)
	}

	snap := quote.Snapshot()
	return &snap, nil
}
