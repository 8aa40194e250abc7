package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/events"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/notify"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
)

// Notification types
const (
	NotificationApprovalRequested = "approval_requested"
	NotificationApprovalSubmitted = "approval_submitted"
	NotificationApprovalViewer    = "approval_viewer"
	NotificationApprovalDecided   = "approval_decided"
	NotificationTeamInvite        = "team_invite"
	NotificationTeamAccepted      = "team_accepted"
	NotificationConversion        = "conversion_completed"
)

// emailedTypes are also delivered by email when the channel is enabled
var emailedTypes = map[string]bool{
	NotificationApprovalRequested: true,
	NotificationApprovalDecided:   true,
}

// NotificationInput describes one notification to write
type NotificationInput struct {
	UserID     uuid.UUID
	Type       string
	Title      string
	Message    string
	EntityType domain.EntityType
	EntityID   *uuid.UUID
	Context    map[string]string
}

func (in NotificationInput) payload() domain.NotificationPayload {
	return domain.NotificationPayload{
		UserID:     in.UserID,
		Type:       in.Type,
		Title:      in.Title,
		Message:    in.Message,
		EntityType: string(in.EntityType),
		EntityID:   in.EntityID,
		Context:    in.Context,
	}
}

// Result is the outcome of one best-effort notification write
type Result struct {
	ID  uuid.UUID
	Err error
}

// NotificationService writes in-app notifications and their email copies.
// Failed writes are dead-lettered for the retry job.
type NotificationService struct {
	notificationRepo *repository.NotificationRepository
	sideEffectRepo   *repository.SideEffectRepository
	userRepo         *repository.UserRepository
	sender           notify.Sender
	events           events.Publisher
	maxAttempts      int
	logger           *zap.Logger
}

// NewNotificationService creates a new NotificationService instance
func NewNotificationService(
	notificationRepo *repository.NotificationRepository,
	sideEffectRepo *repository.SideEffectRepository,
	userRepo *repository.UserRepository,
	sender notify.Sender,
	publisher events.Publisher,
	maxAttempts int,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		sideEffectRepo:   sideEffectRepo,
		userRepo:         userRepo,
		sender:           sender,
		events:           publisher,
		maxAttempts:      maxAttempts,
		logger:           logger,
	}
}

// Notify appends a notification. It never fails the caller: errors are
// logged, dead-lettered and reported in the Result.
func (s *NotificationService) Notify(ctx context.Context, in NotificationInput) Result {
	p := in.payload()
	n, err := s.write(ctx, p)
	if err != nil {
		s.logger.Warn("notification write failed, queued for retry",
			zap.String("userID", in.UserID.String()),
			zap.String("type", in.Type),
			zap.Error(err))
		s.enqueue(ctx, domain.SideEffectNotification, p, err)
		return Result{Err: err}
	}

	if emailedTypes[in.Type] && s.sender.Enabled() {
		if err := s.email(ctx, p); err != nil {
			s.logger.Warn("notification email failed, queued for retry",
				zap.String("userID", in.UserID.String()),
				zap.String("type", in.Type),
				zap.Error(err))
			s.enqueue(ctx, domain.SideEffectEmail, p, err)
		}
	}

	return Result{ID: n.ID}
}

// NotifyAll notifies each user independently; one failure does not stop the rest
func (s *NotificationService) NotifyAll(ctx context.Context, userIDs []uuid.UUID, in NotificationInput) []Result {
	results := make([]Result, 0, len(userIDs))
	for _, id := range userIDs {
		in.UserID = id
		results = append(results, s.Notify(ctx, in))
	}
	return results
}

func (s *NotificationService) write(ctx context.Context, p domain.NotificationPayload) (*domain.Notification, error) {
	n := &domain.Notification{
		UserID:     p.UserID,
		Type:       p.Type,
		Title:      p.Title,
		Message:    truncate(p.Message, 1000),
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Context:    p.Context,
		Read:       false,
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.events.Publish(events.Event{
		Type:     events.TypeNotification,
		UserID:   n.UserID,
		EntityID: n.ID,
		Data:     mapper.ToNotificationDTO(n),
	})
	return n, nil
}

func (s *NotificationService) email(ctx context.Context, p domain.NotificationPayload) error {
	to := p.Email
	name := ""
	if to == "" {
		user, err := s.userRepo.GetByID(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}
		to, name = user.Email, user.DisplayName
	}
	return s.sender.Send(ctx, notify.Message{
		ToEmail:   to,
		ToName:    name,
		Subject:   p.Title,
		PlainText: p.Message,
		HTML:      "<p>" + html.EscapeString(p.Message) + "</p>",
	})
}

func (s *NotificationService) enqueue(ctx context.Context, kind domain.SideEffectKind, p domain.NotificationPayload, cause error) {
	now := time.Now().UTC()
	f := &domain.SideEffectFailure{
		Kind:          kind,
		Payload:       p,
		MaxAttempts:   s.maxAttempts,
		LastError:     cause.Error(),
		Status:        domain.SideEffectPending,
		NextAttemptAt: now.Add(domain.RetryBackoff(0)),
	}
	if err := s.sideEffectRepo.Create(context.WithoutCancel(ctx), f); err != nil {
		s.logger.Error("failed to dead-letter side effect",
			zap.String("kind", string(kind)),
			zap.String("userID", p.UserID.String()),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

// Replay re-attempts a dead-lettered side effect
func (s *NotificationService) Replay(ctx context.Context, f *domain.SideEffectFailure) error {
	switch f.Kind {
	case domain.SideEffectNotification:
		_, err := s.write(ctx, f.Payload)
		return err
	case domain.SideEffectEmail:
		if !s.sender.Enabled() {
			return notify.ErrEmailDisabled
		}
		return s.email(ctx, f.Payload)
	default:
		return fmt.Errorf("unknown side effect kind %q", f.Kind)
	}
}

// ListForUser returns the current user's notifications
func (s *NotificationService) ListForUser(ctx context.Context, page, pageSize int, unreadOnly bool) (*domain.PaginatedResponse, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUserContextRequired
	}

	page, pageSize = repository.NormalizePage(page, pageSize)
	notifications, total, err := s.notificationRepo.ListByUser(ctx, userCtx.UserID, page, pageSize, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	dtos := make([]domain.NotificationDTO, len(notifications))
	for i := range notifications {
		dtos[i] = mapper.ToNotificationDTO(&notifications[i])
	}
	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// CountUnread returns the current user's unread count
func (s *NotificationService) CountUnread(ctx context.Context) (int64, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return 0, ErrUserContextRequired
	}
	count, err := s.notificationRepo.CountUnread(ctx, userCtx.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkAsRead marks one of the current user's notifications as read
func (s *NotificationService) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return ErrUserContextRequired
	}

	n, err := s.notificationRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("failed to get notification: %w", err)
	}
	if n.UserID != userCtx.UserID {
		return ErrNotificationNotFound
	}

	if _, err := s.notificationRepo.MarkAsRead(ctx, id, userCtx.UserID); err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

// MarkAllAsRead marks every unread notification of the current user as read
func (s *NotificationService) MarkAllAsRead(ctx context.Context) (int64, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return 0, ErrUserContextRequired
	}
	n, err := s.notificationRepo.MarkAllAsRead(ctx, userCtx.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	s.logger.Info("marked notifications as read", zap.String("userID", userCtx.UserID.String()), zap.Int64("count", n))
	return n, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
