package service

import (
	"context"
	"fmt"
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
)

// ReplayStats summarizes one pass over the dead-letter queue
type ReplayStats struct {
	Attempted int
	Resolved  int
	Dead      int
}

// SideEffectService replays dead-lettered notifications and emails
type SideEffectService struct {
	sideEffectRepo *repository.SideEffectRepository
	notifications  *NotificationService
	logger         *zap.Logger
}

// NewSideEffectService creates a new SideEffectService instance
func NewSideEffectService(
	sideEffectRepo *repository.SideEffectRepository,
	notifications *NotificationService,
	logger *zap.Logger,
) *SideEffectService {
	return &SideEffectService{
		sideEffectRepo: sideEffectRepo,
		notifications:  notifications,
		logger:         logger,
	}
}

// ReplayDue re-attempts up to limit pending rows whose backoff has elapsed
func (s *SideEffectService) ReplayDue(ctx context.Context, now time.Time, limit int) (ReplayStats, error) {
	var stats ReplayStats
	due, err := s.sideEffectRepo.ListDue(ctx, now, limit)
	if err != nil {
		return stats, fmt.Errorf("failed to list due side effects: %w", err)
	}

	for i := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		f := &due[i]
		stats.Attempted++

		replayErr := s.notifications.Replay(ctx, f)
		f.RecordAttempt(replayErr, now)
		switch f.Status {
		case domain.SideEffectResolved:
			stats.Resolved++
		case domain.SideEffectDead:
			stats.Dead++
			s.logger.Error("side effect gave up after max attempts",
				zap.String("id", f.ID),
				zap.String("kind", string(f.Kind)),
				zap.Int("attempts", f.Attempts),
				zap.Error(replayErr))
		default:
			s.logger.Warn("side effect replay failed",
				zap.String("id", f.ID),
				zap.String("kind", string(f.Kind)),
				zap.Int("attempts", f.Attempts),
				zap.Time("nextAttemptAt", f.NextAttemptAt),
				zap.Error(replayErr))
		}

		if err := s.sideEffectRepo.Update(ctx, f); err != nil {
			return stats, fmt.Errorf("failed to update side effect %s: %w", f.ID, err)
		}
	}
	return stats, nil
}

// Counts returns the number of dead-letter rows per status
func (s *SideEffectService) Counts(ctx context.Context) (map[domain.SideEffectStatus]int64, error) {
	counts, err := s.sideEffectRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count side effects: %w", err)
	}
	return counts, nil
}
