package jobs

import (
	"context"
	"time"

	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// RetryJobName is the scheduler name of the retry job
const RetryJobName = "retry_side_effects"

// ConversionResumer finishes conversions whose best-effort steps did not all succeed
type ConversionResumer interface {
	ResumePending(ctx context.Context, limit int) (int, error)
}

// SideEffectReplayer replays dead-lettered notifications and emails
type SideEffectReplayer interface {
	ReplayDue(ctx context.Context, now time.Time, limit int) (service.ReplayStats, error)
}

// RetryJob drains the dead-letter queue and resumes unfinished conversions
type RetryJob struct {
	conversions ConversionResumer
	sideEffects SideEffectReplayer
	batchSize   int
	timeout     time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewRetryJob creates the job. batchSize bounds each pass; timeout bounds one run.
func NewRetryJob(conversions ConversionResumer, sideEffects SideEffectReplayer, batchSize int, timeout time.Duration, logger *zap.Logger) *RetryJob {
	if batchSize <= 0 {
		batchSize = 100
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &RetryJob{
		conversions: conversions,
		sideEffects: sideEffects,
		batchSize:   batchSize,
		timeout:     timeout,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// Run performs one pass. Called by the scheduler.
func (j *RetryJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	j.RunOnce(ctx)
}

// RunOnce performs one pass with the caller's context
func (j *RetryJob) RunOnce(ctx context.Context) {
	start := time.Now()

	completed, err := j.conversions.ResumePending(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("resuming conversions failed", zap.Error(err))
	}

	stats, err := j.sideEffects.ReplayDue(ctx, j.now(), j.batchSize)
	if err != nil {
		j.logger.Error("replaying side effects failed", zap.Error(err))
	}

	if completed == 0 && stats.Attempted == 0 {
		return
	}
	j.logger.Info("retry job completed",
		zap.Int("conversionsCompleted", completed),
		zap.Int("sideEffectsAttempted", stats.Attempted),
		zap.Int("sideEffectsResolved", stats.Resolved),
		zap.Int("sideEffectsDead", stats.Dead),
		zap.Duration("duration", time.Since(start)))
}
