package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversionRun_Settle(t *testing.T) {
	run := NewConversionRun(uuid.New(), uuid.New())
	assert.Equal(t, ConversionRunInProgress, run.Status)
	assert.Len(t, run.Steps, len(ConversionSteps))

	now := time.Now()
	for _, s := range ConversionSteps[:len(ConversionSteps)-1] {
		run.MarkDone(s, now)
	}
	run.MarkFailed(StepResetPanels, errors.New("boom"))
	run.Settle(3)
	assert.Equal(t, ConversionRunPartial, run.Status)
	assert.Equal(t, 1, run.Steps[StepResetPanels].Attempts)
	assert.Equal(t, "boom", run.Steps[StepResetPanels].LastError)

	run.MarkDone(StepResetPanels, now)
	run.Settle(3)
	assert.Equal(t, ConversionRunCompleted, run.Status)
	assert.Equal(t, 2, run.Steps[StepResetPanels].Attempts)
	assert.Empty(t, run.Steps[StepResetPanels].LastError)
}

func TestConversionRun_SettleDeadAfterMaxAttempts(t *testing.T) {
	run := NewConversionRun(uuid.New(), uuid.New())
	now := time.Now()
	run.MarkDone(StepMigrateFiles, now)

	for i := 0; i < 2; i++ {
		run.MarkFailed(StepMigrateQuote, errors.New("copy failed"))
		run.Settle(3)
		assert.Equal(t, ConversionRunPartial, run.Status)
	}
	run.MarkFailed(StepMigrateQuote, errors.New("copy failed"))
	run.Settle(3)
	assert.Equal(t, ConversionRunDead, run.Status)
	assert.Equal(t, 3, run.Steps[StepMigrateQuote].Attempts)

	unlimited := NewConversionRun(uuid.New(), uuid.New())
	for i := 0; i < 20; i++ {
		unlimited.MarkFailed(StepMigrateQuote, errors.New("copy failed"))
	}
	unlimited.Settle(0)
	assert.Equal(t, ConversionRunPartial, unlimited.Status)
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, RetryBackoff(0))
	assert.Equal(t, time.Minute, RetryBackoff(1))
	assert.Equal(t, 2*time.Minute, RetryBackoff(2))
	assert.Equal(t, 32*time.Minute, RetryBackoff(6))
	assert.Equal(t, time.Hour, RetryBackoff(7))
	assert.Equal(t, time.Hour, RetryBackoff(50))
}

func TestSideEffectFailure_RecordAttempt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &SideEffectFailure{Status: SideEffectPending, MaxAttempts: 2}

	f.RecordAttempt(errors.New("down"), now)
	assert.Equal(t, SideEffectPending, f.Status)
	assert.Equal(t, now.Add(time.Minute), f.NextAttemptAt)

	f.RecordAttempt(errors.New("still down"), now)
	assert.Equal(t, SideEffectDead, f.Status)

	ok := &SideEffectFailure{Status: SideEffectPending, MaxAttempts: 3}
	ok.RecordAttempt(nil, now)
	assert.Equal(t, SideEffectResolved, ok.Status)
}

func TestNewULIDSortable(t *testing.T) {
	a := NewULID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := NewULID(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestNewULIDMonotonicWithinMillisecond(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := NewULID(at)
	for i := 0; i < 1000; i++ {
		next := NewULID(at)
		require.Less(t, prev, next)
		prev = next
	}
}
