package domain

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a lexically sortable id for log-style records. Ids minted
// in the same millisecond share one monotonic entropy source and stay ordered.
func NewULID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ConversionStep names one best-effort step of a conversion
type ConversionStep string

const (
	StepMigrateFiles       ConversionStep = "migrate_files"
	StepMigrateQuote       ConversionStep = "migrate_quote"
	StepMigrateTranscripts ConversionStep = "migrate_transcripts"
	StepFreezeScore        ConversionStep = "freeze_score"
	StepResetPanels        ConversionStep = "reset_panels"
)

// ConversionSteps is the execution order of the best-effort steps
var ConversionSteps = []ConversionStep{
	StepMigrateFiles,
	StepMigrateQuote,
	StepMigrateTranscripts,
	StepFreezeScore,
	StepResetPanels,
}

// StepStatus is the state of a single saga step
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusDone    StepStatus = "done"
	StepStatusFailed  StepStatus = "failed"
)

// StepState is the durable record of one step
type StepState struct {
	Status      StepStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"lastError,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ConversionRunStatus is the overall state of a conversion saga
type ConversionRunStatus string

const (
	ConversionRunInProgress ConversionRunStatus = "in_progress"
	ConversionRunCompleted  ConversionRunStatus = "completed"
	ConversionRunPartial    ConversionRunStatus = "partial"
	ConversionRunDead       ConversionRunStatus = "dead"
)

// ConversionRun is the step log of one customer-to-project conversion
type ConversionRun struct {
	ID                   string                       `gorm:"type:varchar(26);primaryKey"`
	CustomerID           uuid.UUID                    `gorm:"type:uuid;not null;index;column:customer_id"`
	ProjectID            uuid.UUID                    `gorm:"type:uuid;not null;uniqueIndex;column:project_id"`
	ApprovalRequestID    *uuid.UUID                   `gorm:"type:uuid;column:approval_request_id"`
	SelectedDraftQuoteID *uuid.UUID                   `gorm:"type:uuid;column:selected_draft_quote_id"`
	LeadScoreSnapshot    int                          `gorm:"not null;default:0;column:lead_score_snapshot"`
	Steps                map[ConversionStep]StepState `gorm:"type:jsonb;serializer:json;not null"`
	Status               ConversionRunStatus          `gorm:"type:varchar(20);not null;index"`
	CreatedByID          uuid.UUID                    `gorm:"type:uuid;column:created_by_id"`
	CreatedAt            time.Time                    `gorm:"not null"`
	UpdatedAt            time.Time                    `gorm:"not null"`
}

// BeforeCreate assigns a ULID when none is set
func (r *ConversionRun) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = NewULID(time.Now())
	}
	return nil
}

// NewConversionRun starts a run with every step pending
func NewConversionRun(customerID, projectID uuid.UUID) *ConversionRun {
	steps := make(map[ConversionStep]StepState, len(ConversionSteps))
	for _, s := range ConversionSteps {
		steps[s] = StepState{Status: StepStatusPending}
	}
	return &ConversionRun{
		CustomerID: customerID,
		ProjectID:  projectID,
		Steps:      steps,
		Status:     ConversionRunInProgress,
	}
}

// IsDone reports whether a step has completed
func (r *ConversionRun) IsDone(step ConversionStep) bool {
	return r.Steps[step].Status == StepStatusDone
}

// MarkDone records a successful step
func (r *ConversionRun) MarkDone(step ConversionStep, at time.Time) {
	st := r.Steps[step]
	st.Status = StepStatusDone
	st.Attempts++
	st.LastError = ""
	st.CompletedAt = &at
	r.Steps[step] = st
}

// MarkFailed records a failed attempt
func (r *ConversionRun) MarkFailed(step ConversionStep, err error) {
	st := r.Steps[step]
	st.Status = StepStatusFailed
	st.Attempts++
	st.LastError = err.Error()
	r.Steps[step] = st
}

// Settle derives the run status from its steps. A run with a step that
// failed maxAttempts times is dead; maxAttempts <= 0 retries forever.
func (r *ConversionRun) Settle(maxAttempts int) {
	status := ConversionRunCompleted
	for _, s := range ConversionSteps {
		st := r.Steps[s]
		if st.Status == StepStatusDone {
			continue
		}
		if maxAttempts > 0 && st.Status == StepStatusFailed && st.Attempts >= maxAttempts {
			r.Status = ConversionRunDead
			return
		}
		status = ConversionRunPartial
	}
	r.Status = status
}

// SideEffectKind identifies what a dead-lettered side effect does
type SideEffectKind string

const (
	SideEffectNotification SideEffectKind = "notification"
	SideEffectEmail        SideEffectKind = "email"
)

// SideEffectStatus is the retry state of a dead-letter row
type SideEffectStatus string

const (
	SideEffectPending  SideEffectStatus = "pending"
	SideEffectResolved SideEffectStatus = "resolved"
	SideEffectDead     SideEffectStatus = "dead"
)

// NotificationPayload is the replayable content of a notification or email
type NotificationPayload struct {
	UserID     uuid.UUID         `json:"userId"`
	Email      string            `json:"email,omitempty"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	EntityType string            `json:"entityType,omitempty"`
	EntityID   *uuid.UUID        `json:"entityId,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// SideEffectFailure is a dead-letter row for a failed best-effort write
type SideEffectFailure struct {
	ID            string              `gorm:"type:varchar(26);primaryKey"`
	Kind          SideEffectKind      `gorm:"type:varchar(30);not null;index"`
	Payload       NotificationPayload `gorm:"type:jsonb;serializer:json;not null"`
	Attempts      int                 `gorm:"not null;default:0"`
	MaxAttempts   int                 `gorm:"not null;default:8;column:max_attempts"`
	LastError     string              `gorm:"type:text;column:last_error"`
	Status        SideEffectStatus    `gorm:"type:varchar(20);not null;index:idx_side_effect_due"`
	NextAttemptAt time.Time           `gorm:"not null;index:idx_side_effect_due;column:next_attempt_at"`
	CreatedAt     time.Time           `gorm:"not null"`
	UpdatedAt     time.Time           `gorm:"not null"`
}

// BeforeCreate assigns a ULID when none is set
func (f *SideEffectFailure) BeforeCreate(_ *gorm.DB) error {
	if f.ID == "" {
		f.ID = NewULID(time.Now())
	}
	return nil
}

const (
	retryBaseDelay = time.Minute
	retryMaxDelay  = time.Hour
)

// RetryBackoff is the delay before attempt n+1 (1m, 2m, 4m ... capped at 1h)
func RetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		return retryBaseDelay
	}
	d := retryBaseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

// RecordAttempt updates the row after a replay attempt
func (f *SideEffectFailure) RecordAttempt(err error, now time.Time) {
	f.Attempts++
	if err == nil {
		f.Status = SideEffectResolved
		f.LastError = ""
		return
	}
	f.LastError = err.Error()
	if f.MaxAttempts > 0 && f.Attempts >= f.MaxAttempts {
		f.Status = SideEffectDead
		return
	}
	f.NextAttemptAt = now.Add(RetryBackoff(f.Attempts))
}
