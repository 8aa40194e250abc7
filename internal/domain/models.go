package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel holds common fields. IDs are assigned in BeforeCreate so the
// models do not depend on a database-side UUID generator.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns a new ID when none is set
func (m *BaseModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// EntityType identifies which record a pipeline, request or notification refers to
type EntityType string

const (
	EntityTypeCustomer EntityType = "Customer"
	EntityTypeProject  EntityType = "Project"
	EntityTypeApproval EntityType = "ApprovalRequest"
	EntityTypeQuote    EntityType = "Quote"
	EntityTypeInvite   EntityType = "TeamInvitation"
)

// IsValid checks if the entity type can own a stage pipeline
func (e EntityType) IsValid() bool {
	return e == EntityTypeCustomer || e == EntityTypeProject
}

// Attachment is a stored file reference
type Attachment struct {
	URL        string    `json:"url"`
	Name       string    `json:"name"`
	UploadedAt time.Time `json:"uploadedAt,omitempty"`
}

// PanelActivity is a free-form activity entry on a customer's activity panel
type PanelActivity struct {
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reminder is a dated follow-up on a customer
type Reminder struct {
	Title string    `json:"title"`
	DueAt time.Time `json:"dueAt"`
	Done  bool      `json:"done"`
}

// ProjectSnapshot records a conversion outcome on the originating customer
type ProjectSnapshot struct {
	ProjectID   uuid.UUID `json:"projectId"`
	Name        string    `json:"name"`
	ConvertedAt time.Time `json:"convertedAt"`
	LeadScore   int       `json:"leadScore"`
}

// Customer is a prospect moving through a sales pipeline
type Customer struct {
	BaseModel
	OwnerID          uuid.UUID         `gorm:"type:uuid;not null;index"`
	Name             string            `gorm:"type:varchar(200);not null"`
	Email            string            `gorm:"type:varchar(255)"`
	Phone            string            `gorm:"type:varchar(50)"`
	CompanyName      string            `gorm:"type:varchar(200);column:company_name"`
	Pipeline         StagePipeline     `gorm:"embedded"`
	Activities       []PanelActivity   `gorm:"type:jsonb;serializer:json"`
	Reminders        []Reminder        `gorm:"type:jsonb;serializer:json"`
	Files            []Attachment      `gorm:"type:jsonb;serializer:json"`
	Projects         []uuid.UUID       `gorm:"type:jsonb;serializer:json"`
	ProjectSnapshots []ProjectSnapshot `gorm:"type:jsonb;serializer:json;column:project_snapshots"`
	LeadScore        int               `gorm:"not null;default:0;column:lead_score"`
}

// ProjectPriority represents the priority of a project
type ProjectPriority string

const (
	ProjectPriorityLow    ProjectPriority = "low"
	ProjectPriorityMedium ProjectPriority = "medium"
	ProjectPriorityHigh   ProjectPriority = "high"
)

// Project is a delivery record, usually converted from a customer
type Project struct {
	BaseModel
	OwnerID               uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name                  string          `gorm:"type:varchar(200);not null"`
	Description           string          `gorm:"type:text"`
	StartDate             *time.Time      `gorm:"column:start_date"`
	EndDate               *time.Time      `gorm:"column:end_date"`
	Budget                float64         `gorm:"type:decimal(15,2);not null;default:0"`
	Priority              ProjectPriority `gorm:"type:varchar(20);not null;default:'medium'"`
	Team                  []uuid.UUID     `gorm:"type:jsonb;serializer:json"`
	CustomerID            *uuid.UUID      `gorm:"type:uuid;index;column:customer_id"`
	CustomerName          string          `gorm:"type:varchar(200);column:customer_name"`
	CustomerEmail         string          `gorm:"type:varchar(255);column:customer_email"`
	CustomerPhone         string          `gorm:"type:varchar(50);column:customer_phone"`
	CompanyName           string          `gorm:"type:varchar(200);column:company_name"`
	ConvertedFromCustomer bool            `gorm:"not null;default:false;column:converted_from_customer"`
	FrozenLeadScore       *int            `gorm:"column:frozen_lead_score"`
	Pipeline              StagePipeline   `gorm:"embedded"`
	Files                 []Attachment    `gorm:"type:jsonb;serializer:json"`
}

// ApprovalStatus represents the state of an approval request
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ProposedProject carries the operator-entered project fields of a conversion request
type ProposedProject struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	StartDate   *time.Time      `json:"startDate,omitempty"`
	EndDate     *time.Time      `json:"endDate,omitempty"`
	Budget      float64         `json:"budget,omitempty"`
	Priority    ProjectPriority `json:"priority,omitempty"`
	Team        []uuid.UUID     `json:"team,omitempty"`
}

// QuoteSnapshot is a frozen copy of a quote attached to a request
type QuoteSnapshot struct {
	QuoteID     uuid.UUID   `json:"quoteId"`
	QuoteNumber string      `json:"quoteNumber"`
	Title       string      `json:"title"`
	Items       []QuoteItem `json:"items"`
	TaxRate     float64     `json:"taxRate"`
	Discount    float64     `json:"discount"`
	Subtotal    float64     `json:"subtotal"`
	TaxAmount   float64     `json:"taxAmount"`
	Total       float64     `json:"total"`
}

// ApprovalRequest proposes a stage advancement or a conversion to one decision maker
type ApprovalRequest struct {
	BaseModel
	RequestType        EntityType       `gorm:"type:varchar(20);not null;index:idx_approval_entity"`
	EntityID           uuid.UUID        `gorm:"type:uuid;not null;index:idx_approval_entity"`
	EntityName         string           `gorm:"type:varchar(200)"`
	Title              string           `gorm:"type:varchar(200);not null"`
	Description        string           `gorm:"type:text"`
	IsStageAdvancement bool             `gorm:"not null;default:false;column:is_stage_advancement"`
	CurrentStage       string           `gorm:"type:varchar(100);column:current_stage"`
	NextStage          string           `gorm:"type:varchar(100);column:next_stage"`
	ProposedProject    *ProposedProject `gorm:"type:jsonb;serializer:json;column:proposed_project"`
	QuotationData      *QuoteSnapshot   `gorm:"type:jsonb;serializer:json;column:quotation_data"`
	AttachedFiles      []Attachment     `gorm:"type:jsonb;serializer:json;column:attached_files"`
	QuotationFiles     []Attachment     `gorm:"type:jsonb;serializer:json;column:quotation_files"`
	RequestedBy        uuid.UUID        `gorm:"type:uuid;not null;index;column:requested_by"`
	RequestedByName    string           `gorm:"type:varchar(200);column:requested_by_name"`
	RequestedTo        uuid.UUID        `gorm:"type:uuid;not null;index;column:requested_to"`
	RequestedToName    string           `gorm:"type:varchar(200);column:requested_to_name"`
	Status             ApprovalStatus   `gorm:"type:varchar(20);not null;default:'pending';index"`
	DecisionBy         *uuid.UUID       `gorm:"type:uuid;column:decision_by"`
	DecisionDate       *time.Time       `gorm:"column:decision_date"`
	DecisionComment    *string          `gorm:"type:text;column:decision_comment"`
	ConsumedAt         *time.Time       `gorm:"column:consumed_at"`
	ResultProjectID    *uuid.UUID       `gorm:"type:uuid;column:result_project_id"`
	Viewers            []ApprovalViewer `gorm:"foreignKey:ApprovalRequestID"`
}

// IsConversion reports whether the request gates a customer conversion
func (r *ApprovalRequest) IsConversion() bool {
	return r.RequestType == EntityTypeCustomer && !r.IsStageAdvancement
}

// HasViewer reports whether the user is cc'd on the request
func (r *ApprovalRequest) HasViewer(userID uuid.UUID) bool {
	for _, v := range r.Viewers {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

// ViewerIDs returns the user ids of all viewers
func (r *ApprovalRequest) ViewerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Viewers))
	for _, v := range r.Viewers {
		ids = append(ids, v.UserID)
	}
	return ids
}

// ApprovalViewer is a read-only observer of an approval request
type ApprovalViewer struct {
	ApprovalRequestID uuid.UUID `gorm:"type:uuid;primaryKey;column:approval_request_id"`
	UserID            uuid.UUID `gorm:"type:uuid;primaryKey;index;column:user_id"`
	UserName          string    `gorm:"type:varchar(200);column:user_name"`
}

// TableName overrides the default table name to match the migration
func (ApprovalViewer) TableName() string {
	return "approval_request_viewers"
}

// InvitationStatus represents the state of a team invitation
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
)

// TeamInvitation connects two users once accepted
type TeamInvitation struct {
	BaseModel
	FromUserID  uuid.UUID        `gorm:"type:uuid;not null;index;column:from_user_id"`
	ToUserEmail string           `gorm:"type:varchar(255);not null;index;column:to_user_email"`
	ToUserID    *uuid.UUID       `gorm:"type:uuid;index;column:to_user_id"`
	Status      InvitationStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	AcceptedAt  *time.Time       `gorm:"column:accepted_at"`
}

// TeamMembership is one direction of the materialized accepted-member index
type TeamMembership struct {
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey;column:user_id"`
	MemberID     uuid.UUID `gorm:"type:uuid;primaryKey;column:member_id"`
	InvitationID uuid.UUID `gorm:"type:uuid;not null;column:invitation_id"`
	CreatedAt    time.Time `gorm:"not null"`
}

// User represents a user in the system
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email       string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	DisplayName string    `gorm:"type:varchar(200);not null;column:display_name"`
	LastLoginAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// Notification is an in-app message for one user
type Notification struct {
	BaseModel
	UserID     uuid.UUID         `gorm:"type:uuid;not null;index"`
	Type       string            `gorm:"type:varchar(50);not null"`
	Title      string            `gorm:"type:varchar(200);not null"`
	Message    string            `gorm:"type:varchar(1000);not null"`
	Read       bool              `gorm:"column:read;not null;default:false;index"`
	ReadAt     *time.Time
	EntityID   *uuid.UUID        `gorm:"type:uuid"`
	EntityType string            `gorm:"type:varchar(50)"`
	Context    map[string]string `gorm:"type:jsonb;serializer:json"`
}

// MeetingTranscript is a recorded meeting owned by a customer or project
type MeetingTranscript struct {
	BaseModel
	OwnerType          EntityType `gorm:"type:varchar(20);not null;index:idx_transcript_owner"`
	OwnerID            uuid.UUID  `gorm:"type:uuid;not null;index:idx_transcript_owner"`
	Title              string     `gorm:"type:varchar(200);not null"`
	Transcript         string     `gorm:"type:text"`
	Summary            string     `gorm:"type:text"`
	RecordedAt         time.Time  `gorm:"not null"`
	OriginCustomerID   *uuid.UUID `gorm:"type:uuid;column:origin_customer_id"`
	OriginTranscriptID *uuid.UUID `gorm:"type:uuid;index;column:origin_transcript_id"`
}

// StageChangeReason explains a stage history row
type StageChangeReason string

const (
	StageChangeAdvance  StageChangeReason = "advance"
	StageChangeBack     StageChangeReason = "back"
	StageChangeSelect   StageChangeReason = "select"
	StageChangeApproval StageChangeReason = "approval"
	StageChangeEdit     StageChangeReason = "edit"
	StageChangeReset    StageChangeReason = "reset"
)

// StageHistory tracks pipeline position changes
type StageHistory struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey"`
	EntityType        EntityType        `gorm:"type:varchar(20);not null;index:idx_stage_history_entity"`
	EntityID          uuid.UUID         `gorm:"type:uuid;not null;index:idx_stage_history_entity"`
	FromStage         string            `gorm:"type:varchar(100);column:from_stage"`
	ToStage           string            `gorm:"type:varchar(100);not null;column:to_stage"`
	Reason            StageChangeReason `gorm:"type:varchar(20);not null"`
	ApprovalRequestID *uuid.UUID        `gorm:"type:uuid;column:approval_request_id"`
	ChangedByID       uuid.UUID         `gorm:"type:uuid;column:changed_by_id"`
	ChangedByName     string            `gorm:"type:varchar(200);column:changed_by_name"`
	ChangedAt         time.Time         `gorm:"not null;column:changed_at"`
}

// TableName overrides the default table name to match the migration
func (StageHistory) TableName() string {
	return "stage_history"
}

// BeforeCreate assigns the id and timestamp
func (h *StageHistory) BeforeCreate(_ *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.ChangedAt.IsZero() {
		h.ChangedAt = time.Now().UTC()
	}
	return nil
}
