package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaginatedResponse wraps a page of results
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// AttachmentDTO is a file reference
type AttachmentDTO struct {
	URL  string `json:"url" validate:"required,url,max=1000"`
	Name string `json:"name" validate:"required,max=255"`
}

// UserDTO is the public view of a user
type UserDTO struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Roles       []string  `json:"roles,omitempty"`
}

// TeamMemberDTO is one accepted team member
type TeamMemberDTO struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// CreateInvitationRequest invites a user by email
type CreateInvitationRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// InvitationDTO is a team invitation
type InvitationDTO struct {
	ID          uuid.UUID        `json:"id"`
	FromUserID  uuid.UUID        `json:"fromUserId"`
	ToUserEmail string           `json:"toUserEmail"`
	ToUserID    *uuid.UUID       `json:"toUserId,omitempty"`
	Status      InvitationStatus `json:"status"`
	CreatedAt   string           `json:"createdAt"`
	AcceptedAt  *string          `json:"acceptedAt,omitempty"`
}

// InvitationsResponse splits invitations by direction
type InvitationsResponse struct {
	Incoming []InvitationDTO `json:"incoming"`
	Outgoing []InvitationDTO `json:"outgoing"`
}

// PipelineDTO is the stage pipeline of a customer or project
type PipelineDTO struct {
	Stages       []string                `json:"stages"`
	CurrentStage string                  `json:"currentStage"`
	CurrentIndex int                     `json:"currentIndex"`
	StageData    map[string]StageContent `json:"stageData"`
}

// CreateCustomerRequest creates a customer with a default or templated pipeline
type CreateCustomerRequest struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Email       string   `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone       string   `json:"phone,omitempty" validate:"max=50"`
	CompanyName string   `json:"companyName,omitempty" validate:"max=200"`
	Stages      []string `json:"stages,omitempty" validate:"omitempty,dive,required,max=100"`
	Template    string   `json:"template,omitempty" validate:"max=100"`
	LeadScore   int      `json:"leadScore" validate:"gte=0"`
}

// CustomerDTO is the public view of a customer
type CustomerDTO struct {
	ID               uuid.UUID         `json:"id"`
	OwnerID          uuid.UUID         `json:"ownerId"`
	Name             string            `json:"name"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	CompanyName      string            `json:"companyName,omitempty"`
	Pipeline         PipelineDTO       `json:"pipeline"`
	Activities       []PanelActivity   `json:"activities"`
	Reminders        []Reminder        `json:"reminders"`
	Files            []Attachment      `json:"files"`
	Projects         []uuid.UUID       `json:"projects"`
	ProjectSnapshots []ProjectSnapshot `json:"projectSnapshots"`
	LeadScore        int               `json:"leadScore"`
	CreatedAt        string            `json:"createdAt"`
	UpdatedAt        string            `json:"updatedAt"`
}

// AddActivityRequest appends to a customer's activity panel
type AddActivityRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body,omitempty" validate:"max=4000"`
}

// AddReminderRequest appends to a customer's reminders
type AddReminderRequest struct {
	Title string    `json:"title" validate:"required,max=200"`
	DueAt time.Time `json:"dueAt" validate:"required"`
}

// UpdateLeadScoreRequest sets a customer's running lead score
type UpdateLeadScoreRequest struct {
	LeadScore int `json:"leadScore" validate:"gte=0"`
}

// ProjectDTO is the public view of a project
type ProjectDTO struct {
	ID                    uuid.UUID       `json:"id"`
	OwnerID               uuid.UUID       `json:"ownerId"`
	Name                  string          `json:"name"`
	Description           string          `json:"description,omitempty"`
	StartDate             *string         `json:"startDate,omitempty"`
	EndDate               *string         `json:"endDate,omitempty"`
	Budget                float64         `json:"budget"`
	Priority              ProjectPriority `json:"priority"`
	Team                  []uuid.UUID     `json:"team"`
	CustomerID            *uuid.UUID      `json:"customerId,omitempty"`
	CustomerName          string          `json:"customerName,omitempty"`
	CustomerEmail         string          `json:"customerEmail,omitempty"`
	CustomerPhone         string          `json:"customerPhone,omitempty"`
	CompanyName           string          `json:"companyName,omitempty"`
	ConvertedFromCustomer bool            `json:"convertedFromCustomer"`
	FrozenLeadScore       *int            `json:"frozenLeadScore,omitempty"`
	Pipeline              PipelineDTO     `json:"pipeline"`
	Files                 []Attachment    `json:"files"`
	CreatedAt             string          `json:"createdAt"`
	UpdatedAt             string          `json:"updatedAt"`
}

// SelectStageRequest jumps to a stage by name
type SelectStageRequest struct {
	Stage string `json:"stage" validate:"required,max=100"`
}

// StageEditOpRequest is one editing-mode operation
type StageEditOpRequest struct {
	Op      string `json:"op" validate:"required,oneof=add rename moveLeft moveRight delete"`
	Index   int    `json:"index" validate:"gte=0"`
	Name    string `json:"name,omitempty" validate:"max=100"`
	Confirm bool   `json:"confirm,omitempty"`
}

// SaveStagesRequest applies a batch of edits to a working copy and saves it
type SaveStagesRequest struct {
	Operations  []StageEditOpRequest `json:"operations" validate:"required,min=1,dive"`
	PinnedStage string               `json:"pinnedStage,omitempty" validate:"max=100"`
}

// UpdateStageContentRequest changes the tasks and notes of one stage
type UpdateStageContentRequest struct {
	AddNotes      []string `json:"addNotes,omitempty" validate:"omitempty,dive,required,max=4000"`
	RemoveNotes   []int    `json:"removeNotes,omitempty" validate:"omitempty,dive,gte=0"`
	AddTasks      []string `json:"addTasks,omitempty" validate:"omitempty,dive,required,max=200"`
	CompleteTasks []string `json:"completeTasks,omitempty"`
	ReopenTasks   []string `json:"reopenTasks,omitempty"`
}

// ApplyTemplateRequest replaces a pipeline with an SOP template
type ApplyTemplateRequest struct {
	Template string `json:"template" validate:"required,max=100"`
}

// StageTransitionResponse reports a pipeline position change
type StageTransitionResponse struct {
	FromStage string      `json:"fromStage"`
	ToStage   string      `json:"toStage"`
	Pipeline  PipelineDTO `json:"pipeline"`
}

// StageHistoryDTO is one pipeline position change
type StageHistoryDTO struct {
	ID                uuid.UUID         `json:"id"`
	FromStage         string            `json:"fromStage,omitempty"`
	ToStage           string            `json:"toStage"`
	Reason            StageChangeReason `json:"reason"`
	ApprovalRequestID *uuid.UUID        `json:"approvalRequestId,omitempty"`
	ChangedByID       uuid.UUID         `json:"changedById"`
	ChangedByName     string            `json:"changedByName,omitempty"`
	ChangedAt         string            `json:"changedAt"`
}

// StageTemplateDTO describes an SOP stage template
type StageTemplateDTO struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	AppliesTo   []string `json:"appliesTo,omitempty"`
	Stages      []string `json:"stages"`
}

// AddTranscriptRequest records a meeting transcript
type AddTranscriptRequest struct {
	Title      string     `json:"title" validate:"required,max=200"`
	Transcript string     `json:"transcript,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	RecordedAt *time.Time `json:"recordedAt,omitempty"`
}

// TranscriptDTO is a meeting transcript
type TranscriptDTO struct {
	ID               uuid.UUID  `json:"id"`
	OwnerType        EntityType `json:"ownerType"`
	OwnerID          uuid.UUID  `json:"ownerId"`
	Title            string     `json:"title"`
	Transcript       string     `json:"transcript,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	RecordedAt       string     `json:"recordedAt"`
	OriginCustomerID *uuid.UUID `json:"originCustomerId,omitempty"`
}

// ProposedProjectRequest carries project fields on a conversion request
type ProposedProjectRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description,omitempty"`
	StartDate   *time.Time      `json:"startDate,omitempty"`
	EndDate     *time.Time      `json:"endDate,omitempty"`
	Budget      float64         `json:"budget" validate:"gte=0"`
	Priority    ProjectPriority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Team        []uuid.UUID     `json:"team,omitempty"`
}

// CreateApprovalRequest raises an approval request, or bypasses it
type CreateApprovalRequest struct {
	RequestType         EntityType              `json:"requestType" validate:"required,oneof=Project Customer"`
	EntityID            uuid.UUID               `json:"entityId" validate:"required"`
	Title               string                  `json:"title" validate:"required,max=200"`
	Description         string                  `json:"description,omitempty" validate:"max=4000"`
	IsStageAdvancement  bool                    `json:"isStageAdvancement"`
	CurrentStage        string                  `json:"currentStage,omitempty" validate:"max=100"`
	NextStage           string                  `json:"nextStage,omitempty" validate:"max=100"`
	RequestedTo         uuid.UUID               `json:"requestedTo"`
	Viewers             []uuid.UUID             `json:"viewers,omitempty"`
	ProposedProject     *ProposedProjectRequest `json:"proposedProject,omitempty"`
	AutoAttachQuotation bool                    `json:"autoAttachQuotation,omitempty"`
	SelectedQuoteID     *uuid.UUID              `json:"selectedQuoteId,omitempty"`
	AttachedFiles       []AttachmentDTO         `json:"attachedFiles,omitempty" validate:"omitempty,dive"`
	QuotationFiles      []AttachmentDTO         `json:"quotationFiles,omitempty" validate:"omitempty,dive"`
	BypassApproval      bool                    `json:"bypassApproval,omitempty"`
}

// ApprovalRequestDTO is the public view of an approval request
type ApprovalRequestDTO struct {
	ID                 uuid.UUID        `json:"id"`
	RequestType        EntityType       `json:"requestType"`
	EntityID           uuid.UUID        `json:"entityId"`
	EntityName         string           `json:"entityName"`
	Title              string           `json:"title"`
	Description        string           `json:"description,omitempty"`
	IsStageAdvancement bool             `json:"isStageAdvancement"`
	CurrentStage       string           `json:"currentStage,omitempty"`
	NextStage          string           `json:"nextStage,omitempty"`
	ProposedProject    *ProposedProject `json:"proposedProject,omitempty"`
	QuotationData      *QuoteSnapshot   `json:"quotationData,omitempty"`
	AttachedFiles      []Attachment     `json:"attachedFiles"`
	QuotationFiles     []Attachment     `json:"quotationFiles"`
	RequestedBy        uuid.UUID        `json:"requestedBy"`
	RequestedByName    string           `json:"requestedByName,omitempty"`
	RequestedTo        uuid.UUID        `json:"requestedTo"`
	RequestedToName    string           `json:"requestedToName,omitempty"`
	Viewers            []uuid.UUID      `json:"viewers"`
	Status             ApprovalStatus   `json:"status"`
	DecisionBy         *uuid.UUID       `json:"decisionBy"`
	DecisionDate       *string          `json:"decisionDate"`
	DecisionComment    *string          `json:"decisionComment"`
	ResultProjectID    *uuid.UUID       `json:"resultProjectId,omitempty"`
	CreatedAt          string           `json:"createdAt"`
}

// CreateApprovalResponse is returned by request creation.
// Bypassed is true when the workflow ran immediately without a request.
type CreateApprovalResponse struct {
	Request    *ApprovalRequestDTO      `json:"request,omitempty"`
	Bypassed   bool                     `json:"bypassed"`
	Transition *StageTransitionResponse `json:"transition,omitempty"`
	Conversion *ConversionResultDTO     `json:"conversion,omitempty"`
}

// DecideApprovalRequest approves or rejects a pending request
type DecideApprovalRequest struct {
	Action              string      `json:"action" validate:"required,oneof=approve reject"`
	AdminMessage        string      `json:"adminMessage,omitempty" validate:"max=2000"`
	NotifyTeamMemberIDs []uuid.UUID `json:"notifyTeamMemberIds,omitempty"`
}

// ConvertCustomerRequest turns a customer into a project
type ConvertCustomerRequest struct {
	Name                 string          `json:"name" validate:"required,max=200"`
	Description          string          `json:"description,omitempty"`
	StartDate            *time.Time      `json:"startDate,omitempty"`
	EndDate              *time.Time      `json:"endDate,omitempty"`
	Budget               float64         `json:"budget" validate:"gte=0"`
	Priority             ProjectPriority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Team                 []uuid.UUID     `json:"team,omitempty"`
	SelectedDraftQuoteID *uuid.UUID      `json:"selectedDraftQuoteId,omitempty"`
	ApprovalRequestID    *uuid.UUID      `json:"approvalRequestId,omitempty"`
	BypassApproval       bool            `json:"bypassApproval,omitempty"`
}

// ConversionRunDTO is the step log of a conversion
type ConversionRunDTO struct {
	ID         string                       `json:"id"`
	CustomerID uuid.UUID                    `json:"customerId"`
	ProjectID  uuid.UUID                    `json:"projectId"`
	Status     ConversionRunStatus          `json:"status"`
	Steps      map[ConversionStep]StepState `json:"steps"`
	CreatedAt  string                       `json:"createdAt"`
	UpdatedAt  string                       `json:"updatedAt"`
}

// ConversionResultDTO is returned by a conversion
type ConversionResultDTO struct {
	Project ProjectDTO       `json:"project"`
	Run     ConversionRunDTO `json:"run"`
}

// QuoteItemRequest is one line on a quote
type QuoteItemRequest struct {
	Description     string  `json:"description" validate:"required,max=500"`
	Quantity        float64 `json:"quantity" validate:"gt=0"`
	UnitPrice       float64 `json:"unitPrice" validate:"gte=0"`
	DiscountPercent float64 `json:"discountPercent" validate:"gte=0,lte=100"`
}

// CreateQuoteRequest creates a quote with at least one line
type CreateQuoteRequest struct {
	Title      string             `json:"title" validate:"required,max=200"`
	Items      []QuoteItemRequest `json:"items" validate:"required,min=1,dive"`
	TaxRate    float64            `json:"taxRate" validate:"gte=0,lte=100"`
	Discount   float64            `json:"discount" validate:"gte=0"`
	Notes      string             `json:"notes,omitempty"`
	ValidUntil *time.Time         `json:"validUntil,omitempty"`
}

// UpdateQuotePricingRequest changes tax rate and/or discount
type UpdateQuotePricingRequest struct {
	TaxRate  *float64 `json:"taxRate,omitempty" validate:"omitempty,gte=0,lte=100"`
	Discount *float64 `json:"discount,omitempty" validate:"omitempty,gte=0"`
}

// AssociateProjectRequest links an additional customer/project pair to a quote
type AssociateProjectRequest struct {
	CustomerID  uuid.UUID `json:"customerId" validate:"required"`
	ProjectID   uuid.UUID `json:"projectId" validate:"required"`
	ProjectName string    `json:"projectName,omitempty" validate:"max=200"`
	Fee         *float64  `json:"fee,omitempty" validate:"omitempty,gte=0"`
}

// UpdateQuoteStatusRequest transitions a quote
type UpdateQuoteStatusRequest struct {
	Status QuoteStatus `json:"status" validate:"required,oneof=draft sent accepted rejected"`
}

// QuoteDTO is the public view of a quote
type QuoteDTO struct {
	ID                uuid.UUID          `json:"id"`
	QuoteNumber       string             `json:"quoteNumber"`
	Title             string             `json:"title"`
	OwnerType         EntityType         `json:"ownerType"`
	OwnerID           uuid.UUID          `json:"ownerId"`
	Items             []QuoteItem        `json:"items"`
	TaxRate           float64            `json:"taxRate"`
	Discount          float64            `json:"discount"`
	Subtotal          float64            `json:"subtotal"`
	TaxAmount         float64            `json:"taxAmount"`
	Total             float64            `json:"total"`
	Status            QuoteStatus        `json:"status"`
	Associations      []QuoteAssociation `json:"associations"`
	Notes             string             `json:"notes,omitempty"`
	ValidUntil        *string            `json:"validUntil,omitempty"`
	MigratedProjectID *uuid.UUID         `json:"migratedProjectId,omitempty"`
	OriginQuoteID     *uuid.UUID         `json:"originQuoteId,omitempty"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt"`
}

// NotificationDTO is an in-app notification
type NotificationDTO struct {
	ID         uuid.UUID         `json:"id"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Read       bool              `json:"read"`
	CreatedAt  string            `json:"createdAt"`
	EntityID   *uuid.UUID        `json:"entityId,omitempty"`
	EntityType string            `json:"entityType,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// UnreadCountDTO is the unread notification count
type UnreadCountDTO struct {
	Count int64 `json:"count"`
}
