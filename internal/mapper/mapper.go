package mapper

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
)

const timeFormat = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ToPipelineDTO converts an embedded pipeline
func ToPipelineDTO(p *domain.StagePipeline) domain.PipelineDTO {
	data := p.StageData
	if data == nil {
		data = map[string]domain.StageContent{}
	}
	return domain.PipelineDTO{
		Stages:       nonNil(p.Stages),
		CurrentStage: p.CurrentStage,
		CurrentIndex: p.CurrentIndex(),
		StageData:    data,
	}
}

// ToCustomerDTO converts Customer to CustomerDTO
func ToCustomerDTO(customer *domain.Customer) domain.CustomerDTO {
	return domain.CustomerDTO{
		ID:               customer.ID,
		OwnerID:          customer.OwnerID,
		Name:             customer.Name,
		Email:            customer.Email,
		Phone:            customer.Phone,
		CompanyName:      customer.CompanyName,
		Pipeline:         ToPipelineDTO(&customer.Pipeline),
		Activities:       nonNil(customer.Activities),
		Reminders:        nonNil(customer.Reminders),
		Files:            nonNil(customer.Files),
		Projects:         nonNil(customer.Projects),
		ProjectSnapshots: nonNil(customer.ProjectSnapshots),
		LeadScore:        customer.LeadScore,
		CreatedAt:        formatTime(customer.CreatedAt),
		UpdatedAt:        formatTime(customer.UpdatedAt),
	}
}

// ToProjectDTO converts Project to ProjectDTO
func ToProjectDTO(project *domain.Project) domain.ProjectDTO {
	return domain.ProjectDTO{
		ID:                    project.ID,
		OwnerID:               project.OwnerID,
		Name:                  project.Name,
		Description:           project.Description,
		StartDate:             formatTimePtr(project.StartDate),
		EndDate:               formatTimePtr(project.EndDate),
		Budget:                project.Budget,
		Priority:              project.Priority,
		Team:                  nonNil(project.Team),
		CustomerID:            project.CustomerID,
		CustomerName:          project.CustomerName,
		CustomerEmail:         project.CustomerEmail,
		CustomerPhone:         project.CustomerPhone,
		CompanyName:           project.CompanyName,
		ConvertedFromCustomer: project.ConvertedFromCustomer,
		FrozenLeadScore:       project.FrozenLeadScore,
		Pipeline:              ToPipelineDTO(&project.Pipeline),
		Files:                 nonNil(project.Files),
		CreatedAt:             formatTime(project.CreatedAt),
		UpdatedAt:             formatTime(project.UpdatedAt),
	}
}

// ToApprovalRequestDTO converts ApprovalRequest to its DTO
func ToApprovalRequestDTO(req *domain.ApprovalRequest) domain.ApprovalRequestDTO {
	return domain.ApprovalRequestDTO{
		ID:                 req.ID,
		RequestType:        req.RequestType,
		EntityID:           req.EntityID,
		EntityName:         req.EntityName,
		Title:              req.Title,
		Description:        req.Description,
		IsStageAdvancement: req.IsStageAdvancement,
		CurrentStage:       req.CurrentStage,
		NextStage:          req.NextStage,
		ProposedProject:    req.ProposedProject,
		QuotationData:      req.QuotationData,
		AttachedFiles:      nonNil(req.AttachedFiles),
		QuotationFiles:     nonNil(req.QuotationFiles),
		RequestedBy:        req.RequestedBy,
		RequestedByName:    req.RequestedByName,
		RequestedTo:        req.RequestedTo,
		RequestedToName:    req.RequestedToName,
		Viewers:            req.ViewerIDs(),
		Status:             req.Status,
		DecisionBy:         req.DecisionBy,
		DecisionDate:       formatTimePtr(req.DecisionDate),
		DecisionComment:    req.DecisionComment,
		ResultProjectID:    req.ResultProjectID,
		CreatedAt:          formatTime(req.CreatedAt),
	}
}

// ToQuoteDTO converts Quote to QuoteDTO
func ToQuoteDTO(q *domain.Quote) domain.QuoteDTO {
	return domain.QuoteDTO{
		ID:                q.ID,
		QuoteNumber:       q.QuoteNumber,
		Title:             q.Title,
		OwnerType:         q.OwnerType,
		OwnerID:           q.OwnerID,
		Items:             nonNil(q.Items),
		TaxRate:           q.TaxRate,
		Discount:          q.Discount,
		Subtotal:          q.Subtotal,
		TaxAmount:         q.TaxAmount,
		Total:             q.Total,
		Status:            q.Status,
		Associations:      nonNil(q.Associations),
		Notes:             q.Notes,
		ValidUntil:        formatTimePtr(q.ValidUntil),
		MigratedProjectID: q.MigratedProjectID,
		OriginQuoteID:     q.OriginQuoteID,
		CreatedAt:         formatTime(q.CreatedAt),
		UpdatedAt:         formatTime(q.UpdatedAt),
	}
}

// ToInvitationDTO converts TeamInvitation to its DTO
func ToInvitationDTO(inv *domain.TeamInvitation) domain.InvitationDTO {
	return domain.InvitationDTO{
		ID:          inv.ID,
		FromUserID:  inv.FromUserID,
		ToUserEmail: inv.ToUserEmail,
		ToUserID:    inv.ToUserID,
		Status:      inv.Status,
		CreatedAt:   formatTime(inv.CreatedAt),
		AcceptedAt:  formatTimePtr(inv.AcceptedAt),
	}
}

// ToInvitationDTOs converts a list of invitations
func ToInvitationDTOs(invs []domain.TeamInvitation) []domain.InvitationDTO {
	out := make([]domain.InvitationDTO, len(invs))
	for i := range invs {
		out[i] = ToInvitationDTO(&invs[i])
	}
	return out
}

// ToUserDTO converts User to UserDTO
func ToUserDTO(user *domain.User, roles []string) domain.UserDTO {
	return domain.UserDTO{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Roles:       roles,
	}
}

// ToNotificationDTO converts Notification to NotificationDTO
func ToNotificationDTO(n *domain.Notification) domain.NotificationDTO {
	return domain.NotificationDTO{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		Read:       n.Read,
		CreatedAt:  formatTime(n.CreatedAt),
		EntityID:   n.EntityID,
		EntityType: n.EntityType,
		Context:    n.Context,
	}
}

// ToTranscriptDTO converts MeetingTranscript to its DTO
func ToTranscriptDTO(t *domain.MeetingTranscript) domain.TranscriptDTO {
	return domain.TranscriptDTO{
		ID:               t.ID,
		OwnerType:        t.OwnerType,
		OwnerID:          t.OwnerID,
		Title:            t.Title,
		Transcript:       t.Transcript,
		Summary:          t.Summary,
		RecordedAt:       formatTime(t.RecordedAt),
		OriginCustomerID: t.OriginCustomerID,
	}
}

// ToStageHistoryDTO converts StageHistory to its DTO
func ToStageHistoryDTO(h *domain.StageHistory) domain.StageHistoryDTO {
	return domain.StageHistoryDTO{
		ID:                h.ID,
		FromStage:         h.FromStage,
		ToStage:           h.ToStage,
		Reason:            h.Reason,
		ApprovalRequestID: h.ApprovalRequestID,
		ChangedByID:       h.ChangedByID,
		ChangedByName:     h.ChangedByName,
		ChangedAt:         formatTime(h.ChangedAt),
	}
}

// ToConversionRunDTO converts ConversionRun to its DTO
func ToConversionRunDTO(run *domain.ConversionRun) domain.ConversionRunDTO {
	return domain.ConversionRunDTO{
		ID:         run.ID,
		CustomerID: run.CustomerID,
		ProjectID:  run.ProjectID,
		Status:     run.Status,
		Steps:      run.Steps,
		CreatedAt:  formatTime(run.CreatedAt),
		UpdatedAt:  formatTime(run.UpdatedAt),
	}
}

// ToAttachments converts request attachments, stamping the upload time
func ToAttachments(in []domain.AttachmentDTO, at time.Time) []domain.Attachment {
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Attachment{URL: a.URL, Name: a.Name, UploadedAt: at})
	}
	return out
}

// ToQuoteItems converts request items; ids are assigned on add
func ToQuoteItems(in []domain.QuoteItemRequest) []domain.QuoteItem {
	out := make([]domain.QuoteItem, 0, len(in))
	for _, i := range in {
		out = append(out, domain.QuoteItem{
			Description:     i.Description,
			Quantity:        i.Quantity,
			UnitPrice:       i.UnitPrice,
			DiscountPercent: i.DiscountPercent,
		})
	}
	return out
}

// ToStageEditOps converts editing-mode operations
func ToStageEditOps(in []domain.StageEditOpRequest) []domain.StageEditOp {
	out := make([]domain.StageEditOp, len(in))
	for i, op := range in {
		out[i] = domain.StageEditOp{Op: op.Op, Index: op.Index, Name: op.Name, Confirm: op.Confirm}
	}
	return out
}

// UniqueIDs de-duplicates ids, preserving order and dropping the excluded ones
func UniqueIDs(ids []uuid.UUID, exclude ...uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids)+len(exclude))
	for _, id := range exclude {
		seen[id] = struct{}{}
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FormatError creates a formatted error message
func FormatError(entity, operation string, err error) error {
	return fmt.Errorf("failed to %s %s: %w", operation, entity, err)
}
