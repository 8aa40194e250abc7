package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

type ApprovalHandler struct {
	approvalService *service.ApprovalService
	logger          *zap.Logger
}

func NewApprovalHandler(approvalService *service.ApprovalService, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		approvalService: approvalService,
		logger:          logger,
	}
}

// List godoc
// @Summary List approval requests
// @Description Requests the caller made, was asked to decide, or may view
// @Tags Approvals
// @Produce json
// @Param role query string false "Side of the request" Enums(requested, assigned, viewing) default(assigned)
// @Param status query string false "Filter by status" Enums(pending, approved, rejected)
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.ApprovalRequestDTO}
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /approvals [get]
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	role := repository.ApprovalRole(r.URL.Query().Get("role"))
	status := domain.ApprovalStatus(r.URL.Query().Get("status"))

	result, err := h.approvalService.ListForUser(r.Context(), role, status, page, pageSize)
	if err != nil {
		respondServiceError(w, h.logger, err, "list approval requests")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Create godoc
// @Summary Request approval
// @Description Asks a team member to approve a stage advancement or a customer conversion.
// @Description Admins may bypass the request and have the change applied at once.
// @Tags Approvals
// @Accept json
// @Produce json
// @Param request body domain.CreateApprovalRequest true "Approval request"
// @Success 201 {object} domain.CreateApprovalResponse
// @Success 200 {object} domain.CreateApprovalResponse "Bypassed"
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /approvals [post]
func (h *ApprovalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateApprovalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.approvalService.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create approval request")
		return
	}
	status := http.StatusCreated
	if resp.Bypassed {
		status = http.StatusOK
	}
	respondJSON(w, status, resp)
}

// GetByID godoc
// @Summary Get approval request
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval request ID"
// @Success 200 {object} domain.ApprovalRequestDTO
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /approvals/{id} [get]
func (h *ApprovalHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	req, err := h.approvalService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get approval request")
		return
	}
	respondJSON(w, http.StatusOK, req)
}

// Decide godoc
// @Summary Approve or reject a request
// @Description Only the assigned approver may decide. Approving a stage advancement moves the entity.
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval request ID"
// @Param request body domain.DecideApprovalRequest true "Decision"
// @Success 200 {object} domain.ApprovalRequestDTO
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /approvals/{id}/decision [post]
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.DecideApprovalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.approvalService.Decide(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "decide approval request")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
