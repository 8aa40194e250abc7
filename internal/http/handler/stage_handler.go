package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// StageHandler serves the pipeline routes shared by customers and projects.
// Each route is bound to an entity kind when it is mounted.
type StageHandler struct {
	stageService    *service.StageService
	approvalService *service.ApprovalService
	logger          *zap.Logger
}

func NewStageHandler(stageService *service.StageService, approvalService *service.ApprovalService, logger *zap.Logger) *StageHandler {
	return &StageHandler{
		stageService:    stageService,
		approvalService: approvalService,
		logger:          logger,
	}
}

// Mount registers the pipeline routes for kind under an /{id} router
func (h *StageHandler) Mount(r chi.Router, kind domain.EntityType) {
	r.Get("/stages", h.Get(kind))
	r.Put("/stages", h.Save(kind))
	r.Get("/stages/history", h.History(kind))
	r.Post("/stages/advance", h.Advance(kind))
	r.Post("/stages/back", h.GoBack(kind))
	r.Post("/stages/select", h.Select(kind))
	r.Post("/stages/template", h.ApplyTemplate(kind))
	r.Patch("/stages/{stage}/content", h.UpdateContent(kind))
	r.Get("/approvals/pending", h.PendingApprovals(kind))
}

// Get godoc
// @Summary Get the stage pipeline
// @Tags Stages
// @Produce json
// @Param id path string true "Customer or project ID"
// @Success 200 {object} domain.PipelineDTO
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/stages [get]
// @Router /projects/{id}/stages [get]
func (h *StageHandler) Get(kind domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		entity, err := h.stageService.Inspect(r.Context(), kind, id)
		if err != nil {
			respondServiceError(w, h.logger, err, "get pipeline")
			return
		}
		respondJSON(w, http.StatusOK, mapper.ToPipelineDTO(&entity.Pipeline))
	}
}

// Advance godoc
// @Summary Move to the next stage
// @Description Fails while a stage-advancement approval is pending or the current stage has open tasks
// @Tags Stages
// @Produce json
// @Param id path string true "Customer or project ID"
// @Success 200 {object} domain.StageTransitionResponse
// @Failure 409 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/stages/advance [post]
// @Router /projects/{id}/stages/advance [post]
func (h *StageHandler) Advance(kind domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		resp, err := h.stageService.Advance(r.Context(), kind, id)
		if err != nil {
			respondServiceError(w, h.logger, err, "advance stage")
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// GoBack godoc
// @Summary Move to the previous stage
// @Tags Stages
// @Produce json
// @Param id path string true "Customer or project ID"
// @Success 200 {object} domain.StageTransitionResponse
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/stages/back [post]
// @Router /projects/{id}/stages/back [post]
func (h *StageHandler) GoBack(kind domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		resp, err := h.stageService.GoBack(r.Context(), kind, id)
		if err != nil {
			respondServiceError(w, h.logger, err, "move stage back")
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// Select godoc
// @Summary Jump to a named stage
// @Description Admin and system callers only
// @Tags Stages
// @Accept json
// @Produce json
// @Param id path string true "Customer or project ID"
// @Param request body domain.SelectStageRequest true "Target stage"
// @Success 200 {object} domain.StageTransitionResponse
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/stages/select [post]
// @Router /projects/{id}/stages/select [post]
func (h *StageHandler) Select(kind domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req domain.SelectStageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := h.stageService.Select(r.Context(), kind, id, req.Stage)
		if err != nil {
			respondServiceError(w, h.logger, err, "select stage")
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// Save godoc
// @Summary Apply a batch of stage edits
// @Description Operations run in order; the batch is rejected as a whole if any fails
// @Tags Stages
// @Accept json
// @Produce json
// @Param id path string true "Customer or project ID"
// @Param request body domain.SaveStagesRequest true "Stage edits"
// @Success 200 {object} domain.StageTransitionResponse
// @Failure 400 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/stages [put]
// @Router /projects/{id}/stages [put]
func (h *StageHandler) Save(kind domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req domain.SaveStagesRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := h.stageService.SaveStages(r.Context(), kind, id, mapper.ToStageEditOps(req.Operations), req.PinnedStage)
		if err != nil {
			respondServiceError(w, h.logger, err, "save stages")
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// UpdateContent godoc
// @Summary Edit the notes and tasks of one stage
// @Tags Stages
// @Accept json
// @Produce json
// @Param id path string true "Customer or project ID"
// @Param stage path string true "Stage name"
// @Param request body domain.UpdateStageContentRequest true "Content changes"
// @Success 200 {object} domain.PipelineDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/stages/{stage}/content [patch]
// @Router /projects/{id}/stages/{stage}/content [patch]
func (h *StageHandler) UpdateContent(kind domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		stage, err := url.PathUnescape(chi.URLParam(r, "stage"))
		if err != nil || stage == "" {
			respondWithError(w, http.StatusBadRequest, "Invalid stage")
			return
		}
		var req domain.UpdateStageContentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := h.stageService.UpdateStageContent(r.Context(), kind, id, stage, &req)
		if err != nil {
			respondServiceError(w, h.logger, err, "update stage content")
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// ApplyTemplate godoc
// @Summary Replace the stage list with an SOP template
// @Tags Stages
// @Accept json
// @Produce json
// @Param id path string true "Customer or project ID"
// @Param request body domain.ApplyTemplateRequest true "Template name"
// @Success 200 {object} domain.StageTransitionResponse
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/stages/template [post]
// @Router /projects/{id}/stages/template [post]
func (h *StageHandler) ApplyTemplate(kind domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req domain.ApplyTemplateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := h.stageService.ApplyTemplate(r.Context(), kind, id, req.Template)
		if err != nil {
			respondServiceError(w, h.logger, err, "apply template")
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// History godoc
// @Summary List stage changes, newest first
// @Tags Stages
// @Produce json
// @Param id path string true "Customer or project ID"
// @Success 200 {array} domain.StageHistoryDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/stages/history [get]
// @Router /projects/{id}/stages/history [get]
func (h *StageHandler) History(kind domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		history, err := h.stageService.History(r.Context(), kind, id)
		if err != nil {
			respondServiceError(w, h.logger, err, "list stage history")
			return
		}
		respondJSON(w, http.StatusOK, history)
	}
}

// PendingApprovals godoc
// @Summary List pending approval requests on the entity
// @Tags Approvals
// @Produce json
// @Param id path string true "Customer or project ID"
// @Success 200 {array} domain.ApprovalRequestDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/approvals/pending [get]
// @Router /projects/{id}/approvals/pending [get]
func (h *StageHandler) PendingApprovals(kind domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		pending, err := h.approvalService.PendingForEntity(r.Context(), kind, id)
		if err != nil {
			respondServiceError(w, h.logger, err, "list pending approvals")
			return
		}
		respondJSON(w, http.StatusOK, pending)
	}
}

// ListTemplates godoc
// @Summary List SOP stage templates
// @Tags Stages
// @Produce json
// @Param appliesTo query string false "Filter by entity kind" Enums(Customer, Project)
// @Success 200 {array} domain.StageTemplateDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /stage-templates [get]
func (h *StageHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	kind := domain.EntityType(r.URL.Query().Get("appliesTo"))
	switch kind {
	case "", domain.EntityTypeCustomer, domain.EntityTypeProject:
	default:
		respondWithError(w, http.StatusBadRequest, "appliesTo must be Customer or Project")
		return
	}
	respondJSON(w, http.StatusOK, h.stageService.ListTemplates(kind))
}
