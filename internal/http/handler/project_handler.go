package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

type ProjectHandler struct {
	projectService *service.ProjectService
	quoteService   *service.QuoteService
	maxUploadMB    int64
	logger         *zap.Logger
}

func NewProjectHandler(projectService *service.ProjectService, quoteService *service.QuoteService, maxUploadMB int64, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		quoteService:   quoteService,
		maxUploadMB:    maxUploadMB,
		logger:         logger,
	}
}

// GetByID godoc
// @Summary Get project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} domain.ProjectDTO
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /projects/{id} [get]
func (h *ProjectHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	project, err := h.projectService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get project")
		return
	}
	respondJSON(w, http.StatusOK, project)
}

// UploadFile godoc
// @Summary Upload an attachment to the project
// @Tags Projects
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Project ID"
// @Param file formData file true "File to upload"
// @Success 201 {object} domain.Attachment
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /projects/{id}/files [post]
func (h *ProjectHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	handleUpload(w, r, h.maxUploadMB, h.logger, h.projectService.UploadFile)
}

// AddTranscript godoc
// @Summary Add a meeting transcript to the project
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body domain.AddTranscriptRequest true "Transcript"
// @Success 201 {object} domain.TranscriptDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /projects/{id}/transcripts [post]
func (h *ProjectHandler) AddTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddTranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	transcript, err := h.projectService.AddTranscript(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "add transcript")
		return
	}
	respondJSON(w, http.StatusCreated, transcript)
}

// ListTranscripts godoc
// @Summary List project transcripts, including those moved from the customer
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {array} domain.TranscriptDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /projects/{id}/transcripts [get]
func (h *ProjectHandler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	list, err := h.projectService.ListTranscripts(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "list transcripts")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// ListQuotes godoc
// @Summary List project quotes
// @Tags Quotes
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {array} domain.QuoteDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /projects/{id}/quotes [get]
func (h *ProjectHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	quotes, err := h.quoteService.ListForOwner(r.Context(), domain.EntityTypeProject, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "list quotes")
		return
	}
	respondJSON(w, http.StatusOK, quotes)
}

// CreateQuote godoc
// @Summary Create a quote on the project
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body domain.CreateQuoteRequest true "Quote"
// @Success 201 {object} domain.QuoteDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /projects/{id}/quotes [post]
func (h *ProjectHandler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.CreateQuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := h.quoteService.CreateForProject(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create quote")
		return
	}
	respondJSON(w, http.StatusCreated, quote)
}
