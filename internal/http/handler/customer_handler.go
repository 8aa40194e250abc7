package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

type CustomerHandler struct {
	customerService   *service.CustomerService
	projectService    *service.ProjectService
	conversionService *service.ConversionService
	quoteService      *service.QuoteService
	maxUploadMB       int64
	logger            *zap.Logger
}

func NewCustomerHandler(
	customerService *service.CustomerService,
	projectService *service.ProjectService,
	conversionService *service.ConversionService,
	quoteService *service.QuoteService,
	maxUploadMB int64,
	logger *zap.Logger,
) *CustomerHandler {
	return &CustomerHandler{
		customerService:   customerService,
		projectService:    projectService,
		conversionService: conversionService,
		quoteService:      quoteService,
		maxUploadMB:       maxUploadMB,
		logger:            logger,
	}
}

// List godoc
// @Summary List customers
// @Description Customers owned by the caller, or all for admins
// @Tags Customers
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.CustomerDTO}
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers [get]
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	result, err := h.customerService.List(r.Context(), page, pageSize)
	if err != nil {
		respondServiceError(w, h.logger, err, "list customers")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Create godoc
// @Summary Create customer
// @Description Starts the pipeline from explicit stages, a template, or the configured defaults
// @Tags Customers
// @Accept json
// @Produce json
// @Param request body domain.CreateCustomerRequest true "Customer"
// @Success 201 {object} domain.CustomerDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers [post]
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customer, err := h.customerService.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create customer")
		return
	}
	w.Header().Set("Location", "/api/v1/customers/"+customer.ID.String())
	respondJSON(w, http.StatusCreated, customer)
}

// GetByID godoc
// @Summary Get customer
// @Tags Customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} domain.CustomerDTO
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id} [get]
func (h *CustomerHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	customer, err := h.customerService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get customer")
		return
	}
	respondJSON(w, http.StatusOK, customer)
}

// AddActivity godoc
// @Summary Add an activity to the customer panel
// @Tags Customers
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body domain.AddActivityRequest true "Activity"
// @Success 201 {object} domain.CustomerDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/activities [post]
func (h *CustomerHandler) AddActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customer, err := h.customerService.AddActivity(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "add activity")
		return
	}
	respondJSON(w, http.StatusCreated, customer)
}

// AddReminder godoc
// @Summary Add a reminder to the customer panel
// @Tags Customers
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body domain.AddReminderRequest true "Reminder"
// @Success 201 {object} domain.CustomerDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/reminders [post]
func (h *CustomerHandler) AddReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddReminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customer, err := h.customerService.AddReminder(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "add reminder")
		return
	}
	respondJSON(w, http.StatusCreated, customer)
}

// UpdateLeadScore godoc
// @Summary Set the customer's running lead score
// @Tags Customers
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body domain.UpdateLeadScoreRequest true "Lead score"
// @Success 200 {object} domain.CustomerDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/lead-score [patch]
func (h *CustomerHandler) UpdateLeadScore(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateLeadScoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customer, err := h.customerService.UpdateLeadScore(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "update lead score")
		return
	}
	respondJSON(w, http.StatusOK, customer)
}

// UploadFile godoc
// @Summary Upload an attachment to the customer
// @Tags Customers
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Customer ID"
// @Param file formData file true "File to upload"
// @Success 201 {object} domain.Attachment
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/files [post]
func (h *CustomerHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	handleUpload(w, r, h.maxUploadMB, h.logger, h.customerService.UploadFile)
}

// AddTranscript godoc
// @Summary Add a meeting transcript
// @Tags Customers
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body domain.AddTranscriptRequest true "Transcript"
// @Success 201 {object} domain.TranscriptDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/transcripts [post]
func (h *CustomerHandler) AddTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddTranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	transcript, err := h.customerService.AddTranscript(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "add transcript")
		return
	}
	respondJSON(w, http.StatusCreated, transcript)
}

// ListTranscripts godoc
// @Summary List meeting transcripts
// @Tags Customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {array} domain.TranscriptDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/transcripts [get]
func (h *CustomerHandler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	list, err := h.customerService.ListTranscripts(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "list transcripts")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// ListProjects godoc
// @Summary List projects converted from the customer
// @Tags Customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {array} domain.ProjectDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/projects [get]
func (h *CustomerHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	projects, err := h.projectService.ListForCustomer(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "list projects")
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

// Convert godoc
// @Summary Convert the customer into a project
// @Description Requires an approved conversion request unless an admin bypasses it.
// @Description Best-effort steps that fail are reported in the run and retried.
// @Tags Customers
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body domain.ConvertCustomerRequest true "Project details"
// @Success 201 {object} domain.ConversionResultDTO
// @Failure 409 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/convert [post]
func (h *CustomerHandler) Convert(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.ConvertCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.conversionService.Convert(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "convert customer")
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// ListQuotes godoc
// @Summary List the customer's quotes
// @Tags Quotes
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {array} domain.QuoteDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/quotes [get]
func (h *CustomerHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	quotes, err := h.quoteService.ListForOwner(r.Context(), domain.EntityTypeCustomer, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "list quotes")
		return
	}
	respondJSON(w, http.StatusOK, quotes)
}

// CreateQuote godoc
// @Summary Create a draft quote for the customer
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body domain.CreateQuoteRequest true "Quote"
// @Success 201 {object} domain.QuoteDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id}/quotes [post]
func (h *CustomerHandler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.CreateQuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := h.quoteService.CreateDraft(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create quote")
		return
	}
	respondJSON(w, http.StatusCreated, quote)
}
