package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

type QuoteHandler struct {
	quoteService *service.QuoteService
	logger       *zap.Logger
}

func NewQuoteHandler(quoteService *service.QuoteService, logger *zap.Logger) *QuoteHandler {
	return &QuoteHandler{
		quoteService: quoteService,
		logger:       logger,
	}
}

// GetByID godoc
// @Summary Get quote
// @Tags Quotes
// @Produce json
// @Param id path string true "Quote ID"
// @Success 200 {object} domain.QuoteDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id} [get]
func (h *QuoteHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	quote, err := h.quoteService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get quote")
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// SetPricing godoc
// @Summary Set tax rate and discount
// @Description Totals are recomputed from the items
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param request body domain.UpdateQuotePricingRequest true "Pricing"
// @Success 200 {object} domain.QuoteDTO
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id} [patch]
func (h *QuoteHandler) SetPricing(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateQuotePricingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := h.quoteService.SetPricing(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "update quote pricing")
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// AddItem godoc
// @Summary Add a line item
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param request body domain.QuoteItemRequest true "Item"
// @Success 201 {object} domain.QuoteDTO
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id}/items [post]
func (h *QuoteHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.QuoteItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := h.quoteService.AddItem(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "add quote item")
		return
	}
	respondJSON(w, http.StatusCreated, quote)
}

// UpdateItem godoc
// @Summary Replace a line item
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param itemId path string true "Item ID"
// @Param request body domain.QuoteItemRequest true "Item"
// @Success 200 {object} domain.QuoteDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id}/items/{itemId} [put]
func (h *QuoteHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemId")
	if !ok {
		return
	}
	var req domain.QuoteItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := h.quoteService.UpdateItem(r.Context(), id, itemID, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "update quote item")
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// RemoveItem godoc
// @Summary Remove a line item
// @Description A quote keeps at least one item
// @Tags Quotes
// @Produce json
// @Param id path string true "Quote ID"
// @Param itemId path string true "Item ID"
// @Success 200 {object} domain.QuoteDTO
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id}/items/{itemId} [delete]
func (h *QuoteHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemId")
	if !ok {
		return
	}
	quote, err := h.quoteService.RemoveItem(r.Context(), id, itemID)
	if err != nil {
		respondServiceError(w, h.logger, err, "remove quote item")
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// Associate godoc
// @Summary Associate the quote with a project
// @Description An optional fee is added as a line item
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param request body domain.AssociateProjectRequest true "Association"
// @Success 201 {object} domain.QuoteDTO
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id}/associations [post]
func (h *QuoteHandler) Associate(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AssociateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := h.quoteService.Associate(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "associate quote")
		return
	}
	respondJSON(w, http.StatusCreated, quote)
}

// Dissociate godoc
// @Summary Remove a project association
// @Tags Quotes
// @Produce json
// @Param id path string true "Quote ID"
// @Param projectId path string true "Project ID"
// @Success 200 {object} domain.QuoteDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id}/associations/{projectId} [delete]
func (h *QuoteHandler) Dissociate(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "projectId")
	if !ok {
		return
	}
	quote, err := h.quoteService.Dissociate(r.Context(), id, projectID)
	if err != nil {
		respondServiceError(w, h.logger, err, "dissociate quote")
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// UpdateStatus godoc
// @Summary Move the quote through draft, sent, accepted and rejected
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param request body domain.UpdateQuoteStatusRequest true "Target status"
// @Success 200 {object} domain.QuoteDTO
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id}/status [post]
func (h *QuoteHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateQuoteStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := h.quoteService.TransitionStatus(r.Context(), id, req.Status)
	if err != nil {
		respondServiceError(w, h.logger, err, "update quote status")
		return
	}
	respondJSON(w, http.StatusOK, quote)
}
