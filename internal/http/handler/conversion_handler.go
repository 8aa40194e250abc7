package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// ConversionHandler exposes the step log of customer conversions
type ConversionHandler struct {
	conversionService *service.ConversionService
	logger            *zap.Logger
}

func NewConversionHandler(conversionService *service.ConversionService, logger *zap.Logger) *ConversionHandler {
	return &ConversionHandler{
		conversionService: conversionService,
		logger:            logger,
	}
}

// GetRun godoc
// @Summary Get a conversion run
// @Tags Conversions
// @Produce json
// @Param runId path string true "Conversion run ID (ULID)"
// @Success 200 {object} domain.ConversionRunDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /conversions/{runId} [get]
func (h *ConversionHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.conversionService.GetRun(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		respondServiceError(w, h.logger, err, "get conversion run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// Resume godoc
// @Summary Retry the unfinished steps of a conversion
// @Description A completed run is returned unchanged
// @Tags Conversions
// @Produce json
// @Param runId path string true "Conversion run ID (ULID)"
// @Success 200 {object} domain.ConversionRunDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /conversions/{runId}/resume [post]
func (h *ConversionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	run, err := h.conversionService.Resume(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		respondServiceError(w, h.logger, err, "resume conversion")
		return
	}
	respondJSON(w, http.StatusOK, run)
}
