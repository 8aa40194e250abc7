package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DBChecker pings the database
type DBChecker func(ctx context.Context) error

// HealthHandler serves the liveness and readiness probes
type HealthHandler struct {
	checkDB DBChecker
	logger  *zap.Logger
}

func NewHealthHandler(checkDB DBChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checkDB: checkDB, logger: logger}
}

// Live godoc
// @Summary Liveness probe
// @Tags Health
// @Produce plain
// @Success 200 {string} string "OK"
// @Router /health [get]
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Database godoc
// @Summary Database readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health/db [get]
func (h *HealthHandler) Database(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.checkDB(ctx); err != nil {
		h.logger.Error("database health check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "database",
			"error":   err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "database",
	})
}
