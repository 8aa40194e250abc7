package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/events"
	"go.uber.org/zap"
)

// Subscriber is the read side of the event hub
type Subscriber interface {
	Subscribe(userID uuid.UUID) (<-chan events.Event, func())
}

// EventHandler streams the caller's events as Server-Sent Events
type EventHandler struct {
	hub       Subscriber
	keepAlive time.Duration
	logger    *zap.Logger
}

func NewEventHandler(hub Subscriber, keepAlive time.Duration, logger *zap.Logger) *EventHandler {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return &EventHandler{
		hub:       hub,
		keepAlive: keepAlive,
		logger:    logger,
	}
}

// Stream godoc
// @Summary Subscribe to workflow events
// @Description Server-Sent Events for approvals, stage changes, conversions and notifications addressed to the caller
// @Tags Events
// @Produce text/event-stream
// @Success 200 {object} events.Event
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /events [get]
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	ch, unsubscribe := h.hub.Subscribe(userCtx.UserID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	h.logger.Debug("event stream opened", zap.String("userID", userCtx.UserID.String()))
	h.pump(r.Context(), w, flusher, ch)
	h.logger.Debug("event stream closed", zap.String("userID", userCtx.UserID.String()))
}

func (h *EventHandler) pump(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, ch <-chan events.Event) {
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
