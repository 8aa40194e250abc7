// Package events is an in-process publish/subscribe hub keyed by user id.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types published by the workflow services
const (
	TypeApprovalCreated = "approval.created"
	TypeApprovalDecided = "approval.decided"
	TypeStageChanged    = "stage.changed"
	TypeConversionDone  = "conversion.completed"
	TypeNotification    = "notification.created"
)

// Event is delivered to every subscriber of UserID
type Event struct {
	Type     string      `json:"type"`
	UserID   uuid.UUID   `json:"userId"`
	EntityID uuid.UUID   `json:"entityId,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	At       time.Time   `json:"at"`
}

// Publisher is the write side of the hub
type Publisher interface {
	Publish(ev Event)
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

// Hub fans events out to per-user subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub creates a hub with the given per-subscriber buffer size
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*subscriber]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a listener for a user's events. The returned func
// unsubscribes and closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], sub)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers the event to the subscribers of ev.UserID
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.UserID] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Debug("dropping event for slow subscriber",
				zap.String("type", ev.Type),
				zap.String("userID", ev.UserID.String()))
		}
	}
}

// SubscriberCount returns the number of live subscriptions for a user
func (h *Hub) SubscriberCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
