// Package realtime serves the live check-in board: staff dashboards subscribe to a seminar over
// WebSocket and receive every committed check-in, fanned out across instances through Redis.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/attendance"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventCheckIn carries a committed check-in.
	EventCheckIn = "checkin"
	// EventViewers carries the number of connected board viewers.
	EventViewers = "viewer_count"
)

// Publisher publishes seminar events to other instances.
type Publisher interface {
	PublishSeminarEvent(seminarID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to seminar channels and invokes handler for incoming events.
type Subscriber interface {
	SubscribeSeminar(seminarID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// BoardEntry is what a board viewer sees for one check-in.
type BoardEntry struct {
	RegistrationID    uuid.UUID `json:"registration_id"`
	UserID            uuid.UUID `json:"user_id"`
	SessionID         uuid.UUID `json:"session_id"`
	SessionNumber     int       `json:"session_number"`
	Method            string    `json:"method"`
	SessionsCompleted int       `json:"sessions_completed"`
	SessionsRemaining int       `json:"sessions_remaining"`
	Status            string    `json:"status"`
	IsMakeup          bool      `json:"is_makeup"`
	CheckedInAt       string    `json:"checked_in_at"`
}

// Hub maintains seminar_id -> set of connections and broadcasts messages.
// With Redis configured, events are published once and every instance broadcasts from its subscription.
type Hub struct {
	seminars map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	pub      Publisher
	sub      Subscriber
}

// NewHub creates a new WebSocket hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		seminars: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		pub:      pub,
		sub:      sub,
	}
}

// Register adds a client to a seminar board. Starts the Redis subscription for the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.seminars[c.SeminarID] == nil {
		h.seminars[c.SeminarID] = make(map[string]*Client)
		if h.sub != nil {
			seminarID := c.SeminarID
			cancel, err := h.sub.SubscribeSeminar(seminarID, func(event string, payload []byte) {
				h.Broadcast(seminarID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[seminarID] = cancel
			} else {
				h.logger.Warn("board subscription failed", zap.String("seminar_id", seminarID.String()), zap.Error(err))
			}
		}
	}
	h.seminars[c.SeminarID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("board viewer joined", zap.String("client_id", c.ID), zap.String("seminar_id", c.SeminarID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the last viewer leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.seminars[c.SeminarID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.seminars, c.SeminarID)
			if cancel, ok := h.subs[c.SeminarID]; ok {
				cancel()
				delete(h.subs, c.SeminarID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("board viewer left", zap.String("client_id", c.ID), zap.String("seminar_id", c.SeminarID.String()))
}

// Broadcast sends a message to all local viewers of a seminar.
func (h *Hub) Broadcast(seminarID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.seminars[seminarID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish delivers an event to every viewer on every instance exactly once.
func (h *Hub) Publish(seminarID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		if err := h.pub.PublishSeminarEvent(seminarID, event, data); err == nil {
			return
		}
		h.logger.Warn("board publish failed, broadcasting locally", zap.String("seminar_id", seminarID.String()), zap.Error(err))
	}
	h.Broadcast(seminarID, event, json.RawMessage(data))
}

// ViewerCount returns the number of local viewers of a seminar board.
func (h *Hub) ViewerCount(seminarID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.seminars[seminarID])
}

// CheckedIn pushes a committed check-in to the seminar's board.
func (h *Hub) CheckedIn(_ context.Context, r *attendance.Result) {
	h.Publish(r.SeminarID, EventCheckIn, BoardEntry{
		RegistrationID:    r.RegistrationID,
		UserID:            r.UserID,
		SessionID:         r.SessionID,
		SessionNumber:     r.SessionNumber,
		Method:            string(r.Method),
		SessionsCompleted: r.SessionsCompleted,
		SessionsRemaining: r.SessionsRemaining,
		Status:            string(r.Status),
		IsMakeup:          r.IsMakeup,
		CheckedInAt:       r.CheckedInAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}
