package events

import (
	"sync"
	"time"
)

// Type identifies turn lifecycle events published to the ops feed.
type Type string

const (
	TypeTurnStarted Type = "turn_started"
	TypeTranscript  Type = "transcript"
	TypeReply       Type = "reply"
	TypeDelivered   Type = "delivered"
	TypeTurnFailed  Type = "turn_failed"
)

// TurnEvent is one entry in the live turn feed.
type TurnEvent struct {
	Type   Type      `json:"type"`
	UserID int64     `json:"user_id"`
	TurnID string    `json:"turn_id"`
	Text   string    `json:"text,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Hub fans events out to subscribers. Subscriber channels are buffered and
// a slow subscriber drops events rather than blocking the pipeline.
type Hub struct {
	mu   sync.Mutex
	subs map[chan TurnEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan TurnEvent]struct{})}
}

func (h *Hub) Subscribe() (<-chan TurnEvent, func()) {
	ch := make(chan TurnEvent, 64)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) Publish(ev TurnEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// drop for this subscriber
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
