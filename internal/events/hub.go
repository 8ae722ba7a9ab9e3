// Package events fans out submission progress notifications to in-process
// subscribers: the status stream, the SSE feed and webhook delivery.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the dispatcher.
const (
	TypeStageSucceeded = "stage.succeeded"
	TypeStageFailed    = "stage.failed"
	TypeJobCompleted   = "job.completed"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 64

// Event is one notification. JobID is empty for service-level events such
// as housekeeping passes.
type Event struct {
	ID    int64           `json:"id"`
	Type  string          `json:"type"`
	JobID string          `json:"submission_id"`
	At    time.Time       `json:"at"`
	Data  json.RawMessage `json:"data"`
}

// Matches reports whether the event belongs to jobID. An empty jobID
// matches every event.
func (ev Event) Matches(jobID string) bool {
	return jobID == "" || ev.JobID == jobID
}

type subscriber struct {
	jobID string
	ch    chan Event
}

// Hub is an in-memory pub/sub with a ring buffer so late clients can replay
// recent events.
type Hub struct {
	nextID  atomic.Int64
	dropped atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]subscriber
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]subscriber),
	}
}

// Publish records an event and offers it to every subscriber whose filter
// matches. Subscribers with a full buffer miss the event.
func (h *Hub) Publish(eventType, jobID string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}
	ev := Event{
		ID:    h.nextID.Add(1),
		Type:  eventType,
		JobID: jobID,
		At:    time.Now().UTC(),
		Data:  payload,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushLocked(ev)
	for _, sub := range h.subs {
		if sub.jobID != "" && sub.jobID != jobID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of future events for jobID ("" for all) and a
// cancel func that closes it. Cancel is idempotent.
func (h *Hub) Subscribe(jobID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = subscriber{jobID: jobID, ch: ch}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// SnapshotSince returns buffered events for jobID ("" for all) with
// ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64, jobID string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID && ev.Matches(jobID) {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribers is the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
