// Package timeline reconciles the two message sources for a room: the
// request/response send path, which returns the canonical created
// message, and the push channel, which broadcasts the same event to
// every member including the sender. The result is one deduplicated,
// time-ordered sequence.
package timeline

import (
	"sort"
	"sync"

	"github.com/haasonsaas/courier/internal/observability"
	"github.com/haasonsaas/courier/pkg/models"
)

// Timeline holds the reconciled message sequence for one room. All
// methods are safe for concurrent use.
type Timeline struct {
	mu     sync.Mutex
	roomID string
	selfID string
	msgs   []models.Message
	ids    map[string]struct{}

	onChange func(count int)
	metrics  *observability.Metrics
	log      *observability.Logger
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithOnChange registers a callback invoked with the new message count
// after every mutation that changed the sequence. Consumers use it to
// drive advisory side effects such as smart-reply refreshes.
func WithOnChange(fn func(count int)) Option {
	return func(t *Timeline) {
		t.onChange = fn
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(t *Timeline) {
		t.metrics = metrics
	}
}

// WithLogger sets the logger.
func WithLogger(log *observability.Logger) Option {
	return func(t *Timeline) {
		if log != nil {
			t.log = log
		}
	}
}

// New creates an empty timeline for one room. selfID is the current
// user; pushes echoing the user's own sends are dropped.
func New(roomID, selfID string, opts ...Option) *Timeline {
	t := &Timeline{
		roomID: roomID,
		selfID: selfID,
		ids:    make(map[string]struct{}),
		log:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load replaces the sequence wholesale with the fetched history. This is
// the only point where the backend is authoritative for the whole
// sequence. Messages are kept in creation-time order; equal timestamps
// keep their fetched order.
func (t *Timeline) Load(history []models.Message) {
	msgs := append([]models.Message(nil), history...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	t.mu.Lock()
	t.msgs = msgs
	t.ids = make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		if msg.ID != "" {
			t.ids[msg.ID] = struct{}{}
		}
	}
	count := len(t.msgs)
	t.mu.Unlock()

	t.notify(count)
}

// AppendLocal appends the canonical message returned by the send path.
// The push echo of the same message is dropped later by ApplyRemote.
func (t *Timeline) AppendLocal(msg models.Message) {
	t.mu.Lock()
	if msg.ID != "" {
		if _, dup := t.ids[msg.ID]; dup {
			t.mu.Unlock()
			return
		}
		t.ids[msg.ID] = struct{}{}
	}
	t.msgs = append(t.msgs, msg)
	count := len(t.msgs)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.MessageCounter.WithLabelValues("sent").Inc()
	}
	t.notify(count)
}

// ApplyRemote merges a pushed message. The push is dropped when it is
// scoped to a different room, echoes the current user's own send, or
// carries an identifier already present. The identifier check makes the
// merge order-tolerant: a push racing the initial history load cannot
// duplicate an entry.
func (t *Timeline) ApplyRemote(roomID string, msg models.Message) {
	if roomID != t.roomID {
		t.drop("foreign_room")
		return
	}
	if msg.SenderID == t.selfID {
		t.drop("self_sender")
		return
	}

	t.mu.Lock()
	if msg.ID != "" {
		if _, dup := t.ids[msg.ID]; dup {
			t.mu.Unlock()
			t.drop("duplicate_id")
			return
		}
		t.ids[msg.ID] = struct{}{}
	}
	t.msgs = append(t.msgs, msg)
	count := len(t.msgs)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.MessageCounter.WithLabelValues("received").Inc()
	}
	t.notify(count)
}

// Messages returns a copy of the reconciled sequence.
func (t *Timeline) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Message(nil), t.msgs...)
}

// Len returns the current message count.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// RoomID returns the room this timeline is scoped to.
func (t *Timeline) RoomID() string {
	return t.roomID
}

func (t *Timeline) drop(reason string) {
	if t.metrics != nil {
		t.metrics.PushesDeduplicated.WithLabelValues(reason).Inc()
	}
}

func (t *Timeline) notify(count int) {
	if t.onChange != nil {
		t.onChange(count)
	}
}
