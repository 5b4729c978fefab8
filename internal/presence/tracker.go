// Package presence tracks ephemeral typing state for a room. Entries
// decay with wall-clock time: an explicit stop signal is an optimization
// for responsiveness, the periodic sweep is the correctness guarantee,
// because stop signals can be lost to disconnects.
package presence

import (
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/courier/internal/observability"
	"github.com/haasonsaas/courier/pkg/models"
)

// DefaultStaleness is how long a typing entry stays valid without a
// fresh signal.
const DefaultStaleness = 3 * time.Second

// DefaultSweepInterval is the cadence of the staleness sweep.
const DefaultSweepInterval = time.Second

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// RoomID scopes the tracker; signals for other rooms are ignored.
	RoomID string

	// SelfID is the current user. Self signals are never reflected back.
	SelfID string

	// Staleness is the maximum age of an entry. Default 3s.
	Staleness time.Duration

	// SweepInterval is the eviction cadence. Default 1s.
	SweepInterval time.Duration

	// OnChange, when set, receives the new typist name list after every
	// change to the set. Called outside the tracker lock.
	OnChange func(typists []string)

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

type presenceEntry struct {
	userID   string
	username string
	lastSeen time.Time
}

// Tracker is the per-room typing state machine: absent -> typing on a
// start signal, typing -> absent on a stop signal or staleness. Names
// are reported in first-signal order.
type Tracker struct {
	mu      sync.Mutex
	cfg     TrackerConfig
	entries []*presenceEntry
	byUser  map[string]*presenceEntry

	stopCh chan struct{}
	doneCh chan struct{}

	now func() time.Time
}

// NewTracker creates a tracker for one room. Call Start to run the
// staleness sweep and Stop when the room view is torn down.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	return &Tracker{
		cfg:    cfg,
		byUser: make(map[string]*presenceEntry),
		now:    time.Now,
	}
}

// Start launches the periodic sweep. Idempotent.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.stopCh != nil {
		t.mu.Unlock()
		return
	}
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	stopCh, doneCh := t.stopCh, t.doneCh
	t.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(t.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

// Stop halts the sweep and waits for it to finish. Idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stopCh, doneCh := t.stopCh, t.doneCh
	t.stopCh = nil
	t.doneCh = nil
	t.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// Observe records an inbound typing-start signal. Signals from the
// current user or from other rooms are ignored.
func (t *Tracker) Observe(ev models.TypingEvent) {
	if ev.UserID == t.cfg.SelfID || ev.RoomID != t.cfg.RoomID {
		return
	}
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.TypingSignals.WithLabelValues("inbound", "start").Inc()
	}

	t.mu.Lock()
	entry, ok := t.byUser[ev.UserID]
	if ok {
		entry.lastSeen = t.now()
		entry.username = ev.Username
		t.mu.Unlock()
		return
	}
	entry = &presenceEntry{userID: ev.UserID, username: ev.Username, lastSeen: t.now()}
	t.byUser[ev.UserID] = entry
	t.entries = append(t.entries, entry)
	typists := t.typistsLocked()
	t.mu.Unlock()

	t.notify(typists)
}

// ObserveStop records an inbound typing-stop signal.
func (t *Tracker) ObserveStop(ev models.TypingEvent) {
	if ev.UserID == t.cfg.SelfID || ev.RoomID != t.cfg.RoomID {
		return
	}
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.TypingSignals.WithLabelValues("inbound", "stop").Inc()
	}

	t.mu.Lock()
	if _, ok := t.byUser[ev.UserID]; !ok {
		t.mu.Unlock()
		return
	}
	t.removeLocked(ev.UserID)
	typists := t.typistsLocked()
	t.mu.Unlock()

	t.notify(typists)
}

// Sweep evicts every entry older than the staleness threshold. Safe to
// call at any time; the sweep loop calls it once per interval.
func (t *Tracker) Sweep() {
	cutoff := t.now().Add(-t.cfg.Staleness)

	t.mu.Lock()
	var evicted bool
	for _, entry := range append([]*presenceEntry(nil), t.entries...) {
		if entry.lastSeen.Before(cutoff) {
			t.removeLocked(entry.userID)
			evicted = true
		}
	}
	typists := t.typistsLocked()
	t.mu.Unlock()

	if evicted {
		t.notify(typists)
	}
}

// Typists returns the display names of everyone currently typing, in
// first-signal order.
func (t *Tracker) Typists() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typistsLocked()
}

// IndicatorText renders the typing set for display. Three or more
// typists collapse to a generic message.
func (t *Tracker) IndicatorText() string {
	names := t.Typists()
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", names[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing...", names[0], names[1])
	default:
		return "Several people are typing..."
	}
}

func (t *Tracker) typistsLocked() []string {
	names := make([]string, 0, len(t.entries))
	for _, entry := range t.entries {
		names = append(names, entry.username)
	}
	return names
}

func (t *Tracker) removeLocked(userID string) {
	delete(t.byUser, userID)
	for i, entry := range t.entries {
		if entry.userID == userID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

func (t *Tracker) notify(typists []string) {
	if t.cfg.OnChange != nil {
		t.cfg.OnChange(typists)
	}
}
