package presence

import (
	"sync"
	"time"

	"github.com/haasonsaas/courier/internal/connection"
	"github.com/haasonsaas/courier/internal/observability"
)

// DefaultQuietPeriod is how long after the last keystroke the stop
// signal fires.
const DefaultQuietPeriod = time.Second

// Sender emits events on the realtime channel. *connection.Manager
// satisfies it.
type Sender interface {
	Send(event string, payload any)
}

// Emitter announces the local user's composing state for one room. Every
// keystroke with content sends a start signal and reschedules a single
// debounced stop signal; only the most recent scheduled stop survives.
type Emitter struct {
	mu      sync.Mutex
	roomID  string
	sender  Sender
	quiet   time.Duration
	metrics *observability.Metrics

	timer  *time.Timer
	gen    uint64
	active bool
	closed bool
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithQuietPeriod overrides the debounce quiet period.
func WithQuietPeriod(quiet time.Duration) EmitterOption {
	return func(e *Emitter) {
		if quiet > 0 {
			e.quiet = quiet
		}
	}
}

// WithEmitterMetrics sets the metrics collector.
func WithEmitterMetrics(metrics *observability.Metrics) EmitterOption {
	return func(e *Emitter) {
		e.metrics = metrics
	}
}

// NewEmitter creates an emitter for one room.
func NewEmitter(roomID string, sender Sender, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		roomID: roomID,
		sender: sender,
		quiet:  DefaultQuietPeriod,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Keystroke reports one input change. Empty content sends nothing; a
// pending stop signal, if any, still fires on schedule.
func (e *Emitter) Keystroke(content string) {
	if content == "" {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.active = true
	e.gen++
	gen := e.gen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.quiet, func() { e.quietElapsed(gen) })
	e.mu.Unlock()

	e.sender.Send(connection.EventStartTyping, e.roomID)
	if e.metrics != nil {
		e.metrics.TypingSignals.WithLabelValues("outbound", "start").Inc()
	}
}

// Flush sends the stop signal immediately and cancels the pending timer.
// Called when the composed message is actually sent.
func (e *Emitter) Flush() {
	e.emitStop()
}

// Close cancels the timer and, if the user was still marked as typing,
// sends a final stop signal. The emitter is unusable afterwards.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	wasActive := e.active
	e.active = false
	e.mu.Unlock()

	if wasActive {
		e.sendStop()
	}
}

// quietElapsed fires when a scheduled quiet period ends. Stop may miss a
// timer whose callback is already running, so a keystroke can reschedule
// while the old callback is blocked on the mutex; the generation check
// keeps that stale fire from emitting an early stop.
func (e *Emitter) quietElapsed(gen uint64) {
	e.mu.Lock()
	if e.closed || !e.active || gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.active = false
	e.timer = nil
	e.mu.Unlock()

	e.sendStop()
}

func (e *Emitter) emitStop() {
	e.mu.Lock()
	if e.closed || !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()

	e.sendStop()
}

func (e *Emitter) sendStop() {
	e.sender.Send(connection.EventStopTyping, e.roomID)
	if e.metrics != nil {
		e.metrics.TypingSignals.WithLabelValues("outbound", "stop").Inc()
	}
}
