// Package session ties one active room view together: history load,
// channel subscriptions, the reconciled timeline, typing state in both
// directions, and advisory smart replies. A Session is created when a
// room view becomes active and closed with an explicit navigation
// intent when it goes away.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/courier/internal/config"
	"github.com/haasonsaas/courier/internal/connection"
	"github.com/haasonsaas/courier/internal/observability"
	"github.com/haasonsaas/courier/internal/presence"
	"github.com/haasonsaas/courier/internal/rooms"
	"github.com/haasonsaas/courier/internal/store"
	"github.com/haasonsaas/courier/internal/timeline"
	"github.com/haasonsaas/courier/pkg/models"
)

const smartReplyTimeout = 10 * time.Second

// Backend is the REST surface a room session needs.
type Backend interface {
	RoomMessages(ctx context.Context, roomID string) ([]models.Message, error)
	SendText(ctx context.Context, req models.SendMessageRequest) (*models.Message, error)
	SmartReplies(ctx context.Context, roomID string) ([]string, error)
}

// Channel is the realtime surface a room session needs.
// *connection.Manager satisfies it.
type Channel interface {
	Send(event string, payload any)
	Subscribe(event string, fn connection.Handler) *connection.Subscription
}

// Cache is the optional local history cache. *store.Store satisfies it.
type Cache interface {
	ReplaceHistory(roomID string, msgs []models.Message) error
	Append(msg models.Message) error
	History(roomID string) ([]models.Message, error)
}

// Notifier surfaces request failures to the user as transient
// notifications. Connectivity and advisory failures never reach it.
type Notifier interface {
	Notify(message string)
}

// Config assembles a room session's collaborators.
type Config struct {
	RoomID string
	Self   models.User

	Backend  Backend
	Channel  Channel
	Cache    Cache    // optional
	Notifier Notifier // optional

	Presence config.PresenceConfig

	// OnUpdate, when set, fires after any visible state change
	// (messages, typing set, suggestions). Called from multiple
	// goroutines; implementations must be safe for that.
	OnUpdate func()

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Session is one active room view.
type Session struct {
	cfg Config

	timeline *timeline.Timeline
	tracker  *presence.Tracker
	emitter  *presence.Emitter
	coord    *rooms.Coordinator

	mu          sync.Mutex
	active      bool
	suggestions []string
	suggestGen  uint64
	subs        []*connection.Subscription
}

// New creates a session for one room. Call Open to activate it.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	if cfg.Presence.SweepIntervalMs == 0 && cfg.Presence.StalenessMs == 0 {
		cfg.Presence = config.Default().Presence
	}

	s := &Session{cfg: cfg}

	s.timeline = timeline.New(cfg.RoomID, cfg.Self.ID,
		timeline.WithLogger(cfg.Logger),
		timeline.WithMetrics(cfg.Metrics),
		timeline.WithOnChange(s.onTimelineChange),
	)
	s.tracker = presence.NewTracker(presence.TrackerConfig{
		RoomID:        cfg.RoomID,
		SelfID:        cfg.Self.ID,
		Staleness:     cfg.Presence.Staleness(),
		SweepInterval: cfg.Presence.SweepInterval(),
		OnChange:      func([]string) { s.update() },
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
	})
	s.emitter = presence.NewEmitter(cfg.RoomID, cfg.Channel,
		presence.WithQuietPeriod(cfg.Presence.StopTypingQuiet()),
		presence.WithEmitterMetrics(cfg.Metrics),
	)
	s.coord = rooms.NewCoordinator(cfg.Channel, cfg.Logger)
	return s
}

// Open activates the session: announces the join, subscribes to the
// room's channel events, starts the presence sweep, and loads history.
// Cached history, when present, is served before the network fetch so
// the room renders immediately; the fetch then replaces it wholesale.
// A fetch failure is surfaced via the notifier and the cached view
// stays usable.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = true
	s.mu.Unlock()

	s.coord.AnnounceJoin(s.cfg.RoomID)
	s.subscribe()
	s.tracker.Start()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveRoomSessions.Inc()
	}

	if s.cfg.Cache != nil {
		cached, err := s.cfg.Cache.History(s.cfg.RoomID)
		switch {
		case err == nil:
			s.timeline.Load(cached)
		case !errors.Is(err, store.ErrNotCached):
			s.cfg.Logger.Warn(ctx, "history cache read failed", "room_id", s.cfg.RoomID, "error", err)
		}
	}

	history, err := s.cfg.Backend.RoomMessages(ctx, s.cfg.RoomID)
	if err != nil {
		s.cfg.Logger.Error(ctx, "history fetch failed", "room_id", s.cfg.RoomID, "error", err)
		s.notifyUser("Failed to load messages")
		return err
	}
	if !s.isActive() {
		// The view navigated away while the fetch was in flight.
		return nil
	}

	s.timeline.Load(history)
	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.ReplaceHistory(s.cfg.RoomID, history); err != nil {
			s.cfg.Logger.Warn(ctx, "history cache write failed", "room_id", s.cfg.RoomID, "error", err)
		}
	}
	return nil
}

// Close deactivates the session. The leave is announced only when nav
// truly departs the room; a remount of the same room tears down timers
// and subscriptions without announcing anything.
func (s *Session) Close(nav rooms.NavigationIntent) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	s.emitter.Close()
	s.tracker.Stop()
	for _, sub := range subs {
		sub.Cancel()
	}
	s.coord.AnnounceLeave(s.cfg.RoomID, nav)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveRoomSessions.Dec()
	}
}

// Send performs the full send path: the authenticated write, immediate
// local append of the canonical message, then the channel broadcast to
// peers. The pending stop-typing signal is flushed first.
func (s *Session) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	s.emitter.Flush()

	msg, err := s.cfg.Backend.SendText(ctx, models.SendMessageRequest{
		RoomID:  s.cfg.RoomID,
		Content: content,
	})
	if err != nil {
		s.cfg.Logger.Error(ctx, "send failed", "room_id", s.cfg.RoomID, "error", err)
		s.notifyUser("Failed to send message")
		return err
	}

	s.timeline.AppendLocal(*msg)
	if s.cfg.Cache != nil {
		if cacheErr := s.cfg.Cache.Append(*msg); cacheErr != nil {
			s.cfg.Logger.Warn(ctx, "message cache write failed", "error", cacheErr)
		}
	}

	raw, err := json.Marshal(msg)
	if err == nil {
		s.cfg.Channel.Send(connection.EventRoomMessage, connection.RoomMessagePayload{
			RoomID:  s.cfg.RoomID,
			Message: raw,
		})
	}
	return nil
}

// Keystroke reports an input change to the typing emission side.
func (s *Session) Keystroke(content string) {
	if !s.isActive() {
		return
	}
	s.emitter.Keystroke(content)
}

// Messages returns the reconciled message sequence.
func (s *Session) Messages() []models.Message {
	return s.timeline.Messages()
}

// IndicatorText returns the rendered typing indicator, or "".
func (s *Session) IndicatorText() string {
	return s.tracker.IndicatorText()
}

// Suggestions returns the current advisory quick replies.
func (s *Session) Suggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.suggestions...)
}

func (s *Session) subscribe() {
	onMessage := s.cfg.Channel.Subscribe(connection.EventRoomMessage, func(data json.RawMessage) {
		if !s.isActive() {
			return
		}
		var payload connection.RoomMessagePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			s.cfg.Logger.Warn(context.Background(), "message push not decodable", "error", err)
			return
		}
		var msg models.Message
		if err := json.Unmarshal(payload.Message, &msg); err != nil {
			s.cfg.Logger.Warn(context.Background(), "pushed message not decodable", "error", err)
			return
		}
		s.timeline.ApplyRemote(payload.RoomID, msg)
		if s.cfg.Cache != nil && payload.RoomID == s.cfg.RoomID {
			if err := s.cfg.Cache.Append(msg); err != nil {
				s.cfg.Logger.Warn(context.Background(), "message cache write failed", "error", err)
			}
		}
	})

	onTyping := s.cfg.Channel.Subscribe(connection.EventUserTyping, func(data json.RawMessage) {
		if !s.isActive() {
			return
		}
		var ev models.TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.tracker.Observe(ev)
	})

	onStopped := s.cfg.Channel.Subscribe(connection.EventUserStoppedTyping, func(data json.RawMessage) {
		if !s.isActive() {
			return
		}
		var ev models.TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.tracker.ObserveStop(ev)
	})

	s.mu.Lock()
	s.subs = append(s.subs, onMessage, onTyping, onStopped)
	s.mu.Unlock()
}

// onTimelineChange fires after every timeline mutation: the view is
// updated and a fresh advisory suggestion fetch is kicked off.
func (s *Session) onTimelineChange(int) {
	s.update()
	s.refreshSuggestions()
}

// refreshSuggestions fetches quick replies in the background. Failures
// are swallowed; a late result for a superseded fetch or an inactive
// session is discarded.
func (s *Session) refreshSuggestions() {
	if !s.isActive() {
		return
	}

	s.mu.Lock()
	s.suggestGen++
	gen := s.suggestGen
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), smartReplyTimeout)
		defer cancel()

		replies, err := s.cfg.Backend.SmartReplies(ctx, s.cfg.RoomID)
		if err != nil {
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.SmartReplyCounter.WithLabelValues("error").Inc()
			}
			s.cfg.Logger.Debug(ctx, "smart reply fetch failed", "room_id", s.cfg.RoomID, "error", err)
			return
		}

		s.mu.Lock()
		if !s.active || gen != s.suggestGen {
			s.mu.Unlock()
			return
		}
		s.suggestions = replies
		s.mu.Unlock()

		if s.cfg.Metrics != nil {
			s.cfg.Metrics.SmartReplyCounter.WithLabelValues("ok").Inc()
		}
		s.update()
	}()
}

func (s *Session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) update() {
	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate()
	}
}

func (s *Session) notifyUser(message string) {
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Notify(message)
	}
}
