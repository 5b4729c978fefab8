// Package connection maintains the realtime channel session: one
// websocket per authenticated user, carrying room joins, message pushes,
// and typing signals as JSON event frames.
package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/courier/internal/config"
	"github.com/haasonsaas/courier/internal/observability"
	"github.com/haasonsaas/courier/internal/retry"
)

const (
	writeWait       = 10 * time.Second
	maxPayloadBytes = 1 << 20
	sendBufferSize  = 64
)

// TokenSource supplies the current bearer credential. An empty string
// means no user is authenticated and the channel stays closed.
type TokenSource interface {
	Token() string
}

// Handler receives the data payload of a matching inbound frame.
// Handlers run on the read loop; they must not block.
type Handler func(data json.RawMessage)

// Subscription is a handle for one registered handler.
type Subscription struct {
	m     *Manager
	event string
	id    uint64
}

// Cancel removes the handler. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.m == nil {
		return
	}
	m := s.m
	s.m = nil

	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.handlers[s.event]
	for i, entry := range entries {
		if entry.id == s.id {
			// Copy on remove so a dispatch holding the old slice is
			// unaffected.
			entries = append(append([]handlerEntry(nil), entries[:i]...), entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(m.handlers, s.event)
	} else {
		m.handlers[s.event] = entries
	}
}

// handlerEntry pairs a handler with its subscription id. Entries are kept
// in registration order and invoked in that order on dispatch.
type handlerEntry struct {
	id uint64
	fn Handler
}

// Manager owns the channel session lifecycle. It dials when a credential
// is available, fans inbound frames out to subscribers, and transparently
// re-dials with backoff when the session drops. All methods are safe for
// concurrent use.
type Manager struct {
	url     string
	cfg     config.ConnectionConfig
	tokens  TokenSource
	log     *observability.Logger
	metrics *observability.Metrics
	dialer  *websocket.Dialer

	mu       sync.RWMutex
	sess     *channelSession
	handlers map[string][]handlerEntry
	nextSub  uint64
	running  bool
	cancel   context.CancelFunc
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *observability.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithDialer sets a custom websocket dialer.
func WithDialer(dialer *websocket.Dialer) ManagerOption {
	return func(m *Manager) {
		if dialer != nil {
			m.dialer = dialer
		}
	}
}

// NewManager creates a disconnected manager for the given channel URL.
func NewManager(url string, cfg config.ConnectionConfig, tokens TokenSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		url:      url,
		cfg:      cfg,
		tokens:   tokens,
		log:      observability.NopLogger(),
		handlers: make(map[string][]handlerEntry),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout(),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize opens the channel session. It is idempotent: a second call
// while a session is live is a no-op. When no credential is available it
// returns nil without connecting; callers re-invoke it after login.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	token := m.tokens.Token()
	if token == "" {
		m.log.Debug(ctx, "channel init skipped, no credential")
		return nil
	}

	sess, err := m.dial(ctx, token)
	if err != nil {
		if m.metrics != nil {
			m.metrics.ConnectCounter.WithLabelValues("failed").Inc()
		}
		return err
	}

	superviseCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.running {
		// Lost the race against a concurrent Initialize.
		m.mu.Unlock()
		cancel()
		sess.close()
		return nil
	}
	m.running = true
	m.sess = sess
	m.cancel = cancel
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ConnectCounter.WithLabelValues("connected").Inc()
	}
	m.log.Info(ctx, "channel connected", "url", m.url, "session_id", sess.id)

	go m.supervise(superviseCtx, sess)
	return nil
}

// Teardown closes the session and stops reconnection. Registered
// subscriptions survive and take effect again after the next Initialize.
func (m *Manager) Teardown() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	sess := m.sess
	m.sess = nil
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil {
		sess.close()
	}
	m.log.Info(context.Background(), "channel closed")
}

// Connected reports whether a session is currently live.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess != nil
}

// Send emits an event frame on the channel. Fire and forget: with no
// live session the event is counted as dropped and discarded, never
// queued for later.
func (m *Manager) Send(event string, payload any) {
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()

	if sess == nil {
		if m.metrics != nil {
			m.metrics.DroppedSends.Inc()
		}
		m.log.Debug(context.Background(), "channel send dropped, no session", "event", event)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		m.log.Warn(context.Background(), "channel send payload not encodable", "event", event, "error", err)
		return
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		m.log.Warn(context.Background(), "channel frame not encodable", "event", event, "error", err)
		return
	}

	select {
	case sess.send <- frame:
	default:
		if m.metrics != nil {
			m.metrics.DroppedSends.Inc()
		}
		m.log.Warn(context.Background(), "channel send dropped, buffer full", "event", event)
	}
}

// Subscribe registers a handler for an inbound event and returns its
// cancellation handle. Handlers for the same event fire in registration
// order.
func (m *Manager) Subscribe(event string, fn Handler) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.handlers[event] = append(m.handlers[event], handlerEntry{id: id, fn: fn})
	return &Subscription{m: m, event: event, id: id}
}

type channelSession struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func (s *channelSession) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (m *Manager) dial(ctx context.Context, token string) (*channelSession, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.dialer.DialContext(ctx, m.url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	if resp != nil {
		resp.Body.Close()
	}

	sess := &channelSession{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	go m.writeLoop(sess)
	go m.readLoop(sess)
	return sess, nil
}

func (m *Manager) readLoop(sess *channelSession) {
	defer close(sess.done)
	defer sess.conn.Close()

	sess.conn.SetReadLimit(maxPayloadBytes)
	_ = sess.conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait()))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait()))
	})

	for {
		messageType, data, err := sess.conn.ReadMessage()
		if err != nil {
			m.log.Debug(context.Background(), "channel read ended", "error", err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			m.log.Warn(context.Background(), "channel frame not decodable", "error", err)
			continue
		}
		if frame.Event == "" {
			continue
		}
		m.dispatch(frame)
	}
}

func (m *Manager) writeLoop(sess *channelSession) {
	ticker := time.NewTicker(m.cfg.PingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return
		case msg := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				sess.close()
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.close()
				return
			}
		}
	}
}

func (m *Manager) dispatch(frame Frame) {
	m.mu.RLock()
	entries := m.handlers[frame.Event]
	m.mu.RUnlock()

	for _, entry := range entries {
		entry.fn(frame.Data)
	}
}

// supervise watches the live session and re-dials when it drops. It exits
// on Teardown or when reconnection gives up.
func (m *Manager) supervise(ctx context.Context, sess *channelSession) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.done:
		}

		m.mu.Lock()
		if !m.running {
			m.mu.Unlock()
			return
		}
		m.sess = nil
		m.mu.Unlock()

		if !m.cfg.Reconnect.Enabled {
			m.log.Warn(ctx, "channel dropped, reconnect disabled")
			m.stop()
			return
		}

		m.log.Info(ctx, "channel dropped, reconnecting")
		rec := &Reconnector{Config: m.cfg.Reconnect, Logger: m.log, Metrics: m.metrics}

		var next *channelSession
		err := rec.Run(ctx, func(ctx context.Context) error {
			token := m.tokens.Token()
			if token == "" {
				return retry.Permanent(errNoCredential)
			}
			s, dialErr := m.dial(ctx, token)
			if dialErr != nil {
				return dialErr
			}
			next = s
			return nil
		})
		if err != nil {
			m.log.Error(ctx, "channel reconnect abandoned", "error", err)
			m.stop()
			return
		}

		m.mu.Lock()
		if !m.running {
			m.mu.Unlock()
			next.close()
			return
		}
		m.sess = next
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.ConnectCounter.WithLabelValues("connected").Inc()
		}
		m.log.Info(ctx, "channel reconnected", "session_id", next.id)
		sess = next
	}
}

func (m *Manager) stop() {
	m.mu.Lock()
	m.running = false
	m.sess = nil
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
