// Package relay implements the WebSocket protocol spoken with SMS relay devices.
//
// A relay is a phone running a gateway app: it forwards the SMS it receives as
// incoming_sms, sends the SMS the server asks for in send_sms, and confirms them
// with sms_sent. Several relays may be connected at once; outbound requests are
// fanned out to all of them.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/util"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrNoSession is returned when an outbound message cannot be handed to any relay.
// It matches models.ErrNoTransport under errors.Is.
var ErrNoSession = fmt.Errorf("no relay session connected: %w", models.ErrNoTransport)

// Default timings.
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultPongWait     = 60 * time.Second
	// DefaultMaxMessageSize bounds a single inbound frame.
	DefaultMaxMessageSize = 64 * 1024
)

// InboundHandler produces the reply for an SMS forwarded by a relay. messageID is
// empty when the relay did not report a receive timestamp. An empty reply sends nothing.
type InboundHandler func(ctx context.Context, sender, message, messageID string) string

// PendingRequest is a send_sms still waiting for its sms_sent confirmation.
type PendingRequest struct {
	RequestID  string    `json:"request_id"`
	Recipients []string  `json:"recipients"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// Opts holds Hub configuration.
type Opts struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongWait     time.Duration
	CheckOrigin  func(r *http.Request) bool
	Now          func() time.Time
}

// Option configures a Hub.
type Option func(*Opts)

// WithWriteTimeout bounds each write to a relay session.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.WriteTimeout = d
	}
}

// WithKeepalive sets the ping interval and the read deadline extended by each pong.
func WithKeepalive(pingInterval, pongWait time.Duration) Option {
	return func(o *Opts) {
		o.PingInterval = pingInterval
		o.PongWait = pongWait
	}
}

// WithCheckOrigin overrides the WebSocket origin check. By default any origin is
// accepted since relays are native apps rather than browsers.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(o *Opts) {
		o.CheckOrigin = fn
	}
}

// WithClock overrides the clock used for pending request timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Hub tracks connected relay sessions and in-flight send requests.
type Hub struct {
	opts     Opts
	handler  InboundHandler
	upgrader websocket.Upgrader
	validate *validator.Validate

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool

	pendingMu sync.Mutex
	pending   map[string]PendingRequest

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a Hub that passes forwarded SMS to handler.
func NewHub(handler InboundHandler, opts ...Option) *Hub {
	cfg := Opts{
		WriteTimeout: DefaultWriteTimeout,
		PingInterval: DefaultPingInterval,
		PongWait:     DefaultPongWait,
		CheckOrigin:  func(*http.Request) bool { return true },
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		opts:     cfg,
		handler:  handler,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: cfg.CheckOrigin},
		validate: validator.New(),
		sessions: make(map[string]*session),
		pending:  make(map[string]PendingRequest),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func newRequestID() string {
	return "WS-" + uuid.NewString()[:8]
}

// ServeHTTP upgrades the request and serves the session until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "relay hub is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Hub.ServeHTTP: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s := newSession(uuid.NewString(), conn, r.RemoteAddr, h.opts.Now())
	if !h.register(s) {
		s.close()
		return
	}
	defer h.wg.Done()
	defer h.unregister(s)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.keepalive(s)
	}()
	h.readLoop(s)
}

func (h *Hub) register(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.id] = s
	// Held until ServeHTTP returns so Close waits for the read loop.
	h.wg.Add(1)
	sessionsGauge.Set(float64(len(h.sessions)))
	slog.Info("Hub.register: relay connected", "session", s.id, "remote", s.remoteAddr, "sessions", len(h.sessions))
	return true
}

func (h *Hub) unregister(s *session) {
	s.close()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	delete(h.sessions, s.id)
	sessionsGauge.Set(float64(len(h.sessions)))
	slog.Info("Hub.unregister: relay disconnected", "session", s.id, "connected_for", time.Since(s.connectedAt).Round(time.Second), "sessions", len(h.sessions))
}

func (h *Hub) keepalive(s *session) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.ping(h.opts.WriteTimeout); err != nil {
				slog.Warn("Hub.keepalive: ping failed, closing session", "session", s.id, "error", err)
				s.close()
				return
			}
		}
	}
}

func (h *Hub) readLoop(s *session) {
	s.conn.SetReadLimit(DefaultMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("Hub.readLoop: connection lost", "session", s.id, "error", err)
			} else {
				slog.Debug("Hub.readLoop: connection closed", "session", s.id, "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		h.dispatch(s, data)
	}
}

// dispatch decodes one frame. Invalid frames are logged and dropped; the session stays open.
func (h *Hub) dispatch(s *session, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		messagesReceivedCounter.WithLabelValues("malformed").Inc()
		slog.Warn("Hub.dispatch: malformed message dropped", "session", s.id, "error", err, "payload", truncate(string(data)))
		return
	}
	if err := h.validate.StructCtx(h.ctx, env); err != nil {
		messagesReceivedCounter.WithLabelValues("malformed").Inc()
		slog.Warn("Hub.dispatch: message without type dropped", "session", s.id, "payload", truncate(string(data)))
		return
	}

	switch env.Type {
	case TypeIncomingSMS:
		var msg IncomingSMS
		if !h.decode(s, data, &msg) {
			return
		}
		messagesReceivedCounter.WithLabelValues(TypeIncomingSMS).Inc()
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handleIncoming(s, msg)
		}()
	case TypeSMSSent:
		var msg SMSSent
		if !h.decode(s, data, &msg) {
			return
		}
		messagesReceivedCounter.WithLabelValues(TypeSMSSent).Inc()
		h.confirm(msg)
	case TypePing:
		messagesReceivedCounter.WithLabelValues(TypePing).Inc()
		if err := s.writeJSON(Pong{Type: TypePong}, h.opts.WriteTimeout); err != nil {
			slog.Warn("Hub.dispatch: failed to send pong", "session", s.id, "error", err)
		}
	default:
		messagesReceivedCounter.WithLabelValues("unknown").Inc()
		slog.Warn("Hub.dispatch: unknown message type ignored", "session", s.id, "type", env.Type)
	}
}

func (h *Hub) decode(s *session, data []byte, v interface{}) bool {
	if err := json.Unmarshal(data, v); err != nil {
		messagesReceivedCounter.WithLabelValues("malformed").Inc()
		slog.Warn("Hub.decode: malformed message dropped", "session", s.id, "error", err)
		return false
	}
	if err := h.validate.StructCtx(h.ctx, v); err != nil {
		messagesReceivedCounter.WithLabelValues("malformed").Inc()
		slog.Warn("Hub.decode: invalid message dropped", "session", s.id, "error", err)
		return false
	}
	return true
}

func (h *Hub) handleIncoming(s *session, msg IncomingSMS) {
	slog.Info("Hub.handleIncoming: SMS received", "session", s.id, "from", util.MaskPhone(msg.Sender), "length", len(msg.Message))
	reply := h.handler(h.ctx, msg.Sender, msg.Message, msg.MessageID())
	if reply == "" {
		return
	}
	if !s.isOpen() {
		slog.Warn("Hub.handleIncoming: session closed before reply", "session", s.id, "to", util.MaskPhone(msg.Sender))
		return
	}

	cmd := SendSMS{Type: TypeSendSMS, RequestID: newRequestID(), Recipients: []string{msg.Sender}, Message: reply}
	h.addPending(cmd)
	if err := s.writeJSON(cmd, h.opts.WriteTimeout); err != nil {
		slog.Error("Hub.handleIncoming: failed to send reply, closing session", "session", s.id, "request_id", cmd.RequestID, "error", err)
		s.close()
		return
	}
	slog.Info("Hub.handleIncoming: reply sent", "session", s.id, "request_id", cmd.RequestID, "to", util.MaskPhone(msg.Sender))
}

func (h *Hub) confirm(msg SMSSent) {
	status := msg.EffectiveStatus()
	confirmationsCounter.WithLabelValues(status).Inc()

	h.pendingMu.Lock()
	_, known := h.pending[msg.RequestID]
	delete(h.pending, msg.RequestID)
	pendingGauge.Set(float64(len(h.pending)))
	h.pendingMu.Unlock()

	if !known {
		slog.Debug("Hub.confirm: confirmation for unknown request", "request_id", msg.RequestID, "status", status)
		return
	}
	if status == StatusSuccess {
		slog.Info("Hub.confirm: delivery confirmed", "request_id", msg.RequestID, "success_count", msg.SuccessCount)
		return
	}
	slog.Warn("Hub.confirm: delivery not fully successful", "request_id", msg.RequestID, "status", status,
		"success_count", msg.SuccessCount, "failure_count", msg.FailureCount)
}

func (h *Hub) addPending(cmd SendSMS) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	h.pending[cmd.RequestID] = PendingRequest{
		RequestID:  cmd.RequestID,
		Recipients: append([]string(nil), cmd.Recipients...),
		Message:    cmd.Message,
		CreatedAt:  h.opts.Now(),
	}
	pendingGauge.Set(float64(len(h.pending)))
}

func (h *Hub) snapshot() []*session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.isOpen() {
			out = append(out, s)
		}
	}
	return out
}

// reserve returns the open sessions and adds one writer per session to wg, under
// the same lock Close uses to mark the hub closed. A closed hub reserves nothing.
func (h *Hub) reserve() []*session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	out := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.isOpen() {
			out = append(out, s)
		}
	}
	h.wg.Add(len(out))
	return out
}

// Send asks every connected relay to deliver message to recipients. It returns
// immediately with the request id, or ("", false) when no relay is connected, in
// which case nothing is recorded.
func (h *Hub) Send(recipients []string, message string) (string, bool) {
	sessions := h.reserve()
	if len(sessions) == 0 {
		sendRequestsCounter.WithLabelValues("no_session").Inc()
		slog.Warn("Hub.Send: no relay connected", "recipients", len(recipients))
		return "", false
	}

	cmd := SendSMS{Type: TypeSendSMS, RequestID: newRequestID(), Recipients: append([]string(nil), recipients...), Message: message}
	h.addPending(cmd)
	for _, s := range sessions {
		s := s
		go func() {
			defer h.wg.Done()
			if err := s.writeJSON(cmd, h.opts.WriteTimeout); err != nil {
				slog.Error("Hub.Send: write failed, closing session", "session", s.id, "request_id", cmd.RequestID, "error", err)
				s.close()
			}
		}()
	}
	sendRequestsCounter.WithLabelValues("dispatched").Inc()
	slog.Info("Hub.Send: send request dispatched", "request_id", cmd.RequestID, "recipients", len(recipients), "sessions", len(sessions))
	return cmd.RequestID, true
}

// Pending returns the unconfirmed send requests, oldest first.
func (h *Hub) Pending() []PendingRequest {
	return h.pendingOlderThan(time.Time{})
}

// StalePending returns unconfirmed requests created more than olderThan ago.
// They are reported only, never resent or dropped.
func (h *Hub) StalePending(olderThan time.Duration) []PendingRequest {
	out := h.pendingOlderThan(h.opts.Now().Add(-olderThan))
	stalePendingGauge.Set(float64(len(out)))
	return out
}

func (h *Hub) pendingOlderThan(cutoff time.Time) []PendingRequest {
	h.pendingMu.Lock()
	out := make([]PendingRequest, 0, len(h.pending))
	for _, p := range h.pending {
		if cutoff.IsZero() || p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	h.pendingMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SessionCount returns the number of open relay sessions.
func (h *Hub) SessionCount() int {
	return len(h.snapshot())
}

// Close disconnects every relay and stops accepting new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	h.cancel()
	for _, s := range sessions {
		s.close()
	}
	h.wg.Wait()
	slog.Info("Hub.Close: relay hub stopped", "sessions_closed", len(sessions))
}

func truncate(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:197] + "..."
}
