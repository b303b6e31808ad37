// Package api exposes SafeBirth's HTTP surface: the Twilio SMS webhook, a JSON
// simulator for development, health, the relay WebSocket endpoint and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/messaging"
	"github.com/BTreeMap/SafeBirth/internal/relay"
	"github.com/BTreeMap/SafeBirth/internal/twiliosms"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second

	// Mode values reported by the health endpoint.
	ModeRelay    = "relay"
	ModeTwilio   = "twilio"
	ModeWhatsApp = "whatsapp"

	PathIncoming  = "/api/sms/incoming"
	PathSimulate  = "/api/sms/simulate"
	PathWebhook   = "/api/sms/webhook"
	PathHealth    = "/api/sms/health"
	PathRelayWS   = "/ws/sms-gateway"
	PathMetrics   = "/metrics"
	readTimeout   = 15 * time.Second
	headerTimeout = 5 * time.Second
)

// MessageRouter turns an inbound message into a reply.
type MessageRouter interface {
	Route(ctx context.Context, from, body, messageID string) messaging.Result
}

var _ MessageRouter = (*messaging.Router)(nil)

// RelayHub is the relay endpoint and its state as seen by the API.
type RelayHub interface {
	http.Handler
	SessionCount() int
	Pending() []relay.PendingRequest
	StalePending(olderThan time.Duration) []relay.PendingRequest
}

var _ RelayHub = (*relay.Hub)(nil)

// Opts holds Server configuration.
type Opts struct {
	Addr              string
	Mode              string
	TwilioAuthToken   string
	TwilioWebhookURL  string
	StalePendingAfter time.Duration
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithMode sets the transport mode reported by the health endpoint.
func WithMode(mode string) Option {
	return func(o *Opts) {
		o.Mode = mode
	}
}

// WithTwilioSignature enables X-Twilio-Signature validation on the webhook. webhookURL
// must be the public URL Twilio posts to, exactly as configured in the console.
func WithTwilioSignature(authToken, webhookURL string) Option {
	return func(o *Opts) {
		o.TwilioAuthToken = authToken
		o.TwilioWebhookURL = webhookURL
	}
}

// WithStalePendingAfter sets the age at which unconfirmed relay sends count as stale.
func WithStalePendingAfter(d time.Duration) Option {
	return func(o *Opts) {
		o.StalePendingAfter = d
	}
}

// Server serves the HTTP API.
type Server struct {
	opts      Opts
	router    MessageRouter
	hub       RelayHub
	signature *twiliosms.Validator
	validate  *validator.Validate
	now       func() time.Time
	mux       chi.Router
}

// NewServer creates a Server. hub may be nil when the relay endpoint is disabled.
func NewServer(router MessageRouter, hub RelayHub, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, Mode: ModeRelay, StalePendingAfter: 10 * time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		opts:     cfg,
		router:   router,
		hub:      hub,
		validate: validator.New(),
		now:      time.Now,
	}
	if cfg.TwilioAuthToken != "" && cfg.TwilioWebhookURL != "" {
		s.signature = twiliosms.NewValidator(cfg.TwilioAuthToken)
		slog.Info("NewServer: Twilio signature validation enabled", "url", cfg.TwilioWebhookURL)
	}
	s.mux = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Post(PathIncoming, s.incomingHandler)
	r.Post(PathSimulate, s.simulateHandler)
	r.Post(PathWebhook, s.webhookHandler)
	r.Get(PathHealth, s.healthHandler)
	if s.hub != nil {
		r.Get(PathRelayWS, s.hub.ServeHTTP)
	}
	r.Handle(PathMetrics, promhttp.Handler())
	return r
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.mux,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: headerTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.ListenAndServe: listening", "addr", s.opts.Addr, "mode", s.opts.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.ListenAndServe: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}
