// Package http exposes the runtime over HTTP: a JSON chat endpoint, REST
// endpoints registered by platforms, webhook input providers, health, metrics
// and a per-session event stream.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/provider"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultPort            = 5000
	DefaultShutdownTimeout = 5 * time.Second
	maxBodySize            = 1 << 20
)

// ErrUnknownEndpoint is returned when no REST handler is registered for a URI.
var ErrUnknownEndpoint = errors.New("no rest endpoint registered")

// JSONHandler serves a REST endpoint. The returned value is encoded as JSON;
// a nil value yields an empty 200 response.
type JSONHandler func(ctx context.Context, headers http.Header, params url.Values, body json.RawMessage) (any, error)

// WebhookProvider receives pushed requests whose content type it accepts.
type WebhookProvider interface {
	AcceptContentType(contentType string) bool
	HandleContent(ctx context.Context, contentType string, body []byte, headers http.Header) error
}

// Server is a chi based HTTP server. It is also an input provider: Run serves
// until ctx ends or Close is called.
type Server struct {
	port            int
	shutdownTimeout time.Duration
	logger          *slog.Logger
	metrics         http.Handler

	mu        sync.RWMutex
	endpoints map[string]JSONHandler
	webhooks  []WebhookProvider
	sink      provider.Sink
	srv       *http.Server
	addr      net.Addr
	ready     chan struct{}
	readyOnce sync.Once

	Streams *StreamManager
}

var _ provider.InputProvider = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithPort sets the listening port. Zero picks a free port.
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithShutdownTimeout bounds the graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// WithLogger configures the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler replaces the default Prometheus handler served on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a server listening on DefaultPort.
func New(opts ...Option) *Server {
	s := &Server{
		port:            DefaultPort,
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          logging.NewNop(),
		metrics:         promhttp.Handler(),
		endpoints:       make(map[string]JSONHandler),
		ready:           make(chan struct{}),
		Streams:         NewStreamManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements provider.InputProvider.
func (s *Server) Name() string { return "http" }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Addr blocks until the first Run has tried to listen and returns the bound
// address, nil when binding failed.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// RegisterRestEndpoint binds handler to uri for GET and POST requests.
// Registering the same uri twice replaces the previous handler.
func (s *Server) RegisterRestEndpoint(uri string, handler JSONHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", domain.ErrInvalidArgument)
	}
	if !strings.HasPrefix(uri, "/") {
		return fmt.Errorf("%w: rest endpoint uri must start with '/', got '%s'", domain.ErrInvalidArgument, uri)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.endpoints[uri]; exists {
		s.logger.Warn("Replacing rest endpoint", "uri", uri)
	}
	s.endpoints[uri] = handler
	return nil
}

// IsRestEndpoint reports whether a handler is registered for uri.
func (s *Server) IsRestEndpoint(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.endpoints[uri]
	return ok
}

// NotifyRestHandler calls the handler registered for uri.
func (s *Server) NotifyRestHandler(ctx context.Context, uri string, headers http.Header, params url.Values, body json.RawMessage) (any, error) {
	s.mu.RLock()
	h, ok := s.endpoints[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, uri)
	}
	return h(ctx, headers, params, body)
}

// RegisterWebhookProvider adds p to the providers notified of pushed requests.
func (s *Server) RegisterWebhookProvider(p WebhookProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.webhooks, p) {
		s.webhooks = append(s.webhooks, p)
	}
}

// UnregisterWebhookProvider removes p.
func (s *Server) UnregisterWebhookProvider(p WebhookProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks = slices.DeleteFunc(s.webhooks, func(w WebhookProvider) bool { return w == p })
}

// WebhookProviders returns the registered providers.
func (s *Server) WebhookProviders() []WebhookProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.webhooks)
}

// NotifyWebhookProviders hands the request to every provider accepting its content
// type and returns how many accepted it. Provider errors are logged.
func (s *Server) NotifyWebhookProviders(ctx context.Context, contentType string, body []byte, headers http.Header) int {
	n := 0
	for _, p := range s.WebhookProviders() {
		if !p.AcceptContentType(contentType) {
			continue
		}
		n++
		if err := p.HandleContent(ctx, contentType, body, headers); err != nil {
			s.logger.Warn("Webhook provider failed", "content_type", contentType, "err", err)
		}
	}
	return n
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics)
	r.Post("/chat", s.handleChat)
	r.Get("/events", s.handleEvents)
	r.HandleFunc("/*", s.dispatch)
	return r
}

// dispatch serves registered REST endpoints, then hands POSTs to webhook providers.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if s.IsRestEndpoint(r.URL.Path) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var raw json.RawMessage
		if len(body) > 0 {
			if !json.Valid(body) {
				http.Error(w, "Invalid JSON body", http.StatusBadRequest)
				return
			}
			raw = body
		}
		out, err := s.NotifyRestHandler(r.Context(), r.URL.Path, r.Header, r.URL.Query(), raw)
		if err != nil {
			s.logger.Error("Rest handler failed", "uri", r.URL.Path, "err", err)
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		if out == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	if r.Method == http.MethodPost {
		contentType := r.Header.Get("Content-Type")
		if s.NotifyWebhookProviders(r.Context(), contentType, body, r.Header) > 0 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		s.logger.Debug("No webhook provider accepts request", "content_type", contentType, "path", r.URL.Path)
	}
	http.NotFound(w, r)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// ChatResponse lists the bot replies to one message.
type ChatResponse struct {
	SessionID string   `json:"session_id"`
	Replies   []string `json:"replies"`
	State     string   `json:"state,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sink := s.currentSink()
	if sink == nil {
		http.Error(w, "Runtime not attached", http.StatusServiceUnavailable)
		return
	}
	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	replies, err := provider.Chat(r.Context(), sink, req.SessionID, req.Text)
	if err != nil {
		s.logger.Warn("Chat failed", "session_id", req.SessionID, "err", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	resp := ChatResponse{SessionID: req.SessionID, Replies: replies}
	if sess, err := sink.Session(r.Context(), req.SessionID); err == nil && sess.State() != nil {
		resp.State = sess.State().Name
	}
	if resp.Replies == nil {
		resp.Replies = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Run attaches the runtime and serves until ctx ends or Close is called.
func (s *Server) Run(ctx context.Context, sink provider.Sink) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		s.markReady()
		return fmt.Errorf("cannot bind port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.sink = sink
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	srv := s.srv
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.markReady()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

// Close stops the server gracefully.
func (s *Server) Close() error {
	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.mu.RLock()
	srv := s.srv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.Streams.CloseAll()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Attach sets the runtime used by /chat without starting a listener, for
// embedding Handler in another server.
func (s *Server) Attach(sink provider.Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Server) currentSink() provider.Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sink
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, provider.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownEndpoint), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "err", err)
	}
}
