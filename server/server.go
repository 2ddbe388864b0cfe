package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/profclems/catchhook/client"
	"github.com/profclems/catchhook/dashboard"
	"github.com/profclems/catchhook/protocol"
)

// DefaultMaxBodyBytes caps captured request bodies
const DefaultMaxBodyBytes = 2 << 20

// Config holds server configuration
type Config struct {
	Port        int    // Capture HTTP port
	DataDir     string // Directory holding requests.db
	MaxRequests int    // Retention limit, oldest requests are pruned beyond it
	// MaxBodyBytes caps webhook bodies; larger bodies get 413
	MaxBodyBytes int64
	RateLimit    int // Webhook requests per second per client IP (0 to disable)
	RateBurst    int // Burst capacity for rate limiting
	MetricsPort  int // Prometheus endpoint port (0 to disable)

	// Let's Encrypt: both must be set to serve HTTPS
	Domain   string
	TLSEmail string
	TLSPort  int
	CertDir  string

	// Dashboard mounts the browser dashboard on the capture port
	Dashboard    bool
	PollInterval time.Duration
}

// Server captures webhook requests and serves them back
type Server struct {
	config Config
	logger *slog.Logger
	store  *Store

	startedAt   time.Time
	rateLimiter *RateLimiter // nil if disabled
	registry    *prometheus.Registry
	metrics     *Metrics

	controller *client.Controller   // nil unless the dashboard is enabled
	dashboard  *dashboard.Dashboard // nil unless the dashboard is enabled
}

// NewServer opens the store and builds the server
func NewServer(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	store, err := OpenStore(cfg.DataDir, cfg.MaxRequests)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		logger:    logger,
		store:     store,
		startedAt: time.Now(),
		registry:  prometheus.NewRegistry(),
	}
	s.metrics = NewMetrics(s.registry)

	if count, err := store.Count(context.Background()); err == nil {
		s.metrics.Stored.Set(float64(count))
	}

	// Initialize rate limiter if enabled
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst == 0 {
			burst = cfg.RateLimit * 2 // Default burst to 2x the rate
		}
		s.rateLimiter = NewRateLimiter(float64(cfg.RateLimit), burst)
	}

	if cfg.Dashboard {
		s.dashboard = dashboard.New(dashboard.Config{Logger: logger})
		s.controller = client.NewController(store,
			client.WithInterval(cfg.PollInterval),
			client.WithLogger(logger),
			client.WithNotifier(client.MultiNotifier{client.LogNotifier{Logger: logger}, s.dashboard}),
			client.WithMetrics(client.NewMetrics(s.registry)),
		)
		s.dashboard.Bind(s.controller)
	}

	return s, nil
}

// Store returns the request store
func (s *Server) Store() *Store {
	return s.store
}

// Close releases the store
func (s *Server) Close() error {
	if s.dashboard != nil {
		s.dashboard.Close()
	}
	return s.store.Close()
}

// Start runs the server (blocking)
func (s *Server) Start(ctx context.Context) error {
	if s.rateLimiter != nil {
		// Background cleanup keeps stale buckets from accumulating
		go s.rateLimiter.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
	}

	if s.config.MetricsPort > 0 {
		go s.metrics.ServeMetrics(ctx, s.config.MetricsPort, s.registry, s.logger)
	}

	if s.controller != nil {
		go s.controller.Start(ctx)
	}

	if s.config.TLSEmail != "" && s.config.Domain != "" {
		return s.listenHTTPS(ctx)
	}
	return s.listenHTTP(ctx, s.Handler())
}

func (s *Server) listenHTTP(ctx context.Context, handler http.Handler) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("capture server listening", "addr", addr, "data", s.config.DataDir, "max_reqs", s.store.MaxRequests())

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("capture server: %w", err)
	}
	return nil
}

// Handler returns the capture router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/latest", s.handleLatest)
	r.Get("/req/{id}", s.handleRequest)

	r.Group(func(r chi.Router) {
		if s.rateLimiter != nil {
			r.Use(s.rateLimiter.Middleware(s.onRateLimited))
		}
		r.HandleFunc("/webhook", s.handleWebhook)
		r.HandleFunc("/webhook/*", s.handleWebhook)
	})

	if s.dashboard != nil {
		s.dashboard.RegisterHTTP(r)
	}

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.Rejected.WithLabelValues("too_large").Inc()
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.metrics.Rejected.WithLabelValues("read_error").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	req := &protocol.Request{
		ID:      s.store.NextID(),
		TsMs:    time.Now().UnixMilli(),
		Method:  r.Method,
		Path:    r.URL.RequestURI(),
		Headers: captureHeaders(r),
		Body:    body,
	}

	pruned, err := s.store.Insert(r.Context(), req)
	if err != nil {
		s.logger.Error("failed to store request", "id", req.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.metrics.observeCapture(req.Method, len(body), pruned)
	s.logger.Debug("captured request", "id", req.ID, "method", req.Method, "path", req.Path, "bytes", len(body))

	w.Header().Set("X-Catchhook-Id", strconv.FormatUint(req.ID, 10))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.Latest(r.Context())
	if err != nil {
		s.logger.Error("failed to load latest requests", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, protocol.LatestResponse{Count: len(items), Items: items})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	req, err := s.store.Get(r.Context(), id)
	if errors.Is(err, client.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to load request", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) onRateLimited(r *http.Request, key string) {
	s.metrics.Rejected.WithLabelValues("rate_limit").Inc()
	s.logger.Warn("rate limit exceeded", "client", key, "path", r.URL.Path)
}

// captureHeaders flattens the request headers into ordered pairs: host
// first, then the remaining names sorted, lowercased, one pair per value.
func captureHeaders(r *http.Request) []protocol.Header {
	headers := make([]protocol.Header, 0, len(r.Header)+1)
	if r.Host != "" {
		headers = append(headers, protocol.Header{Name: "host", Value: r.Host})
	}

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		lower := strings.ToLower(name)
		if lower == "host" {
			continue
		}
		for _, value := range r.Header[name] {
			headers = append(headers, protocol.Header{Name: lower, Value: value})
		}
	}
	return headers
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// extractClientIP extracts the IP from a remote address (removes port)
func extractClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
