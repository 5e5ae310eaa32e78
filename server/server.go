package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-filerelay"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Backend is the part of the relay the HTTP surface depends on.
type Backend interface {
	Link(ctx context.Context, key string, expires time.Duration, stream bool) (*filerelay.AccessLink, error)
	HeadInfo(ctx context.Context, key string) (*filerelay.ObjectInfo, bool)
	Transfer(ctx context.Context, req filerelay.TransferRequest, sink filerelay.ProgressSink) (*filerelay.TransferResult, error)
}

type Server struct {
	backend    Backend
	registry   *filerelay.TransferRegistry
	gatherer   prometheus.Gatherer
	logger     filerelay.Logger
	cache      *expirable.LRU[string, filerelay.ObjectInfo]
	timeout    time.Duration
	playerBase string
	now        func() time.Time
}

type Option func(*Server)

func WithLogger(l filerelay.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRegistry(r *filerelay.TransferRegistry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithGatherer selects the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithInfoCache sizes the cache of object metadata lookups.
func WithInfoCache(size int, ttl time.Duration) Option {
	return func(s *Server) {
		if size > 0 {
			s.cache = expirable.NewLRU[string, filerelay.ObjectInfo](size, nil, ttl)
		}
	}
}

// WithPlayerBase sets the web player address used in transfer responses.
func WithPlayerBase(base string) Option {
	return func(s *Server) {
		s.playerBase = base
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(backend Backend, opts ...Option) *Server {
	s := &Server{
		backend:  backend,
		gatherer: prometheus.DefaultGatherer,
		logger:   &filerelay.DefaultLogger{},
		cache:    expirable.NewLRU[string, filerelay.ObjectInfo](512, nil, time.Minute),
		timeout:  60 * time.Second,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/health", s.health)
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/objects/*", s.objectInfo)
			r.Get("/links/*", s.link)
			r.Get("/transfers", s.transfers)
		})
	})

	// uploads run for as long as the body takes to arrive
	r.Post("/api/v1/transfers", s.createTransfer)

	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: s.now(),
	})
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	TextCode string `json:"text_code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error()}

	var gerr *gerrors.Error
	if errors.As(err, &gerr) {
		if gerr.Code != 0 {
			status = gerr.Code
		}
		resp.TextCode = gerr.TextCode
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", err)
	}

	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("error encoding response", err)
	}
}
