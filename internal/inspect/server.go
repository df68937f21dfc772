// Package inspect serves a read/write HTTP view of a live object registry:
// types, instances, properties and signals, plus a websocket event stream
// and prometheus metrics.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/internal/metrics"
	"github.com/conduit-lang/objrt/runtime/object"
)

// Config holds inspector server configuration
type Config struct {
	// Addr is the listen address (host:port)
	Addr string

	// JWTSecret enables bearer authentication when set
	JWTSecret string

	// AllowedOrigins enables CORS for browser clients from these origins
	AllowedOrigins []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default inspector configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:7070",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server is the inspector HTTP server
type Server struct {
	config    Config
	reg       *object.Registry
	tracker   *Tracker
	hub       *Hub
	collector *metrics.Collector
	logger    *zap.Logger

	router   chi.Router
	server   *http.Server
	detaches []func()
}

// New creates an inspector for reg and subscribes it to reg's events.
// Instances created before New are not listed.
func New(reg *object.Registry, config Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	collector, err := metrics.NewCollector()
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    config,
		reg:       reg,
		tracker:   NewTracker(),
		hub:       NewHub(context.Background(), logger),
		collector: collector,
		logger:    logger,
	}
	s.detaches = append(s.detaches,
		s.tracker.Attach(reg),
		collector.Attach(reg),
	)
	id := reg.Subscribe(s.hub)
	s.detaches = append(s.detaches, func() { reg.Unsubscribe(id) })

	s.hub.Start()
	s.router = s.routes()
	return s, nil
}

// Tracker returns the live instance index
func (s *Server) Tracker() *Tracker {
	return s.tracker
}

// Hub returns the event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors(s.config.AllowedOrigins))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "the requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("method %s is not allowed for this resource", r.Method))
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.collector.PrometheusRegistry(), promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if s.config.JWTSecret != "" {
			r.Use(NewAuthenticator(s.config.JWTSecret).Middleware)
		}

		r.Get("/types", s.listTypes)
		r.Get("/types/{name}", s.showType)

		r.Get("/instances", s.listInstances)
		r.Route("/instances/{id}", func(r chi.Router) {
			r.Get("/", s.showInstance)
			r.Get("/properties/{prop}", s.getProperty)
			r.Put("/properties/{prop}", s.setProperty)
			r.Post("/signals/{signal}", s.emitSignal)
		})

		r.Handle("/events", s.hub)
	})
	return r
}

// requestLogger logs every request at debug level
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspector listening", zap.String("addr", s.config.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close unsubscribes from the registry and disconnects event clients
func (s *Server) Close() {
	for _, detach := range s.detaches {
		detach()
	}
	s.detaches = nil
	s.hub.Shutdown()
}
