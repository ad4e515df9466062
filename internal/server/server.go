// Package server exposes the dispatcher and the host event handlers over
// HTTP so a browser-side shim can drive them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/justinas/alice"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"pinmark/internal/dispatch"
	"pinmark/internal/storage"
	"pinmark/internal/tabstate"
	"pinmark/internal/utils"
)

// DefaultListen is the default listen address.
const DefaultListen = "127.0.0.1:18900"

// RequestIDHeader carries the per-request id set by the server.
const RequestIDHeader = "X-Request-ID"

// Config holds server settings.
type Config struct {
	Listen         string
	AllowedOrigins []string
	Token          string // optional bearer token required on every route
	PIDPath        string // optional; written on Start and removed on Shutdown
}

// Deps are the core components the server drives.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Tabs       *tabstate.Controller
	Registry   *tabstate.Registry
	Board      *tabstate.Board
	Store      storage.Store
}

// Server is the HTTP front of the core.
type Server struct {
	cfg  Config
	deps Deps
	log  *logrus.Logger

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
}

// New creates a server. It does not listen until Start is called.
func New(cfg Config, deps Deps) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	return &Server{
		cfg:  cfg,
		deps: deps,
		log:  utils.GetLogger().Logrus(),
	}
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /message", s.handleMessage)
	mux.HandleFunc("POST /events/storage-changed", s.handleStorageChanged)
	mux.HandleFunc("POST /events/tab-activated", s.handleTabActivated)
	mux.HandleFunc("POST /events/tab-updated", s.handleTabUpdated)
	mux.HandleFunc("POST /events/tab-removed", s.handleTabRemoved)
	mux.HandleFunc("POST /events/window-focus-changed", s.handleWindowFocusChanged)
	mux.HandleFunc("GET /tabs/current", s.handleCurrentTab)
	mux.HandleFunc("GET /tabs/{id}/state", s.handleTabState)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	})

	return alice.New(s.requestID, s.logRequests, c.Handler, s.requireToken).Then(mux)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	if s.cfg.PIDPath != "" {
		if err := WritePIDFile(s.cfg.PIDPath); err != nil {
			_ = ln.Close()
			return err
		}
	}

	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Errorf("server stopped: %v", err)
		}
	}()
	utils.Infof("listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Listen
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if s.cfg.PIDPath != "" {
		RemovePIDFile(s.cfg.PIDPath)
	}
	return srv.Shutdown(ctx)
}

type ctxKey int

const requestIDKey ctxKey = iota

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"request_id": r.Context().Value(requestIDKey),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).Round(time.Microsecond).String(),
		}).Debug("request")
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.cfg.Token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Token {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
