// Package api exposes the SalesPipe conversation engine over HTTP.
//
// Endpoints start sessions, accept prospect messages, end sessions and expose
// transcripts, thought logs, metrics and the public closing-link config.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Server timeouts. Turns wait on two model calls, so the write timeout is generous.
const (
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 90 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	maxBodyBytes           = 1 << 20
)

// SessionFlow is the conversation engine behind the session endpoints.
type SessionFlow interface {
	StartSession(ctx context.Context, preConviction int) (*models.CreateSessionResponse, error)
	ProcessTurn(ctx context.Context, sessionID, text string) (*models.TurnResult, error)
	EndSession(ctx context.Context, sessionID string, req models.EndSessionRequest) (*models.Session, error)
}

// Opts holds server configuration.
type Opts struct {
	Addr        string
	PaymentLink string
	BookingURL  string
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPaymentLink sets the payment link published by GET /api/config.
func WithPaymentLink(link string) Option {
	return func(o *Opts) { o.PaymentLink = link }
}

// WithBookingURL sets the free workshop booking link published by GET /api/config.
func WithBookingURL(url string) Option {
	return func(o *Opts) { o.BookingURL = url }
}

// Server serves the HTTP API.
type Server struct {
	flow SessionFlow
	st   store.Store
	opts Opts
	mux  *http.ServeMux
}

// NewServer creates a Server and registers its routes.
func NewServer(f SessionFlow, st store.Store, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{flow: f, st: st, opts: o, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.healthHandler)
	s.mux.HandleFunc("POST /api/sessions", s.createSessionHandler)
	s.mux.HandleFunc("GET /api/sessions", s.listSessionsHandler)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.getSessionHandler)
	s.mux.HandleFunc("POST /api/sessions/{id}/messages", s.sendMessageHandler)
	s.mux.HandleFunc("POST /api/sessions/{id}/end", s.endSessionHandler)
	s.mux.HandleFunc("GET /api/sessions/{id}/thoughts", s.thoughtsHandler)
	s.mux.HandleFunc("GET /api/metrics", s.metricsHandler)
	s.mux.HandleFunc("GET /api/config", s.configHandler)
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown failed", "error", err)
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("api request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
