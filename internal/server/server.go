// Package server assembles the HTTP surface: routes, the middleware
// chain, the idle monitor, and one graceful stop path shared by
// signals, the shutdown_server method, and idle timeout.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"

	"tandem/internal/agent"
	"tandem/internal/auth"
	"tandem/internal/config"
	"tandem/internal/confirm"
	"tandem/internal/handler"
	"tandem/internal/httputil"
	"tandem/internal/hub"
	"tandem/internal/middleware"
	"tandem/internal/service/session"
	"tandem/internal/turn"
)

// Deps are the assembled core components the server exposes over HTTP.
type Deps struct {
	Verifier    auth.TokenVerifier
	Hub         *hub.Hub
	Agents      *agent.Registry
	Coordinator *turn.Coordinator
	Broker      *confirm.Broker
	Sessions    *session.Service
	Logger      *slog.Logger
}

// Server wraps http.Server. Shutdown from any trigger runs the same
// sequence: open event streams are released immediately, in-flight RPC
// requests drain within the grace period.
type Server struct {
	httpSrv *http.Server
	handler http.Handler
	idle    *idleMonitor
	grace   time.Duration
	logger  *slog.Logger

	closing chan struct{}
	once    sync.Once
}

// New builds the handlers, routes, and middleware chain.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		grace:   cfg.ShutdownGrace,
		logger:  logger.With("component", "server"),
		closing: make(chan struct{}),
	}
	s.idle = newIdleMonitor(cfg.IdleTimeout, deps.Hub, s.logger)

	rpc := handler.NewRPCHandler(handler.RPCConfig{
		Agents:       deps.Agents,
		Coordinator:  deps.Coordinator,
		Broker:       deps.Broker,
		Hub:          deps.Hub,
		Sessions:     deps.Sessions,
		Shutdown:     s.TriggerShutdown,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
	})
	sse := handler.NewSSEHandler(handler.SSEConfig{
		Hub:           deps.Hub,
		Agents:        deps.Agents,
		Heartbeat:     cfg.Heartbeat,
		QueueCapacity: cfg.QueueCapacity,
		Closing:       s.closing,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /rpc", rpc.ServeGlobal)
	mux.HandleFunc("POST /agent/{agent_id}/rpc", rpc.ServeAgent)
	mux.HandleFunc("GET /agent/{agent_id}/events", sse.Stream)

	// Middleware wrap in reverse order. Request path:
	// CORS → Recovery → activity → connection limit → auth → routes.
	var h http.Handler = mux
	h = middleware.Auth(deps.Verifier, logger, "/health")(h)
	h = middleware.ConnLimit(cfg.MaxConns, logger)(h)
	h = s.touchActivity(h)
	h = middleware.Recovery(logger)(h)
	h = cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	}).Handler(h)

	s.handler = h
	s.httpSrv = &http.Server{
		Addr:    cfg.Addr(),
		Handler: h,
		// WriteTimeout stays zero so event streams can live for hours.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler, for tests driving the
// server through httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// TriggerShutdown starts the graceful stop exactly once. Safe from any
// goroutine.
func (s *Server) TriggerShutdown(reason string) {
	s.once.Do(func() {
		s.logger.Info("shutdown initiated", "reason", reason)
		close(s.closing)
	})
}

// Run serves until the context is cancelled, a shutdown trigger fires,
// or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-runCtx.Done():
			s.TriggerShutdown("signal")
		case <-s.closing:
		}
	}()
	go s.idle.run(runCtx, func() { s.TriggerShutdown("idle timeout") })

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()
	s.logger.Info("listening", "addr", s.httpSrv.Addr)

	select {
	case err := <-errCh:
		s.TriggerShutdown("listener error")
		return err
	case <-s.closing:
	}

	shutdownCtx, cancelGrace := context.WithTimeout(context.Background(), s.grace)
	defer cancelGrace()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown incomplete, forcing close", "error", err)
		s.httpSrv.Close()
	}
	<-errCh
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// touchActivity feeds the idle monitor. Every request counts, including
// ones rejected further down the chain.
func (s *Server) touchActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.idle.Touch()
		next.ServeHTTP(w, r)
		s.idle.Touch()
	})
}
