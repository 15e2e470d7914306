package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"rfid_session_go/internal/runner"
)

// Scanner is the reader loop the API controls.
type Scanner interface {
	Start(ctx context.Context) error
	Stop()
	Status() runner.Status
	StatusText() string
}

type Server struct {
	addr            string
	shutdownTimeout time.Duration
	scanner         Scanner
	hub             *Hub
	router          chi.Router
	http            *http.Server
	logger          zerolog.Logger

	mu   sync.Mutex
	base context.Context
}

func New(addr string, scanner Scanner, hub *Hub, logger zerolog.Logger) *Server {
	s := &Server{
		addr:            addr,
		shutdownTimeout: 5 * time.Second,
		scanner:         scanner,
		hub:             hub,
		router:          chi.NewRouter(),
		logger:          logger,
		base:            context.Background(),
	}
	s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		s.shutdownTimeout = d
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/stats", s.handleStats)
	s.router.Route("/scan", func(r chi.Router) {
		r.Post("/start", s.handleScanStart)
		r.Post("/stop", s.handleScanStop)
	})
	if s.hub != nil {
		s.router.Get("/events", s.hub.ServeWS)
	}
}

// Run serves until ctx ends. Scans started over HTTP live as long as ctx.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("http listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "tmrread",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s.scanner.StatusText() + "\n"))
		return
	}
	writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.scanner.Status()
	if st.Stats == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "no reader statistics yet"})
		return
	}
	payload := map[string]any{
		"ok":        true,
		"stats":     st.Stats,
		"cooldowns": st.Cooldowns,
	}
	if s.hub != nil {
		payload["ws_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleScanStart(w http.ResponseWriter, _ *http.Request) {
	if s.scanner.Status().Running {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "already_running": true, "status": s.scanner.Status()})
		return
	}
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()

	if err := s.scanner.Start(base); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	s.broadcastState("scan_started")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": s.scanner.Status()})
}

func (s *Server) handleScanStop(w http.ResponseWriter, _ *http.Request) {
	s.scanner.Stop()
	s.broadcastState("scan_stopped")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": s.scanner.Status()})
}

func (s *Server) broadcastState(kind string) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(Message{Type: kind, Data: s.scanner.Status()})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
