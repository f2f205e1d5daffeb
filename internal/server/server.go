package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voiceask/internal/session"
)

// Controller is the session runner as seen by the control page.
type Controller interface {
	Trigger(ctx context.Context) error
	Snapshot() session.Snapshot
}

type Config struct {
	Bind              string
	Port              int
	ReadHeaderTimeout time.Duration
}

// Server is the local control page: a trigger button, a status line and an
// SSE stream of session snapshots. It is also a status.Reporter.
type Server struct {
	cfg     Config
	metrics http.Handler
	log     zerolog.Logger

	mu      sync.Mutex
	ctl     Controller
	base    context.Context
	clients map[chan []byte]struct{}
}

func New(cfg Config, metrics http.Handler, log zerolog.Logger) *Server {
	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 9000
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	return &Server{
		cfg:     cfg,
		metrics: metrics,
		log:     log.With().Str("component", "server").Logger(),
		base:    context.Background(),
		clients: make(map[chan []byte]struct{}),
	}
}

// Attach sets the runner the page controls. The runner reports back through
// Status and Trigger, so it is built after the server.
func (s *Server) Attach(ctl Controller) {
	s.mu.Lock()
	s.ctl = ctl
	s.mu.Unlock()
}

func (s *Server) Addr() string {
	return fmt.Sprintf("http://%s:%d", s.cfg.Bind, s.cfg.Port)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// UI
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/app.js", s.handleAppJS)

	// SSE stream
	mux.HandleFunc("/events", s.handleSSE)

	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/trigger", s.handleTrigger)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start serves until ctx is done. Sessions triggered from the page run
// under ctx.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	// shutdown
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	s.log.Info().Str("addr", srv.Addr).Msg("http server listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Status(string)        { s.publish() }
func (s *Server) Trigger(bool, string) { s.publish() }

func (s *Server) snapshot() (session.Snapshot, bool) {
	s.mu.Lock()
	ctl := s.ctl
	s.mu.Unlock()
	if ctl == nil {
		return session.Snapshot{}, false
	}
	return ctl.Snapshot(), true
}

func (s *Server) publish() {
	snap, ok := s.snapshot()
	if !ok {
		return
	}
	b, _ := json.Marshal(snap)

	s.mu.Lock()
	for ch := range s.clients {
		select {
		case ch <- b:
		default:
			// slow client: drop
		}
	}
	s.mu.Unlock()
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCh := make(chan []byte, 64)

	s.mu.Lock()
	s.clients[clientCh] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, clientCh)
		s.mu.Unlock()
	}()

	// current state first
	if snap, ok := s.snapshot(); ok {
		b, _ := json.Marshal(snap)
		fmt.Fprintf(w, "data: %s\n\n", b)
	}
	flusher.Flush()

	notify := r.Context().Done()
	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-notify:
			return
		case <-keepAlive.C:
			// comment line keeps connection alive
			fmt.Fprintf(w, ": ping %d\n\n", time.Now().Unix())
			flusher.Flush()
		case msg := <-clientCh:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot()
	if !ok {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	ctl, base := s.ctl, s.base
	s.mu.Unlock()
	if ctl == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	err := ctl.Trigger(base)
	switch {
	case errors.Is(err, session.ErrSessionActive):
		writeJSON(w, http.StatusConflict, ctl.Snapshot())
	case errors.Is(err, session.ErrRunnerClosed):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	case err != nil:
		s.log.Error().Err(err).Msg("trigger failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		s.log.Info().Str("remote", r.RemoteAddr).Msg("session triggered")
		writeJSON(w, http.StatusAccepted, ctl.Snapshot())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
