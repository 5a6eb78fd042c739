// Package monitor serves the read-only diagnostics surface: Prometheus
// metrics, health probes and a websocket stream of the controller state.
// It accepts no commands.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config controls the listener and the stream rate.
type Config struct {
	ListenAddr     string
	StreamInterval time.Duration
}

// DefaultConfig binds to loopback only.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "127.0.0.1:9477",
		StreamInterval: 50 * time.Millisecond,
	}
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	streamer *Streamer
	mux      *http.ServeMux

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// New wires the routes. Nil handlers are left unrouted.
func New(cfg Config, streamer *Streamer, metrics, healthz, readyz http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = def.StreamInterval
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		streamer: streamer,
		mux:      http.NewServeMux(),
	}
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	if healthz != nil {
		s.mux.Handle("GET /healthz", healthz)
		s.mux.Handle("GET /healthz/{component}", healthz)
	}
	if readyz != nil {
		s.mux.Handle("GET /readyz", readyz)
	}
	if streamer != nil {
		s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := newClient(s.streamer, conn)
	s.streamer.register(c)
	s.logger.Debug("monitor client connected", "remote", r.RemoteAddr, "clients", s.streamer.Clients())

	go c.writePump()
	go c.readPump()
}

// Start listens and serves in the background until Shutdown. The stream
// runs until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("monitor listen %s: %w", s.cfg.ListenAddr, err)
	}

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	if s.streamer != nil {
		go s.streamer.Run(ctx, s.cfg.StreamInterval)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor server stopped", "error", err)
		}
	}()
	s.logger.Info("monitor listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown stops the listener and disconnects stream clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if s.streamer != nil {
		s.streamer.closeAll()
	}
	return srv.Shutdown(ctx)
}
