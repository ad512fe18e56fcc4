package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// debugLog is a no-op until EnableDebugLogging is called
var debugLog = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime|log.Lmicroseconds)

// Server is the chat relay: it owns the session registry, the history
// buffer, and the HTTP surface (WebSocket endpoint, health, metrics,
// embedded client page).
type Server struct {
	config   ServerConfig
	sessions *SessionManager
	history  *History
	metrics  *Metrics
	registry *prometheus.Registry

	// fanoutMu serializes every history-mutating broadcast against the
	// join path's snapshot+register sequence. Without it, a message
	// appended after a joiner's snapshot but broadcast before the
	// joiner enters the fanout set is lost to that session (and the
	// mirror interleaving duplicates it).
	fanoutMu sync.Mutex

	listener   net.Listener
	httpServer *http.Server
	startTime  time.Time
	wg         sync.WaitGroup
}

// NewServer creates a new server instance
func NewServer(config ServerConfig) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := NewMetrics(registry)

	sessions := NewSessionManager(config.SendQueueSize)
	sessions.SetMetrics(metrics)

	s := &Server{
		config:    config,
		sessions:  sessions,
		history:   NewHistory(config.HistorySize),
		metrics:   metrics,
		registry:  registry,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.IndexHandler)
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{Handler: mux}
	return s
}

// EnableDebugLogging turns on verbose per-session logging
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.Ldate|log.Ltime|log.Lmicroseconds)
}

// Sessions exposes the session registry, used by tests and the health
// handler.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// History exposes the history buffer.
func (s *Server) History() *History {
	return s.history
}

// Start binds the listening socket and begins serving. A bind failure
// is returned to the caller; it is not retried.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("Chat relay listening on %s", addr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP serve error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server: no new connections, then all live
// sessions are closed.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.sessions.CloseAll()
	s.wg.Wait()
	return err
}
