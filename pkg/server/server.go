// Package server exposes the read-only snapshot surface of a running
// simulation: JSON and text views, a websocket stream, Prometheus metrics
// and the signal machine as a DOT graph.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/anggasct/junction/pkg/logging"
	"github.com/anggasct/junction/pkg/metrics"
	"github.com/anggasct/junction/pkg/scheduler"
	"github.com/anggasct/junction/pkg/signal"
	"github.com/anggasct/junction/visualization"
)

// DefaultBroadcastInterval is how often websocket clients are checked for a new snapshot
const DefaultBroadcastInterval = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotSource returns the latest published snapshot, or nil before the first tick
type SnapshotSource interface {
	Latest() *scheduler.Snapshot
}

// Option configures a Server
type Option func(*Server)

// WithAddress sets the listen address used by Run
func WithAddress(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithBroadcastInterval sets the websocket polling period
func WithBroadcastInterval(d time.Duration) Option {
	return func(s *Server) {
		s.interval = d
	}
}

// Server serves snapshots to any number of readers. It never touches the scheduler.
type Server struct {
	source   SnapshotSource
	addr     string
	interval time.Duration

	clients      map[*websocket.Conn]bool
	clientsMutex sync.Mutex
	lastSent     uint64
	sentAny      bool
}

// New creates a server reading from source
func New(source SnapshotSource, opts ...Option) *Server {
	s := &Server{
		source:   source,
		addr:     ":8080",
		interval: DefaultBroadcastInterval,
		clients:  make(map[*websocket.Conn]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWs)
	mux.HandleFunc("/debug/signal.dot", s.handleSignalDOT)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Run serves HTTP and streams snapshots until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).WithName("server")
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Snapshot server starting", "address", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.broadcast(gctx, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) latest(w http.ResponseWriter) *scheduler.Snapshot {
	snap := s.source.Latest()
	if snap == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
	}
	return snap
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.latest(w)
	if snap == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		logging.FromContext(r.Context()).Error(err, "Failed to encode snapshot")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.latest(w)
	if snap == nil {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(snap.Statistics()))
}

func (s *Server) handleSignalDOT(w http.ResponseWriter, r *http.Request) {
	def, err := signal.Definition()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	opts := visualization.DefaultDOTOptions()
	if snap := s.source.Latest(); snap != nil {
		opts.Highlight = signal.StateAllRed
		if snap.Light.Phase == signal.PhaseGreen {
			opts.Highlight = signal.GreenState(snap.Light.Direction)
		}
	}
	dot, err := visualization.NewDOTGenerator(def, opts).Generate()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(dot))
}

func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if snap := s.source.Latest(); snap != nil {
		conn.SetWriteDeadline(time.Now().Add(s.interval))
		if err := conn.WriteJSON(snap); err != nil {
			conn.Close()
			return
		}
	}

	s.clientsMutex.Lock()
	s.clients[conn] = true
	s.clientsMutex.Unlock()

	go s.handleClientMessages(conn)
}

// handleClientMessages drains client frames until the connection closes
func (s *Server) handleClientMessages(conn *websocket.Conn) {
	defer s.drop(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	if s.clients[conn] {
		delete(s.clients, conn)
		conn.Close()
	}
}

// Clients returns the number of connected websocket clients
func (s *Server) Clients() int {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	return len(s.clients)
}

func (s *Server) broadcast(ctx context.Context, logger logr.Logger) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.BroadcastLatest(logger)
		}
	}
}

// BroadcastLatest sends the latest snapshot to every client if its tick has
// not been sent yet. A client that cannot take the frame within one broadcast
// interval is dropped.
func (s *Server) BroadcastLatest(logger logr.Logger) {
	snap := s.source.Latest()
	if snap == nil {
		return
	}

	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()

	if len(s.clients) == 0 || (s.sentAny && snap.Tick == s.lastSent) {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		logger.Error(err, "Failed to marshal snapshot")
		return
	}
	deadline := time.Now().Add(s.interval)
	for conn := range s.clients {
		conn.SetWriteDeadline(deadline)
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.V(logging.VERBOSE).Info("Dropping websocket client", "error", err.Error())
			conn.Close()
			delete(s.clients, conn)
		}
	}
	s.lastSent, s.sentAny = snap.Tick, true
}

func (s *Server) closeClients() {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	for conn := range s.clients {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		delete(s.clients, conn)
	}
}
