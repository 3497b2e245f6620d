// Package server exposes the latest readings over HTTP and streams updates
// to WebSocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/groutine"
	"github.com/srg/blemon/internal/reading"
)

// Banner is the body of GET /.
const Banner = "blemon reading server"

// ErrorResponse is the body of non-2xx JSON responses.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Server publishes a reading.Store.
type Server struct {
	store    *reading.Store
	logger   *logrus.Logger
	hub      *hub
	upgrader websocket.Upgrader

	mu          sync.Mutex
	httpServer  *http.Server
	listener    net.Listener
	unsubscribe func()
}

// New creates a server for store. Nothing is served until Start.
func New(store *reading.Store, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		store:  store,
		logger: logger,
		hub:    newHub(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/data", s.handleData)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start listens on addr and serves in the background. It subscribes the
// WebSocket hub to the store.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.unsubscribe = s.store.Subscribe(s.hub.broadcast)

	srv := s.httpServer
	groutine.Go(context.Background(), "http-server", func(context.Context) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Reading server stopped")
		}
	})

	s.logger.WithField("addr", ln.Addr().String()).Info("Reading server listening")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests, closes WebSocket clients and waits for
// in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	unsubscribe := s.unsubscribe
	s.httpServer, s.listener, s.unsubscribe = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	unsubscribe()
	s.hub.closeAll()
	return srv.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Status: "Not found", Message: fmt.Sprintf("no route for %s", r.URL.Path)})
		return
	}
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Status: "Method not allowed", Message: r.Method})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, Banner)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Status: "Method not allowed", Message: r.Method})
		return
	}
	if !s.store.HasData() {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Status:  "Not found",
			Message: "Server is running, but no data has been received from the sensor yet.",
		})
		return
	}
	writeJSON(w, http.StatusOK, s.store)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	s.hub.add(conn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
