// Package ws serves the operator line protocol over a websocket, one text
// message per line. One operator is served at a time.
package ws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rover/internal/link"
	"rover/internal/logging"
	"rover/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	DefaultAddress = ":8081"
	DefaultPath    = "/ws"
)

// Server is a websocket operator link.
type Server struct {
	*link.Endpoint
	config   types.WebSocketLinkConfig
	upgrader websocket.Upgrader

	mu       sync.Mutex
	active   *websocket.Conn
	stopping bool
	server   *http.Server
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *logging.Logger
}

func NewServer(config types.WebSocketLinkConfig, ringSize int) *Server {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	return &Server{
		Endpoint: link.NewEndpoint("websocket", ringSize),
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// operator consoles are served from anywhere on the robot's network
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.GetLogger("websocket_link"),
	}
}

// Start serves config.Path until Stop or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to start websocket link: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handle)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Websocket server stopped", "error", err)
		}
	}()
	s.logger.Info("Websocket link started", "address", listener.Addr().String(), "path", s.config.Path)
	return nil
}

// URL returns the ws:// address of the link.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "ws://" + s.listener.Addr().String() + s.config.Path
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.cancel()
	s.mu.Lock()
	// no session joins wg once this is set
	s.stopping = true
	if s.active != nil {
		s.active.Close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// handle serves one operator session. Hijacked connections are not tracked by
// http.Server.Shutdown, so the session joins s.wg before the upgrade and
// leaves it only after both pumps have returned.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	switch {
	case s.stopping:
		s.mu.Unlock()
		http.Error(w, "ERR_NOT_CONNECTED", http.StatusServiceUnavailable)
		return
	case s.active != nil:
		s.mu.Unlock()
		http.Error(w, "ERR_BUSY", http.StatusConflict)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	s.mu.Lock()
	if s.active != nil || s.stopping {
		s.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "ERR_BUSY"), time.Now().Add(time.Second))
		conn.Close()
		return
	}
	s.active = conn
	s.mu.Unlock()

	session := s.Open()
	s.logger.Info("Operator accepted", "remote", r.RemoteAddr, "session", session)

	ctx, cancel := context.WithCancel(s.ctx)
	written := make(chan struct{})
	go func() {
		defer close(written)
		s.writePump(ctx, conn)
	}()
	cause := s.readPump(conn)
	cancel()
	<-written
	conn.Close()

	s.mu.Lock()
	s.Close(cause)
	s.active = nil
	s.mu.Unlock()
}

// readPump feeds each text message as a command line.
func (s *Server) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.ctx.Err() == nil {
				return err
			}
			return nil
		}
		s.Feed(message)
		if len(message) == 0 || (message[len(message)-1] != '\n' && message[len(message)-1] != '\r') {
			s.Feed([]byte{'\n'})
		}
	}
}

// writePump is the only writer of conn.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	buf := make([]byte, s.BufferSize())

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-s.Ready():
			for {
				n := s.Drain(buf)
				if n == 0 {
					break
				}
				if err := s.writeLines(conn, buf[:n]); err != nil {
					conn.Close()
					return
				}
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (s *Server) writeLines(conn *websocket.Conn, p []byte) error {
	for len(p) > 0 {
		line, rest, _ := bytes.Cut(p, []byte{'\n'})
		p = rest
		if len(line) == 0 {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return err
		}
	}
	return nil
}
