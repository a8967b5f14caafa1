// Package tcp serves the operator line protocol over TCP. One operator is
// served at a time; further connections are told ERR_BUSY and closed.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"rover/internal/link"
	"rover/internal/logging"
	"rover/pkg/types"
)

const (
	DefaultPort = 9000
	busyReply   = "ERR_BUSY\n"
)

// Server is a TCP operator link.
type Server struct {
	*link.Endpoint
	config types.TCPLinkConfig

	listener net.Listener
	mu       sync.Mutex
	active   net.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *logging.Logger
}

func NewServer(config types.TCPLinkConfig, ringSize int) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Server{
		Endpoint: link.NewEndpoint("tcp", ringSize),
		config:   config,
		logger:   logging.GetLogger("tcp_link"),
	}
}

// Start listens and serves operators until Stop or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	address := net.JoinHostPort(s.config.Address, fmt.Sprintf("%d", s.config.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start tcp link: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.acceptConnections()

	s.logger.Info("TCP link started", "address", listener.Addr().String())
	return nil
}

// Addr returns the bound address, useful when the port is 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	var err error
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	s.mu.Lock()
	if s.active != nil {
		s.active.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Accept error", "error", err)
			continue
		}

		s.mu.Lock()
		busy := s.active != nil
		if !busy {
			s.active = conn
		}
		s.mu.Unlock()

		if busy {
			s.logger.Warn("Rejecting second operator", "remote", conn.RemoteAddr().String())
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_, _ = io.WriteString(conn, busyReply)
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleClient(conn)
	}
}

func (s *Server) handleClient(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	session := s.Open()
	s.logger.Info("Operator accepted", "remote", conn.RemoteAddr().String(), "session", session)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		err := s.Pump(ctx, deadlineWriter{conn: conn, timeout: s.config.Timeout})
		if !errors.Is(err, context.Canceled) {
			// 写失败后关闭连接，让读循环退出
			conn.Close()
		}
		writeErr <- err
	}()

	var cause error
	buffer := make([]byte, 256)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			s.Feed(buffer[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && s.ctx.Err() == nil {
				cause = err
			}
			break
		}
	}
	cancel()
	if werr := <-writeErr; cause == nil && s.ctx.Err() == nil && !errors.Is(werr, context.Canceled) {
		cause = werr
	}

	// 结束会话与释放占用须原子完成，否则新连接可能被误判为忙
	s.mu.Lock()
	s.Close(cause)
	s.active = nil
	s.mu.Unlock()
}

// deadlineWriter bounds every write by the link timeout.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w deadlineWriter) Write(p []byte) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return 0, err
	}
	return w.conn.Write(p)
}
