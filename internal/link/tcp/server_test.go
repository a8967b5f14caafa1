package tcp

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/link"
	"rover/pkg/types"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(types.TCPLinkConfig{Address: "127.0.0.1"}, 256)
	s.config.Port = 0 // any free port
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func dial(t *testing.T, s *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn, bufio.NewReader(conn)
}

func TestServerCarriesLines(t *testing.T) {
	s := startServer(t)
	conn, r := dial(t, s)
	require.Eventually(t, func() bool { return s.Status() == link.StatusConnected }, time.Second, 5*time.Millisecond)

	_, err := conn.Write([]byte("F:50\r\n"))
	require.NoError(t, err)

	var got []byte
	p := make([]byte, 64)
	require.Eventually(t, func() bool {
		n, _ := s.Poll(p)
		got = append(got, p[:n]...)
		return string(got) == "F:50\r\n"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Send([]byte("OK_FORWARD")))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "OK_FORWARD\n", line)
}

func TestServerRejectsSecondOperator(t *testing.T) {
	s := startServer(t)
	_, _ = dial(t, s)
	require.Eventually(t, func() bool { return s.Status() == link.StatusConnected }, time.Second, 5*time.Millisecond)
	first := s.Session()

	_, r := dial(t, s)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERR_BUSY\n", line)
	assert.Equal(t, first, s.Session(), "first operator keeps the link")
}

func TestServerFreesLinkOnDisconnect(t *testing.T) {
	s := startServer(t)
	conn, _ := dial(t, s)
	require.Eventually(t, func() bool { return s.Status() == link.StatusConnected }, time.Second, 5*time.Millisecond)
	first := s.Session()
	conn.Close()
	require.Eventually(t, func() bool { return s.Status() == link.StatusDisconnected }, time.Second, 5*time.Millisecond)

	_, _ = dial(t, s)
	require.Eventually(t, func() bool { return s.Status() == link.StatusConnected }, time.Second, 5*time.Millisecond)
	assert.NotEqual(t, first, s.Session())
}
