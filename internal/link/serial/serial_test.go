package serial

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/link"
	"rover/pkg/types"
)

func TestOptionsFromConfig(t *testing.T) {
	l := New(types.SerialLinkConfig{PortName: "/dev/rfcomm0", Parity: "E"}, 0)
	opts := l.options()
	assert.Equal(t, "/dev/rfcomm0", opts.PortName)
	assert.Equal(t, uint(9600), opts.BaudRate)
	assert.Equal(t, uint(8), opts.DataBits)
	assert.Equal(t, uint(1), opts.StopBits)
	assert.Equal(t, serial.PARITY_EVEN, opts.ParityMode)
}

func TestStartRequiresPort(t *testing.T) {
	l := New(types.SerialLinkConfig{}, 0)
	assert.Error(t, l.Start(context.Background()))
}

func TestLinkCarriesLines(t *testing.T) {
	device, peer := net.Pipe()
	defer peer.Close()

	l := New(types.SerialLinkConfig{PortName: "/dev/ttyTEST"}, 256)
	l.open = func(serial.OpenOptions) (io.ReadWriteCloser, error) { return device, nil }
	require.NoError(t, l.Start(context.Background()))
	require.Eventually(t, func() bool { return l.Status() == link.StatusConnected }, time.Second, 5*time.Millisecond)

	go func() { _, _ = peer.Write([]byte("PING\n")) }()

	var got []byte
	p := make([]byte, 64)
	require.Eventually(t, func() bool {
		n, _ := l.Poll(p)
		got = append(got, p[:n]...)
		return string(got) == "PING\n"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, l.Send([]byte("PONG")))
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	line, err := bufio.NewReader(peer).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", line)

	require.NoError(t, l.Stop())
	assert.Equal(t, link.StatusDisconnected, l.Status())
}

func TestLinkRetriesOpen(t *testing.T) {
	var attempts atomic.Int32
	l := New(types.SerialLinkConfig{PortName: "/dev/ttyMISSING", RetryInterval: 5 * time.Millisecond}, 0)
	l.open = func(serial.OpenOptions) (io.ReadWriteCloser, error) {
		attempts.Add(1)
		return nil, errors.New("no such device")
	}
	require.NoError(t, l.Start(context.Background()))
	assert.Eventually(t, func() bool { return attempts.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Error(t, l.LastError())
	assert.ErrorIs(t, l.Send([]byte("PONG")), link.ErrNotConnected)
	require.NoError(t, l.Stop())
}
