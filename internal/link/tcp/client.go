package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"rover/internal/logging"
)

// ErrClosed is returned once the connection to the rover has ended.
var ErrClosed = errors.New("connection closed")

// Client is an operator-side connection to a TCP link.
type Client struct {
	address string
	timeout time.Duration
	conn    net.Conn
	lines   chan string
	done    chan struct{}
	writeMu sync.Mutex
	wg      sync.WaitGroup
	logger  *logging.Logger
}

func NewClient(address string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		address: address,
		timeout: timeout,
		lines:   make(chan string, 64),
		done:    make(chan struct{}),
		logger:  logging.GetLogger("tcp_client"),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("failed to connect to rover: %w", err)
	}
	c.conn = conn

	c.wg.Add(1)
	go c.receiveLines()

	c.logger.Debug("Connected to rover", "address", c.address)
	return nil
}

// Send writes one command line.
func (c *Client) Send(line string) error {
	if c.conn == nil {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to send %q: %w", line, err)
	}
	return nil
}

// Lines delivers every line the rover sends. It is closed when the
// connection ends.
func (c *Client) Lines() <-chan string {
	return c.lines
}

// Next waits for the next line.
func (c *Client) Next(ctx context.Context) (string, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", ErrClosed
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Request sends a line and waits for the first line that comes back.
func (c *Client) Request(ctx context.Context, line string) (string, error) {
	if err := c.Send(line); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.Next(ctx)
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	err := c.conn.Close()
	c.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) receiveLines() {
	defer c.wg.Done()
	defer close(c.lines)

	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		select {
		case c.lines <- scanner.Text():
		case <-c.done:
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("Receive error", "error", err)
	}
}
