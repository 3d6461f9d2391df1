package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/five82/unreadbell/internal/codec"
)

// DefaultPipePath is the well-known FIFO the listener reads from.
const DefaultPipePath = "/tmp/unread-bell-discord.pipe"

// PipeDialer opens a write-only named pipe. Opening does not create the path:
// the listener owns the FIFO, and a missing one is an open failure.
type PipeDialer struct {
	// WriteTimeout bounds each write to a FIFO whose reader stopped draining
	// it. Zero uses the websocket write wait.
	WriteTimeout time.Duration
}

// Open opens path for writing. On unix a FIFO without a reader fails
// immediately instead of blocking.
func (d PipeDialer) Open(ctx context.Context, path string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, pipeOpenFlags, 0)
	if err != nil {
		return nil, fmt.Errorf("open pipe %s: %w", path, err)
	}
	timeout := d.WriteTimeout
	if timeout <= 0 {
		timeout = writeWait
	}
	return &pipeChannel{file: f, writeTimeout: timeout}, nil
}

type pipeChannel struct {
	file         *os.File
	writeTimeout time.Duration
	events       notifier

	mu     sync.Mutex
	closed bool
}

func (c *pipeChannel) Kind() codec.FrameKind { return codec.FrameStream }

// Send writes one frame. A reader going away surfaces here as EPIPE, and a
// reader that stops draining a full FIFO as os.ErrDeadlineExceeded; the error
// is returned and also reported through OnError/OnClose.
func (c *pipeChannel) Send(frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// Regular files cannot take a deadline and never block.
	err := c.file.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err != nil && !errors.Is(err, os.ErrNoDeadline) {
		c.mu.Unlock()
		return fmt.Errorf("write pipe: %w", err)
	}
	_, err = c.file.Write(frame)
	if err != nil {
		c.closed = true
		_ = c.file.Close()
	}
	c.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("write pipe: %w", err)
		c.events.fail(err)
		return err
	}
	return nil
}

func (c *pipeChannel) OnClose(fn func())      { c.events.setClose(fn) }
func (c *pipeChannel) OnError(fn func(error)) { c.events.setError(fn) }

func (c *pipeChannel) Close() error {
	c.events.silence()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.file.Close()
}

// PathProber checks that the pipe path exists.
type PathProber struct{}

// Probe stats path.
func (PathProber) Probe(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("probe pipe %s: %w", path, err)
	}
	return nil
}
