package listener

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/five82/unreadbell/internal/codec"
	"github.com/five82/unreadbell/internal/transport"
)

// ServePipe creates the FIFO at path when missing and reads frames from it
// until ctx is cancelled. The FIFO is opened read-write so it stays readable
// across relay restarts instead of hitting EOF when the last writer leaves.
func (l *Listener) ServePipe(ctx context.Context, path string) error {
	if path == "" {
		path = transport.DefaultPipePath
	}
	if err := ensureFIFO(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, fifoReadFlags, 0)
	if err != nil {
		return fmt.Errorf("open pipe %s: %w", path, err)
	}
	l.logger.Infow("Reading relay pipe", "path", path)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = f.Close()
		case <-done:
		}
	}()

	err = l.ReadFrames(ctx, f)
	_ = f.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// PipeStatus writes status lines to a FIFO or file through the pipe
// transport. A missing reader drops the line; the next line reopens.
type PipeStatus struct {
	Path   string
	Logger *zap.SugaredLogger

	dialer transport.PipeDialer
	mu     sync.Mutex
	ch     transport.Channel
}

// WriteStatus implements StatusWriter.
func (p *PipeStatus) WriteStatus(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		ch, err := p.dialer.Open(context.Background(), p.Path)
		if err != nil {
			p.debug("Status output unavailable", err)
			return
		}
		p.ch = ch
	}
	if err := p.ch.Send(codec.Frame(p.ch.Kind(), line)); err != nil {
		p.debug("Status write failed", err)
		_ = p.ch.Close()
		p.ch = nil
	}
}

// Close releases the output.
func (p *PipeStatus) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

func (p *PipeStatus) debug(msg string, err error) {
	if p.Logger != nil {
		p.Logger.Debugw(msg, "path", p.Path, "error", err)
	}
}
