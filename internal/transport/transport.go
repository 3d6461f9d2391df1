package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/five82/unreadbell/internal/codec"
)

// Kind names a concrete transport.
type Kind string

const (
	// KindWebsocket sends one websocket text message per frame.
	KindWebsocket Kind = "websocket"
	// KindPipe writes newline-delimited frames to a named pipe.
	KindPipe Kind = "pipe"
)

// ErrUnsupported is returned for unknown transport kinds.
var ErrUnsupported = errors.New("unsupported transport")

// ErrClosed is returned when sending on a closed channel.
var ErrClosed = errors.New("channel closed")

// Channel is an open outbound connection to the listener.
type Channel interface {
	// Kind reports how frames must be delimited for this channel.
	Kind() codec.FrameKind
	// Send writes one framed message.
	Send(frame []byte) error
	// OnClose registers fn for a remote close. It fires at most once.
	OnClose(fn func())
	// OnError registers fn for a transport error. An error is always
	// followed by a close.
	OnError(fn func(error))
	// Close releases the channel without firing OnClose or OnError.
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Open(ctx context.Context, addr string) (Channel, error)
}

// Prober checks reachability of an address before a dial.
type Prober interface {
	Probe(ctx context.Context, addr string) error
}

// New returns the dialer and prober for kind.
func New(kind Kind) (Dialer, Prober, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(string(kind)))) {
	case KindWebsocket, "":
		return &WebsocketDialer{}, &TCPProber{}, nil
	case KindPipe:
		return PipeDialer{}, PathProber{}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupported, kind)
	}
}

// notifier buffers close/error events that fire before handlers are
// registered, and guarantees each is delivered at most once.
type notifier struct {
	mu       sync.Mutex
	onClose  func()
	onError  func(error)
	err      error
	closed   bool
	silenced bool
	errDone  bool
	doneDone bool
}

func (n *notifier) setClose(fn func()) {
	n.mu.Lock()
	n.onClose = fn
	fire := n.closed && !n.doneDone && !n.silenced && fn != nil
	if fire {
		n.doneDone = true
	}
	n.mu.Unlock()
	if fire {
		fn()
	}
}

func (n *notifier) setError(fn func(error)) {
	n.mu.Lock()
	n.onError = fn
	fire := n.err != nil && !n.errDone && !n.silenced && fn != nil
	err := n.err
	if fire {
		n.errDone = true
	}
	n.mu.Unlock()
	if fire {
		fn(err)
	}
}

// fail records a transport error followed by a close.
func (n *notifier) fail(err error) {
	n.mu.Lock()
	if n.silenced || n.closed {
		n.mu.Unlock()
		return
	}
	n.err = err
	n.closed = true
	errFn, closeFn := n.onError, n.onClose
	if errFn != nil {
		n.errDone = true
	}
	if closeFn != nil {
		n.doneDone = true
	}
	n.mu.Unlock()

	if errFn != nil {
		errFn(err)
	}
	if closeFn != nil {
		closeFn()
	}
}

// close records a clean remote close.
func (n *notifier) close() {
	n.mu.Lock()
	if n.silenced || n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	closeFn := n.onClose
	if closeFn != nil {
		n.doneDone = true
	}
	n.mu.Unlock()

	if closeFn != nil {
		closeFn()
	}
}

// silence suppresses every later event; used for local closes.
func (n *notifier) silence() {
	n.mu.Lock()
	n.silenced = true
	n.mu.Unlock()
}
