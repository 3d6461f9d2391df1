package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/five82/unreadbell/internal/codec"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 5 * time.Second
	probeTimeout     = 2 * time.Second
	maxInboundSize   = 4096

	// SessionHeader carries a per-connection id so listener logs can be
	// correlated with relay logs.
	SessionHeader = "X-Unreadbell-Session"
)

// WebsocketDialer opens websocket channels.
type WebsocketDialer struct {
	// Dialer overrides the gorilla dialer; nil uses a default with a
	// handshake timeout.
	Dialer *websocket.Dialer
}

// Open dials addr (ws:// or wss://) and starts watching for a remote close.
func (d *WebsocketDialer) Open(ctx context.Context, addr string) (Channel, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}
	session := uuid.NewString()
	header := http.Header{}
	header.Set(SessionHeader, session)

	conn, resp, err := dialer.DialContext(ctx, addr, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	ch := &wsChannel{conn: conn, session: session}
	go ch.readPump()
	return ch, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	session string
	events  notifier

	mu     sync.Mutex // serializes writes
	closed bool
}

func (c *wsChannel) Kind() codec.FrameKind { return codec.FrameMessage }

// Session returns the id sent in the handshake.
func (c *wsChannel) Session() string { return c.session }

func (c *wsChannel) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *wsChannel) OnClose(fn func())      { c.events.setClose(fn) }
func (c *wsChannel) OnError(fn func(error)) { c.events.setError(fn) }

func (c *wsChannel) Close() error {
	c.events.silence()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.conn.Close()
}

// readPump drains inbound frames; the listener never sends data, so this only
// exists to observe closes and errors.
func (c *wsChannel) readPump() {
	c.conn.SetReadLimit(maxInboundSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.events.close()
			} else {
				c.events.fail(err)
			}
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			_ = c.conn.Close()
			return
		}
	}
}

// TCPProber checks that the host:port behind a websocket URL accepts TCP.
type TCPProber struct {
	Timeout time.Duration
}

// Probe dials and immediately closes a TCP connection.
func (p *TCPProber) Probe(ctx context.Context, addr string) error {
	hostport, err := hostPort(addr)
	if err != nil {
		return err
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = probeTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return fmt.Errorf("probe %s: %w", hostport, err)
	}
	return conn.Close()
}

func hostPort(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", addr, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("address %q has no host", addr)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	switch u.Scheme {
	case "wss", "https":
		return net.JoinHostPort(u.Hostname(), "443"), nil
	default:
		return net.JoinHostPort(u.Hostname(), "80"), nil
	}
}
