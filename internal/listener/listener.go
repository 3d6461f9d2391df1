package listener

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/five82/unreadbell/internal/codec"
	"github.com/five82/unreadbell/internal/detector"
	"github.com/five82/unreadbell/internal/metrics"
	"github.com/five82/unreadbell/internal/snapshot"
	"github.com/five82/unreadbell/internal/state"
	"github.com/five82/unreadbell/internal/transport"
)

// DefaultBind is where relays connect by default.
const DefaultBind = "127.0.0.1:3631"

const maxFrameBytes = 4 << 20

// Options configure a Listener.
type Options struct {
	Store   *state.Store
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
	// Status, when set, receives a one-line summary after every good packet.
	Status StatusWriter
}

// StatusWriter publishes a summary line. Failures are the writer's concern.
type StatusWriter interface {
	WriteStatus(line string)
}

// Listener is the receiving end of the relay protocol. It accepts frames over
// websocket or a named pipe, decodes them and records the result in a Store.
type Listener struct {
	store   *state.Store
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	status  StatusWriter

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New builds a Listener. A nil Store gets a fresh one.
func New(opts Options) *Listener {
	store := opts.Store
	if store == nil {
		store = &state.Store{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Listener{
		store:   store,
		logger:  logger,
		metrics: opts.Metrics,
		status:  opts.Status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// Relays are local processes without a browser origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Store returns the store packets are recorded in.
func (l *Listener) Store() *state.Store { return l.store }

// Handle decodes one frame and records it. Undecodable frames are logged and
// counted but never fatal.
func (l *Listener) Handle(frame []byte) {
	packet, err := codec.DecodePacket(frame)
	if err != nil {
		l.metrics.Packet("invalid")
		l.store.Update(snapshot.Snapshot{}, false, err)
		l.logger.Warnw("Discarding undecodable frame", "error", err, "bytes", len(frame))
		return
	}

	l.metrics.Packet("ok")
	l.store.Update(packet.Payload, packet.Revive, nil)

	totals := packet.Payload.Totals()
	fields := []any{
		"revive", packet.Revive,
		"conversations", totals.Conversations,
		"messages", totals.Messages,
		"guilds", totals.Containers,
		"mentions", totals.Mentions,
	}
	if enc, err := codec.Encode(packet.Payload); err == nil {
		fields = append(fields, "fingerprint", detector.Fingerprint(enc))
	}
	l.logger.Infow("Update received", fields...)

	if l.status != nil {
		l.status.WriteStatus(FormatStatus(totals))
	}
}

// FormatStatus renders totals as a compact status-bar line.
func FormatStatus(t snapshot.Totals) string {
	return fmt.Sprintf("dm:%d msg:%d guild:%d @%d", t.Conversations, t.Messages, t.Containers, t.Mentions)
}

// ReadFrames handles newline-delimited frames from r until EOF, a read error
// or ctx is done. Blank lines are skipped.
func (l *Listener) ReadFrames(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		l.Handle(line)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read frames: %w", err)
	}
	return nil
}

// ServeHTTP upgrades relay connections. Plain requests are reachability
// checks and get 426 without being treated as errors.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		l.logger.Debugw("Non-upgrade request, treating as probe", "remote", r.RemoteAddr)
		w.Header().Set("Upgrade", "websocket")
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Debugw("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	l.serveConn(conn, r.RemoteAddr, r.Header.Get(transport.SessionHeader))
}

func (l *Listener) serveConn(conn *websocket.Conn, remote, session string) {
	conn.SetReadLimit(maxFrameBytes)
	l.track(conn, true)
	l.store.ClientConnected()
	l.logger.Infow("Relay connected", "remote", remote, "session", session)
	defer func() {
		l.track(conn, false)
		l.store.ClientDisconnected()
		_ = conn.Close()
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
				l.logger.Infow("Relay disconnected", "remote", remote, "session", session)
			} else {
				l.logger.Warnw("Relay connection lost", "remote", remote, "session", session, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		l.Handle(data)
	}
}

func (l *Listener) track(conn *websocket.Conn, add bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if add {
		l.conns[conn] = struct{}{}
	} else {
		delete(l.conns, conn)
	}
}

func (l *Listener) closeAll() {
	l.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "listener shutting down"), deadline)
		_ = c.Close()
	}
}

// ServeWebsocket listens on bind until ctx is cancelled.
func (l *Listener) ServeWebsocket(ctx context.Context, bind string) error {
	if bind == "" {
		bind = DefaultBind
	}
	srv := &http.Server{Addr: bind, Handler: l, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	l.logger.Infow("Listening for relays", "bind", bind)

	select {
	case <-ctx.Done():
		l.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", bind, err)
	}
}
