package listener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/five82/unreadbell/internal/codec"
	"github.com/five82/unreadbell/internal/snapshot"
	"github.com/five82/unreadbell/internal/state"
	"github.com/five82/unreadbell/internal/transport"
)

type recordStatus struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordStatus) WriteStatus(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func encodedPacket(t *testing.T, revive bool) string {
	t.Helper()
	snap := snapshot.NewBuilder().
		DirectMessage("u1", snapshot.DirectMessage{ChannelID: "c1", UnreadCount: 3}).
		Group("g1", snapshot.Group{UnreadCount: 2, Name: "Team"}).
		Container("x", snapshot.Container{UnreadCount: 1, MentionCount: 4, Name: "Guild"}).
		Build()
	text, err := codec.EncodePacket(codec.NewUpdate(snap, revive))
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	return text
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandle_RecordsPacketAndStatus(t *testing.T) {
	status := &recordStatus{}
	l := New(Options{Status: status})

	l.Handle([]byte(encodedPacket(t, true) + "\n"))

	v := l.Store().Snapshot()
	if !v.HasPacket || !v.Revive || v.Packets != 1 {
		t.Fatalf("view = %#v, want one revive packet", v)
	}
	if v.Unread.DirectMessages["u1"].UnreadCount != 3 {
		t.Fatalf("unread = %#v", v.Unread)
	}
	if len(status.lines) != 1 || status.lines[0] != "dm:2 msg:5 guild:1 @4" {
		t.Fatalf("status lines = %q", status.lines)
	}
}

func TestHandle_InvalidFrameIsRecordedNotFatal(t *testing.T) {
	status := &recordStatus{}
	store := &state.Store{}
	l := New(Options{Store: store, Status: status})

	l.Handle([]byte("%%% not base64"))

	v := store.Snapshot()
	if v.HasPacket || v.LastError == nil || v.ConsecutiveFailures != 1 {
		t.Fatalf("view = %#v, want recorded error without packet", v)
	}
	if len(status.lines) != 0 {
		t.Fatalf("invalid frame produced status lines %q", status.lines)
	}
}

func TestReadFrames_NewlineDelimited(t *testing.T) {
	l := New(Options{})
	input := encodedPacket(t, false) + "\n\n" + encodedPacket(t, true) + "\n"

	if err := l.ReadFrames(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("ReadFrames returned error: %v", err)
	}
	v := l.Store().Snapshot()
	if v.Packets != 2 || v.Resyncs != 1 {
		t.Fatalf("Packets/Resyncs = %d/%d, want 2/1", v.Packets, v.Resyncs)
	}
}

func TestServeHTTP_PlainRequestIsProbe(t *testing.T) {
	l := New(Options{})
	server := httptest.NewServer(l)
	t.Cleanup(server.Close)

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("status = %d, want 426", resp.StatusCode)
	}
	if v := l.Store().Snapshot(); v.LastError != nil || v.Clients != 0 {
		t.Fatalf("probe affected state: %#v", v)
	}
}

func TestServeHTTP_ReceivesFromWebsocketChannel(t *testing.T) {
	l := New(Options{})
	server := httptest.NewServer(l)
	t.Cleanup(server.Close)

	addr := "ws" + strings.TrimPrefix(server.URL, "http")
	ch, err := (&transport.WebsocketDialer{}).Open(context.Background(), addr)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitFor(t, "client registration", func() bool { return l.Store().Snapshot().Clients == 1 })

	if err := ch.Send(codec.Frame(ch.Kind(), encodedPacket(t, true))); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "packet", func() bool { return l.Store().Snapshot().Packets == 1 })

	_ = ch.Close()
	waitFor(t, "client removal", func() bool { return l.Store().Snapshot().Clients == 0 })
}

func TestServeHTTP_LogsRelaySession(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(Options{Logger: zap.New(core).Sugar()})
	server := httptest.NewServer(l)
	t.Cleanup(server.Close)

	addr := "ws" + strings.TrimPrefix(server.URL, "http")
	ch, err := (&transport.WebsocketDialer{}).Open(context.Background(), addr)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	session := ch.(interface{ Session() string }).Session()
	if session == "" {
		t.Fatal("websocket channel has no session id")
	}
	waitFor(t, "connect log", func() bool {
		return logs.FilterMessage("Relay connected").Len() == 1
	})
	entry := logs.FilterMessage("Relay connected").All()[0]
	if got := entry.ContextMap()["session"]; got != session {
		t.Fatalf("logged session = %v, want %q", got, session)
	}
}

func TestServeWebsocket_StopsOnCancel(t *testing.T) {
	l := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.ServeWebsocket(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ServeWebsocket returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ServeWebsocket did not stop")
	}
}

func TestServeConn_ClosesClientsOnShutdown(t *testing.T) {
	l := New(Options{})
	server := httptest.NewServer(l)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return l.Store().Snapshot().Clients == 1 })

	l.closeAll()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("ReadMessage error = %v, want going-away close", err)
	}
}

func TestPipeStatus_WritesLinesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	p := &PipeStatus{Path: path}
	p.WriteStatus("dm:1 msg:1 guild:0 @0")
	p.WriteStatus("dm:0 msg:0 guild:0 @0")
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "dm:1 msg:1 guild:0 @0\ndm:0 msg:0 guild:0 @0\n" {
		t.Fatalf("status file = %q", data)
	}
}

func TestPipeStatus_MissingOutputDrops(t *testing.T) {
	p := &PipeStatus{Path: filepath.Join(t.TempDir(), "missing")}
	p.WriteStatus("dm:1 msg:1 guild:0 @0")
	if p.ch != nil {
		t.Fatal("missing output should leave no channel")
	}
}

func TestFormatStatus(t *testing.T) {
	got := FormatStatus(snapshot.Totals{Conversations: 2, Messages: 9, Containers: 1, Mentions: 3})
	if got != "dm:2 msg:9 guild:1 @3" {
		t.Fatalf("FormatStatus = %q", got)
	}
}
