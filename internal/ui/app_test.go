package ui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/unreadbell/internal/prefs"
	"github.com/five82/unreadbell/internal/snapshot"
	"github.com/five82/unreadbell/internal/state"
)

func sampleSnapshot() snapshot.Snapshot {
	return snapshot.NewBuilder().
		DirectMessage("u1", snapshot.DirectMessage{ChannelID: "c1", UnreadCount: 2, DisplayName: "alice"}).
		DirectMessage("u2", snapshot.DirectMessage{ChannelID: "c2", UnreadCount: 7, DisplayName: "bob"}).
		Group("g1", snapshot.Group{UnreadCount: 1, Members: []snapshot.User{{ID: "1", Username: "carol"}, {ID: "2", Username: "dave"}}}).
		Container("s1", snapshot.Container{UnreadCount: 3, MentionCount: 1, Name: "gophers"}).
		Build()
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLinkStatus(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		view state.View
		want string
	}{
		{"no packet", state.View{}, statusWaiting},
		{"fresh", state.View{HasPacket: true, LastUpdated: now}, statusLive},
		{"resync", state.View{HasPacket: true, Revive: true, LastUpdated: now}, statusRevive},
		{"stale", state.View{HasPacket: true, LastUpdated: now.Add(-time.Hour)}, statusStale},
		{"degraded", state.View{HasPacket: true, LastUpdated: now, ConsecutiveFailures: 3}, statusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := linkStatus(tt.view, now, time.Minute); got != tt.want {
				t.Fatalf("linkStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModel_LoadingUntilSized(t *testing.T) {
	m := New(Options{})
	if got := m.View(); got != "Loading..." {
		t.Fatalf("View before resize = %q", got)
	}
}

func TestModel_RendersUnreadFromStore(t *testing.T) {
	store := &state.Store{}
	store.Update(sampleSnapshot(), true, nil)

	m := sized(t, New(Options{Store: store}))
	next, _ := m.Update(viewMsg(store.Snapshot()))
	m = next.(Model)

	out := m.View()
	for _, want := range []string{"unreadbell", "RESYNC", "bob", "alice", "carol, dave", "gophers", "@1"} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	if strings.Index(out, "bob") > strings.Index(out, "alice") {
		t.Error("conversations should be sorted by unread count, busiest first")
	}
}

func TestModel_WaitingBeforeFirstPacket(t *testing.T) {
	m := sized(t, New(Options{Source: "127.0.0.1:3631"}))
	out := m.View()
	if !strings.Contains(out, "WAITING") || !strings.Contains(out, "No update received yet.") {
		t.Fatalf("View() = %q, want waiting state", out)
	}
	if !strings.Contains(out, "Listening on 127.0.0.1:3631") {
		t.Fatal("header should name the listen source")
	}
}

func TestModel_SwitchViewNeedsLogPath(t *testing.T) {
	m := sized(t, New(Options{}))
	next, _ := m.Update(keyPress("l"))
	if next.(Model).currentView != ViewUnread {
		t.Fatal("logs view should be unavailable without a log path")
	}
}

func TestModel_LogsPaneShowsFormattedLines(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "relay.log")
	line := `{"level":"WARN","component":"conn","msg":"Connection attempt failed","retry_in":"5s"}` + "\n"
	if err := os.WriteFile(logPath, []byte(line), 0o644); err != nil {
		t.Fatal(err)
	}
	prefsPath := filepath.Join(dir, "prefs.toml")

	m := sized(t, New(Options{LogPath: logPath, PrefsPath: prefsPath}))
	next, cmd := m.Update(keyPress("tab"))
	m = next.(Model)
	if m.currentView != ViewLogs {
		t.Fatalf("currentView = %v, want logs", m.currentView)
	}
	if cmd == nil {
		t.Fatal("switching to logs should read the log file")
	}
	next, _ = m.Update(cmd())
	m = next.(Model)

	out := m.View()
	if !strings.Contains(out, "WARN [conn] – Connection attempt failed retry_in=5s") {
		t.Fatalf("logs pane = %q", out)
	}
	if got := prefs.Load(prefsPath).View; got != "logs" {
		t.Fatalf("saved view = %q, want logs", got)
	}
}

func TestModel_LogErrorIsShown(t *testing.T) {
	m := sized(t, New(Options{LogPath: "/unused"}))
	m.currentView = ViewLogs
	next, _ := m.Update(logErrorMsg{err: errors.New("permission denied")})
	m = next.(Model)
	m.refreshLogs()
	if !strings.Contains(m.View(), "Log unavailable: permission denied") {
		t.Fatal("log error not rendered")
	}
}

func TestModel_CycleThemePersists(t *testing.T) {
	prefsPath := filepath.Join(t.TempDir(), "prefs.toml")
	m := sized(t, New(Options{PrefsPath: prefsPath}))

	next, _ := m.Update(keyPress("T"))
	m = next.(Model)
	if m.theme.Name != "Kanagawa" {
		t.Fatalf("theme = %q, want Kanagawa", m.theme.Name)
	}
	if got := prefs.Load(prefsPath).Theme; got != "Kanagawa" {
		t.Fatalf("saved theme = %q, want Kanagawa", got)
	}
}

func TestModel_ToggleFollow(t *testing.T) {
	m := sized(t, New(Options{}))
	if !m.follow {
		t.Fatal("follow should default to on")
	}
	next, _ := m.Update(keyPress("f"))
	if next.(Model).follow {
		t.Fatal("follow should toggle off")
	}
}

func TestModel_HelpOverlay(t *testing.T) {
	m := sized(t, New(Options{}))
	next, _ := m.Update(keyPress("?"))
	m = next.(Model)
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Fatal("help overlay not shown")
	}
	next, _ = m.Update(keyPress("x"))
	if next.(Model).showHelp {
		t.Fatal("any key should close help")
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := sized(t, New(Options{}))
	_, cmd := m.Update(keyPress("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should quit")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncateMiddle("/very/long/path/to/relay.log", 11); got != "/very…y.log" {
		t.Fatalf("truncateMiddle = %q", got)
	}
}

func TestHumanizeDuration(t *testing.T) {
	tests := map[time.Duration]string{
		-time.Second:     "0s",
		42 * time.Second: "42s",
		3 * time.Minute:  "3m",
		5 * time.Hour:    "5h",
	}
	for d, want := range tests {
		if got := humanizeDuration(d); got != want {
			t.Errorf("humanizeDuration(%s) = %q, want %q", d, got, want)
		}
	}
}
