package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Tick()
	m.Emit(true)
	m.Dropped()
	m.SendFailure()
	m.ConnectAttempt()
	m.State("connected", []string{"connected"})
	m.Packet("ok")
	if m.Registry() != nil {
		t.Fatal("nil Metrics should have a nil registry")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Tick()
	m.Emit(true)
	m.Emit(false)
	m.Dropped()
	m.State("connected", []string{"disconnected", "connected"})

	server := httptest.NewServer(m.Handler())
	t.Cleanup(server.Close)

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	for _, want := range []string{
		"unreadbell_ticks_total 1",
		`unreadbell_emits_total{forced="true"} 1`,
		`unreadbell_emits_total{forced="false"} 1`,
		"unreadbell_sends_dropped_total 1",
		`unreadbell_connection_state{state="connected"} 1`,
		`unreadbell_connection_state{state="disconnected"} 0`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
