package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/five82/unreadbell/internal/codec"
	"github.com/five82/unreadbell/internal/conn"
	"github.com/five82/unreadbell/internal/detector"
	"github.com/five82/unreadbell/internal/snapshot"
)

type fakeSource struct {
	mu   sync.Mutex
	snap snapshot.Snapshot
	hits int
}

func (f *fakeSource) Capture(context.Context) snapshot.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	return f.snap
}

func (f *fakeSource) set(s snapshot.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
}

type fakeSender struct {
	mu   sync.Mutex
	sent []codec.Packet
	err  error
	// during runs inside Send, as a reconnect would from the manager.
	during func()
}

func (f *fakeSender) Send(text string) error {
	if f.during != nil {
		f.during()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	p, err := codec.DecodePacket([]byte(text))
	if err != nil {
		return fmt.Errorf("fake sender got undecodable text: %w", err)
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) last() codec.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func unread(n uint32) snapshot.Snapshot {
	return snapshot.NewBuilder().
		DirectMessage("u1", snapshot.DirectMessage{ChannelID: "c1", UnreadCount: n}).
		Build()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestScheduler(src *fakeSource, sender *fakeSender) (*Scheduler, *clock) {
	s := NewScheduler(SchedulerOptions{
		Source:   src,
		Detector: detector.New(120 * time.Second),
		Sender:   sender,
	})
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s.now = c.now
	return s, c
}

func TestTick_UnchangedSnapshotEmitsOnce(t *testing.T) {
	src := &fakeSource{snap: unread(1)}
	sender := &fakeSender{}
	s, c := newTestScheduler(src, sender)

	for i := 0; i < 5; i++ {
		s.tick(context.Background())
		c.advance(time.Second)
	}
	if sender.count() != 1 {
		t.Fatalf("sent %d packets, want 1", sender.count())
	}
	if sender.last().Revive {
		t.Fatal("first emit without reconnect should not be forced")
	}
}

func TestTick_ChangeEmits(t *testing.T) {
	src := &fakeSource{snap: unread(1)}
	sender := &fakeSender{}
	s, c := newTestScheduler(src, sender)

	s.tick(context.Background())
	c.advance(time.Second)
	src.set(unread(2))
	s.tick(context.Background())

	if sender.count() != 2 {
		t.Fatalf("sent %d packets, want 2", sender.count())
	}
	if got := sender.last().Payload.DirectMessages["u1"].UnreadCount; got != 2 {
		t.Fatalf("last payload unread = %d, want 2", got)
	}
}

func TestTick_ForcedIntervalResends(t *testing.T) {
	src := &fakeSource{snap: unread(1)}
	sender := &fakeSender{}
	s, c := newTestScheduler(src, sender)

	s.tick(context.Background())
	c.advance(119 * time.Second)
	s.tick(context.Background())
	if sender.count() != 1 {
		t.Fatalf("sent %d packets before the interval, want 1", sender.count())
	}

	c.advance(time.Second)
	s.tick(context.Background())
	if sender.count() != 2 || !sender.last().Revive {
		t.Fatalf("sent %d packets, want a forced second one at 120s", sender.count())
	}
}

func TestTick_ResyncForcesAndClears(t *testing.T) {
	src := &fakeSource{snap: unread(1)}
	sender := &fakeSender{}
	s, c := newTestScheduler(src, sender)

	s.tick(context.Background())
	c.advance(time.Second)

	s.RequestResync()
	s.tick(context.Background())
	if sender.count() != 2 || !sender.last().Revive {
		t.Fatalf("sent %d packets, want forced resend after reconnect", sender.count())
	}
	if s.ResyncPending() {
		t.Fatal("resync flag should be cleared after a successful forced send")
	}

	c.advance(time.Second)
	s.tick(context.Background())
	if sender.count() != 2 {
		t.Fatalf("sent %d packets, want no further sends", sender.count())
	}
}

func TestTick_ResyncRequestedDuringSendStaysPending(t *testing.T) {
	src := &fakeSource{snap: unread(1)}
	sender := &fakeSender{}
	s, c := newTestScheduler(src, sender)

	s.RequestResync()
	sender.during = func() {
		sender.during = nil
		s.RequestResync()
	}
	s.tick(context.Background())
	if !sender.last().Revive {
		t.Fatal("first emit after a resync request should be forced")
	}
	if !s.ResyncPending() {
		t.Fatal("resync requested while sending must stay pending")
	}

	c.advance(time.Second)
	s.tick(context.Background())
	if sender.count() != 2 || !sender.last().Revive {
		t.Fatalf("sent %d packets, want a second forced emit for the new connection", sender.count())
	}
	if s.ResyncPending() {
		t.Fatal("resync should be served after the second forced emit")
	}
}

func TestTick_DroppedWhileDisconnectedIsRetried(t *testing.T) {
	src := &fakeSource{snap: unread(3)}
	sender := &fakeSender{err: conn.ErrNotConnected}
	s, c := newTestScheduler(src, sender)
	s.RequestResync()

	s.tick(context.Background())
	if sender.count() != 0 {
		t.Fatal("nothing should be recorded while disconnected")
	}
	if !s.ResyncPending() {
		t.Fatal("dropped send must keep the resync pending")
	}
	if !s.detector.LastEmit().IsZero() {
		t.Fatal("dropped send must not be committed")
	}

	sender.err = nil
	c.advance(time.Second)
	s.tick(context.Background())
	if sender.count() != 1 || !sender.last().Revive {
		t.Fatalf("sent %d packets, want the forced update once connected", sender.count())
	}
}

func TestTick_SendFailureIsNotCommitted(t *testing.T) {
	src := &fakeSource{snap: unread(1)}
	sender := &fakeSender{err: fmt.Errorf("%w: broken pipe", conn.ErrSendFailed)}
	s, c := newTestScheduler(src, sender)

	s.tick(context.Background())
	if !s.detector.LastEmit().IsZero() {
		t.Fatal("failed send must not be committed")
	}

	sender.err = nil
	c.advance(time.Second)
	s.tick(context.Background())
	if sender.count() != 1 {
		t.Fatalf("sent %d packets, want the update retried on the next tick", sender.count())
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	src := &fakeSource{snap: unread(1)}
	s := NewScheduler(SchedulerOptions{Source: src, Sender: &fakeSender{}, TickPeriod: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		src.mu.Lock()
		hits := src.hits
		src.mu.Unlock()
		if hits >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d ticks ran", hits)
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_WarmupDelaysFirstTick(t *testing.T) {
	src := &fakeSource{snap: unread(1)}
	s := NewScheduler(SchedulerOptions{Source: src, Sender: &fakeSender{}, WarmupDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned error: %v", err)
	}
	if src.hits != 0 {
		t.Fatalf("%d ticks ran during warm-up, want 0", src.hits)
	}
}
