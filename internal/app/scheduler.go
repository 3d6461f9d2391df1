package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/five82/unreadbell/internal/codec"
	"github.com/five82/unreadbell/internal/conn"
	"github.com/five82/unreadbell/internal/detector"
	"github.com/five82/unreadbell/internal/metrics"
	"github.com/five82/unreadbell/internal/snapshot"
)

const defaultTickPeriod = time.Second

// Capturer returns the current snapshot and never fails.
type Capturer interface {
	Capture(ctx context.Context) snapshot.Snapshot
}

// Sender delivers one encoded packet. conn.ErrNotConnected means the packet
// was dropped without side effects.
type Sender interface {
	Send(text string) error
}

// SchedulerOptions configure a Scheduler.
type SchedulerOptions struct {
	Source      Capturer
	Detector    *detector.Detector
	Sender      Sender
	TickPeriod  time.Duration
	WarmupDelay time.Duration
	Logger      *zap.SugaredLogger
	Metrics     *metrics.Metrics
}

// Scheduler drives the relay: after a warm-up it captures, evaluates and sends
// on a fixed period. Ticks run on the Run goroutine only.
type Scheduler struct {
	source   Capturer
	detector *detector.Detector
	sender   Sender
	period   time.Duration
	warmup   time.Duration
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	now      func() time.Time

	// resyncRequested counts RequestResync calls; resyncServed is the count
	// the last forced send covered. Only the tick goroutine writes
	// resyncServed, so a request racing a send stays pending.
	resyncRequested atomic.Uint64
	resyncServed    atomic.Uint64
}

// NewScheduler builds a Scheduler. A zero TickPeriod uses one second; a zero
// WarmupDelay ticks immediately.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	period := opts.TickPeriod
	if period <= 0 {
		period = defaultTickPeriod
	}
	warmup := opts.WarmupDelay
	if warmup < 0 {
		warmup = 0
	}
	det := opts.Detector
	if det == nil {
		det = detector.New(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		source:   opts.Source,
		detector: det,
		sender:   opts.Sender,
		period:   period,
		warmup:   warmup,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
}

// RequestResync forces the next emitted update. The connection manager calls
// it every time a channel opens.
func (s *Scheduler) RequestResync() {
	s.resyncRequested.Add(1)
}

// ResyncPending reports whether a forced emit is still owed.
func (s *Scheduler) ResyncPending() bool {
	return s.resyncRequested.Load() != s.resyncServed.Load()
}

// Run waits out the warm-up, ticks once, then ticks every period until ctx is
// cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.warmup > 0 {
		timer := time.NewTimer(s.warmup)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.logger.Infow("Scheduler started", "tick_period", s.period)
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.metrics.Tick()

	snap := s.source.Capture(ctx)
	generation := s.resyncRequested.Load()
	resync := generation != s.resyncServed.Load()

	dec, err := s.detector.Evaluate(snap, s.now(), resync)
	if err != nil {
		s.logger.Errorw("Skipping tick, snapshot could not be encoded", "error", err)
		return
	}
	if !dec.Emit {
		return
	}

	text, err := codec.EncodePacket(codec.NewUpdate(snap, dec.Forced))
	if err != nil {
		s.logger.Errorw("Skipping tick, packet could not be encoded", "error", err)
		return
	}

	if err := s.sender.Send(text); err != nil {
		if errors.Is(err, conn.ErrNotConnected) {
			s.logger.Debugw("Update dropped, not connected", "forced", dec.Forced)
			return
		}
		s.logger.Warnw("Update lost", "forced", dec.Forced, "error", err)
		return
	}

	s.detector.Commit(dec)
	if resync {
		s.resyncServed.Store(generation)
	}
	s.metrics.Emit(dec.Forced)

	totals := snap.Totals()
	s.logger.Debugw("Update sent",
		"forced", dec.Forced,
		"fingerprint", detector.Fingerprint(dec.Encoding),
		"conversations", totals.Conversations,
		"messages", totals.Messages,
		"guilds", totals.Containers,
	)
}
