package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/five82/unreadbell/internal/codec"
	"github.com/five82/unreadbell/internal/metrics"
	"github.com/five82/unreadbell/internal/transport"
)

// State is the lifecycle state of the logical connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateProbing      State = "probing"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// DefaultReconnectDelay is the fixed pause between connection attempts.
const DefaultReconnectDelay = 5 * time.Second

const (
	eventProbe  = "probe"
	eventDial   = "dial"
	eventOpened = "opened"
	eventLost   = "lost"
)

var allStates = []string{
	string(StateDisconnected), string(StateProbing), string(StateConnecting), string(StateConnected),
}

var (
	// ErrNotConnected is returned by Send while no channel is open. The
	// message is dropped.
	ErrNotConnected = errors.New("not connected")
	// ErrSendFailed is returned when a write on an open channel failed. The
	// message is lost and a reconnect is scheduled.
	ErrSendFailed = errors.New("send failed")
	// ErrUnreachable marks a failed probe or open.
	ErrUnreachable = errors.New("listener unreachable")
)

// Options configure a Manager.
type Options struct {
	Address string
	Dialer  transport.Dialer
	// Prober enables the reachability step before each open when non-nil.
	Prober         transport.Prober
	ReconnectDelay time.Duration
	Logger         *zap.SugaredLogger
	Metrics        *metrics.Metrics
}

type stopper interface {
	Stop() bool
}

type timerFunc func(d time.Duration, f func()) stopper

func realTimer(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Manager owns the single outbound channel to the listener. It connects,
// retries forever at a constant delay, and reports when a connection is
// (re)established so the next emit can be forced.
type Manager struct {
	addr    string
	dialer  transport.Dialer
	prober  transport.Prober
	delay   time.Duration
	backoff backoff.BackOff
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	after   timerFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	machine     *fsm.FSM
	ch          transport.Channel
	chErrored   bool
	retry       stopper
	started     bool
	stopped     bool
	onConnected []func()
}

// New builds a Manager in the disconnected state. Nothing happens until Start.
func New(opts Options) (*Manager, error) {
	if opts.Dialer == nil {
		return nil, fmt.Errorf("connection manager requires a dialer")
	}
	if opts.Address == "" {
		return nil, fmt.Errorf("connection manager requires an address")
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		addr:    opts.Address,
		dialer:  opts.Dialer,
		prober:  opts.Prober,
		delay:   delay,
		backoff: backoff.NewConstantBackOff(delay),
		logger:  logger,
		metrics: opts.Metrics,
		after:   realTimer,
		ctx:     ctx,
		cancel:  cancel,
	}

	m.machine = fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: eventProbe, Src: []string{string(StateDisconnected)}, Dst: string(StateProbing)},
			{Name: eventDial, Src: []string{string(StateDisconnected), string(StateProbing)}, Dst: string(StateConnecting)},
			{Name: eventOpened, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: eventLost, Src: []string{string(StateProbing), string(StateConnecting), string(StateConnected)}, Dst: string(StateDisconnected)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.logger.Debugw("Connection state changed", "from", e.Src, "to", e.Dst)
				m.metrics.State(e.Dst, allStates)
			},
		},
	)
	m.metrics.State(string(StateDisconnected), allStates)
	return m, nil
}

// OnConnected registers fn to run each time a channel finishes opening.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = append(m.onConnected, fn)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current()
}

// Connected reports whether sends are currently accepted.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Start schedules the first connection attempt. Calling it again is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.retry = m.after(0, m.connect)
}

// Run starts the manager and blocks until ctx is done, then stops it.
func (m *Manager) Run(ctx context.Context) error {
	m.Start()
	<-ctx.Done()
	m.Stop()
	return nil
}

// Stop cancels any pending reconnect and in-flight attempt and closes the
// open channel. It is safe to call from any state, more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.cancel()
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	ch := m.ch
	m.ch = nil
	if m.current() != StateDisconnected {
		m.transition(eventLost)
	}
	m.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	m.logger.Debugw("Connection manager stopped")
}

// Send writes one packet text, framed for the open channel. It never queues or
// retries: while not connected the packet is dropped with ErrNotConnected.
func (m *Manager) Send(text string) error {
	m.mu.Lock()
	ch := m.ch
	if ch == nil || m.current() != StateConnected {
		m.mu.Unlock()
		m.metrics.Dropped()
		return ErrNotConnected
	}
	m.mu.Unlock()

	err := ch.Send(codec.Frame(ch.Kind(), text))
	if err == nil {
		return nil
	}

	m.metrics.SendFailure()
	m.mu.Lock()
	owned := m.ch == ch
	if owned {
		m.logger.Errorw("Send failed, dropping connection", "error", err, "retry_in", m.delay)
		m.ch = nil
		m.chErrored = false
		m.transition(eventLost)
		m.scheduleRetryLocked()
	}
	m.mu.Unlock()
	if owned {
		_ = ch.Close()
	}
	return fmt.Errorf("%w: %v", ErrSendFailed, err)
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.stopped || m.current() != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	probe := m.prober != nil
	if probe {
		m.transition(eventProbe)
	} else {
		m.transition(eventDial)
	}
	ctx := m.ctx
	m.mu.Unlock()

	m.metrics.ConnectAttempt()

	if probe {
		if err := m.prober.Probe(ctx, m.addr); err != nil {
			m.attemptFailed(fmt.Errorf("%w: %v", ErrUnreachable, err))
			return
		}
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		m.transition(eventDial)
		m.mu.Unlock()
	}

	ch, err := m.dialer.Open(ctx, m.addr)
	if err != nil {
		m.attemptFailed(fmt.Errorf("%w: %v", ErrUnreachable, err))
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		_ = ch.Close()
		return
	}
	m.ch = ch
	m.chErrored = false
	m.transition(eventOpened)
	callbacks := append([]func(){}, m.onConnected...)
	m.mu.Unlock()

	fields := []any{"address", m.addr}
	if s, ok := ch.(interface{ Session() string }); ok {
		fields = append(fields, "session", s.Session())
	}
	m.logger.Infow("Connected to listener", fields...)

	// Error first: a buffered failure must be reported before its close.
	ch.OnError(func(err error) { m.channelError(ch, err) })
	ch.OnClose(func() { m.channelClosed(ch) })

	for _, fn := range callbacks {
		fn()
	}
}

func (m *Manager) attemptFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.logger.Warnw("Connection attempt failed", "address", m.addr, "error", err, "retry_in", m.delay)
	m.transition(eventLost)
	m.scheduleRetryLocked()
}

func (m *Manager) channelError(ch transport.Channel, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch != ch {
		return
	}
	m.chErrored = true
	m.logger.Errorw("Connection error", "address", m.addr, "error", err)
}

func (m *Manager) channelClosed(ch transport.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch != ch {
		return
	}
	if !m.chErrored {
		m.logger.Warnw("Connection closed unexpectedly", "address", m.addr, "retry_in", m.delay)
	}
	m.ch = nil
	m.chErrored = false
	m.transition(eventLost)
	m.scheduleRetryLocked()
}

func (m *Manager) scheduleRetryLocked() {
	if m.stopped {
		return
	}
	if m.retry != nil {
		m.retry.Stop()
	}
	m.retry = m.after(m.backoff.NextBackOff(), m.connect)
}

func (m *Manager) current() State {
	return State(m.machine.Current())
}

// transition must be called with m.mu held.
func (m *Manager) transition(event string) {
	if err := m.machine.Event(context.Background(), event); err != nil {
		m.logger.Errorw("Invalid connection transition", "event", event, "state", m.machine.Current(), "error", err)
	}
}
