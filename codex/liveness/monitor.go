// Package liveness detects silent peers. Each side of a connection runs a Monitor
// that emits heartbeats and declares the peer dead when nothing has been received
// for longer than the timeout.
package liveness

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrTimeout is passed to the death callback when the peer stayed silent too long.
var ErrTimeout = errors.New("liveness: peer timed out")

// State is the monitor lifecycle.
type State int32

const (
	Alive State = iota
	Dead
	Stopped
)

func (s State) String() string {
	switch s {
	case Alive:
		return "alive"
	case Dead:
		return "dead"
	default:
		return "stopped"
	}
}

type Config struct {
	// Interval between outgoing heartbeats.
	Interval time.Duration
	// Timeout after the last inbound message before the peer is declared dead.
	Timeout time.Duration
	// CheckEvery is the deadline check period. Zero means Interval/2.
	CheckEvery time.Duration
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns 2s heartbeats with a 5s timeout. The timeout has to
// exceed the interval or a heartbeat arriving a little late kills a healthy peer.
func DefaultConfig() Config {
	return Config{Interval: 2 * time.Second, Timeout: 5 * time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = max(d.Timeout, 2*c.Interval)
	}
	if c.CheckEvery <= 0 {
		c.CheckEvery = c.Interval / 2
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Monitor tracks one direction of one connection.
type Monitor struct {
	cfg    Config
	beat   func() error
	onDead func(error)

	mu       sync.Mutex
	lastSeen time.Time
	state    State
	started  bool

	stop     chan struct{}
	stopOnce sync.Once
	deadOnce sync.Once
	done     chan struct{}
}

// New creates a stopped-until-Start monitor. beat sends one heartbeat; onDead is
// invoked at most once, from the monitor goroutine.
func New(cfg Config, beat func() error, onDead func(error)) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:      cfg,
		beat:     beat,
		onDead:   onDead,
		lastSeen: cfg.Clock.Now(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config { return m.cfg }

// Start launches the heartbeat and deadline loop. Calling it twice is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started || m.state != Alive {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.lastSeen = m.cfg.Clock.Now()
	m.mu.Unlock()

	// Tickers are armed before Start returns so mock clocks advanced right after
	// Start observe them.
	beats := m.cfg.Clock.Ticker(m.cfg.Interval)
	checks := m.cfg.Clock.Ticker(m.cfg.CheckEvery)
	go m.run(beats, checks)
}

func (m *Monitor) run(beats, checks *clock.Ticker) {
	defer close(m.done)
	defer beats.Stop()
	defer checks.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-beats.C:
			if m.beat == nil {
				continue
			}
			if err := m.beat(); err != nil {
				m.die(fmt.Errorf("liveness: heartbeat: %w", err))
				return
			}
		case now := <-checks.C:
			if m.check(now) {
				return
			}
		}
	}
}

// check declares the peer dead when the deadline has passed and reports whether it did.
func (m *Monitor) check(now time.Time) bool {
	m.mu.Lock()
	expired := m.state == Alive && now.Sub(m.lastSeen) > m.cfg.Timeout
	m.mu.Unlock()
	if expired {
		m.die(ErrTimeout)
	}
	return expired
}

func (m *Monitor) die(err error) {
	m.deadOnce.Do(func() {
		m.mu.Lock()
		if m.state != Alive {
			m.mu.Unlock()
			return
		}
		m.state = Dead
		m.mu.Unlock()
		if m.onDead != nil {
			m.onDead(err)
		}
	})
}

// Touch records inbound traffic.
func (m *Monitor) Touch() {
	now := m.cfg.Clock.Now()
	m.mu.Lock()
	if now.After(m.lastSeen) {
		m.lastSeen = now
	}
	m.mu.Unlock()
}

// LastSeen returns the time of the most recent Touch.
func (m *Monitor) LastSeen() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen
}

// Stop ends the monitor without firing the death callback. It is idempotent and
// safe to call from the death callback.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		if m.state == Alive {
			m.state = Stopped
		}
		m.mu.Unlock()
		close(m.stop)
	})
}

// Done is closed when the monitor goroutine has exited. It never closes for a
// monitor that was not started.
func (m *Monitor) Done() <-chan struct{} { return m.done }

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
