package notehive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor is the connectivity oracle and state machine. It tracks two states,
// offline and online, probing the remote health endpoint on a fixed interval.
// Every offline-to-online transition fires the onOnline hook exactly once;
// the online-to-offline transition only flips the oracle's answer.
type Monitor struct {
	remote   Remote
	interval time.Duration
	onOnline func()
	debug    *DebugLogger

	mu     sync.Mutex
	online bool

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor creates a connectivity monitor. onOnline runs on the monitor's
// goroutine for ticker probes and on the caller's goroutine for explicit
// probes; it must not block for long.
func NewMonitor(remote Remote, interval time.Duration, onOnline func(), debug *DebugLogger) *Monitor {
	return &Monitor{
		remote:   remote,
		interval: interval,
		onOnline: onOnline,
		debug:    debug,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Online answers the oracle: is the remote store currently reachable, per the
// most recent probe.
func (m *Monitor) Online() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Probe re-evaluates connectivity now and records the transition, firing the
// onOnline hook if the state moved from offline to online. Returns the new
// state.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	reachable := m.remote.Health(probeCtx) == nil
	m.record(reachable)
	return reachable
}

// MarkOffline records an observed remote failure, flipping the oracle to
// offline without waiting for the next probe.
func (m *Monitor) MarkOffline() {
	m.record(false)
}

// record applies a reachability observation to the state machine.
func (m *Monitor) record(reachable bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = reachable
	m.mu.Unlock()

	switch {
	case !wasOnline && reachable:
		m.debug.Log("monitor: transition offline -> online")
		if m.onOnline != nil {
			m.onOnline()
		}
	case wasOnline && !reachable:
		m.debug.Log("monitor: transition online -> offline")
	}
}

// Start launches the background probe loop.
func (m *Monitor) Start() {
	if m.started.CompareAndSwap(false, true) {
		go m.run()
	}
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Probe(context.Background())
		}
	}
}

// Stop halts the probe loop and waits for it to exit. Safe to call when the
// monitor was never started.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })

	if !m.started.Load() {
		return
	}

	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
	}
}
