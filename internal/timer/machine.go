// Package timer implements the press/release driven solve timer.
package timer

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State string

const (
	StateIdle    State = "idle"
	StateReady   State = "ready"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

const (
	DefaultHoldDelay       = 500 * time.Millisecond
	DefaultRefreshInterval = 10 * time.Millisecond
)

// Snapshot is a read-only copy of the machine state.
type Snapshot struct {
	State     State
	StartTime time.Time
	Elapsed   time.Duration
	LastSolve time.Duration
	KeyDown   bool
}

// ElapsedMs is the elapsed time with sub-millisecond precision.
func (s Snapshot) ElapsedMs() float64 { return durationMs(s.Elapsed) }

// LastSolveMs rounds the last stopped time to whole milliseconds.
func (s Snapshot) LastSolveMs() int64 { return RoundMs(s.LastSolve) }

// RoundMs rounds a duration to the nearest millisecond.
func RoundMs(d time.Duration) int64 {
	return int64(math.Round(durationMs(d)))
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type Option func(*Machine)

func WithClock(c Clock) Option {
	return func(m *Machine) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithHoldDelay(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.holdDelay = d
		}
	}
}

func WithRefreshInterval(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.refresh = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// OnStop registers the hook invoked with the rounded solve time when the
// timer is stopped. It runs on the goroutine that called Press.
func OnStop(fn func(timeMs int64)) Option {
	return func(m *Machine) { m.onStop = fn }
}

type Machine struct {
	clock     Clock
	holdDelay time.Duration
	refresh   time.Duration
	logger    *zap.Logger
	onStop    func(int64)

	mu        sync.Mutex
	state     State
	keyDown   bool
	start     time.Time
	elapsed   time.Duration
	lastSolve time.Duration
	closed    bool

	hold    Stopper
	holdSeq uint64

	samplerStop chan struct{}
	samplerDone chan struct{}

	obsMu     sync.RWMutex
	observers map[int]func(Snapshot)
	nextObsID int
}

func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		clock:     SystemClock{},
		holdDelay: DefaultHoldDelay,
		refresh:   DefaultRefreshInterval,
		logger:    zap.NewNop(),
		state:     StateIdle,
		observers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers an observer called after every state change and every
// running sample. The returned function removes it.
func (m *Machine) OnChange(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	m.obsMu.Lock()
	m.nextObsID++
	id := m.nextObsID
	m.observers[id] = fn
	m.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			delete(m.observers, id)
			m.obsMu.Unlock()
		})
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Press handles the control going down.
func (m *Machine) Press() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	wasDown := m.keyDown
	m.keyDown = true

	switch m.state {
	case StateIdle:
		if wasDown {
			// key repeat while holding
			m.mu.Unlock()
			return
		}
		m.armHoldLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)

	case StateRunning:
		done := m.stopSamplerLocked()
		m.sampleLocked(m.clock.Now())
		m.lastSolve = m.elapsed
		m.state = StateStopped
		snap := m.snapshotLocked()
		hook := m.onStop
		m.mu.Unlock()

		waitSampler(done)
		m.logger.Debug("timer_stopped", zap.Float64("elapsed_ms", snap.ElapsedMs()))
		m.notify(snap)
		if hook != nil {
			hook(snap.LastSolveMs())
		}

	default:
		// ready: already held; stopped: waiting for a penalty decision
		m.mu.Unlock()
	}
}

// Release handles the control going up.
func (m *Machine) Release() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.keyDown = false

	switch m.state {
	case StateIdle:
		if m.hold == nil {
			m.mu.Unlock()
			return
		}
		// released before the hold delay: silent cancel
		m.cancelHoldLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)

	case StateReady:
		m.state = StateRunning
		m.start = m.clock.Now()
		m.elapsed = 0
		m.startSamplerLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logger.Debug("timer_started")
		m.notify(snap)

	default:
		m.mu.Unlock()
	}
}

// Finish leaves the stopped state once the penalty has been decided.
// It reports false when the machine was not stopped.
func (m *Machine) Finish() bool {
	m.mu.Lock()
	if m.state != StateStopped {
		m.mu.Unlock()
		return false
	}
	m.clearLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
	return true
}

// Reset returns to idle from any state, cancelling the hold timer and the
// sampling loop. The last solve time is kept.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.cancelHoldLocked()
	done := m.stopSamplerLocked()
	m.clearLocked()
	m.keyDown = false
	snap := m.snapshotLocked()
	m.mu.Unlock()

	waitSampler(done)
	m.notify(snap)
}

// Close resets the machine, drops every observer and ignores further input.
func (m *Machine) Close() {
	m.Reset()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.obsMu.Lock()
	m.observers = make(map[int]func(Snapshot))
	m.obsMu.Unlock()
}

func (m *Machine) armHoldLocked() {
	m.holdSeq++
	seq := m.holdSeq
	m.hold = m.clock.AfterFunc(m.holdDelay, func() { m.holdElapsed(seq) })
}

func (m *Machine) cancelHoldLocked() {
	if m.hold != nil {
		m.hold.Stop()
		m.hold = nil
	}
	// a callback already in flight sees a stale sequence and does nothing
	m.holdSeq++
}

func (m *Machine) holdElapsed(seq uint64) {
	m.mu.Lock()
	if seq != m.holdSeq || m.state != StateIdle || !m.keyDown || m.closed {
		m.mu.Unlock()
		return
	}
	m.hold = nil
	m.state = StateReady
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
}

func (m *Machine) startSamplerLocked() {
	stop := make(chan struct{})
	done := make(chan struct{})
	m.samplerStop, m.samplerDone = stop, done
	ticker := m.clock.NewTicker(m.refresh)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				m.tick(stop)
			}
		}
	}()
}

// stopSamplerLocked signals the sampling loop and returns a channel closed
// once it has exited. Callers wait on it after releasing mu.
func (m *Machine) stopSamplerLocked() chan struct{} {
	if m.samplerStop == nil {
		return nil
	}
	close(m.samplerStop)
	done := m.samplerDone
	m.samplerStop, m.samplerDone = nil, nil
	return done
}

func waitSampler(done chan struct{}) {
	if done != nil {
		<-done
	}
}

func (m *Machine) tick(stop chan struct{}) {
	m.mu.Lock()
	if m.state != StateRunning || m.samplerStop != stop {
		m.mu.Unlock()
		return
	}
	m.sampleLocked(m.clock.Now())
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
}

// sampleLocked never lets elapsed go backwards.
func (m *Machine) sampleLocked(now time.Time) {
	if d := now.Sub(m.start); d > m.elapsed {
		m.elapsed = d
	}
}

func (m *Machine) clearLocked() {
	m.state = StateIdle
	m.start = time.Time{}
	m.elapsed = 0
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:     m.state,
		StartTime: m.start,
		Elapsed:   m.elapsed,
		LastSolve: m.lastSolve,
		KeyDown:   m.keyDown,
	}
}

func (m *Machine) notify(s Snapshot) {
	m.obsMu.RLock()
	fns := make([]func(Snapshot), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.RUnlock()
	for _, fn := range fns {
		fn(s)
	}
}
