package timer

import (
	"sync"
	"testing"
	"time"
)

func newTestMachine(t *testing.T, opts ...Option) (*Machine, *FakeClock) {
	t.Helper()
	clk := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMachine(append([]Option{WithClock(clk)}, opts...)...)
	t.Cleanup(m.Close)
	return m, clk
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestHoldReleaseBeforeDelayStaysIdle(t *testing.T) {
	m, clk := newTestMachine(t)
	var changes []State
	m.OnChange(func(s Snapshot) { changes = append(changes, s.State) })

	m.Press()
	clk.Advance(499 * time.Millisecond)
	m.Release()
	clk.Advance(time.Second)

	if got := m.State(); got != StateIdle {
		t.Fatalf("expected idle after early release, got %s", got)
	}
	if clk.Pending() != 0 {
		t.Fatalf("hold timer should be cancelled")
	}
	for _, s := range changes {
		if s != StateIdle {
			t.Fatalf("cancelled hold must never reach %s", s)
		}
	}
}

func TestHoldFiresToReady(t *testing.T) {
	m, clk := newTestMachine(t)
	m.Press()
	clk.Advance(500 * time.Millisecond)
	if got := m.State(); got != StateReady {
		t.Fatalf("expected ready, got %s", got)
	}
	// presses while ready are ignored
	m.Press()
	if got := m.State(); got != StateReady {
		t.Fatalf("expected ready, got %s", got)
	}
}

func TestCustomHoldDelay(t *testing.T) {
	m, clk := newTestMachine(t, WithHoldDelay(100*time.Millisecond))
	m.Press()
	clk.Advance(100 * time.Millisecond)
	if got := m.State(); got != StateReady {
		t.Fatalf("expected ready after custom delay, got %s", got)
	}
}

func TestFullSolveCycle(t *testing.T) {
	var (
		mu      sync.Mutex
		stopped []int64
	)
	m, clk := newTestMachine(t, OnStop(func(ms int64) {
		mu.Lock()
		stopped = append(stopped, ms)
		mu.Unlock()
	}))

	m.Press()
	clk.Advance(600 * time.Millisecond)
	m.Release()
	if got := m.State(); got != StateRunning {
		t.Fatalf("expected running, got %s", got)
	}
	start := m.Snapshot().StartTime
	if start.IsZero() {
		t.Fatalf("start time should be set while running")
	}

	clk.Advance(12345*time.Millisecond + 600*time.Microsecond)
	m.Press()

	snap := m.Snapshot()
	if snap.State != StateStopped {
		t.Fatalf("expected stopped, got %s", snap.State)
	}
	if snap.LastSolveMs() != 12346 {
		t.Fatalf("expected 12346 (rounded), got %d", snap.LastSolveMs())
	}
	mu.Lock()
	if len(stopped) != 1 || stopped[0] != 12346 {
		t.Fatalf("stop hook got %v", stopped)
	}
	mu.Unlock()

	// stopped ignores presses and releases until the penalty is chosen
	m.Release()
	m.Press()
	if got := m.State(); got != StateStopped {
		t.Fatalf("expected still stopped, got %s", got)
	}

	if !m.Finish() {
		t.Fatalf("finish should succeed from stopped")
	}
	snap = m.Snapshot()
	if snap.State != StateIdle || snap.Elapsed != 0 || !snap.StartTime.IsZero() {
		t.Fatalf("finish should clear elapsed and start, got %+v", snap)
	}
	if snap.LastSolveMs() != 12346 {
		t.Fatalf("last solve should survive finish")
	}
	if m.Finish() {
		t.Fatalf("finish from idle should report false")
	}
}

func TestSamplerMonotonicAndCancelled(t *testing.T) {
	m, clk := newTestMachine(t, WithRefreshInterval(10*time.Millisecond))

	var (
		mu      sync.Mutex
		samples []time.Duration
	)
	m.OnChange(func(s Snapshot) {
		if s.State != StateRunning {
			return
		}
		mu.Lock()
		samples = append(samples, s.Elapsed)
		mu.Unlock()
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(samples)
	}

	m.Press()
	clk.Advance(500 * time.Millisecond)
	m.Release()

	for i := 1; i <= 5; i++ {
		clk.Advance(10 * time.Millisecond)
		want := i + 1 // the start notification counts once
		waitUntil(t, func() bool { return count() >= want })
	}

	m.Press()
	n := count()
	clk.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	if count() != n {
		t.Fatalf("sampler kept running after stop")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(samples); i++ {
		if samples[i] < samples[i-1] {
			t.Fatalf("samples went backwards: %v", samples)
		}
	}
	if samples[len(samples)-1] != 50*time.Millisecond {
		t.Fatalf("expected last sample 50ms, got %v", samples[len(samples)-1])
	}
}

func TestResetFromRunning(t *testing.T) {
	m, clk := newTestMachine(t)
	m.Press()
	clk.Advance(500 * time.Millisecond)
	m.Release()
	clk.Advance(time.Second)

	m.Reset()
	snap := m.Snapshot()
	if snap.State != StateIdle || snap.Elapsed != 0 {
		t.Fatalf("reset should return to a clean idle, got %+v", snap)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	m, clk := newTestMachine(t)
	calls := 0
	unsub := m.OnChange(func(Snapshot) { calls++ })
	m.Press()
	if calls == 0 {
		t.Fatalf("observer should be called on press")
	}
	unsub()
	unsub()
	before := calls
	clk.Advance(500 * time.Millisecond)
	if calls != before {
		t.Fatalf("unsubscribed observer still called")
	}
}

func TestClosedMachineIgnoresInput(t *testing.T) {
	m, clk := newTestMachine(t)
	m.Close()
	m.Press()
	clk.Advance(time.Second)
	if got := m.State(); got != StateIdle {
		t.Fatalf("closed machine should stay idle, got %s", got)
	}
}

func TestRoundMs(t *testing.T) {
	cases := map[time.Duration]int64{
		0:                         0,
		1499 * time.Microsecond:   1,
		1500 * time.Microsecond:   2,
		9876400 * time.Microsecond: 9876,
	}
	for in, want := range cases {
		if got := RoundMs(in); got != want {
			t.Fatalf("RoundMs(%v) = %d, want %d", in, got, want)
		}
	}
}
