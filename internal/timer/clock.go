package timer

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source for a Machine. Now must carry a monotonic
// reading so that Sub is immune to wall clock adjustments.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
	NewTicker(d time.Duration) Ticker
}

// Stopper cancels a pending AfterFunc.
type Stopper interface {
	Stop() bool
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock is backed by package time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

func (SystemClock) NewTicker(d time.Duration) Ticker { return systemTicker{time.NewTicker(d)} }

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()                { s.t.Stop() }

// FakeClock only moves when Advance is called. Timers fire synchronously
// inside Advance; tickers deliver at most one pending tick, like time.Ticker.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timer: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{clock: c, every: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward, firing due timers and ticks in time order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		at, fire := c.nextEventLocked(target)
		if fire == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = at
		c.mu.Unlock()
		fire()
	}
}

// Pending reports how many AfterFunc timers are armed.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *FakeClock) nextEventLocked(limit time.Time) (time.Time, func()) {
	sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })

	var tick *fakeTicker
	for _, tk := range c.tickers {
		if tick == nil || tk.next.Before(tick.next) {
			tick = tk
		}
	}

	useTimer := len(c.timers) > 0 && !c.timers[0].at.After(limit)
	useTick := tick != nil && !tick.next.After(limit)
	if useTimer && useTick && tick.next.Before(c.timers[0].at) {
		useTimer = false
	}

	switch {
	case useTimer:
		t := c.timers[0]
		c.timers = c.timers[1:]
		return t.at, t.f
	case useTick:
		at := tick.next
		tick.next = at.Add(tick.every)
		ch := tick.ch
		return at, func() {
			select {
			case ch <- at:
			default:
			}
		}
	}
	return time.Time{}, nil
}

type fakeTimer struct {
	clock *FakeClock
	at    time.Time
	f     func()
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTicker struct {
	clock *FakeClock
	every time.Duration
	next  time.Time
	ch    chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, other := range c.tickers {
		if other == t {
			c.tickers = append(c.tickers[:i], c.tickers[i+1:]...)
			return
		}
	}
}
