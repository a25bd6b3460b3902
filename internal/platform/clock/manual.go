package clock

import (
	"sync"
	"time"
)

// Manual is a Clock driven explicitly by tests. Time only moves when
// Advance is called; waiters whose deadline has been reached fire
// during the call.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*manualWaiter
	tickers []*manualTicker
}

type manualWaiter struct {
	at time.Time
	ch chan time.Time
}

type manualTicker struct {
	clock    *Manual
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

// NewManual creates a Manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After returns a channel that fires once Advance moves the clock past d.
// A non-positive duration fires immediately.
func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.waiters = append(m.waiters, &manualWaiter{at: m.now.Add(d), ch: ch})
	return ch
}

// NewTicker returns a Ticker that fires when Advance crosses each
// interval boundary. At most one tick is buffered, matching the
// behavior of time.Ticker under a slow receiver.
func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTicker{
		clock:    m,
		interval: d,
		next:     m.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// WaiterCount reports how many After channels have yet to fire. Tests
// use it to confirm a goroutine under test has gone to sleep before
// advancing the clock.
func (m *Manual) WaiterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// TickerCount reports how many tickers are registered, stopped or not.
// Tests use it to confirm a goroutine under test has armed its ticker
// before advancing the clock.
func (m *Manual) TickerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// Advance moves the clock forward by d, firing every waiter and ticker
// whose deadline is reached. Delivery happens before Advance returns.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()

	m.now = m.now.Add(d)
	now := m.now

	remaining := m.waiters[:0]
	var fired []*manualWaiter
	for _, w := range m.waiters {
		if w.at.After(now) {
			remaining = append(remaining, w)
		} else {
			fired = append(fired, w)
		}
	}
	m.waiters = remaining

	for _, t := range m.tickers {
		if t.stopped {
			continue
		}
		ticked := false
		for !t.next.After(now) {
			t.next = t.next.Add(t.interval)
			ticked = true
		}
		if ticked {
			select {
			case t.ch <- now:
			default:
			}
		}
	}

	m.mu.Unlock()

	for _, w := range fired {
		w.ch <- now
	}
}

func (t *manualTicker) C() <-chan time.Time {
	return t.ch
}

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
