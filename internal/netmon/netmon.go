// Package netmon watches connectivity to the remote calculation service
// and reports debounced online/offline transitions. Probe results must
// hold steady for the debounce window before subscribers hear about
// them, so a flapping link does not whipsaw the sync machinery.
package netmon

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zinses-rechner/calcsync/internal/platform/clock"
)

// Probe reports whether the remote service is reachable right now.
// Implementations must honor ctx cancellation.
type Probe func(ctx context.Context) bool

// HTTPProbe returns a Probe that issues a GET against url, typically
// the remote service's liveness endpoint. Any transport error or
// non-2xx response counts as offline.
func HTTPProbe(url string, timeout time.Duration) Probe {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
}

// Config holds monitor tuning.
type Config struct {
	// ProbeInterval is how often the probe fires. If zero, defaults to
	// 5 seconds.
	ProbeInterval time.Duration

	// Debounce is how long a changed probe result must persist before
	// the transition is reported. Zero reports transitions on the first
	// differing probe.
	Debounce time.Duration
}

// DefaultConfig returns the standard monitor tuning.
func DefaultConfig() Config {
	return Config{
		ProbeInterval: 5 * time.Second,
		Debounce:      2 * time.Second,
	}
}

// Monitor tracks connectivity state. It starts offline and moves to
// online once probes succeed steadily, so a device booting without a
// network never claims work.
type Monitor struct {
	probe    Probe
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	debounce time.Duration

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	mu           sync.Mutex
	online       bool
	pending      *bool
	pendingSince time.Time
	subscribers  map[int]func(online bool)
	nextSubID    int
}

// NewMonitor creates a Monitor around the given probe.
func NewMonitor(probe Probe, clk clock.Clock, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 5 * time.Second
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		probe:       probe,
		clock:       clk,
		logger:      logger.With("component", "network_monitor"),
		interval:    cfg.ProbeInterval,
		debounce:    cfg.Debounce,
		ctx:         ctx,
		cancelFunc:  cancel,
		subscribers: make(map[int]func(bool)),
	}
}

// Subscribe registers fn to be called on every debounced transition.
// Callbacks run on the monitor goroutine and must return quickly.
// The returned function removes the subscription; calling it more than
// once is safe.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers, id)
		})
	}
}

// IsOnline returns the current debounced connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start begins probing.
func (m *Monitor) Start() error {
	m.wg.Add(1)
	go m.run()
	return nil
}

// Stop halts probing and waits for the monitor goroutine to exit.
func (m *Monitor) Stop() {
	m.cancelFunc()
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	m.check()

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C():
			m.check()
		}
	}
}

// check runs one probe and applies the debounce rule: a result that
// differs from the current state arms a pending transition, which
// commits once a later probe confirms it has held for the window.
func (m *Monitor) check() {
	result := m.probe(m.ctx)
	now := m.clock.Now()

	m.mu.Lock()

	if result == m.online {
		m.pending = nil
		m.mu.Unlock()
		return
	}

	if m.pending == nil || *m.pending != result {
		pending := result
		m.pending = &pending
		m.pendingSince = now
		if m.debounce > 0 {
			m.mu.Unlock()
			return
		}
	} else if now.Sub(m.pendingSince) < m.debounce {
		m.mu.Unlock()
		return
	}

	m.online = result
	m.pending = nil
	subs := make([]func(bool), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", result)
	for _, fn := range subs {
		fn(result)
	}
}
