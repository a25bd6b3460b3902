package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualNow(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	assert.Equal(t, start, clk.Now())

	clk.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clk.Now())
}

func TestManualAfter(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	ch := clk.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before the clock advanced")
	default:
	}

	// Not far enough yet.
	clk.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	clk.Advance(time.Second)
	select {
	case firedAt := <-ch:
		assert.Equal(t, start.Add(5*time.Second), firedAt)
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestManualAfterImmediate(t *testing.T) {
	clk := NewManual(time.Now())

	select {
	case <-clk.After(0):
	default:
		t.Fatal("non-positive duration should fire immediately")
	}
}

func TestManualWaiterCount(t *testing.T) {
	clk := NewManual(time.Now())
	assert.Equal(t, 0, clk.WaiterCount())

	clk.After(time.Second)
	clk.After(2 * time.Second)
	assert.Equal(t, 2, clk.WaiterCount())

	clk.Advance(time.Second)
	assert.Equal(t, 1, clk.WaiterCount())

	clk.Advance(time.Second)
	assert.Equal(t, 0, clk.WaiterCount())
}

func TestManualTickerCount(t *testing.T) {
	clk := NewManual(time.Now())
	assert.Equal(t, 0, clk.TickerCount())

	ticker := clk.NewTicker(time.Second)
	assert.Equal(t, 1, clk.TickerCount())

	ticker.Stop()
	assert.Equal(t, 1, clk.TickerCount())
}

func TestManualTicker(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	ticker := clk.NewTicker(time.Minute)

	clk.Advance(59 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its interval")
	default:
	}

	clk.Advance(time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire at its interval")
	}

	// A large jump buffers at most one tick.
	clk.Advance(10 * time.Minute)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after a long advance")
	}
	select {
	case <-ticker.C():
		t.Fatal("ticker buffered more than one tick")
	default:
	}

	ticker.Stop()
	clk.Advance(time.Hour)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestSystemClock(t *testing.T) {
	clk := New()

	before := time.Now()
	now := clk.Now()
	after := time.Now()
	require.False(t, now.Before(before))
	require.False(t, now.After(after))

	select {
	case <-clk.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("system After never fired")
	}

	ticker := clk.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("system ticker never fired")
	}
}
