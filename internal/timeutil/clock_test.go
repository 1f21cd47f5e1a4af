package timeutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestMockClock_NowAndSince(t *testing.T) {
	t.Parallel()
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())
	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, c.Since(start))
}

func TestMockClock_AfterFiresAtDeadline(t *testing.T) {
	t.Parallel()
	c := NewMockClock(start)
	ch := c.After(time.Second)
	assert.Equal(t, 1, c.Waiters())

	c.Advance(999 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case got := <-ch:
		assert.Equal(t, start.Add(time.Second), got)
	default:
		t.Fatal("did not fire at deadline")
	}
	assert.Zero(t, c.Waiters())
}

func TestMockClock_AfterNonPositive(t *testing.T) {
	t.Parallel()
	c := NewMockClock(start)
	select {
	case <-c.After(0):
	default:
		t.Fatal("zero duration should fire immediately")
	}
	assert.Zero(t, c.Waiters())
}

func TestMockClock_Ticker(t *testing.T) {
	t.Parallel()
	c := NewMockClock(start)
	tk := c.NewTicker(100 * time.Millisecond)

	c.Advance(50 * time.Millisecond)
	assert.Len(t, tk.C(), 0)
	c.Advance(50 * time.Millisecond)
	assert.Len(t, tk.C(), 1)
	<-tk.C()

	tk.Stop()
	c.Advance(time.Second)
	assert.Len(t, tk.C(), 0)
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	t.Run("elapses", func(t *testing.T) {
		c := NewMockClock(start)
		done := make(chan error, 1)
		go func() { done <- SleepContext(context.Background(), c, time.Second) }()

		require.Eventually(t, func() bool { return c.Waiters() == 1 }, time.Second, time.Millisecond)
		c.Advance(time.Second)
		assert.NoError(t, <-done)
	})

	t.Run("cancelled", func(t *testing.T) {
		c := NewMockClock(start)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, SleepContext(ctx, c, time.Hour), context.Canceled)
	})

	t.Run("zero duration", func(t *testing.T) {
		assert.NoError(t, SleepContext(context.Background(), RealClock{}, 0))
	})
}

func TestRealClock(t *testing.T) {
	t.Parallel()
	var c Clock = RealClock{}
	before := c.Now()
	<-c.After(time.Millisecond)
	assert.GreaterOrEqual(t, c.Since(before), time.Millisecond)

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	<-tk.C()
}
