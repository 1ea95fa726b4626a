package trickle

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Unix(1700000000, 0)

func newTestTimer(doublings, k uint8) *Timer {
	return New(8*time.Millisecond, doublings, k, rand.New(rand.NewPCG(1, 2)))
}

func TestStart(t *testing.T) {
	tm := newTestTimer(20, 10)
	assert.False(t, tm.Running())
	tm.Start(epoch)
	assert.True(t, tm.Running())
	assert.Equal(t, tm.Imin, tm.I)
	assert.Equal(t, uint8(0), tm.C)
	d := tm.Deadline()
	assert.False(t, d.Before(epoch.Add(tm.Imin/2)))
	assert.True(t, d.Before(epoch.Add(tm.Imin)))
}

func TestTransmissionPointIsInSecondHalf(t *testing.T) {
	tm := newTestTimer(4, 10)
	tm.Start(epoch)
	for range 50 {
		start := tm.IntervalEnd().Add(-tm.I)
		tp := tm.Deadline()
		assert.False(t, tp.Before(start.Add(tm.I/2)))
		assert.True(t, tp.Before(start.Add(tm.I)))
		tm.OnTimeout(tm.IntervalEnd())
	}
}

func TestBoundedDoubling(t *testing.T) {
	const doublings = 6
	tm := newTestTimer(doublings, 10)
	tm.Start(epoch)
	for n := 0; n <= 12; n++ {
		assert.Equal(t, tm.Imin*time.Duration(1<<min(n, doublings)), tm.I, "after %d intervals", n)
		now := tm.Deadline()
		assert.True(t, tm.OnTimeout(now))
		// interval end is the next deadline once the transmission point passed
		assert.Equal(t, tm.IntervalEnd(), tm.Deadline())
		assert.False(t, tm.OnTimeout(tm.Deadline()))
	}
	assert.Equal(t, tm.Imax(), tm.I)
}

func TestResetAlwaysReturnsToImin(t *testing.T) {
	tm := newTestTimer(20, 10)
	tm.Start(epoch)
	now := epoch
	for range 5 {
		now = tm.IntervalEnd()
		tm.OnTimeout(now)
	}
	tm.IncrementConsistency()
	tm.IncrementConsistency()
	assert.Greater(t, tm.I, tm.Imin)

	tm.Reset(now)
	assert.Equal(t, tm.Imin, tm.I)
	assert.Equal(t, uint8(0), tm.C)

	// resetting at Imin still restarts the interval
	tm.IncrementConsistency()
	later := now.Add(time.Millisecond)
	tm.Reset(later)
	assert.Equal(t, tm.Imin, tm.I)
	assert.Equal(t, uint8(0), tm.C)
	assert.False(t, tm.Deadline().Before(later.Add(tm.Imin/2)))
}

func TestSuppression(t *testing.T) {
	tm := newTestTimer(20, 2)
	tm.Start(epoch)
	tm.IncrementConsistency()
	tm.IncrementConsistency()
	assert.False(t, tm.OnTimeout(tm.Deadline()), "c >= k must suppress")

	// the counter is cleared for the next interval
	tm.OnTimeout(tm.Deadline())
	assert.Equal(t, uint8(0), tm.C)
	tm.IncrementConsistency()
	assert.True(t, tm.OnTimeout(tm.Deadline()))
}

func TestZeroRedundancyNeverSuppresses(t *testing.T) {
	tm := newTestTimer(20, 0)
	tm.Start(epoch)
	for range 20 {
		tm.IncrementConsistency()
	}
	assert.True(t, tm.OnTimeout(tm.Deadline()))
}

func TestEarlyTimeoutIsNoop(t *testing.T) {
	tm := newTestTimer(20, 10)
	tm.Start(epoch)
	d := tm.Deadline()
	assert.False(t, tm.OnTimeout(epoch))
	assert.Equal(t, d, tm.Deadline())
	assert.True(t, tm.OnTimeout(d))
	// the same transmission point never fires twice
	assert.False(t, tm.OnTimeout(d))
}

func TestStoppedTimer(t *testing.T) {
	tm := newTestTimer(20, 10)
	tm.Start(epoch)
	tm.Stop()
	assert.False(t, tm.OnTimeout(epoch.Add(time.Hour)))
	assert.False(t, tm.Running())
}

func TestZeroIminAdvancesTime(t *testing.T) {
	tm := New(0, 20, 10, rand.New(rand.NewPCG(1, 2)))
	tm.Start(epoch)
	assert.Equal(t, MinInterval, tm.I)
	assert.Greater(t, tm.Imax(), time.Duration(0))
	now := epoch
	for range 4 {
		tm.OnTimeout(tm.Deadline())
		assert.True(t, tm.Deadline().After(now))
		now = tm.Deadline()
	}
}

func TestHugeIntervalsSaturate(t *testing.T) {
	tm := New(time.Duration(1)<<40*time.Millisecond, 255, 0, rand.New(rand.NewPCG(1, 2)))
	tm.Start(epoch)
	imax := tm.Imax()
	assert.Greater(t, imax, time.Duration(0))
	for range 64 {
		tm.OnTimeout(tm.IntervalEnd())
		assert.Greater(t, tm.I, time.Duration(0))
		assert.LessOrEqual(t, tm.I, imax)
	}
	assert.Equal(t, imax, tm.I)
}
