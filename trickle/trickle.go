// Package trickle implements the Trickle algorithm (RFC 6206).
//
// The timer is a pure state machine: it never starts goroutines or reads the
// clock. Callers pass the current time in, schedule a wakeup at Deadline and
// call OnTimeout when it is reached.
package trickle

import (
	"math/rand/v2"
	"time"
)

type Timer struct {
	Imin      time.Duration
	Doublings uint8
	// K is the redundancy constant, 0 disables suppression
	K uint8

	I time.Duration
	C uint8

	start   time.Time
	t       time.Time
	fired   bool
	running bool
	rng     *rand.Rand
}

// New creates a stopped timer. rng may be nil, in which case a randomly seeded source is used.
func New(imin time.Duration, doublings uint8, k uint8, rng *rand.Rand) *Timer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Timer{
		Imin:      imin,
		Doublings: doublings,
		K:         k,
		rng:       rng,
	}
}

// MinInterval is the floor applied to Imin, a zero interval would fire continuously
const MinInterval = time.Millisecond

func (t *Timer) imin() time.Duration {
	return max(t.Imin, MinInterval)
}

// Imax is the largest interval the timer can reach
func (t *Timer) Imax() time.Duration {
	imax := t.imin()
	for i := uint8(0); i < t.Doublings; i++ {
		if imax > time.Duration(1<<62)/2 {
			break
		}
		imax *= 2
	}
	return imax
}

// Start begins the first interval at Imin. Starting a running timer restarts it.
func (t *Timer) Start(now time.Time) {
	t.running = true
	t.I = t.imin()
	t.beginInterval(now)
}

// Reset handles an inconsistency: the interval goes back to Imin and the
// counter is cleared, regardless of the current state.
func (t *Timer) Reset(now time.Time) {
	t.Start(now)
}

func (t *Timer) Stop() {
	t.running = false
}

func (t *Timer) Running() bool {
	return t.running
}

// IncrementConsistency records a consistent transmission heard from a neighbour
func (t *Timer) IncrementConsistency() {
	if t.C < ^uint8(0) {
		t.C++
	}
}

// Deadline returns the next instant the timer needs attention: the
// transmission point if it has not passed yet, otherwise the interval end.
func (t *Timer) Deadline() time.Time {
	if !t.fired {
		return t.t
	}
	return t.start.Add(t.I)
}

// IntervalEnd returns the end of the current interval
func (t *Timer) IntervalEnd() time.Time {
	return t.start.Add(t.I)
}

// OnTimeout processes every deadline that has passed at now. It returns true
// when the transmission point was reached during this call and the counter
// is below K, meaning the caller should transmit.
func (t *Timer) OnTimeout(now time.Time) bool {
	if !t.running {
		return false
	}
	transmit := false
	if !t.fired && !now.Before(t.t) {
		t.fired = true
		transmit = t.K == 0 || t.C < t.K
	}
	if t.fired && !now.Before(t.start.Add(t.I)) {
		end := t.start.Add(t.I)
		if imax := t.Imax(); t.I > imax/2 {
			t.I = imax
		} else {
			t.I *= 2
		}
		t.beginInterval(end)
	}
	return transmit
}

func (t *Timer) beginInterval(at time.Time) {
	t.start = at
	t.C = 0
	t.fired = false
	half := t.I / 2
	jitter := time.Duration(0)
	if t.I-half > 0 {
		jitter = time.Duration(t.rng.Int64N(int64(t.I - half)))
	}
	t.t = at.Add(half + jitter)
}
