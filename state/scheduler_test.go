package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T) (*Env, chan func(*State) error, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() {
		cancel(nil)
	})
	dispatchChan := make(chan func(*State) error, 10)
	env := &Env{
		DispatchChannel: dispatchChan,
		Context:         ctx,
		Cancel:          cancel,
	}
	return env, dispatchChan, func() { cancel(nil) }
}

func TestDispatch(t *testing.T) {
	env, dispatchChan, _ := newTestEnv(t)
	s := &State{Env: env}

	called := false
	env.Dispatch(func(s *State) error {
		called = true
		return nil
	})

	select {
	case f := <-dispatchChan:
		require.NoError(t, f(s))
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for dispatched function")
	}
	assert.True(t, called)
}

func TestDispatchAfterCancelIsDropped(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(t)
	cancel()

	env.Dispatch(func(s *State) error {
		return nil
	})
	assert.Empty(t, dispatchChan)
}

func TestDispatchWait(t *testing.T) {
	env, dispatchChan, _ := newTestEnv(t)
	s := &State{Env: env}

	go func() {
		f := <-dispatchChan
		_ = f(s)
	}()

	res, err := env.DispatchWait(func(s *State) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}

func TestDispatchWaitReturnsError(t *testing.T) {
	env, dispatchChan, _ := newTestEnv(t)
	s := &State{Env: env}
	fail := errors.New("lookup failed")

	go func() {
		f := <-dispatchChan
		// the error belongs to the caller, the main loop must keep running
		assert.NoError(t, f(s))
	}()

	_, err := env.DispatchWait(func(s *State) (any, error) {
		return nil, fail
	})
	assert.ErrorIs(t, err, fail)
}

func TestScheduleTask(t *testing.T) {
	env, dispatchChan, _ := newTestEnv(t)
	s := &State{Env: env}

	taskCalled := false
	env.ScheduleTask(func(s *State) error {
		taskCalled = true
		return nil
	}, 50*time.Millisecond)

	select {
	case f := <-dispatchChan:
		require.NoError(t, f(s))
	case <-time.After(time.Second):
		t.Fatal("no task was scheduled")
	}
	assert.True(t, taskCalled)
}

func TestScheduleTaskStopped(t *testing.T) {
	env, dispatchChan, _ := newTestEnv(t)

	timer := env.ScheduleTask(func(s *State) error {
		return nil
	}, 50*time.Millisecond)
	assert.True(t, timer.Stop())

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, dispatchChan)
}

func TestRepeatTask(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(t)
	s := &State{Env: env}

	count := 0
	env.RepeatTask(func(s *State) error {
		count++
		if count >= 3 {
			cancel()
		}
		return nil
	}, 20*time.Millisecond)

loop:
	for {
		select {
		case f := <-dispatchChan:
			require.NoError(t, f(s))
		case <-env.Context.Done():
			break loop
		case <-time.After(500 * time.Millisecond):
			t.Fatal("timed out waiting for RepeatTask to execute")
		}
	}
	assert.Equal(t, 3, count)
}
