package conversation

import (
	"context"
	"time"
)

// Mutex is a per-pod binary semaphore with two acquisition modes: an
// unbounded wait, or a bounded wait that reports unavailability on
// timeout. It is not re-entrant. Implemented as a 1-buffered channel
// rather than a raw sync.Mutex so both Acquire and TryAcquire can select
// against ctx.Done() and a timeout.
type Mutex struct {
	slot chan struct{}
}

// NewMutex returns a ready-to-use, unlocked Mutex.
func NewMutex() *Mutex {
	m := &Mutex{slot: make(chan struct{}, 1)}
	m.slot <- struct{}{}
	return m
}

// Acquire blocks until the mutex is available or ctx is done.
func (m *Mutex) Acquire(ctx context.Context) error {
	select {
	case <-m.slot:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire attempts to acquire the mutex, waiting up to timeout. It
// returns (true, nil) on success and (false, nil) on timeout — timeout is
// not an error, it is the documented "unavailable" outcome callers use to
// reject a conversation request on a busy pod. A timeout of zero means
// unbounded wait.
func (m *Mutex) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		if err := m.Acquire(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-m.slot:
		return true, nil
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
}

// Release returns the single permit. Callers must call it exactly once per
// successful Acquire/TryAcquire — Conversation's scoped release
// (internal/conversation.Conversation.Release) guarantees this on every
// exit path.
func (m *Mutex) Release() {
	m.slot <- struct{}{}
}
