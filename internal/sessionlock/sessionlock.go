// Package sessionlock serializes turns per session. Turns for different
// sessions run in parallel; two turns for the same session never overlap.
package sessionlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a session lock could not be acquired before
// the wait deadline.
var ErrLockTimeout = errors.New("sessionlock: timed out waiting for session lock")

// DefaultWait bounds how long Lock waits for a busy session.
const DefaultWait = 30 * time.Second

// Locker acquires per-session locks. The returned function releases the lock
// and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// LocalLocker serializes sessions within one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
	wait  time.Duration
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker. A non-positive wait selects DefaultWait.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &LocalLocker{locks: make(map[string]*entry), wait: wait}
}

// Lock blocks until the session is free, ctx is done, or the wait expires.
func (l *LocalLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[sessionID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, e, false)
		return nil, ctx.Err()
	case <-timer.C:
		l.release(sessionID, e, false)
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, sessionID)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(sessionID, e, true) })
	}, nil
}

func (l *LocalLocker) release(sessionID string, e *entry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, sessionID)
	}
}
