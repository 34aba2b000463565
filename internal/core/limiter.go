package core

// limiter.go serializes mutating units of work.
//
// Imports, restores and reconciliations each hold one slot for their whole
// run. With the default single slot they never overlap; a request that cannot
// get the slot within maxWait fails with ErrBusy. WaitForDrain supports
// graceful shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when another mutation holds the ledger and the wait
// timeout expires. Clients should retry after a short delay.
var ErrBusy = errors.New("ledger busy: too many uploads in progress")

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// MutationLimiter is a counting semaphore guarding ledger mutations.
type MutationLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewMutationLimiter allows at most slots concurrent mutations. slots <= 0
// means one.
func NewMutationLimiter(slots int, maxWait time.Duration) *MutationLimiter {
	if slots <= 0 {
		slots = 1
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &MutationLimiter{
		semaphore: make(chan struct{}, slots),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot. The caller must Release it exactly once.
func (l *MutationLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrBusy
	}
}

// Release frees a slot taken by Acquire.
func (l *MutationLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// ActiveCount returns the number of mutations in flight.
func (l *MutationLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no mutation is in flight or ctx is done.
func (l *MutationLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	Slots     int `json:"slots"`
}

// Status returns the current limiter state.
func (l *MutationLimiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return LimiterStatus{
		Active:    active,
		Available: cap(l.semaphore) - len(l.semaphore),
		Slots:     cap(l.semaphore),
	}
}
