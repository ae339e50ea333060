// Package gate provides a process-wide mutual exclusion lock with bounded
// wait and execution times, used to serialize operations that load and
// unload node wallets.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultWaitTimeout is the max time spent waiting to acquire the lock.
	DefaultWaitTimeout = 30 * time.Second
	// DefaultExecutionTimeout is the max time the lock can be held.
	DefaultExecutionTimeout = 5 * time.Minute
)

var (
	// ErrWaitTimeout is returned when the lock could not be acquired in time.
	ErrWaitTimeout = errors.New("timed out waiting for lock")
	// ErrExecutionTimeout is returned when the operation held the lock for
	// longer than allowed.
	ErrExecutionTimeout = errors.New("timed out executing locked operation")
)

// TimeoutError carries the name of the gate and the kind of timeout.
type TimeoutError struct {
	Gate    string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s after %s", e.Gate, e.Err, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Gate is a timed mutex. The zero value is not usable, use New.
type Gate struct {
	name             string
	waitTimeout      time.Duration
	executionTimeout time.Duration
	sem              *semaphore.Weighted
}

// New returns a gate with the given timeouts, defaults apply for zero values.
func New(name string, waitTimeout, executionTimeout time.Duration) *Gate {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	if executionTimeout <= 0 {
		executionTimeout = DefaultExecutionTimeout
	}
	return &Gate{
		name:             name,
		waitTimeout:      waitTimeout,
		executionTimeout: executionTimeout,
		sem:              semaphore.NewWeighted(1),
	}
}

// Run executes fn while holding the lock.
//
// If the lock can't be acquired within the wait timeout, ErrWaitTimeout is
// returned and fn is never called. If fn doesn't return within the
// execution timeout, its context is cancelled, the lock is released and
// ErrExecutionTimeout is returned. fn is expected to honor its context, the
// gate can't stop it otherwise.
func (g *Gate) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, g.waitTimeout)
	defer cancelWait()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimeoutError{g.name, g.waitTimeout, ErrWaitTimeout}
	}

	id := uuid.New().String()
	log.WithField("gate", g.name).WithField("holder", id).Trace("lock acquired")

	execCtx, cancelExec := context.WithTimeout(ctx, g.executionTimeout)
	done := make(chan error, 1)
	go func() {
		done <- fn(execCtx)
	}()

	release := func() {
		cancelExec()
		g.sem.Release(1)
		log.WithField("gate", g.name).WithField("holder", id).Trace("lock released")
	}

	var err error
	select {
	case err = <-done:
		release()
		if err == nil || !errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return err
		}
	case <-execCtx.Done():
		release()
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.WithField("gate", g.name).WithField("holder", id).Warnf(
		"operation exceeded execution timeout of %s, lock released",
		g.executionTimeout,
	)
	return &TimeoutError{g.name, g.executionTimeout, ErrExecutionTimeout}
}
