package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
)

const defaultEffectTimeout = 10 * time.Second

// EffectError is a failed best-effort task.
type EffectError struct {
	Name string
	Err  error
}

// Effects runs best-effort side effects (rating increments, backup writes)
// outside the request that triggered them. Failures are logged, never
// returned to the caller.
type Effects struct {
	logger   *slog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
	errs     chan EffectError
	done     chan struct{}
	failures atomic.Int64

	mu     sync.Mutex
	closed bool
}

func NewEffects(logger *slog.Logger) *Effects {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Effects{
		logger:  logger,
		timeout: defaultEffectTimeout,
		errs:    make(chan EffectError, 64),
		done:    make(chan struct{}),
	}
	go e.drain()
	return e
}

// Go starts fn detached from ctx cancellation. Values on ctx are kept.
func (e *Effects) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warn("effect dropped after shutdown", slog.String("effect", name))
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("panic: %v", r)
				}
			}()
			return fn(taskCtx)
		}()
		if err != nil {
			e.failures.Add(1)
			e.errs <- EffectError{Name: name, Err: err}
		}
	}()
}

// Wait blocks until every started effect has finished.
func (e *Effects) Wait() {
	e.wg.Wait()
}

// Failures is the number of effects that returned an error since start.
func (e *Effects) Failures() int64 {
	return e.failures.Load()
}

// Close waits for in-flight effects and stops the error drain.
func (e *Effects) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	close(e.errs)
	<-e.done
}

func (e *Effects) drain() {
	defer close(e.done)
	for fe := range e.errs {
		e.logger.Error("best-effort effect failed",
			slog.String("effect", fe.Name),
			slog.String("error", fe.Err.Error()),
		)
	}
}
