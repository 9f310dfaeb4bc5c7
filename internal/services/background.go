package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eternalmemory/eternal/pkg/logger"
	"github.com/eternalmemory/eternal/pkg/metrics"
)

const defaultBackgroundTimeout = 5 * time.Second

// BackgroundTasks runs fire-and-forget work that must outlive the request that scheduled
// it. Tasks get a context detached from the caller's cancellation but bounded by timeout.
type BackgroundTasks struct {
	wg      sync.WaitGroup
	timeout time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewBackgroundTasks constructs a task runner. timeout <= 0 uses five seconds.
func NewBackgroundTasks(timeout time.Duration) *BackgroundTasks {
	if timeout <= 0 {
		timeout = defaultBackgroundTimeout
	}
	return &BackgroundTasks{
		timeout: timeout,
		log:     logger.WithModule("background"),
	}
}

// Go schedules fn. Errors and panics are logged and counted; nothing is returned to the
// caller. After Shutdown new tasks are dropped.
func (b *BackgroundTasks) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if b == nil || fn == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		metrics.BackgroundTasks.WithLabelValues(name, "dropped").Inc()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ensureContext(ctx)), b.timeout)
	go func() {
		defer b.wg.Done()
		defer cancel()

		if err := b.run(taskCtx, fn); err != nil {
			metrics.BackgroundTasks.WithLabelValues(name, "error").Inc()
			b.log.Warn("background task failed", zap.String("task", name), zap.Error(err))
			return
		}
		metrics.BackgroundTasks.WithLabelValues(name, "ok").Inc()
	}()
}

func (b *BackgroundTasks) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every scheduled task has finished.
func (b *BackgroundTasks) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones until ctx is done.
func (b *BackgroundTasks) Shutdown(ctx context.Context) error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ensureContext(ctx).Done():
		return fmt.Errorf("background tasks: %w", ctx.Err())
	}
}
