// Package workerpool implements an in-process EventBus: a bounded queue
// drained by a small pool of goroutines, for single-process deployments
// and tests that should not depend on an external message bus. Dispatch
// only enqueues; the worker goroutines do all handling.
package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cachecore/application/ports"
)

// Bus is an in-process EventBus. Dispatch enqueues and returns
// immediately; a pool of workers drains the queue and invokes the
// configured handler. If the queue is full, Dispatch drops the oldest
// event to make room rather than blocking the caller, so an event dropped
// on overflow is never delivered.
type Bus struct {
	handler ports.EventHandler
	logger  *zap.Logger

	queue   chan ports.AsyncEvent
	workers int

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Bus with the given queue depth and worker count. The
// handler is typically an *events.Registry routing to one or more engines.
func New(handler ports.EventHandler, logger *zap.Logger, queueDepth, workers int) *Bus {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handler: handler,
		logger:  logger,
		queue:   make(chan ports.AsyncEvent, queueDepth),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker pool. Safe to call once.
func (b *Bus) Start() {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.loop()
	}
}

// Stop signals workers to drain and exit, then waits for them.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.wg.Wait()
}

// Dispatch enqueues event without blocking on downstream processing. If the
// queue is full, the oldest queued event is dropped to make room (and if
// the queue is still full, event itself is dropped) — this bus favors
// availability of the caller over delivery of every event. Dropped events
// are logged and not retried.
func (b *Bus) Dispatch(ctx context.Context, event ports.AsyncEvent) error {
	select {
	case b.queue <- event:
		return nil
	default:
	}

	select {
	case <-b.queue:
		b.logger.Warn("workerpool bus queue full, dropped oldest event")
	default:
	}

	select {
	case b.queue <- event:
	default:
		b.logger.Warn("workerpool bus queue still full, dropping event", zap.Bool("exact", event.Exact))
	}
	return nil
}

func (b *Bus) loop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			b.drain()
			return
		case event := <-b.queue:
			b.handle(event)
		}
	}
}

// drain processes any events left in the queue once a stop is requested,
// bounded by the queue's current contents (no new Dispatch calls are
// expected to race a shutdown in normal operation).
func (b *Bus) drain() {
	for {
		select {
		case event := <-b.queue:
			b.handle(event)
		default:
			return
		}
	}
}

func (b *Bus) handle(event ports.AsyncEvent) {
	if err := b.handler.Handle(context.Background(), event); err != nil {
		b.logger.Error("workerpool bus: handler returned an error", zap.Error(err))
	}
}
