// Package events provides a small per-domain routing registry so a single
// worker process can host several cache domains (each backed by its own
// engine.Engine) behind one event bus subscription.
package events

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"cachecore/application/ports"
)

// Registry routes a dispatched AsyncEvent to the handler registered for its
// domain. Handler errors are logged but never rethrown into bus
// infrastructure, matching the async contract.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]ports.EventHandler
	logger   *zap.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[string]ports.EventHandler),
		logger:   logger,
	}
}

// Register associates domain with handler, overwriting any prior
// registration for the same domain.
func (r *Registry) Register(domain string, handler ports.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[domain] = handler
}

// Unregister removes domain's handler, if any.
func (r *Registry) Unregister(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, domain)
}

var _ ports.EventHandler = (*Registry)(nil)

// Handle routes event to the handler registered for its domain. The
// domain is read from event.Key.Domain() for exact/refresh events, or from
// the first segment of event.Prefix for prefix-scoped invalidations. Handle
// itself satisfies ports.EventHandler, so a Registry can be passed directly
// to an EventBus as its sink.
func (r *Registry) Handle(ctx context.Context, event ports.AsyncEvent) error {
	domain := domainOf(event)

	r.mu.RLock()
	handler, ok := r.handlers[domain]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("no handler registered for domain, dropping event", zap.String("domain", domain))
		return nil
	}

	if err := handler.Handle(ctx, event); err != nil {
		r.logger.Error("event handler failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return nil
	}
	return nil
}

func domainOf(event ports.AsyncEvent) string {
	if event.Exact || event.Refresh {
		return event.Key.Domain()
	}
	first := event.Prefix
	if idx := strings.IndexByte(first, '/'); idx >= 0 {
		first = first[:idx]
	}
	if decoded, err := url.PathUnescape(first); err == nil {
		return decoded
	}
	return first
}

// Stats returns the number of registered domains, useful for health checks.
func (r *Registry) Stats() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("%d domain(s) registered", len(r.handlers))
}
