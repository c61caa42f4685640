package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cachecore/application/ports"
	"cachecore/domain/key"
)

// Consumer decodes EventBridge-delivered AsyncEvents and routes them to a
// local handler (typically an *events.Registry). It mirrors the
// dispatch-locally-and-swallow-errors shape used elsewhere in this
// codebase for bridging an external bus to in-process handling: local
// dispatch failures are logged, not propagated, since this keeps retries
// and redelivery entirely the external bus's concern.
type Consumer struct {
	handler ports.EventHandler
	logger  *zap.Logger
}

// NewConsumer constructs a Consumer wrapping handler.
func NewConsumer(handler ports.EventHandler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{handler: handler, logger: logger}
}

// HandleDetail decodes a single EventBridge Detail payload (as delivered to
// a Lambda target or a polling consumer) and dispatches it locally.
func (c *Consumer) HandleDetail(ctx context.Context, detail []byte) error {
	var we wireEvent
	if err := json.Unmarshal(detail, &we); err != nil {
		return fmt.Errorf("failed to unmarshal async event detail: %w", err)
	}

	event := ports.AsyncEvent{Prefix: we.Prefix, Exact: we.Exact, Refresh: we.Refresh, Cascade: we.Cascade}
	if we.Exact || we.Refresh {
		k, err := key.FromString(we.KeyString)
		if err != nil {
			return fmt.Errorf("failed to parse async event key: %w", err)
		}
		built, err := k.Build()
		if err != nil {
			return fmt.Errorf("failed to rebuild async event key: %w", err)
		}
		event.Key = built
	}

	start := time.Now()
	err := c.handler.Handle(ctx, event)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("local dispatch of async event failed",
			zap.Bool("exact", event.Exact),
			zap.Bool("refresh", event.Refresh),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		// Swallow: redelivery/retry is the external bus's concern, not
		// this consumer's.
		return nil
	}

	c.logger.Debug("async event dispatched locally",
		zap.Bool("exact", event.Exact),
		zap.Bool("refresh", event.Refresh),
		zap.Duration("duration", duration),
	)
	return nil
}
