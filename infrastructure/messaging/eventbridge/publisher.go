// Package eventbridge implements the EventBus port over AWS EventBridge,
// for deployments that want asynchronous invalidation/refresh delivered
// through an external, durable bus rather than an in-process queue.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"cachecore/application/ports"
)

const (
	eventSource   = "cachecore"
	detailTypeTag = "AsyncEvent"
)

// wireEvent is the JSON shape published to EventBridge's Detail field.
type wireEvent struct {
	KeyString string `json:"keyString,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Exact     bool   `json:"exact"`
	Refresh   bool   `json:"refresh"`
	Cascade   bool   `json:"cascade"`
}

// Bus publishes AsyncEvents to an EventBridge event bus. Subscriptions
// (rules/targets routing back to a consumer) are managed externally via
// infrastructure-as-code; this type only implements the publish side.
type Bus struct {
	client       *eventbridge.Client
	eventBusName string
	logger       *zap.Logger
}

// New constructs an EventBridge-backed Bus.
func New(client *eventbridge.Client, eventBusName string, logger *zap.Logger) ports.EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{client: client, eventBusName: eventBusName, logger: logger}
}

// Dispatch sends a single AsyncEvent to EventBridge. Dispatch is
// non-blocking from the caller's perspective only in the sense required by
// the contract (it does not wait for a consumer to process the event); the
// PutEvents call itself is a single network round trip.
func (b *Bus) Dispatch(ctx context.Context, event ports.AsyncEvent) error {
	we := wireEvent{Prefix: event.Prefix, Exact: event.Exact, Refresh: event.Refresh, Cascade: event.Cascade}
	if event.Exact || event.Refresh {
		we.KeyString = event.Key.String()
	}

	detail, err := json.Marshal(we)
	if err != nil {
		return fmt.Errorf("failed to marshal async event: %w", err)
	}

	input := &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(b.eventBusName),
				Source:       aws.String(eventSource),
				DetailType:   aws.String(detailTypeTag),
				Detail:       aws.String(string(detail)),
				Time:         aws.Time(time.Now()),
			},
		},
	}

	result, err := b.client.PutEvents(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to publish async event to EventBridge: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				b.logger.Error("failed to publish async event",
					zap.String("errorCode", *entry.ErrorCode),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d async event(s) failed to publish", result.FailedEntryCount)
	}

	return nil
}
