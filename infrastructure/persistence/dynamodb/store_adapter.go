// Package dynamodb implements the StoreAdapter port over a single
// DynamoDB table, payload rows and lock rows sharing the table but
// namespaced by distinct partition-key tags, grounded on this codebase's
// generic single-table repository pattern and its idempotency store's
// conditional-write lock primitive.
package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"cachecore/application/ports"
)

// payloadTag and lockTag namespace the shared table's partition key so a
// payload row and its lock row never collide, per the store adapter
// contract's recommended convention.
const (
	payloadTag = "sp#"
	lockTag    = "sp/lock#"

	ttlAttribute = "ExpiresAt"
)

// payloadItem is the DynamoDB row shape for a cached entry.
type payloadItem struct {
	PK            string `dynamodbav:"PK"`
	Value         string `dynamodbav:"Value"`
	CreatedAt     int64  `dynamodbav:"CreatedAt"`
	HardExpiresAt int64  `dynamodbav:"HardExpiresAt"`
	ExpiresAt     int64  `dynamodbav:"ExpiresAt"`
}

// Adapter implements ports.StoreAdapter over a single DynamoDB table.
type Adapter struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// New constructs a DynamoDB-backed Adapter.
func New(client *dynamodb.Client, tableName string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, tableName: tableName, logger: logger}
}

// GetItem returns a handle for keyString. The handle performs no I/O until
// Configure + Read are called.
func (a *Adapter) GetItem(ctx context.Context, keyString string) (ports.ItemHandle, error) {
	return &itemHandle{adapter: a, keyString: keyString}, nil
}

// Timestamps returns the createdAt/hardExpiresAt timestamps observed by the
// handle's most recent Read call.
func (a *Adapter) Timestamps(ctx context.Context, handle ports.ItemHandle) (time.Time, time.Time, error) {
	h, ok := handle.(*itemHandle)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("timestamps: handle not produced by this adapter")
	}
	if !h.loaded {
		return time.Time{}, time.Time{}, fmt.Errorf("timestamps: handle has not been read yet")
	}
	return h.createdAt, h.hardExpiresAt, nil
}

// Save stores value under handle's keyString with hard expiry ttlSec from
// now, setting DynamoDB's native TTL attribute to the same instant.
func (a *Adapter) Save(ctx context.Context, handle ports.ItemHandle, value interface{}, ttlSec int) error {
	h, ok := handle.(*itemHandle)
	if !ok {
		return fmt.Errorf("save: handle not produced by this adapter")
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	now := time.Now()
	hardExpiresAt := now.Add(time.Duration(ttlSec) * time.Second)

	item := payloadItem{
		PK:            payloadTag + h.keyString,
		Value:         string(encoded),
		CreatedAt:     now.Unix(),
		HardExpiresAt: hardExpiresAt.Unix(),
		ExpiresAt:     hardExpiresAt.Unix(),
	}

	itemMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal cache item: %w", err)
	}

	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName),
		Item:      itemMap,
	})
	if err != nil {
		return fmt.Errorf("failed to save cache item: %w", err)
	}

	h.loaded = true
	h.exists = true
	h.value = value
	h.createdAt = now
	h.hardExpiresAt = hardExpiresAt
	return nil
}

// DeleteExact removes exactly one entry, no prefix walk.
func (a *Adapter) DeleteExact(ctx context.Context, keyString string) error {
	_, err := a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(a.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: payloadTag + keyString},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache item: %w", err)
	}
	return nil
}

func (a *Adapter) getPayloadItem(ctx context.Context, keyString string) (*payloadItem, error) {
	result, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(a.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: payloadTag + keyString},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get cache item: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item payloadItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache item: %w", err)
	}
	return &item, nil
}
