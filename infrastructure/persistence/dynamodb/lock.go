package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	minLockTTLSec = 1
	maxLockTTLSec = 300
)

// lockItem is the DynamoDB row shape for a held single-flight lock.
type lockItem struct {
	PK        string `dynamodbav:"PK"`
	Holder    string `dynamodbav:"Holder"`
	ExpiresAt int64  `dynamodbav:"ExpiresAt"`
}

// TryLock attempts to acquire keyString's exclusive lock via a conditional
// PutItem that only succeeds when no unexpired lock row exists, so a lock
// whose TTL has elapsed is reclaimed by the next caller. The returned
// release deletes the row only while it still carries this acquisition's
// holder token.
func (a *Adapter) TryLock(ctx context.Context, keyString string, lockTTLSec int) (bool, func(context.Context) error, error) {
	if lockTTLSec < minLockTTLSec || lockTTLSec > maxLockTTLSec {
		return false, nil, fmt.Errorf("lock TTL %ds out of bounds [%d, %d]", lockTTLSec, minLockTTLSec, maxLockTTLSec)
	}

	pk := lockTag + keyString
	holder := uuid.NewString()
	expiresAt := time.Now().Add(time.Duration(lockTTLSec) * time.Second)

	item := lockItem{PK: pk, Holder: holder, ExpiresAt: expiresAt.Unix()}
	itemMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return false, nil, fmt.Errorf("failed to marshal lock item: %w", err)
	}

	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(a.tableName),
		Item:                itemMap,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Unix())},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	release := func(releaseCtx context.Context) error {
		_, err := a.client.DeleteItem(releaseCtx, &dynamodb.DeleteItemInput{
			TableName: aws.String(a.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: pk},
			},
			ConditionExpression: aws.String("Holder = :holder"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":holder": &types.AttributeValueMemberS{Value: holder},
			},
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				// Someone else already reclaimed the lock after our TTL
				// elapsed; nothing to release.
				return nil
			}
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}

	return true, release, nil
}
