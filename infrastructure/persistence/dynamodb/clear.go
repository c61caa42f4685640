package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	batchSize  = 25
	maxRetries = 3
)

// ClearByPrefix removes every payload row whose key begins with
// prefixString. It scans the table for matching partition keys and deletes
// them in batches, retrying unprocessed items with the backoff described
// on batchDelete.
//
// A full-table Scan is the one place this adapter pays for DynamoDB's lack
// of a native prefix-query on partition keys; it is adequate for
// invalidation, an infrequent, non-latency-sensitive operation, but is not
// how the hot Get/Save path works.
func (a *Adapter) ClearByPrefix(ctx context.Context, prefixString string) error {
	pkPrefix := payloadTag + prefixString

	filter := expression.Name("PK").BeginsWith(pkPrefix)
	projection := expression.NamesList(expression.Name("PK"))
	expr, err := expression.NewBuilder().
		WithFilter(filter).
		WithProjection(projection).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build scan expression: %w", err)
	}

	var keys []string
	var lastKey map[string]types.AttributeValue

	for {
		out, err := a.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(a.tableName),
			FilterExpression:          expr.Filter(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return fmt.Errorf("failed to scan for prefix %q: %w", prefixString, err)
		}

		for _, item := range out.Items {
			if pk, ok := item["PK"].(*types.AttributeValueMemberS); ok {
				keys = append(keys, pk.Value)
			}
		}

		lastKey = out.LastEvaluatedKey
		if len(lastKey) == 0 {
			break
		}
	}

	return a.batchDelete(ctx, keys)
}

// batchDelete removes the given partition keys in batches of batchSize,
// making at most maxRetries BatchWriteItem attempts per batch and
// resubmitting any UnprocessedItems after a (retry²+1)×100ms backoff.
func (a *Adapter) batchDelete(ctx context.Context, pks []string) error {
	for start := 0; start < len(pks); start += batchSize {
		end := start + batchSize
		if end > len(pks) {
			end = len(pks)
		}
		if err := a.deleteBatch(ctx, pks[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) deleteBatch(ctx context.Context, pks []string) error {
	requests := make([]types.WriteRequest, 0, len(pks))
	for _, pk := range pks {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: pk},
				},
			},
		})
	}

	for retry := 0; retry < maxRetries; retry++ {
		result, err := a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{a.tableName: requests},
		})
		if err != nil {
			if !backoff(ctx, retry) {
				return ctx.Err()
			}
			continue
		}

		unprocessed := result.UnprocessedItems[a.tableName]
		if len(unprocessed) == 0 {
			return nil
		}

		requests = unprocessed
		if !backoff(ctx, retry) {
			return ctx.Err()
		}
	}

	return fmt.Errorf("failed to delete %d item(s) after %d attempts", len(requests), maxRetries)
}

func backoff(ctx context.Context, retry int) bool {
	delay := time.Duration(retry*retry+1) * 100 * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
