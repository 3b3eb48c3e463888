package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/kbediako/sikaflow/internal/aws"
)

// CallerIndex is the GSI used for per-caller queries (msisdn PK, created_at SK).
const CallerIndex = "msisdn-created_at-index"

// ErrStatusMismatch indicates a conditional status transition failed because
// the stored status was not the expected one (a concurrent actor got there
// first).
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// ErrDuplicateTurn indicates the turn guard record already exists: this exact
// terminal turn was processed before.
var ErrDuplicateTurn = errors.New("duplicate terminal turn")

// Store encapsulates operations on the transactions and turn-guard tables.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	turnTable string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore creates a transaction Store.
func NewStore(client aws.DynamoDBAPI, tableName, turnTable string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		turnTable: turnTable,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// CreateWithTurnGuard atomically creates the turn-guard record and the
// transaction in one TransactWriteItems call. The turn record carries
// ConditionExpression attribute_not_exists(turn_key), so a replayed turn
// cancels the whole transaction write and returns ErrDuplicateTurn.
func (s *Store) CreateWithTurnGuard(ctx context.Context, turnKey string, t *Transaction) error {
	now := s.nowFunc()
	rec := TurnRecord{
		TurnKey:       turnKey,
		TransactionID: t.TransactionID,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(s.ttlWindow).Unix(),
	}
	recMap, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal turn record: %w", err)
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	txnMap, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.turnTable,
					Item:                recMap,
					ConditionExpression: awsString("attribute_not_exists(turn_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                txnMap,
					ConditionExpression: awsString("attribute_not_exists(transaction_id)"),
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return ErrDuplicateTurn
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// GetTurn retrieves a turn-guard record. Returns (nil, nil) if not found.
func (s *Store) GetTurn(ctx context.Context, turnKey string) (*TurnRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.turnTable,
		Key: map[string]types.AttributeValue{
			"turn_key": &types.AttributeValueMemberS{Value: turnKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get turn record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec TurnRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal turn record: %w", err)
	}
	return &rec, nil
}

// SaveTurnResponse stores the terminal reply on the turn record so a
// duplicate delivery can be answered with the original outcome.
func (s *Store) SaveTurnResponse(ctx context.Context, turnKey, response string) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.turnTable,
		Key: map[string]types.AttributeValue{
			"turn_key": &types.AttributeValueMemberS{Value: turnKey},
		},
		UpdateExpression: awsString("SET #r = :r, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#r": "response",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":r":  &types.AttributeValueMemberS{Value: response},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("save turn response: %w", err)
	}
	return nil
}

// Get fetches a transaction by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, transactionID string) (*Transaction, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"transaction_id": &types.AttributeValueMemberS{Value: transactionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var t Transaction
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &t, nil
}

// UpdateStatus conditionally transitions a transaction from expected to
// newStatus, recording an error reason when given. Returns ErrStatusMismatch
// if the stored status differs from expected.
func (s *Store) UpdateStatus(ctx context.Context, transactionID string, expected, newStatus Status, errorReason string) error {
	now := s.nowFunc()
	expr := "SET #s = :new, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
		":expected": &types.AttributeValueMemberS{Value: string(expected)},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
	}
	if errorReason != "" {
		expr += ", error_reason = :er"
		values[":er"] = &types.AttributeValueMemberS{Value: errorReason}
	}
	if newStatus == StatusCompleted || newStatus == StatusFailed {
		expr += ", completed_at = :ca"
		values[":ca"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)}
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"transaction_id": &types.AttributeValueMemberS{Value: transactionID},
		},
		UpdateExpression:          &expr,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("#s = :expected"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// RecentByCaller returns the caller's most recent transactions, newest first.
func (s *Store) RecentByCaller(ctx context.Context, msisdn string, limit int32) ([]Transaction, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(CallerIndex),
		KeyConditionExpression: awsString("msisdn = :m"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m": &types.AttributeValueMemberS{Value: msisdn},
		},
		ScanIndexForward: awsBool(false),
		Limit:            &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	items := make([]Transaction, 0, len(out.Items))
	for _, item := range out.Items {
		var t Transaction
		if err := attributevalue.UnmarshalMap(item, &t); err != nil {
			return nil, fmt.Errorf("unmarshal transaction: %w", err)
		}
		items = append(items, t)
	}
	return items, nil
}

// SumCompletedSince sums completed transaction amounts for a caller from
// `since` onward. Used for rolling daily/monthly limit checks; only
// terminal-success transactions count toward the caps.
func (s *Store) SumCompletedSince(ctx context.Context, msisdn string, since time.Time) (int64, error) {
	var total int64
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(CallerIndex),
			KeyConditionExpression: awsString("msisdn = :m AND created_at >= :since"),
			FilterExpression:       awsString("#s = :completed"),
			ExpressionAttributeNames: map[string]string{
				"#s": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":m":         &types.AttributeValueMemberS{Value: msisdn},
				":since":     &types.AttributeValueMemberS{Value: since.UTC().Format(time.RFC3339Nano)},
				":completed": &types.AttributeValueMemberS{Value: string(StatusCompleted)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("query completed sum: %w", err)
		}
		for _, item := range out.Items {
			var t Transaction
			if err := attributevalue.UnmarshalMap(item, &t); err != nil {
				return 0, fmt.Errorf("unmarshal transaction: %w", err)
			}
			total += t.AmountMinor
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return total, nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
