package txn

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory stand-in for the DynamoDB client covering
// the expressions the Store issues. Not production-grade.
type mockDynamo struct {
	mu     sync.Mutex
	pkAttr map[string]string                                   // table -> partition key attribute
	tables map[string]map[string]map[string]types.AttributeValue // table -> pk -> item
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		pkAttr: map[string]string{
			"transactions": "transaction_id",
			"turns":        "turn_key",
		},
		tables: map[string]map[string]map[string]types.AttributeValue{
			"transactions": {},
			"turns":        {},
		},
	}
}

func (m *mockDynamo) itemKey(table string, item map[string]types.AttributeValue) (string, error) {
	attr, ok := item[m.pkAttr[table]]
	if !ok {
		return "", errors.New("missing partition key")
	}
	s, ok := attr.(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("partition key is not a string")
	}
	return s.Value, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	k, err := m.itemKey(table, params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && strings.Contains(*params.ConditionExpression, "attribute_not_exists") {
		if _, exists := m.tables[table][k]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.tables[table][k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	k, err := m.itemKey(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	k, err := m.itemKey(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][k]
	if !ok {
		return nil, errors.New("item not found")
	}

	if params.ConditionExpression != nil && strings.Contains(*params.ConditionExpression, "#s = :expected") {
		expected := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS).Value
		current, ok := item["status"].(*types.AttributeValueMemberS)
		if !ok || current.Value != expected {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	// Apply the value keys the Store's update expressions use.
	apply := map[string]string{
		":new": "status",
		":ua":  "updated_at",
		":er":  "error_reason",
		":ca":  "completed_at",
		":r":   "response",
	}
	for valueKey, attr := range apply {
		if v, ok := params.ExpressionAttributeValues[valueKey]; ok {
			item[attr] = v
		}
	}
	m.tables[table][k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check every condition before applying anything: all or nothing.
	for _, ti := range params.TransactItems {
		if ti.Put == nil {
			return nil, errors.New("only Put transact items are supported")
		}
		table := *ti.Put.TableName
		k, err := m.itemKey(table, ti.Put.Item)
		if err != nil {
			return nil, err
		}
		if ti.Put.ConditionExpression != nil && strings.Contains(*ti.Put.ConditionExpression, "attribute_not_exists") {
			if _, exists := m.tables[table][k]; exists {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	for _, ti := range params.TransactItems {
		table := *ti.Put.TableName
		k, _ := m.itemKey(table, ti.Put.Item)
		m.tables[table][k] = ti.Put.Item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// Query supports the caller-index expressions: msisdn equality, optional
// created_at lower bound, optional completed-status filter.
func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName

	msisdn := params.ExpressionAttributeValues[":m"].(*types.AttributeValueMemberS).Value
	var since string
	if strings.Contains(*params.KeyConditionExpression, "created_at >=") {
		since = params.ExpressionAttributeValues[":since"].(*types.AttributeValueMemberS).Value
	}
	var wantStatus string
	if params.FilterExpression != nil {
		wantStatus = params.ExpressionAttributeValues[":completed"].(*types.AttributeValueMemberS).Value
	}

	var matches []map[string]types.AttributeValue
	for _, item := range m.tables[table] {
		mv, ok := item["msisdn"].(*types.AttributeValueMemberS)
		if !ok || mv.Value != msisdn {
			continue
		}
		created := item["created_at"].(*types.AttributeValueMemberS).Value
		if since != "" && created < since {
			continue
		}
		if wantStatus != "" {
			st, ok := item["status"].(*types.AttributeValueMemberS)
			if !ok || st.Value != wantStatus {
				continue
			}
		}
		matches = append(matches, item)
	}

	desc := params.ScanIndexForward != nil && !*params.ScanIndexForward
	sort.Slice(matches, func(i, j int) bool {
		a := matches[i]["created_at"].(*types.AttributeValueMemberS).Value
		b := matches[j]["created_at"].(*types.AttributeValueMemberS).Value
		if desc {
			return a > b
		}
		return a < b
	})

	if params.Limit != nil && int32(len(matches)) > *params.Limit {
		matches = matches[:*params.Limit]
	}
	return &dyn.QueryOutput{Items: matches}, nil
}
