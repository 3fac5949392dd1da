package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aretw0/settle/pkg/ports"
)

// Attribute names of the single-table layout. Buffers and timer markers share
// the table; the partition key is the store key ("msg:<k>" or "timer:<k>").
const (
	attrPK        = "pk"
	attrMessages  = "messages"
	attrValue     = "value"
	attrExpiresAt = "expires_at" // unix milliseconds, checked on read
	attrTTL       = "ttl"        // unix seconds, for DynamoDB TTL cleanup
)

// dynamodbAPI is the minimal DynamoDB interface required by Store.
// *awsdynamodb.Client satisfies it.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *awsdynamodb.GetItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *awsdynamodb.PutItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *awsdynamodb.UpdateItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *awsdynamodb.DeleteItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.DeleteItemOutput, error)
}

// Store implements ports.ConversationStore on a DynamoDB table with a string
// partition key named "pk". DynamoDB's own TTL sweep is lazy (up to days), so
// expiry is enforced on read from expires_at.
type Store struct {
	api       dynamodbAPI
	tableName string
	prefix    string
	now       func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix namespaces every partition key.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

var (
	_ ports.ConversationStore = (*Store)(nil)
	_ ports.Drainer           = (*Store)(nil)
)

// New creates a Store over api.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Store, error) {
	if api == nil {
		return nil, errors.New("dynamodb: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamodb: table name must not be empty")
	}
	s := &Store{api: api, tableName: tableName, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open loads the default AWS configuration and creates a Store for tableName.
// endpoint overrides the service URL (DynamoDB Local); leave empty for AWS.
func Open(ctx context.Context, tableName, endpoint string, opts ...Option) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
	}
	client := awsdynamodb.NewFromConfig(cfg, func(o *awsdynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client, tableName, opts...)
}

func (s *Store) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: s.prefix + key},
	}
}

func (s *Store) get(ctx context.Context, key string) (map[string]types.AttributeValue, error) {
	out, err := s.api.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out.Item, nil
}

// Exists reports whether key holds a list or an unexpired value.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	item, err := s.get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("dynamodb: exists %q: %w", key, err)
	}
	if len(item) == 0 {
		return false, nil
	}
	expiresAt, ok, err := numAttr(item, attrExpiresAt)
	if err != nil {
		return false, fmt.Errorf("dynamodb: exists %q: %w", key, err)
	}
	if ok && s.now().UnixMilli() >= expiresAt {
		return false, nil
	}
	return true, nil
}

// ListAll returns the buffered messages in append order.
func (s *Store) ListAll(ctx context.Context, key string) ([]string, error) {
	item, err := s.get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: list %q: %w", key, err)
	}
	messages, err := listAttr(item)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: list %q: %w", key, err)
	}
	return messages, nil
}

// ListAppend appends value with list_append, which DynamoDB applies atomically.
func (s *Store) ListAppend(ctx context.Context, key, value string) error {
	_, err := s.api.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              s.itemKey(key),
		UpdateExpression: aws.String("SET #m = list_append(if_not_exists(#m, :empty), :v)"),
		ExpressionAttributeNames: map[string]string{
			"#m": attrMessages,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":v": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: value},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb: append %q: %w", key, err)
	}
	return nil
}

// SetWithExpiry replaces the item at key with value and a fresh expiry.
func (s *Store) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	item := s.itemKey(key)
	item[attrValue] = &types.AttributeValueMemberS{Value: value}
	if ttl > 0 {
		expiresAt := s.now().Add(ttl)
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.UnixMilli(), 10)}
		item[attrTTL] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix()+1, 10)}
	}
	_, err := s.api.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb: set %q: %w", key, err)
	}
	return nil
}

// Delete removes the item at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("dynamodb: delete %q: %w", key, err)
	}
	return nil
}

// Drain deletes the buffer and returns what it held, in one request.
func (s *Store) Drain(ctx context.Context, key string) ([]string, error) {
	out, err := s.api.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          s.itemKey(key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: drain %q: %w", key, err)
	}
	var old map[string]types.AttributeValue
	if out != nil {
		old = out.Attributes
	}
	messages, err := listAttr(old)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: drain %q: %w", key, err)
	}
	return messages, nil
}

func listAttr(item map[string]types.AttributeValue) ([]string, error) {
	v, ok := item[attrMessages]
	if !ok {
		return []string{}, nil
	}
	l, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("attribute %q is not a list", attrMessages)
	}
	out := make([]string, 0, len(l.Value))
	for i, el := range l.Value {
		s, ok := el.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("attribute %q[%d] is not a string", attrMessages, i)
		}
		out = append(out, s.Value)
	}
	return out, nil
}

func numAttr(item map[string]types.AttributeValue, key string) (int64, bool, error) {
	v, ok := item[key]
	if !ok {
		return 0, false, nil
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, true, nil
}
