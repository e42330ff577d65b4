package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shinyyama/dm-api/internal/model"
	"github.com/shinyyama/dm-api/internal/repository"
)

const (
	// IndexTo is the Global Secondary Index keyed by recipient. Partition key:
	// to, projection: ALL.
	IndexTo = "to-index"

	// IndexInReplyTo is the Global Secondary Index keyed by parent message id.
	// Partition key: in-reply-to, projection: ALL.
	IndexInReplyTo = "in-reply-to-index"

	// PartitionKey is the table's hash key attribute name.
	PartitionKey = "messageId"

	// SortKey is the table's range key attribute name.
	SortKey = "timestamp"

	ToAttr         = "to"
	InReplyToAttr  = "in-reply-to"
	NumRecordsAttr = "numRecords"

	typeIDDM    = "dm"
	typeIDReply = "rep"

	// maxBackoff is the maximum backoff duration for retry loops.
	maxBackoff = 2 * time.Second
)

// API is the subset of the DynamoDB client used by [Client].
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// item is the stored shape of every record in the table.
type item struct {
	MessageID    string            `dynamodbav:"messageId"`
	Timestamp    string            `dynamodbav:"timestamp"`
	TypeID       string            `dynamodbav:"typeId,omitempty"`
	To           string            `dynamodbav:"to,omitempty"`
	From         string            `dynamodbav:"from,omitempty"`
	Message      string            `dynamodbav:"message,omitempty"`
	InReplyTo    string            `dynamodbav:"in-reply-to,omitempty"`
	QuickReplies map[string]string `dynamodbav:"quickReplies,omitempty"`
	NumRecords   string            `dynamodbav:"numRecords,omitempty"`
}

// Client is the DynamoDB-backed [repository.MessageRepository].
//
// Use [New] to create a Client, [Client.Connect] to initialize the underlying
// DynamoDB connection, and [Client.Init] to validate the table schema.
type Client struct {
	client    API
	tableName string
	awsCfg    *aws.Config
	opts      *Options
}

var (
	_ repository.MessageRepository = (*Client)(nil)
	_ repository.Resetter          = (*Client)(nil)
)

// New creates a new Client for the given AWS config and table name. Call
// [Client.Connect] on the returned client before use.
func New(awsCfg *aws.Config, tableName string, opts ...Option) *Client {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Client{
		awsCfg:    awsCfg,
		tableName: tableName,
		opts:      options,
	}
}

// Connect initializes the DynamoDB client from the AWS config provided to [New].
func (c *Client) Connect() error {
	if err := c.opts.validate(); err != nil {
		return fmt.Errorf("invalid DynamoDB options: %w", err)
	}

	if c.opts.dynamoDBAPI != nil {
		c.client = c.opts.dynamoDBAPI
		return nil
	}

	if c.awsCfg == nil {
		return errors.New("aws config cannot be nil")
	}

	c.client = dynamodb.NewFromConfig(*c.awsCfg, func(o *dynamodb.Options) {
		if c.opts.endpoint != "" {
			o.BaseEndpoint = aws.String(c.opts.endpoint)
		}
	})

	return nil
}

// GetByID returns the record with the given id. The range key is not known to
// callers, so this is a query on the hash key; the oldest match wins.
func (c *Client) GetByID(ctx context.Context, id string) (model.Record, error) {
	if c.client == nil {
		return nil, repository.ErrDBNotReady
	}

	if id == "" {
		return nil, errors.New("message id cannot be empty")
	}

	input := &dynamodb.QueryInput{
		TableName:              &c.tableName,
		KeyConditionExpression: aws.String("#pk = :id"),
		ExpressionAttributeNames: map[string]string{
			"#pk": PartitionKey,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":id": &dynamodbtypes.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
		Limit:          aws.Int32(1),
	}

	output, err := c.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query DynamoDB table %s: %w", c.tableName, err)
	}

	if len(output.Items) == 0 {
		return nil, repository.ErrNotFound
	}

	return decodeRecord(output.Items[0])
}

// ListByRecipient returns every record addressed to username via [IndexTo].
// The index is eventually consistent, so very recent writes may be missing.
func (c *Client) ListByRecipient(ctx context.Context, username string) ([]model.Record, error) {
	if c.client == nil {
		return nil, repository.ErrDBNotReady
	}

	items, err := c.queryIndex(ctx, IndexTo, ToAttr, username)
	if err != nil {
		return nil, err
	}

	out := make([]model.Record, 0, len(items))
	for _, it := range items {
		rec, err := decodeRecord(it)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	return out, nil
}

// ListByParent returns every reply whose in-reply-to is parentID via
// [IndexInReplyTo].
func (c *Client) ListByParent(ctx context.Context, parentID string) ([]*model.Reply, error) {
	if c.client == nil {
		return nil, repository.ErrDBNotReady
	}

	items, err := c.queryIndex(ctx, IndexInReplyTo, InReplyToAttr, parentID)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Reply, 0, len(items))
	for _, it := range items {
		rec, err := decodeRecord(it)
		if err != nil {
			return nil, err
		}
		if reply, ok := rec.(*model.Reply); ok {
			out = append(out, reply)
		}
	}

	return out, nil
}

// Insert writes a new record. It fails with [repository.ErrConflict] when a
// record with the same messageId and timestamp already exists.
func (c *Client) Insert(ctx context.Context, rec model.Record) error {
	if c.client == nil {
		return repository.ErrDBNotReady
	}

	attributes, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName:           &c.tableName,
		Item:                attributes,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": PartitionKey,
		},
	}

	if _, err := c.client.PutItem(ctx, input); err != nil {
		var condErr *dynamodbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to write message %s to DynamoDB table %s: %w", rec.RecordID(), c.tableName, err)
	}

	return nil
}

func (c *Client) GetCounter(ctx context.Context) (*model.Counter, error) {
	rec, err := c.GetByID(ctx, model.CounterID)
	if err != nil {
		return nil, err
	}

	counter, ok := rec.(*model.Counter)
	if !ok {
		return nil, fmt.Errorf("record %s in table %s is not a counter", model.CounterID, c.tableName)
	}

	return counter, nil
}

// IncrementCounter sets numRecords to current.RecordCount+1 on the counter
// identified by current.Timestamp, provided numRecords still equals
// current.RecordCount. A mismatch yields [repository.ErrCounterConflict]; a
// missing counter yields [repository.ErrNotFound].
func (c *Client) IncrementCounter(ctx context.Context, current *model.Counter) (*model.Counter, error) {
	if c.client == nil {
		return nil, repository.ErrDBNotReady
	}

	if current == nil {
		return nil, errors.New("counter cannot be nil")
	}

	next := current.RecordCount + 1

	input := &dynamodb.UpdateItemInput{
		TableName:           &c.tableName,
		Key:                 counterKey(current.Timestamp),
		UpdateExpression:    aws.String("SET #n = :next"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND #n = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#pk": PartitionKey,
			"#n":  NumRecordsAttr,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":next":     &dynamodbtypes.AttributeValueMemberS{Value: strconv.FormatUint(next, 10)},
			":expected": &dynamodbtypes.AttributeValueMemberS{Value: strconv.FormatUint(current.RecordCount, 10)},
		},
		ReturnValuesOnConditionCheckFailure: dynamodbtypes.ReturnValuesOnConditionCheckFailureAllOld,
	}

	if _, err := c.client.UpdateItem(ctx, input); err != nil {
		var condErr *dynamodbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if len(condErr.Item) == 0 {
				return nil, repository.ErrNotFound
			}
			return nil, repository.ErrCounterConflict
		}
		return nil, fmt.Errorf("failed to increment counter in DynamoDB table %s: %w", c.tableName, err)
	}

	return &model.Counter{Timestamp: current.Timestamp, RecordCount: next}, nil
}

// UpdateCounter unconditionally sets numRecords on the existing counter.
func (c *Client) UpdateCounter(ctx context.Context, newCount uint64) error {
	counter, err := c.GetCounter(ctx)
	if err != nil {
		return err
	}

	input := &dynamodb.UpdateItemInput{
		TableName:           &c.tableName,
		Key:                 counterKey(counter.Timestamp),
		UpdateExpression:    aws.String("SET #n = :count"),
		ConditionExpression: aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": PartitionKey,
			"#n":  NumRecordsAttr,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":count": &dynamodbtypes.AttributeValueMemberS{Value: strconv.FormatUint(newCount, 10)},
		},
	}

	if _, err := c.client.UpdateItem(ctx, input); err != nil {
		var condErr *dynamodbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to update counter in DynamoDB table %s: %w", c.tableName, err)
	}

	return nil
}

func (c *Client) queryIndex(ctx context.Context, indexName, attr, value string) ([]map[string]dynamodbtypes.AttributeValue, error) {
	if value == "" {
		return nil, fmt.Errorf("%s cannot be empty", attr)
	}

	input := &dynamodb.QueryInput{
		TableName:              &c.tableName,
		IndexName:              aws.String(indexName),
		KeyConditionExpression: aws.String("#k = :v"),
		ExpressionAttributeNames: map[string]string{
			"#k": attr,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":v": &dynamodbtypes.AttributeValueMemberS{Value: value},
		},
	}

	var items []map[string]dynamodbtypes.AttributeValue

	paginator := dynamodb.NewQueryPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query index %s on DynamoDB table %s: %w", indexName, c.tableName, err)
		}
		items = append(items, page.Items...)
	}

	return items, nil
}

func counterKey(timestamp string) map[string]dynamodbtypes.AttributeValue {
	return map[string]dynamodbtypes.AttributeValue{
		PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: model.CounterID},
		SortKey:      &dynamodbtypes.AttributeValueMemberS{Value: timestamp},
	}
}

func encodeRecord(rec model.Record) (map[string]dynamodbtypes.AttributeValue, error) {
	var it item

	switch m := rec.(type) {
	case *model.Counter:
		it = item{
			MessageID:  model.CounterID,
			Timestamp:  m.Timestamp,
			NumRecords: strconv.FormatUint(m.RecordCount, 10),
		}
	case *model.DirectMessage:
		it = item{
			MessageID:    m.ID,
			Timestamp:    m.Timestamp,
			TypeID:       typeIDDM,
			To:           m.To,
			From:         m.From,
			Message:      m.Body,
			QuickReplies: m.QuickReplies,
		}
	case *model.Reply:
		it = item{
			MessageID: m.ID,
			Timestamp: m.Timestamp,
			TypeID:    typeIDReply,
			To:        m.To,
			From:      m.From,
			Message:   m.Body,
			InReplyTo: m.ParentID,
		}
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}

	if it.MessageID == "" || it.Timestamp == "" {
		return nil, errors.New("message id and timestamp cannot be empty")
	}

	attributes, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message %s: %w", it.MessageID, err)
	}

	return attributes, nil
}

func decodeRecord(attributes map[string]dynamodbtypes.AttributeValue) (model.Record, error) {
	var it item
	if err := attributevalue.UnmarshalMap(attributes, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if it.MessageID == model.CounterID {
		count, err := strconv.ParseUint(it.NumRecords, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter has invalid %s %q: %w", NumRecordsAttr, it.NumRecords, err)
		}
		return &model.Counter{Timestamp: it.Timestamp, RecordCount: count}, nil
	}

	switch it.TypeID {
	case typeIDReply:
		return &model.Reply{
			ID:        it.MessageID,
			Timestamp: it.Timestamp,
			ParentID:  it.InReplyTo,
			To:        it.To,
			From:      it.From,
			Body:      it.Message,
		}, nil
	case typeIDDM:
		return &model.DirectMessage{
			ID:           it.MessageID,
			Timestamp:    it.Timestamp,
			To:           it.To,
			From:         it.From,
			Body:         it.Message,
			QuickReplies: it.QuickReplies,
		}, nil
	default:
		return nil, fmt.Errorf("message %s has unknown typeId %q", it.MessageID, it.TypeID)
	}
}
