package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shinyyama/dm-api/internal/repository"
)

// Init validates the table schema: the table must exist and be active, use
// messageId/timestamp as its key, and carry both [IndexTo] and
// [IndexInReplyTo] with an ALL projection.
func (c *Client) Init(ctx context.Context) error {
	if c.client == nil {
		return repository.ErrDBNotReady
	}

	response, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err != nil {
		var notFoundError *dynamodbtypes.ResourceNotFoundException
		if errors.As(err, &notFoundError) {
			return fmt.Errorf("table %s does not exist", c.tableName)
		}
		return fmt.Errorf("failed to describe table %s: %w", c.tableName, err)
	}

	table := response.Table
	if table == nil {
		return fmt.Errorf("table %s has no description", c.tableName)
	}

	if len(table.KeySchema) < 2 {
		return fmt.Errorf("table %s has a simple primary key, expected composite", c.tableName)
	}

	if aws.ToString(table.KeySchema[0].AttributeName) != PartitionKey {
		return fmt.Errorf("table %s has partition key %s, expected %s", c.tableName, aws.ToString(table.KeySchema[0].AttributeName), PartitionKey)
	}

	if aws.ToString(table.KeySchema[1].AttributeName) != SortKey {
		return fmt.Errorf("table %s has sort key %s, expected %s", c.tableName, aws.ToString(table.KeySchema[1].AttributeName), SortKey)
	}

	if table.TableStatus != dynamodbtypes.TableStatusActive {
		return fmt.Errorf("table %s is not active (status: %s)", c.tableName, table.TableStatus)
	}

	if err := verifySecondaryIndex(table, IndexTo, ToAttr); err != nil {
		return err
	}

	return verifySecondaryIndex(table, IndexInReplyTo, InReplyToAttr)
}

// Reset empties the table, creating it first when it does not exist. It is
// used by the seed command and must not run against live data.
func (c *Client) Reset(ctx context.Context) error {
	if c.client == nil {
		return repository.ErrDBNotReady
	}

	_, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err == nil {
		return c.dropAllData(ctx)
	}

	var notFoundError *dynamodbtypes.ResourceNotFoundException
	if !errors.As(err, &notFoundError) {
		return fmt.Errorf("failed to describe table %s: %w", c.tableName, err)
	}

	return c.createTable(ctx)
}

func (c *Client) createTable(ctx context.Context) error {
	indexThroughput := &dynamodbtypes.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(1),
		WriteCapacityUnits: aws.Int64(1),
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(c.tableName),
		KeySchema: []dynamodbtypes.KeySchemaElement{
			{AttributeName: aws.String(PartitionKey), KeyType: dynamodbtypes.KeyTypeHash},
			{AttributeName: aws.String(SortKey), KeyType: dynamodbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []dynamodbtypes.AttributeDefinition{
			{AttributeName: aws.String(PartitionKey), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(SortKey), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(ToAttr), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(InReplyToAttr), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []dynamodbtypes.GlobalSecondaryIndex{
			{
				IndexName:             aws.String(IndexTo),
				KeySchema:             []dynamodbtypes.KeySchemaElement{{AttributeName: aws.String(ToAttr), KeyType: dynamodbtypes.KeyTypeHash}},
				Projection:            &dynamodbtypes.Projection{ProjectionType: dynamodbtypes.ProjectionTypeAll},
				ProvisionedThroughput: indexThroughput,
			},
			{
				IndexName:             aws.String(IndexInReplyTo),
				KeySchema:             []dynamodbtypes.KeySchemaElement{{AttributeName: aws.String(InReplyToAttr), KeyType: dynamodbtypes.KeyTypeHash}},
				Projection:            &dynamodbtypes.Projection{ProjectionType: dynamodbtypes.ProjectionTypeAll},
				ProvisionedThroughput: indexThroughput,
			},
		},
		ProvisionedThroughput: &dynamodbtypes.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(c.opts.readCapacity),
			WriteCapacityUnits: aws.Int64(c.opts.writeCapacity),
		},
	}

	if _, err := c.client.CreateTable(ctx, input); err != nil {
		return fmt.Errorf("failed to create DynamoDB table %s: %w", c.tableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)}, c.opts.tableWaitPeriod); err != nil {
		return fmt.Errorf("table %s did not become active: %w", c.tableName, err)
	}

	return nil
}

// dropAllData scans the table in pages and removes each page with
// BatchWriteItem, backing off exponentially on unprocessed items.
func (c *Client) dropAllData(ctx context.Context) error {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(c.tableName),
		ProjectionExpression: aws.String("#pk, #sk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": PartitionKey,
			"#sk": SortKey,
		},
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		output, err := c.client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to scan DynamoDB table %s: %w", c.tableName, err)
		}

		// Process items in batches of 25 (DynamoDB BatchWriteItem limit).
		for i := 0; i < len(output.Items); i += 25 {
			end := min(i+25, len(output.Items))

			requestItems := make([]dynamodbtypes.WriteRequest, 0, end-i)
			for _, it := range output.Items[i:end] {
				requestItems = append(requestItems, dynamodbtypes.WriteRequest{
					DeleteRequest: &dynamodbtypes.DeleteRequest{
						Key: map[string]dynamodbtypes.AttributeValue{
							PartitionKey: it[PartitionKey],
							SortKey:      it[SortKey],
						},
					},
				})
			}

			if err := c.batchWrite(ctx, requestItems); err != nil {
				return err
			}
		}

		if output.LastEvaluatedKey == nil {
			break
		}

		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	return nil
}

func (c *Client) batchWrite(ctx context.Context, requestItems []dynamodbtypes.WriteRequest) error {
	batchInput := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]dynamodbtypes.WriteRequest{
			c.tableName: requestItems,
		},
	}

	const maxRetries = 5
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := c.client.BatchWriteItem(ctx, batchInput)
		if err != nil {
			return fmt.Errorf("failed to batch write items to DynamoDB table %s: %w", c.tableName, err)
		}

		if len(result.UnprocessedItems) == 0 {
			return nil
		}

		if attempt == maxRetries {
			return fmt.Errorf("%d unprocessed items after %d retries",
				len(result.UnprocessedItems[c.tableName]), maxRetries)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
		batchInput.RequestItems = result.UnprocessedItems
	}

	return nil
}

func verifySecondaryIndex(table *dynamodbtypes.TableDescription, indexName, partitionKey string) error {
	for _, index := range table.GlobalSecondaryIndexes {
		if aws.ToString(index.IndexName) != indexName {
			continue
		}

		if len(index.KeySchema) == 0 || aws.ToString(index.KeySchema[0].AttributeName) != partitionKey {
			return fmt.Errorf("global secondary index %s does not have partition key %s", indexName, partitionKey)
		}

		if index.IndexStatus != "" && index.IndexStatus != dynamodbtypes.IndexStatusActive {
			return fmt.Errorf("global secondary index %s is not active (status: %s)", indexName, index.IndexStatus)
		}

		if index.Projection == nil || index.Projection.ProjectionType != dynamodbtypes.ProjectionTypeAll {
			return fmt.Errorf("global secondary index %s must project all attributes", indexName)
		}

		return nil
	}

	return fmt.Errorf("global secondary index %s not found", indexName)
}
