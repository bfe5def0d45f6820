package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// entryItem is the table layout: partition key document_id, sort key sk
// (occurrence time then entry id).
type entryItem struct {
	DocumentID string `dynamodbav:"document_id"`
	SortKey    string `dynamodbav:"sk"`
	ID         string `dynamodbav:"id"`
	Action     string `dynamodbav:"action"`
	Actor      string `dynamodbav:"actor"`
	IPAddress  string `dynamodbav:"ip_address,omitempty"`
	UserAgent  string `dynamodbav:"user_agent,omitempty"`
	Detail     string `dynamodbav:"detail,omitempty"`
	OccurredAt string `dynamodbav:"occurred_at"`
}

// DynamoRecorder keeps the access log in a DynamoDB table.
type DynamoRecorder struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoRecorder(cfg aws.Config, tableName string) *DynamoRecorder {
	return &DynamoRecorder{client: dynamodb.NewFromConfig(cfg), tableName: tableName}
}

func toItem(e Entry) entryItem {
	occurred := e.OccurredAt.UTC().Format(time.RFC3339Nano)
	return entryItem{
		DocumentID: e.DocumentID.String(),
		SortKey:    occurred + "#" + e.ID.String(),
		ID:         e.ID.String(),
		Action:     string(e.Action),
		Actor:      e.Actor,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		Detail:     e.Detail,
		OccurredAt: occurred,
	}
}

func fromItem(item entryItem) (Entry, error) {
	docID, err := uuid.Parse(item.DocumentID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse document_id: %w", err)
	}
	id, err := uuid.Parse(item.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse id: %w", err)
	}
	occurred, err := time.Parse(time.RFC3339Nano, item.OccurredAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse occurred_at: %w", err)
	}
	return Entry{
		ID:         id,
		DocumentID: docID,
		Action:     Action(item.Action),
		Actor:      item.Actor,
		IPAddress:  item.IPAddress,
		UserAgent:  item.UserAgent,
		Detail:     item.Detail,
		OccurredAt: occurred,
	}, nil
}

func (r *DynamoRecorder) Record(ctx context.Context, entry Entry) error {
	entry.fill()
	av, err := attributevalue.MarshalMap(toItem(entry))
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put audit entry: %w", err)
	}
	return nil
}

// List returns a document's entries oldest first.
func (r *DynamoRecorder) List(ctx context.Context, documentID uuid.UUID) ([]Entry, error) {
	var entries []Entry
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("document_id = :d"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":d": &types.AttributeValueMemberS{Value: documentID.String()},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query audit entries: %w", err)
		}

		var items []entryItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit entries: %w", err)
		}
		for _, item := range items {
			e, err := fromItem(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}

		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
