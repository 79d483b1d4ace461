package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"design-coach/internal/domain"
)

const (
	pkPrefixSession = "SESSION#"
	skPrefixTurn    = "TURN#"
	skMeta          = "META#"
	ttlDuration     = 30 * 24 * time.Hour // 30-day TTL
)

// DynamoDBAPI is the minimal DynamoDB interface required by DynamoArchive.
type DynamoDBAPI interface {
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoArchive writes turns into a single table keyed by session. Each turn
// is its own TURN# item next to a META# item summarizing the session.
type DynamoArchive struct {
	api       DynamoDBAPI
	tableName string
}

// NewDynamo creates a DynamoDB-backed archive.
func NewDynamo(api DynamoDBAPI, tableName string) (*DynamoArchive, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoArchive{api: api, tableName: tableName}, nil
}

func sessionPK(sessionID string) string {
	return pkPrefixSession + sessionID
}

// turnSK zero-pads the turn number so items sort in turn order.
func turnSK(n int) string {
	return fmt.Sprintf("%s%06d", skPrefixTurn, n)
}

func ttlValue(from time.Time) int64 {
	return from.Add(ttlDuration).Unix()
}

// SaveTurn writes the turn and the updated session metadata in one
// transaction. A turn number is written at most once.
func (a *DynamoArchive) SaveTurn(ctx context.Context, turn domain.Turn) error {
	if turn.SessionID == "" || turn.Number <= 0 {
		return errors.New("repository: SaveTurn: session id and turn number are required")
	}

	_, err := a.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(a.tableName),
					Item:                turnItem(turn),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(a.tableName),
					Item:      metaItem(turn),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

func (a *DynamoArchive) Close() error { return nil }

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: sessionPK(turn.SessionID)},
		"SK":            &types.AttributeValueMemberS{Value: turnSK(turn.Number)},
		"sessionId":     &types.AttributeValueMemberS{Value: turn.SessionID},
		"turn":          numberAttr(int64(turn.Number)),
		"user":          &types.AttributeValueMemberS{Value: turn.User.Content},
		"userAt":        &types.AttributeValueMemberS{Value: turn.User.Timestamp.UTC().Format(time.RFC3339Nano)},
		"assistant":     &types.AttributeValueMemberS{Value: turn.Assistant.Content},
		"assistantAt":   &types.AttributeValueMemberS{Value: turn.Assistant.Timestamp.UTC().Format(time.RFC3339Nano)},
		"percentage":    numberAttr(int64(turn.Percentage)),
		"progress":      progressAttr(turn.Progress),
		"recordedAt":    &types.AttributeValueMemberS{Value: turn.RecordedAt.UTC().Format(time.RFC3339)},
		"ttl":           numberAttr(ttlValue(turn.RecordedAt)),
		"messagesTotal": numberAttr(int64(len(turn.History))),
	}
}

func metaItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: sessionPK(turn.SessionID)},
		"SK":           &types.AttributeValueMemberS{Value: skMeta},
		"sessionId":    &types.AttributeValueMemberS{Value: turn.SessionID},
		"createdAt":    &types.AttributeValueMemberS{Value: turn.CreatedAt.UTC().Format(time.RFC3339)},
		"lastActivity": &types.AttributeValueMemberS{Value: turn.RecordedAt.UTC().Format(time.RFC3339)},
		"turns":        numberAttr(int64(turn.Number)),
		"percentage":   numberAttr(int64(turn.Percentage)),
		"ttl":          numberAttr(ttlValue(turn.RecordedAt)),
	}
}

func progressAttr(progress map[string]bool) *types.AttributeValueMemberM {
	m := make(map[string]types.AttributeValue, len(progress))
	for k, v := range progress {
		m[k] = &types.AttributeValueMemberBOOL{Value: v}
	}
	return &types.AttributeValueMemberM{Value: m}
}

func numberAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}
