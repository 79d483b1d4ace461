package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"design-coach/internal/domain"
)

type fakeDynamo struct {
	txErr       error
	lastTxInput *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

var recordedAt = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

func sampleTurn() domain.Turn {
	user := domain.Message{Role: domain.RoleUser, Content: "we have a problem", Timestamp: recordedAt.Add(-time.Second)}
	assistant := domain.Message{Role: domain.RoleAssistant, Content: "tell me about the problem", Timestamp: recordedAt}
	return domain.Turn{
		SessionID:  "abc",
		Number:     3,
		User:       user,
		Assistant:  assistant,
		Progress:   map[string]bool{"problem": true, "persona": false},
		Percentage: 50,
		History:    []domain.Message{user, assistant},
		CreatedAt:  recordedAt.Add(-time.Hour),
		RecordedAt: recordedAt,
	}
}

func strValue(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %q is not a string", key)
	return v.Value
}

func numValue(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberN)
	require.True(t, ok, "attribute %q is not a number", key)
	return v.Value
}

func TestNewDynamo_Validation(t *testing.T) {
	_, err := NewDynamo(nil, "table")
	require.Error(t, err)
	_, err = NewDynamo(&fakeDynamo{}, " ")
	require.Error(t, err)
}

func TestDynamoArchive_SaveTurn(t *testing.T) {
	db := &fakeDynamo{}
	a, err := NewDynamo(db, "test-table")
	require.NoError(t, err)

	require.NoError(t, a.SaveTurn(context.Background(), sampleTurn()))
	require.NotNil(t, db.lastTxInput)
	require.Len(t, db.lastTxInput.TransactItems, 2)

	turnPut := db.lastTxInput.TransactItems[0].Put
	require.Equal(t, "test-table", *turnPut.TableName)
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *turnPut.ConditionExpression)
	require.Equal(t, "SESSION#abc", strValue(t, turnPut.Item, "PK"))
	require.Equal(t, "TURN#000003", strValue(t, turnPut.Item, "SK"))
	require.Equal(t, "we have a problem", strValue(t, turnPut.Item, "user"))
	require.Equal(t, "tell me about the problem", strValue(t, turnPut.Item, "assistant"))
	require.Equal(t, "50", numValue(t, turnPut.Item, "percentage"))
	require.Equal(t, "2", numValue(t, turnPut.Item, "messagesTotal"))

	progress, ok := turnPut.Item["progress"].(*types.AttributeValueMemberM)
	require.True(t, ok)
	problem, ok := progress.Value["problem"].(*types.AttributeValueMemberBOOL)
	require.True(t, ok)
	require.True(t, problem.Value)

	metaPut := db.lastTxInput.TransactItems[1].Put
	require.Nil(t, metaPut.ConditionExpression)
	require.Equal(t, "META#", strValue(t, metaPut.Item, "SK"))
	require.Equal(t, "3", numValue(t, metaPut.Item, "turns"))
	require.Equal(t, "2025-05-01T09:30:00Z", strValue(t, metaPut.Item, "lastActivity"))
}

func TestDynamoArchive_TTLIsThirtyDaysFromRecord(t *testing.T) {
	db := &fakeDynamo{}
	a, err := NewDynamo(db, "test-table")
	require.NoError(t, err)
	require.NoError(t, a.SaveTurn(context.Background(), sampleTurn()))

	want := recordedAt.Add(30 * 24 * time.Hour).Unix()
	item := db.lastTxInput.TransactItems[0].Put.Item
	require.Equal(t, numberAttr(want).Value, numValue(t, item, "ttl"))
}

func TestDynamoArchive_SaveTurnValidation(t *testing.T) {
	a, err := NewDynamo(&fakeDynamo{}, "test-table")
	require.NoError(t, err)

	turn := sampleTurn()
	turn.SessionID = ""
	require.Error(t, a.SaveTurn(context.Background(), turn))

	turn = sampleTurn()
	turn.Number = 0
	require.Error(t, a.SaveTurn(context.Background(), turn))
}

func TestDynamoArchive_SaveTurnError(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("transaction canceled")}
	a, err := NewDynamo(db, "test-table")
	require.NoError(t, err)

	err = a.SaveTurn(context.Background(), sampleTurn())
	require.Error(t, err)
	require.Contains(t, err.Error(), "SaveTurn")
	require.Contains(t, err.Error(), "transaction canceled")
}
