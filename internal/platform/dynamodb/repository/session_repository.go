package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	commonErrors "github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/dynamodb/client"
)

const (
	sessionType = "reconciliation_session"

	// MaxSessionPayload keeps session items below the DynamoDB item size limit
	MaxSessionPayload = 350 * 1024
)

// DynamoDBSessionStore implements the reconciliation.SessionStore interface. The session is
// stored as one JSON payload guarded by a version attribute; expired items are removed by
// the table TTL on ExpiresAt and ignored until then.
type DynamoDBSessionStore struct {
	client     client.Client
	table      string
	logger     *zap.Logger
	now        func() time.Time
	maxPayload int
}

// NewDynamoDBSessionStore creates a new DynamoDBSessionStore
func NewDynamoDBSessionStore(client client.Client, table string, logger *zap.Logger) *DynamoDBSessionStore {
	return &DynamoDBSessionStore{
		client:     client,
		table:      table,
		logger:     logger,
		now:        time.Now,
		maxPayload: MaxSessionPayload,
	}
}

func sessionKey(key reconciliation.SessionKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("SESSION#%s#USER#%s", key.OrganizationID, key.UserID)},
		"SK": &types.AttributeValueMemberS{Value: "ACCOUNT#" + key.AccountID},
	}
}

// Load returns the live session for the key
func (s *DynamoDBSessionStore) Load(ctx context.Context, key reconciliation.SessionKey) (*reconciliation.Session, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            sessionKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeError("failed to load reconciliation session", err)
	}
	if len(out.Item) == 0 {
		return nil, commonErrors.NewNotFoundError("reconciliation session not found")
	}

	expiresAt, err := numberAttr(out.Item, "ExpiresAt")
	if err != nil {
		return nil, commonErrors.NewInternalError("corrupt reconciliation session", err)
	}
	if expiresAt > 0 && expiresAt <= s.now().Unix() {
		return nil, commonErrors.NewNotFoundError("reconciliation session expired")
	}
	version, err := numberAttr(out.Item, "Version")
	if err != nil {
		return nil, commonErrors.NewInternalError("corrupt reconciliation session", err)
	}
	payload, ok := out.Item["Payload"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, commonErrors.NewInternalError("corrupt reconciliation session", errors.New("missing payload"))
	}

	var session reconciliation.Session
	if err := json.Unmarshal(payload.Value, &session); err != nil {
		return nil, commonErrors.NewInternalError("failed to decode reconciliation session", err)
	}
	session.Version = version
	return &session, nil
}

// Save writes the session if nobody else saved it since it was loaded
func (s *DynamoDBSessionStore) Save(ctx context.Context, session *reconciliation.Session) error {
	expected := session.Version
	session.Version = expected + 1

	payload, stored, err := s.encode(session)
	if err != nil {
		session.Version = expected
		return err
	}

	item := sessionKey(session.Key)
	item["Type"] = &types.AttributeValueMemberS{Value: sessionType}
	item["Payload"] = &types.AttributeValueMemberB{Value: payload}
	item["Version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(session.Version, 10)}
	item["ExpiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(session.ExpiresAt.Unix(), 10)}

	cond := expression.Or(
		expression.AttributeNotExists(expression.Name("PK")),
		expression.Name("Version").Equal(expression.Value(expected)),
		expression.Name("ExpiresAt").LessThanEqual(expression.Value(s.now().Unix())),
	)
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		session.Version = expected
		return commonErrors.NewInternalError("failed to build session condition", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		session.Version = expected
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return commonErrors.NewConflictError("session was modified concurrently").
				WithDetail("expectedVersion", expected)
		}
		return storeError("failed to save reconciliation session", err)
	}
	if stored != session {
		session.Source = stored.Source
		session.Warnings = stored.Warnings
	}
	return nil
}

// Delete removes the session
func (s *DynamoDBSessionStore) Delete(ctx context.Context, key reconciliation.SessionKey) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       sessionKey(key),
	})
	if err != nil {
		return storeError("failed to delete reconciliation session", err)
	}
	return nil
}

// encode serializes the session. An oversized payload is stored without the original file,
// which then has to be imported again before confirming. The returned session is the one that
// was encoded.
func (s *DynamoDBSessionStore) encode(session *reconciliation.Session) ([]byte, *reconciliation.Session, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return nil, nil, commonErrors.NewInternalError("failed to encode reconciliation session", err)
	}
	if len(payload) <= s.maxPayload || !session.SourceAvailable() {
		return payload, session, nil
	}

	s.logger.Warn("session payload too large, dropping statement source",
		zap.String("accountId", session.Key.AccountID),
		zap.Int("payloadBytes", len(payload)),
		zap.Int("sourceBytes", len(session.Source.Data)))

	trimmed := *session
	trimmed.DropSource()
	payload, err = json.Marshal(&trimmed)
	if err != nil {
		return nil, nil, commonErrors.NewInternalError("failed to encode reconciliation session", err)
	}
	return payload, &trimmed, nil
}

func numberAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	av, ok := item[name]
	if !ok {
		return 0, nil
	}
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %s is not a number", name)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}
