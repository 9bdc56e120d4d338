package repository

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	commonErrors "github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/dynamodb/client"
)

const (
	auditType     = "reconciliation_audit"
	auditSKPrefix = "AUDIT#"
)

// DynamoDBAuditRepository implements the reconciliation.AuditRepository interface
type DynamoDBAuditRepository struct {
	client client.Client
	table  string
	logger *zap.Logger
}

// NewDynamoDBAuditRepository creates a new DynamoDBAuditRepository
func NewDynamoDBAuditRepository(client client.Client, table string, logger *zap.Logger) *DynamoDBAuditRepository {
	return &DynamoDBAuditRepository{
		client: client,
		table:  table,
		logger: logger,
	}
}

// Create stores an audit record. Records are write-once.
func (r *DynamoDBAuditRepository) Create(ctx context.Context, record *reconciliation.AuditRecord) error {
	item, err := attributevalue.MarshalMapWithOptions(record, withJSONTags)
	if err != nil {
		return commonErrors.NewInternalError("failed to marshal audit record", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: ledgerAccountPK(record.OrganizationID, record.AccountID)}
	item["SK"] = &types.AttributeValueMemberS{Value: auditSKPrefix + record.AuditID}
	item["Type"] = &types.AttributeValueMemberS{Value: auditType}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return commonErrors.NewConflictError("audit record already exists").WithDetail("auditId", record.AuditID)
		}
		return storeError("failed to create audit record", err).WithDetail("auditId", record.AuditID)
	}

	r.logger.Debug("audit record stored",
		zap.String("auditId", record.AuditID),
		zap.Int("pairs", len(record.MatchedPairs)))
	return nil
}

// List returns the newest audit records of an account first
func (r *DynamoDBAuditRepository) List(ctx context.Context, organizationID, accountID string, limit int) ([]reconciliation.AuditRecord, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(ledgerAccountPK(organizationID, accountID))).
		And(expression.Key("SK").BeginsWith(auditSKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build audit query", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, storeError("failed to list audit records", err).WithDetail("accountId", accountID)
	}

	records := make([]reconciliation.AuditRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var record reconciliation.AuditRecord
		if err := attributevalue.UnmarshalMapWithOptions(item, &record, withJSONTagsDecode); err != nil {
			return nil, commonErrors.NewInternalError("failed to unmarshal audit record", err)
		}
		records = append(records, record)
	}
	return records, nil
}
