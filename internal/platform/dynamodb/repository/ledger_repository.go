package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	commonErrors "github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/dynamodb/client"
)

const (
	gsi1Name        = "GSI1"
	ledgerEntryType = "ledger_entry"
	ledgerEntrySK   = "ENTRY"
)

// DynamoDBLedgerRepository implements the ledger.Repository interface
type DynamoDBLedgerRepository struct {
	client client.Client
	table  string
	logger *zap.Logger
	now    func() time.Time
}

// NewDynamoDBLedgerRepository creates a new DynamoDBLedgerRepository
func NewDynamoDBLedgerRepository(client client.Client, table string, logger *zap.Logger) *DynamoDBLedgerRepository {
	return &DynamoDBLedgerRepository{
		client: client,
		table:  table,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func ledgerEntryPK(organizationID, entryID string) string {
	return fmt.Sprintf("ORG#%s#ENTRY#%s", organizationID, entryID)
}

func ledgerAccountPK(organizationID, accountID string) string {
	return fmt.Sprintf("ORG#%s#ACCOUNT#%s", organizationID, accountID)
}

func ledgerKey(organizationID, entryID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ledgerEntryPK(organizationID, entryID)},
		"SK": &types.AttributeValueMemberS{Value: ledgerEntrySK},
	}
}

// PutEntry stores a ledger entry. Entries are owned by the bookkeeping side; this exists
// for seeding and tests.
func (r *DynamoDBLedgerRepository) PutEntry(ctx context.Context, entry ledger.Entry) error {
	item, err := attributevalue.MarshalMapWithOptions(entry, withJSONTags)
	if err != nil {
		return commonErrors.NewInternalError("failed to marshal ledger entry", err)
	}
	for k, v := range ledgerKey(entry.OrganizationID, entry.EntryID) {
		item[k] = v
	}
	item["GSI1PK"] = &types.AttributeValueMemberS{Value: ledgerAccountPK(entry.OrganizationID, entry.AccountID)}
	item["GSI1SK"] = &types.AttributeValueMemberS{Value: "ENTRY#" + entry.EntryID}
	item["Type"] = &types.AttributeValueMemberS{Value: ledgerEntryType}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return storeError("failed to store ledger entry", err)
	}
	return nil
}

// QueryEntries returns the entries of an account whose paid, due or transaction date
// falls in the requested range
func (r *DynamoDBLedgerRepository) QueryEntries(ctx context.Context, req ledger.QueryRequest) ([]ledger.Entry, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(ledgerAccountPK(req.OrganizationID, req.AccountID)))
	start, end := expression.Value(req.StartDate), expression.Value(req.EndDate)
	filter := expression.Name("Type").Equal(expression.Value(ledgerEntryType)).And(
		expression.Or(
			expression.Name("paidDate").Between(start, end),
			expression.Name("dueDate").Between(start, end),
			expression.Name("transactionDate").Between(start, end),
		))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build ledger query", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String(gsi1Name),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var entries []ledger.Entry
	pages := 0
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, storeError("failed to query ledger entries", err).
				WithDetail("accountId", req.AccountID)
		}
		pages++
		for _, item := range out.Items {
			var entry ledger.Entry
			if err := attributevalue.UnmarshalMapWithOptions(item, &entry, withJSONTagsDecode); err != nil {
				return nil, commonErrors.NewInternalError("failed to unmarshal ledger entry", err)
			}
			entries = append(entries, entry)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	r.logger.Debug("ledger entries queried",
		zap.String("accountId", req.AccountID),
		zap.Int("entries", len(entries)),
		zap.Int("pages", pages))
	return entries, nil
}

// GetEntry retrieves an entry by ID within an organization
func (r *DynamoDBLedgerRepository) GetEntry(ctx context.Context, organizationID, entryID string) (*ledger.Entry, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key:       ledgerKey(organizationID, entryID),
	})
	if err != nil {
		return nil, storeError("failed to get ledger entry", err).WithDetail("ledgerEntryId", entryID)
	}
	if len(out.Item) == 0 {
		return nil, commonErrors.NewNotFoundError("ledger entry not found").WithDetail("ledgerEntryId", entryID)
	}

	var entry ledger.Entry
	if err := attributevalue.UnmarshalMapWithOptions(out.Item, &entry, withJSONTagsDecode); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal ledger entry", err)
	}
	return &entry, nil
}

// MarkReconciled moves a PENDING entry to RECONCILED in a single conditional update.
// An entry already reconciled by the same external transaction is updated again.
func (r *DynamoDBLedgerRepository) MarkReconciled(ctx context.Context, organizationID string, rec ledger.Reconciliation) (*ledger.Entry, error) {
	cond := expression.AttributeExists(expression.Name("PK")).And(
		expression.Or(
			expression.Name("status").Equal(expression.Value(string(ledger.StatusPending))),
			expression.Name("status").Equal(expression.Value(string(ledger.StatusReconciled))).
				And(expression.Name("externalTransactionId").Equal(expression.Value(rec.ExternalTransactionID))),
		))

	update := expression.Set(expression.Name("status"), expression.Value(string(ledger.StatusReconciled))).
		Set(expression.Name("paidDate"), expression.Value(rec.PaidDate)).
		Set(expression.Name("externalTransactionId"), expression.Value(rec.ExternalTransactionID)).
		Set(expression.Name("updatedAt"), expression.Value(r.now()))
	if rec.Amount != nil {
		update = update.Set(expression.Name("amount"), expression.Value(int64(*rec.Amount)))
	}

	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build ledger update", err)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.table),
		Key:                                 ledgerKey(organizationID, rec.EntryID),
		ConditionExpression:                 expr.Condition(),
		UpdateExpression:                    expr.Update(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			if len(condCheckErr.Item) == 0 {
				return nil, commonErrors.NewNotFoundError("ledger entry not found").
					WithDetail("ledgerEntryId", rec.EntryID)
			}
			return nil, commonErrors.NewConflictError("ledger entry was reconciled by another transaction").
				WithDetail("ledgerEntryId", rec.EntryID)
		}
		return nil, storeError("failed to reconcile ledger entry", err).WithDetail("ledgerEntryId", rec.EntryID)
	}

	var entry ledger.Entry
	if err := attributevalue.UnmarshalMapWithOptions(out.Attributes, &entry, withJSONTagsDecode); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal ledger entry", err)
	}
	return &entry, nil
}

// MarkPending moves an entry back to PENDING and clears its reconciliation fields
func (r *DynamoDBLedgerRepository) MarkPending(ctx context.Context, organizationID, entryID string) (*ledger.Entry, error) {
	update := expression.Set(expression.Name("status"), expression.Value(string(ledger.StatusPending))).
		Set(expression.Name("updatedAt"), expression.Value(r.now())).
		Remove(expression.Name("paidDate")).
		Remove(expression.Name("externalTransactionId"))

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		WithUpdate(update).
		Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build ledger update", err)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       ledgerKey(organizationID, entryID),
		ConditionExpression:       expr.Condition(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return nil, commonErrors.NewNotFoundError("ledger entry not found").WithDetail("ledgerEntryId", entryID)
		}
		return nil, storeError("failed to revert ledger entry", err).WithDetail("ledgerEntryId", entryID)
	}

	var entry ledger.Entry
	if err := attributevalue.UnmarshalMapWithOptions(out.Attributes, &entry, withJSONTagsDecode); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal ledger entry", err)
	}
	return &entry, nil
}
