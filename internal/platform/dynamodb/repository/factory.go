package repository

import (
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/platform/dynamodb/client"
)

// Factory creates repository instances sharing one client and table
type Factory struct {
	client    client.Client
	tableName string
	logger    *zap.Logger
}

// NewFactory creates a new repository factory
func NewFactory(client client.Client, tableName string, logger *zap.Logger) *Factory {
	return &Factory{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// LedgerRepository returns an implementation of the ledger.Repository interface
func (f *Factory) LedgerRepository() *DynamoDBLedgerRepository {
	return NewDynamoDBLedgerRepository(f.client, f.tableName, f.logger.Named("ledger"))
}

// AuditRepository returns an implementation of the reconciliation.AuditRepository interface
func (f *Factory) AuditRepository() *DynamoDBAuditRepository {
	return NewDynamoDBAuditRepository(f.client, f.tableName, f.logger.Named("audit"))
}

// SessionStore returns an implementation of the reconciliation.SessionStore interface
func (f *Factory) SessionStore() *DynamoDBSessionStore {
	return NewDynamoDBSessionStore(f.client, f.tableName, f.logger.Named("session"))
}
