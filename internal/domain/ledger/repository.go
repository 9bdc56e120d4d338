package ledger

import (
	"context"
)

// Repository defines the interface for ledger entry data operations
type Repository interface {
	// QueryEntries returns the entries of an account with any candidate date in the range
	QueryEntries(ctx context.Context, req QueryRequest) ([]Entry, error)

	// GetEntry retrieves an entry by ID within an organization
	GetEntry(ctx context.Context, organizationID, entryID string) (*Entry, error)

	// MarkReconciled moves a PENDING entry to RECONCILED. Repeating the call with the same
	// external transaction id succeeds; a different id on a RECONCILED entry is a CONFLICT.
	MarkReconciled(ctx context.Context, organizationID string, rec Reconciliation) (*Entry, error)

	// MarkPending moves an entry back to PENDING and clears its reconciliation fields
	MarkPending(ctx context.Context, organizationID, entryID string) (*Entry, error)
}
