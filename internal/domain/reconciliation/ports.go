package reconciliation

import (
	"context"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
)

// SessionStore persists sessions as versioned blobs.
type SessionStore interface {
	// Load returns NOT_FOUND when no live session exists for the key
	Load(ctx context.Context, key SessionKey) (*Session, error)

	// Save writes the session only if the stored version still equals session.Version, then
	// increments session.Version. A lost race is a CONFLICT.
	Save(ctx context.Context, session *Session) error

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, key SessionKey) error
}

// AuditRepository stores immutable audit records
type AuditRepository interface {
	// Create returns CONFLICT when a record with the same id already exists
	Create(ctx context.Context, record *AuditRecord) error
	List(ctx context.Context, organizationID, accountID string, limit int) ([]AuditRecord, error)
}

// AuditSink receives a copy of every stored audit record
type AuditSink interface {
	Export(ctx context.Context, record *AuditRecord) error
}

// AuditSigner signs audit record digests
type AuditSigner interface {
	Sign(ctx context.Context, digest []byte) (string, error)
	KeyID() string
}

// TextExtractor turns a PDF statement into delimited text
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// Ledger is the part of the ledger service used by reconciliation
type Ledger interface {
	QueryEntries(ctx context.Context, req ledger.QueryRequest) ([]ledger.Entry, error)
	Reconcile(ctx context.Context, organizationID string, rec ledger.Reconciliation) (*ledger.Entry, error)
	Undo(ctx context.Context, organizationID, entryID string) (*ledger.Entry, error)
}
