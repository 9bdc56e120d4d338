package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
)

// AuditRepository keeps audit records in process memory
type AuditRepository struct {
	mu      sync.RWMutex
	records map[string]reconciliation.AuditRecord
}

// NewAuditRepository creates an empty audit repository
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{records: make(map[string]reconciliation.AuditRecord)}
}

// Create implements reconciliation.AuditRepository
func (r *AuditRepository) Create(ctx context.Context, record *reconciliation.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.AuditID]; ok {
		return errors.NewConflictError("audit record already exists").WithDetail("auditId", record.AuditID)
	}
	stored := *record
	stored.MatchedPairs = append([]reconciliation.MatchedPair(nil), record.MatchedPairs...)
	r.records[record.AuditID] = stored
	return nil
}

// List implements reconciliation.AuditRepository. Audit ids are ULIDs, so descending id order
// is newest first.
func (r *AuditRepository) List(ctx context.Context, organizationID, accountID string, limit int) ([]reconciliation.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]reconciliation.AuditRecord, 0)
	for _, rec := range r.records {
		if rec.OrganizationID == organizationID && rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuditID > out[j].AuditID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
