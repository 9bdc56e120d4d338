package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
)

// LedgerRepository is an in-memory ledger.Repository used by the CLI
type LedgerRepository struct {
	mu      sync.RWMutex
	entries map[string]ledger.Entry // keyed by organization and entry id
	now     func() time.Time
}

// NewLedgerRepository creates a repository holding the given entries
func NewLedgerRepository(entries ...ledger.Entry) *LedgerRepository {
	r := &LedgerRepository{
		entries: make(map[string]ledger.Entry, len(entries)),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, e := range entries {
		r.entries[entryKey(e.OrganizationID, e.EntryID)] = e
	}
	return r
}

func entryKey(organizationID, entryID string) string {
	return organizationID + "/" + entryID
}

// QueryEntries implements ledger.Repository. Results are ordered by occurrence date, then id.
func (r *LedgerRepository) QueryEntries(ctx context.Context, req ledger.QueryRequest) ([]ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ledger.Entry
	for _, e := range r.entries {
		if e.OrganizationID == req.OrganizationID && e.AccountID == req.AccountID && e.InRange(req.StartDate, req.EndDate) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurrenceDate() != out[j].OccurrenceDate() {
			return out[i].OccurrenceDate() < out[j].OccurrenceDate()
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out, nil
}

// GetEntry implements ledger.Repository
func (r *LedgerRepository) GetEntry(ctx context.Context, organizationID, entryID string) (*ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[entryKey(organizationID, entryID)]
	if !ok {
		return nil, errors.NewNotFoundError("ledger entry not found").WithDetail("ledgerEntryId", entryID)
	}
	return &e, nil
}

// MarkReconciled implements ledger.Repository
func (r *LedgerRepository) MarkReconciled(ctx context.Context, organizationID string, rec ledger.Reconciliation) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey(organizationID, rec.EntryID)
	e, ok := r.entries[key]
	if !ok {
		return nil, errors.NewNotFoundError("ledger entry not found").WithDetail("ledgerEntryId", rec.EntryID)
	}
	if e.IsReconciled() && e.ExternalTransactionID != rec.ExternalTransactionID {
		return nil, errors.NewConflictError("ledger entry was reconciled by another transaction").
			WithDetail("ledgerEntryId", rec.EntryID)
	}

	e.Status = ledger.StatusReconciled
	e.PaidDate = rec.PaidDate
	e.ExternalTransactionID = rec.ExternalTransactionID
	if rec.Amount != nil {
		e.Amount = *rec.Amount
	}
	e.UpdatedAt = r.now()
	r.entries[key] = e
	return &e, nil
}

// MarkPending implements ledger.Repository
func (r *LedgerRepository) MarkPending(ctx context.Context, organizationID, entryID string) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey(organizationID, entryID)
	e, ok := r.entries[key]
	if !ok {
		return nil, errors.NewNotFoundError("ledger entry not found").WithDetail("ledgerEntryId", entryID)
	}
	e.Status = ledger.StatusPending
	e.PaidDate = ""
	e.ExternalTransactionID = ""
	e.UpdatedAt = r.now()
	r.entries[key] = e
	return &e, nil
}

// Entries returns a snapshot of every stored entry ordered by id
func (r *LedgerRepository) Entries() []ledger.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ledger.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out
}

// Fixture is the YAML layout of a ledger seed file
type Fixture struct {
	OrganizationID string         `yaml:"organizationId"`
	AccountID      string         `yaml:"accountId"`
	Entries        []FixtureEntry `yaml:"entries"`
}

// FixtureEntry carries amounts as decimal strings ("-150.00")
type FixtureEntry struct {
	ID              string `yaml:"id"`
	Amount          string `yaml:"amount"`
	Description     string `yaml:"description"`
	Type            string `yaml:"type"`
	Status          string `yaml:"status"`
	TransactionDate string `yaml:"transactionDate"`
	DueDate         string `yaml:"dueDate"`
	PaidDate        string `yaml:"paidDate"`
	ExternalID      string `yaml:"externalTransactionId"`
}

// LoadFixture decodes a YAML ledger fixture into entries
func LoadFixture(r io.Reader) (*Fixture, []ledger.Entry, error) {
	var fixture Fixture
	if err := yaml.NewDecoder(r).Decode(&fixture); err != nil {
		return nil, nil, errors.NewInvalidInputError("invalid ledger fixture", err)
	}
	if fixture.OrganizationID == "" || fixture.AccountID == "" {
		return nil, nil, errors.NewValidationError("ledger fixture needs organizationId and accountId")
	}

	entries := make([]ledger.Entry, 0, len(fixture.Entries))
	seen := make(map[string]bool, len(fixture.Entries))
	for i, fe := range fixture.Entries {
		if fe.ID == "" {
			return nil, nil, errors.NewValidationError(fmt.Sprintf("fixture entry %d has no id", i))
		}
		if seen[fe.ID] {
			return nil, nil, errors.NewValidationError("duplicate fixture entry id " + fe.ID)
		}
		seen[fe.ID] = true

		amount, err := money.Parse(fe.Amount)
		if err != nil {
			return nil, nil, errors.NewInvalidInputError("invalid amount for fixture entry "+fe.ID, err)
		}
		entry := ledger.Entry{
			EntryID:               fe.ID,
			OrganizationID:        fixture.OrganizationID,
			AccountID:             fixture.AccountID,
			Amount:                amount,
			Description:           fe.Description,
			Type:                  ledger.EntryType(fe.Type),
			Status:                ledger.Status(fe.Status),
			TransactionDate:       fe.TransactionDate,
			DueDate:               fe.DueDate,
			PaidDate:              fe.PaidDate,
			ExternalTransactionID: fe.ExternalID,
		}
		if entry.Status == "" {
			entry.Status = ledger.StatusPending
		}
		if entry.Type == "" {
			entry.Type = ledger.TypeExpense
			if amount > 0 {
				entry.Type = ledger.TypeIncome
			}
		}
		entries = append(entries, entry)
	}
	return &fixture, entries, nil
}
