package reconciliation

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/matching"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

// fakeStore keeps sessions as JSON blobs, like the real stores do
type fakeStore struct {
	mu    sync.Mutex
	blobs map[SessionKey][]byte
	saves int
	// dropSources mimics a store whose item size limit cannot hold the raw statement
	dropSources bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[SessionKey][]byte)}
}

func (s *fakeStore) Load(ctx context.Context, key SessionKey) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, errors.NewNotFoundError("reconciliation session not found")
	}
	var session Session
	if err := json.Unmarshal(blob, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *fakeStore) Save(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stored int64
	if blob, ok := s.blobs[session.Key]; ok {
		var current Session
		if err := json.Unmarshal(blob, &current); err != nil {
			return err
		}
		stored = current.Version
	}
	if stored != session.Version {
		return errors.NewConflictError("session was modified concurrently")
	}
	if s.dropSources {
		session.DropSource()
	}
	session.Version++
	blob, err := json.Marshal(session)
	if err != nil {
		session.Version--
		return err
	}
	s.blobs[session.Key] = blob
	s.saves++
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, key SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// update edits the stored session behind the service's back
func (s *fakeStore) update(t *testing.T, key SessionKey, fn func(*Session)) {
	t.Helper()
	session, err := s.Load(context.Background(), key)
	require.NoError(t, err)
	fn(session)
	require.NoError(t, s.Save(context.Background(), session))
}

type fakeLedgerRepo struct {
	mu       sync.Mutex
	entries  map[string]ledger.Entry
	order    []string
	queryErr error
	failOnce map[string]error
}

func newFakeLedgerRepo(entries ...ledger.Entry) *fakeLedgerRepo {
	r := &fakeLedgerRepo{entries: make(map[string]ledger.Entry), failOnce: make(map[string]error)}
	for _, e := range entries {
		r.entries[e.EntryID] = e
		r.order = append(r.order, e.EntryID)
	}
	return r
}

func (r *fakeLedgerRepo) QueryEntries(ctx context.Context, req ledger.QueryRequest) ([]ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []ledger.Entry
	for _, id := range r.order {
		e := r.entries[id]
		if e.AccountID == req.AccountID && e.InRange(req.StartDate, req.EndDate) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) GetEntry(ctx context.Context, organizationID, entryID string) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[entryID]
	if !ok {
		return nil, errors.NewNotFoundError("ledger entry not found")
	}
	return &e, nil
}

func (r *fakeLedgerRepo) MarkReconciled(ctx context.Context, organizationID string, rec ledger.Reconciliation) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failOnce[rec.EntryID]; ok {
		delete(r.failOnce, rec.EntryID)
		return nil, err
	}
	e, ok := r.entries[rec.EntryID]
	if !ok {
		return nil, errors.NewNotFoundError("ledger entry not found")
	}
	if e.IsReconciled() && e.ExternalTransactionID != rec.ExternalTransactionID {
		return nil, errors.NewConflictError("ledger entry was reconciled by another transaction")
	}
	e.Status = ledger.StatusReconciled
	e.PaidDate = rec.PaidDate
	e.ExternalTransactionID = rec.ExternalTransactionID
	if rec.Amount != nil {
		e.Amount = *rec.Amount
	}
	r.entries[e.EntryID] = e
	return &e, nil
}

func (r *fakeLedgerRepo) MarkPending(ctx context.Context, organizationID, entryID string) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[entryID]
	e.Status = ledger.StatusPending
	e.PaidDate = ""
	e.ExternalTransactionID = ""
	r.entries[entryID] = e
	return &e, nil
}

func (r *fakeLedgerRepo) entry(id string) ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

type fakeAudits struct {
	mu      sync.Mutex
	records map[string]AuditRecord
	creates int
	err     error
}

func newFakeAudits() *fakeAudits {
	return &fakeAudits{records: make(map[string]AuditRecord)}
}

func (a *fakeAudits) Create(ctx context.Context, record *AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creates++
	if a.err != nil {
		return a.err
	}
	if _, ok := a.records[record.AuditID]; ok {
		return errors.NewConflictError("audit record already exists")
	}
	a.records[record.AuditID] = *record
	return nil
}

func (a *fakeAudits) List(ctx context.Context, organizationID, accountID string, limit int) ([]AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []AuditRecord
	for _, r := range a.records {
		if r.OrganizationID == organizationID && r.AccountID == accountID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuditID > out[j].AuditID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeSink struct {
	exported []AuditRecord
	err      error
}

func (s *fakeSink) Export(ctx context.Context, record *AuditRecord) error {
	s.exported = append(s.exported, *record)
	return s.err
}

type fakeSigner struct {
	digest []byte
	err    error
}

func (s *fakeSigner) Sign(ctx context.Context, digest []byte) (string, error) {
	s.digest = digest
	return "sig", s.err
}

func (s *fakeSigner) KeyID() string {
	return "alias/audit"
}

type fakeExtractor struct {
	text string
	err  error
}

func (e fakeExtractor) Extract(data []byte) (string, error) {
	return e.text, e.err
}

var testKey = SessionKey{OrganizationID: "org-1", UserID: "user-1", AccountID: "acct-1"}

const threeTransactionCSV = "date,description,amount\n" +
	"2024-03-01,Supplier A,-150.00\n" +
	"2024-03-02,Client payment,2000.00\n" +
	"2024-03-05,Fee,-75.50\n"

func pendingEntry(id, dueDate, amount, description string) ledger.Entry {
	return ledger.Entry{
		EntryID:        id,
		OrganizationID: "org-1",
		AccountID:      "acct-1",
		Amount:         money.MustParse(amount),
		Description:    description,
		Type:           ledger.TypeExpense,
		Status:         ledger.StatusPending,
		DueDate:        dueDate,
	}
}

// baseEntries are the two entries the automatic pass claims
func baseEntries() []ledger.Entry {
	return []ledger.Entry{
		pendingEntry("1", "2024-03-01", "-150.00", "Supplier A invoice"),
		pendingEntry("2", "2024-03-02", "2000.00", "Client invoice"),
	}
}

// manualEntries adds entries for divergent and aggregate pairing of the fee
func manualEntries() []ledger.Entry {
	return append(baseEntries(),
		pendingEntry("3", "2024-03-04", "-75.00", "Bank fee estimate"),
		pendingEntry("4", "2024-03-05", "-30.00", "Fee part A"),
		pendingEntry("5", "2024-03-05", "-45.50", "Fee part B"),
	)
}

type harness struct {
	svc      *Service
	store    *fakeStore
	repo     *fakeLedgerRepo
	audits   *fakeAudits
	archiver *MockArchiver
	strategy *matching.MockStrategy
	now      time.Time
}

func newHarness(t *testing.T, entries []ledger.Entry, opts ...Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := zaptest.NewLogger(t)

	h := &harness{
		store:    newFakeStore(),
		repo:     newFakeLedgerRepo(entries...),
		audits:   newFakeAudits(),
		archiver: NewMockArchiver(ctrl),
		strategy: matching.NewMockStrategy(ctrl),
		now:      time.Date(2024, 4, 2, 10, 30, 0, 0, time.UTC),
	}
	base := []Option{
		WithStrategy(h.strategy),
		WithClock(func() time.Time { return h.now }),
	}
	h.svc = NewService(
		statement.NewParser(logger),
		ledger.NewService(h.repo, logger),
		h.store,
		h.archiver,
		h.audits,
		logger,
		append(base, opts...)...,
	)
	return h
}

func (h *harness) importCSV(t *testing.T, data string) *View {
	t.Helper()
	view, err := h.svc.Import(context.Background(), testKey, ImportRequest{
		FileName: "march.csv",
		Format:   statement.FormatDelimited,
		Data:     []byte(data),
	})
	require.NoError(t, err)
	return view
}

func txnID(t *testing.T, view *View, description string) string {
	t.Helper()
	for _, tv := range view.Transactions {
		if tv.Description == description {
			return tv.ID
		}
	}
	t.Fatalf("no transaction described %q", description)
	return ""
}

func classOf(view *View, entryID string) Classification {
	for _, ev := range view.Entries {
		if ev.EntryID == entryID {
			return ev.Classification
		}
	}
	return ""
}
