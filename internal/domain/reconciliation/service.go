package reconciliation

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/common/utils"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/matching"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

// Defaults for Options
const (
	DefaultSessionTTL      = 12 * time.Hour
	DefaultConfirmLockTTL  = 5 * time.Minute
	DefaultAssistedTimeout = 30 * time.Second
	defaultAuditListLimit  = 50
)

// Service coordinates a reconciliation session from import to confirmation
type Service struct {
	parser    *statement.Parser
	ledger    Ledger
	store     SessionStore
	archiver  Archiver
	audits    AuditRepository
	logger    *zap.Logger
	strategy  matching.Strategy
	sink      AuditSink
	signer    AuditSigner
	extractor TextExtractor

	sessionTTL      time.Duration
	confirmLockTTL  time.Duration
	assistedTimeout time.Duration
	window          matching.Window
	now             func() time.Time
}

// Option configures optional collaborators and limits
type Option func(*Service)

// WithStrategy enables assisted matching
func WithStrategy(strategy matching.Strategy) Option {
	return func(s *Service) { s.strategy = strategy }
}

// WithAuditSink exports every stored audit record
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithAuditSigner signs every audit record before it is stored
func WithAuditSigner(signer AuditSigner) Option {
	return func(s *Service) { s.signer = signer }
}

// WithExtractor enables PDF imports
func WithExtractor(extractor TextExtractor) Option {
	return func(s *Service) { s.extractor = extractor }
}

// WithTimeouts overrides the session TTL, the confirmation lock TTL and the assisted matching timeout.
// Zero values keep the defaults.
func WithTimeouts(sessionTTL, confirmLockTTL, assistedTimeout time.Duration) Option {
	return func(s *Service) {
		if sessionTTL > 0 {
			s.sessionTTL = sessionTTL
		}
		if confirmLockTTL > 0 {
			s.confirmLockTTL = confirmLockTTL
		}
		if assistedTimeout > 0 {
			s.assistedTimeout = assistedTimeout
		}
	}
}

// WithCandidateWindow overrides the candidate window
func WithCandidateWindow(window matching.Window) Option {
	return func(s *Service) { s.window = window }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new reconciliation service
func NewService(
	parser *statement.Parser,
	ledgerSvc Ledger,
	store SessionStore,
	archiver Archiver,
	audits AuditRepository,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		parser:          parser,
		ledger:          ledgerSvc,
		store:           store,
		archiver:        archiver,
		audits:          audits,
		logger:          logger,
		sessionTTL:      DefaultSessionTTL,
		confirmLockTTL:  DefaultConfirmLockTTL,
		assistedTimeout: DefaultAssistedTimeout,
		window:          matching.DefaultWindow(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportRequest carries a raw statement
type ImportRequest struct {
	FileName string           `json:"fileName"`
	Format   statement.Format `json:"format"`
	Data     []byte           `json:"data"`
}

// Import parses a statement and starts a new session for the account, replacing any existing one
// only after the statement parsed.
func (s *Service) Import(ctx context.Context, key SessionKey, req ImportRequest) (*View, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !req.Format.Valid() {
		return nil, errors.NewValidationError("unsupported statement format: " + string(req.Format))
	}

	txns, err := s.parse(req)
	if err != nil {
		return nil, err
	}

	var version int64
	existing, err := s.store.Load(ctx, key)
	switch {
	case err == nil:
		if s.confirming(existing) {
			return nil, errors.NewConflictError("the current session is being confirmed")
		}
		version = existing.Version
	case !stderrors.Is(err, errors.ErrNotFound):
		return nil, err
	}

	now := s.now()
	start, end := statement.Period(txns)
	session := &Session{
		Key:   key,
		State: StateImported,
		Source: &Source{
			FileName:    safeFileName(req.FileName),
			Format:      req.Format,
			ContentType: contentTypeFor(req.FileName, string(req.Format)),
			Digest:      statement.Digest(req.Data),
			Data:        req.Data,
		},
		StatementTransactions: txns,
		DateFilter:            DateFilter{Start: start, End: end},
		Matches:               []matching.Match{},
		Version:               version,
		CreatedAt:             now,
	}

	entries, err := s.fetchLedger(ctx, key, session.DateFilter)
	if err != nil {
		session.Warnings = append(session.Warnings, warningFor(err))
	}
	session.LedgerEntries = entries

	session.Matches = append(session.Matches, matching.ProposeMatches(txns, entries)...)
	session.State = StateMatching

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("statement imported",
		zap.String("organizationId", key.OrganizationID),
		zap.String("accountId", key.AccountID),
		zap.String("format", string(req.Format)),
		zap.Int("transactions", len(txns)),
		zap.Int("ledgerEntries", len(entries)),
		zap.Int("automaticMatches", len(session.Matches)))

	return NewView(session), nil
}

func (s *Service) parse(req ImportRequest) ([]statement.Transaction, error) {
	if req.Format != statement.FormatPDF {
		return s.parser.Parse(req.Format, req.Data)
	}
	if s.extractor == nil {
		return nil, errors.NewValidationError("pdf statements are not supported by this deployment")
	}
	if len(req.Data) == 0 {
		return nil, errors.NewParseError("statement is empty", nil)
	}
	text, err := s.extractor.Extract(req.Data)
	if err != nil {
		return nil, errors.NewParseError("failed to extract text from pdf", err)
	}
	return s.parser.Parse(statement.FormatExtracted, []byte(text))
}

// fetchLedger returns an empty list together with the error when the gateway fails
func (s *Service) fetchLedger(ctx context.Context, key SessionKey, filter DateFilter) ([]ledger.Entry, error) {
	entries, err := s.ledger.QueryEntries(ctx, ledger.QueryRequest{
		OrganizationID: key.OrganizationID,
		AccountID:      key.AccountID,
		StartDate:      filter.Start,
		EndDate:        filter.End,
	})
	if err != nil {
		return []ledger.Entry{}, err
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return entries, nil
}

func warningFor(err error) string {
	var appErr errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code + ": " + appErr.Message
	}
	return err.Error()
}

// Get returns the current session, or an EMPTY view when there is none.
func (s *Service) Get(ctx context.Context, key SessionKey) (*View, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	session, err := s.store.Load(ctx, key)
	if stderrors.Is(err, errors.ErrNotFound) {
		return emptyView(key), nil
	}
	if err != nil {
		return nil, err
	}
	return NewView(session), nil
}

// Select replaces the operator's selection. Only pending items may be selected.
func (s *Service) Select(ctx context.Context, key SessionKey, sel Selection) (*View, error) {
	return s.mutate(ctx, key, func(session *Session) error {
		c := newClassifier(session)
		if sel.StatementTransactionID != "" {
			if err := requirePendingTransaction(session, c, sel.StatementTransactionID); err != nil {
				return err
			}
		}
		if err := requireDistinct(sel.LedgerEntryIDs); err != nil {
			return err
		}
		for _, id := range sel.LedgerEntryIDs {
			if err := requirePendingEntry(session, c, id); err != nil {
				return err
			}
		}
		session.Selection = Selection{
			StatementTransactionID: sel.StatementTransactionID,
			LedgerEntryIDs:         append([]string(nil), sel.LedgerEntryIDs...),
		}
		return nil
	})
}

// Candidates lists the pending entries near a statement transaction
func (s *Service) Candidates(ctx context.Context, key SessionKey, statementTransactionID string) ([]ledger.Entry, error) {
	session, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	txn, ok := statement.Index(session.StatementTransactions)[statementTransactionID]
	if !ok {
		return nil, errors.NewNotFoundError("statement transaction not found").
			WithDetail("statementTransactionId", statementTransactionID)
	}

	c := newClassifier(session)
	pool := make([]ledger.Entry, 0, len(session.LedgerEntries))
	for _, e := range session.LedgerEntries {
		if class, _ := c.entry(e.EntryID); class == ClassPending {
			pool = append(pool, e)
		}
	}
	candidates := matching.Candidates(txn, pool, s.window)
	if candidates == nil {
		candidates = []ledger.Entry{}
	}
	return candidates, nil
}

// PreviewAggregate runs the calculator without changing the session
func (s *Service) PreviewAggregate(ctx context.Context, key SessionKey, statementTransactionID string, ledgerEntryIDs []string) (*matching.Aggregate, error) {
	session, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	txn, selected, err := lookup(session, statementTransactionID, ledgerEntryIDs)
	if err != nil {
		return nil, err
	}
	agg := matching.ComputeAggregate(txn.Amount, selected)
	return &agg, nil
}

// PairRequest records a manual one-to-one pairing
type PairRequest struct {
	StatementTransactionID string `json:"statementTransactionId"`
	LedgerEntryID          string `json:"ledgerEntryId"`
	// AcceptDivergence confirms that the statement amount will overwrite the ledger amount
	AcceptDivergence bool `json:"acceptDivergence"`
}

// Pair records a manual match. Diverging amounts need AcceptDivergence.
func (s *Service) Pair(ctx context.Context, key SessionKey, req PairRequest) (*View, error) {
	return s.mutate(ctx, key, func(session *Session) error {
		txn, entries, err := lookupPending(session, req.StatementTransactionID, []string{req.LedgerEntryID})
		if err != nil {
			return err
		}

		check := matching.ValidatePair(txn, entries[0])
		if check.Divergent && !req.AcceptDivergence {
			return errors.NewAmountDivergenceError("statement and ledger amounts differ").
				WithDetail("statementTransactionId", txn.ID).
				WithDetail("ledgerEntryId", entries[0].EntryID).
				WithDetail("statementAmount", txn.Amount.String()).
				WithDetail("ledgerAmount", entries[0].Amount.String()).
				WithDetail("difference", check.Difference.String())
		}

		m := matching.NewMatch(txn.ID, matching.SourceManual, entries[0].EntryID)
		if check.Divergent {
			m.Divergence = check.Difference
		}
		return addMatch(session, m)
	})
}

// AggregateRequest records a many-to-one pairing
type AggregateRequest struct {
	StatementTransactionID string   `json:"statementTransactionId"`
	LedgerEntryIDs         []string `json:"ledgerEntryIds"`
}

// PairAggregate records a match of several entries whose absolute amounts add up to the
// transaction's absolute amount.
func (s *Service) PairAggregate(ctx context.Context, key SessionKey, req AggregateRequest) (*View, error) {
	return s.mutate(ctx, key, func(session *Session) error {
		if len(req.LedgerEntryIDs) < 2 {
			return errors.NewValidationError("an aggregate needs at least two ledger entries")
		}
		txn, entries, err := lookupPending(session, req.StatementTransactionID, req.LedgerEntryIDs)
		if err != nil {
			return err
		}

		agg := matching.ComputeAggregate(txn.Amount, entries)
		if !agg.IsMatch {
			return errors.NewAggregateMismatchError("selected entries do not add up to the statement amount").
				WithDetail("statementTransactionId", txn.ID).
				WithDetail("ledgerEntryIds", req.LedgerEntryIDs).
				WithDetail("target", agg.Target.String()).
				WithDetail("sum", agg.Sum.String()).
				WithDetail("difference", agg.Difference.String())
		}

		return addMatch(session, matching.NewMatch(txn.ID, matching.SourceAggregate, req.LedgerEntryIDs...))
	})
}

// Unpair removes a tentative match
func (s *Service) Unpair(ctx context.Context, key SessionKey, pairID string) (*View, error) {
	return s.mutate(ctx, key, func(session *Session) error {
		for i, m := range session.Matches {
			if m.PairID == pairID {
				session.Matches = append(session.Matches[:i:i], session.Matches[i+1:]...)
				return nil
			}
		}
		return errors.NewNotFoundError("match not found").WithDetail("pairId", pairID)
	})
}

// SetDateFilter refetches the ledger for a new range. Matches and selected entries that
// reference entries outside the new result are dropped.
func (s *Service) SetDateFilter(ctx context.Context, key SessionKey, filter DateFilter) (*View, error) {
	if err := utils.ValidateDateRange(filter.Start, filter.End); err != nil {
		return nil, err
	}
	return s.mutate(ctx, key, func(session *Session) error {
		entries, err := s.fetchLedger(ctx, key, filter)
		if err != nil {
			return err
		}

		present := ledger.Index(entries)
		kept := make([]matching.Match, 0, len(session.Matches))
		for _, m := range session.Matches {
			if allPresent(present, m.LedgerEntryIDs) {
				kept = append(kept, m)
			}
		}
		var selected []string
		for _, id := range session.Selection.LedgerEntryIDs {
			if _, ok := present[id]; ok {
				selected = append(selected, id)
			}
		}

		session.LedgerEntries = entries
		session.Matches = kept
		session.Selection.LedgerEntryIDs = selected
		session.DateFilter = filter
		session.Warnings = nil
		return nil
	})
}

// AssistedResult is the outcome of an assisted matching run
type AssistedResult struct {
	View     *View                `json:"view"`
	Added    int                  `json:"added"`
	Rejected []matching.Rejection `json:"rejected,omitempty"`
}

// RunAssisted asks the configured strategy for pairings of the remaining pending items. A
// failure or timeout leaves the session unchanged.
func (s *Service) RunAssisted(ctx context.Context, key SessionKey) (*AssistedResult, error) {
	if s.strategy == nil {
		return nil, errors.NewValidationError("assisted matching is not configured")
	}

	session, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if s.confirming(session) {
		return nil, errors.NewConflictError("the session is being confirmed")
	}

	c := newClassifier(session)
	var (
		txns    []statement.Transaction
		entries []ledger.Entry
	)
	for _, t := range session.StatementTransactions {
		if class, _ := c.transaction(t.ID); class == ClassPending {
			txns = append(txns, t)
		}
	}
	for _, e := range session.LedgerEntries {
		if class, _ := c.entry(e.EntryID); class == ClassPending {
			entries = append(entries, e)
		}
	}
	if len(txns) == 0 || len(entries) == 0 {
		return &AssistedResult{View: NewView(session)}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.assistedTimeout)
	defer cancel()

	proposals, err := s.strategy.Propose(callCtx, txns, entries)
	if err != nil {
		s.logger.Warn("assisted matching failed",
			zap.String("organizationId", key.OrganizationID),
			zap.String("accountId", key.AccountID),
			zap.Error(err))
		return nil, errors.NewAssistedMatchError("assisted matching did not return proposals", err)
	}

	accepted, rejected := matching.Merge(session.Matches, proposals, session.StatementTransactions, session.LedgerEntries, matching.SourceAssisted)
	if len(accepted) > 0 {
		session.Matches = append(session.Matches, accepted...)
		if err := s.save(ctx, session); err != nil {
			return nil, err
		}
	}

	s.logger.Info("assisted matching finished",
		zap.String("accountId", key.AccountID),
		zap.Int("proposals", len(proposals)),
		zap.Int("accepted", len(accepted)),
		zap.Int("rejected", len(rejected)))

	return &AssistedResult{View: NewView(session), Added: len(accepted), Rejected: rejected}, nil
}

// Reset abandons the session
func (s *Service) Reset(ctx context.Context, key SessionKey) (*View, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return nil, err
	}
	s.logger.Info("reconciliation session abandoned",
		zap.String("organizationId", key.OrganizationID),
		zap.String("accountId", key.AccountID))

	v := emptyView(key)
	v.State = StateAbandoned
	return v, nil
}

// Undo reverts one reconciled ledger entry to pending
func (s *Service) Undo(ctx context.Context, organizationID, entryID string) (*ledger.Entry, error) {
	return s.ledger.Undo(ctx, organizationID, entryID)
}

// ListAudits returns the newest audit records of an account
func (s *Service) ListAudits(ctx context.Context, organizationID, accountID string, limit int) ([]AuditRecord, error) {
	if err := utils.ValidateTenantID(organizationID); err != nil {
		return nil, err
	}
	if err := utils.ValidateIdentifier(accountID, "accountId"); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultAuditListLimit {
		limit = defaultAuditListLimit
	}
	return s.audits.List(ctx, organizationID, accountID, limit)
}

// load returns a session that operator actions may act on
func (s *Service) load(ctx context.Context, key SessionKey) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	session, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if session.State != StateMatching {
		return nil, errors.NewInvalidStateError("session is not accepting changes").
			WithDetail("state", string(session.State))
	}
	return session, nil
}

// mutate applies fn to a freshly loaded session and saves it. Nothing is persisted when fn fails.
func (s *Service) mutate(ctx context.Context, key SessionKey, fn func(*Session) error) (*View, error) {
	session, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if s.confirming(session) {
		return nil, errors.NewConflictError("the session is being confirmed")
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return NewView(session), nil
}

func (s *Service) confirming(session *Session) bool {
	return session.ConfirmingSince != nil && s.now().Sub(*session.ConfirmingSince) < s.confirmLockTTL
}

func (s *Service) save(ctx context.Context, session *Session) error {
	now := s.now()
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(s.sessionTTL)
	return s.store.Save(ctx, session)
}

func addMatch(session *Session, m matching.Match) error {
	if err := matching.NewClaims(session.Matches).Claim(m); err != nil {
		return err
	}
	session.Matches = append(session.Matches, m)
	session.Selection = Selection{}
	return nil
}

func lookup(session *Session, txnID string, entryIDs []string) (statement.Transaction, []ledger.Entry, error) {
	txn, ok := statement.Index(session.StatementTransactions)[txnID]
	if !ok {
		return statement.Transaction{}, nil, errors.NewNotFoundError("statement transaction not found").
			WithDetail("statementTransactionId", txnID)
	}
	if err := requireDistinct(entryIDs); err != nil {
		return statement.Transaction{}, nil, err
	}
	index := ledger.Index(session.LedgerEntries)
	entries := make([]ledger.Entry, 0, len(entryIDs))
	for _, id := range entryIDs {
		e, ok := index[id]
		if !ok {
			return statement.Transaction{}, nil, errors.NewNotFoundError("ledger entry not found").
				WithDetail("ledgerEntryId", id)
		}
		entries = append(entries, e)
	}
	return txn, entries, nil
}

func lookupPending(session *Session, txnID string, entryIDs []string) (statement.Transaction, []ledger.Entry, error) {
	txn, entries, err := lookup(session, txnID, entryIDs)
	if err != nil {
		return txn, nil, err
	}
	c := newClassifier(session)
	if err := requirePendingTransaction(session, c, txnID); err != nil {
		return txn, nil, err
	}
	for _, id := range entryIDs {
		if err := requirePendingEntry(session, c, id); err != nil {
			return txn, nil, err
		}
	}
	return txn, entries, nil
}

func requirePendingTransaction(session *Session, c *classifier, id string) error {
	if _, ok := statement.Index(session.StatementTransactions)[id]; !ok {
		return errors.NewNotFoundError("statement transaction not found").WithDetail("statementTransactionId", id)
	}
	if class, pairID := c.transaction(id); class != ClassPending {
		return errors.NewConflictError("statement transaction is not pending").
			WithDetail("statementTransactionId", id).
			WithDetail("classification", string(class)).
			WithDetail("pairId", pairID)
	}
	return nil
}

func requirePendingEntry(session *Session, c *classifier, id string) error {
	if _, ok := c.entries[id]; !ok {
		return errors.NewNotFoundError("ledger entry not found").WithDetail("ledgerEntryId", id)
	}
	if class, pairID := c.entry(id); class != ClassPending {
		return errors.NewConflictError("ledger entry is not pending").
			WithDetail("ledgerEntryId", id).
			WithDetail("classification", string(class)).
			WithDetail("pairId", pairID)
	}
	return nil
}

func requireDistinct(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return errors.NewValidationError("ledgerEntryIds must not contain empty ids")
		}
		if _, dup := seen[id]; dup {
			return errors.NewValidationError("ledger entry selected twice").WithDetail("ledgerEntryId", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func allPresent(index map[string]ledger.Entry, ids []string) bool {
	for _, id := range ids {
		if _, ok := index[id]; !ok {
			return false
		}
	}
	return true
}
