package reconciliation

import (
	"time"

	"github.com/hirosato/go-bank-reconciliation/internal/common/utils"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/matching"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

// State of a reconciliation session
type State string

const (
	StateEmpty     State = "EMPTY"
	StateImported  State = "IMPORTED"
	StateMatching  State = "MATCHING"
	StateConfirmed State = "CONFIRMED"
	StateAbandoned State = "ABANDONED"
)

// SessionKey identifies the working session of one operator on one account
type SessionKey struct {
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
	AccountID      string `json:"accountId"`
}

// Validate checks that every part of the key is present
func (k SessionKey) Validate() error {
	if err := utils.ValidateTenantID(k.OrganizationID); err != nil {
		return err
	}
	if err := utils.ValidateRequiredString(k.UserID, "userId"); err != nil {
		return err
	}
	return utils.ValidateIdentifier(k.AccountID, "accountId")
}

// DateFilter is the inclusive range used to fetch ledger entries
type DateFilter struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Selection holds the items the operator picked for a manual pairing
type Selection struct {
	StatementTransactionID string   `json:"statementTransactionId,omitempty"`
	LedgerEntryIDs         []string `json:"ledgerEntryIds,omitempty"`
}

// IsEmpty reports whether nothing is selected
func (s Selection) IsEmpty() bool {
	return s.StatementTransactionID == "" && len(s.LedgerEntryIDs) == 0
}

// Source is the raw statement kept for archiving at confirmation
type Source struct {
	FileName    string           `json:"fileName"`
	Format      statement.Format `json:"format"`
	ContentType string           `json:"contentType"`
	Digest      string           `json:"digest"`
	Data        []byte           `json:"data,omitempty"`
}

// Session is the persisted state of a reconciliation in progress
type Session struct {
	Key                   SessionKey              `json:"key"`
	State                 State                   `json:"state"`
	Source                *Source                 `json:"source,omitempty"`
	StatementTransactions []statement.Transaction `json:"statementTransactions"`
	LedgerEntries         []ledger.Entry          `json:"ledgerEntries"`
	Matches               []matching.Match        `json:"matches"`
	DateFilter            DateFilter              `json:"dateFilter"`
	Selection             Selection               `json:"selection"`
	Warnings              []string                `json:"warnings,omitempty"`
	// AuditID is reserved when a confirmation starts so a retry writes the same record
	AuditID         string     `json:"auditId,omitempty"`
	ConfirmingSince *time.Time `json:"confirmingSince,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
}

// SourceAvailable reports whether the raw statement can still be archived
func (s *Session) SourceAvailable() bool {
	return s.Source != nil && len(s.Source.Data) > 0
}

// SourceDroppedWarning is attached when a store could not keep the raw statement
const SourceDroppedWarning = "SOURCE_UNAVAILABLE: the statement file is too large to keep with the session, import it again before confirming"

// DropSource forgets the raw statement bytes and records why
func (s *Session) DropSource() {
	if !s.SourceAvailable() {
		return
	}
	source := *s.Source
	source.Data = nil
	s.Source = &source
	s.Warnings = append(append([]string(nil), s.Warnings...), SourceDroppedWarning)
}

// Classification of a statement transaction or ledger entry for display
type Classification string

const (
	ClassSessionMatch  Classification = "sessionMatch"
	ClassDBConciliated Classification = "dbConciliated"
	ClassPending       Classification = "pending"
)

// TransactionView is a statement transaction with its classification
type TransactionView struct {
	statement.Transaction
	Classification Classification `json:"classification"`
	PairID         string         `json:"pairId,omitempty"`
}

// EntryView is a ledger entry with its classification
type EntryView struct {
	ledger.Entry
	Classification Classification `json:"classification"`
	PairID         string         `json:"pairId,omitempty"`
}

// View is what the operator sees of a session
type View struct {
	Key             SessionKey        `json:"key"`
	State           State             `json:"state"`
	FileName        string            `json:"fileName,omitempty"`
	SourceAvailable bool              `json:"sourceAvailable"`
	DateFilter      DateFilter        `json:"dateFilter"`
	Transactions    []TransactionView `json:"transactions"`
	Entries         []EntryView       `json:"entries"`
	Matches         []matching.Match  `json:"matches"`
	Selection       Selection         `json:"selection"`
	Warnings        []string          `json:"warnings,omitempty"`
	Version         int64             `json:"version"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// classifier answers classification questions for one session snapshot
type classifier struct {
	txnPairs   map[string]string
	entryPairs map[string]string
	settled    map[string]struct{}
	entries    map[string]ledger.Entry
}

func newClassifier(s *Session) *classifier {
	c := &classifier{
		txnPairs:   make(map[string]string),
		entryPairs: make(map[string]string),
		settled:    matching.SettledTransactions(s.LedgerEntries),
		entries:    ledger.Index(s.LedgerEntries),
	}
	for _, m := range s.Matches {
		c.txnPairs[m.StatementTransactionID] = m.PairID
		for _, id := range m.LedgerEntryIDs {
			c.entryPairs[id] = m.PairID
		}
	}
	return c
}

func (c *classifier) transaction(id string) (Classification, string) {
	if _, ok := c.settled[id]; ok {
		return ClassDBConciliated, ""
	}
	if pairID, ok := c.txnPairs[id]; ok {
		return ClassSessionMatch, pairID
	}
	return ClassPending, ""
}

func (c *classifier) entry(id string) (Classification, string) {
	if e, ok := c.entries[id]; ok && e.IsReconciled() {
		return ClassDBConciliated, ""
	}
	if pairID, ok := c.entryPairs[id]; ok {
		return ClassSessionMatch, pairID
	}
	return ClassPending, ""
}

// NewView classifies every item of the session
func NewView(s *Session) *View {
	c := newClassifier(s)

	txns := make([]TransactionView, 0, len(s.StatementTransactions))
	for _, t := range s.StatementTransactions {
		class, pairID := c.transaction(t.ID)
		txns = append(txns, TransactionView{Transaction: t, Classification: class, PairID: pairID})
	}
	entries := make([]EntryView, 0, len(s.LedgerEntries))
	for _, e := range s.LedgerEntries {
		class, pairID := c.entry(e.EntryID)
		entries = append(entries, EntryView{Entry: e, Classification: class, PairID: pairID})
	}

	v := &View{
		Key:             s.Key,
		State:           s.State,
		SourceAvailable: s.SourceAvailable(),
		DateFilter:      s.DateFilter,
		Transactions:    txns,
		Entries:         entries,
		Matches:         s.Matches,
		Selection:       s.Selection,
		Warnings:        s.Warnings,
		Version:         s.Version,
		UpdatedAt:       s.UpdatedAt,
	}
	if v.Matches == nil {
		v.Matches = []matching.Match{}
	}
	if s.Source != nil {
		v.FileName = s.Source.FileName
	}
	return v
}

// emptyView is returned when no session exists for a key
func emptyView(key SessionKey) *View {
	return &View{
		Key:          key,
		State:        StateEmpty,
		Transactions: []TransactionView{},
		Entries:      []EntryView{},
		Matches:      []matching.Match{},
	}
}
