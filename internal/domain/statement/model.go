package statement

import (
	"sort"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
)

// Format identifies the shape of a raw statement
type Format string

const (
	// FormatMarkup is a tag-delimited bank statement (OFX/QFX) with repeating <STMTTRN> blocks.
	FormatMarkup Format = "ofx"
	// FormatDelimited is comma or semicolon separated text.
	FormatDelimited Format = "csv"
	// FormatExtracted is delimited text produced by a document extraction pass over a scanned statement.
	FormatExtracted Format = "extracted"
	// FormatPDF is a PDF statement that must go through text extraction first.
	FormatPDF Format = "pdf"
)

// Valid reports whether the format is one the service accepts
func (f Format) Valid() bool {
	switch f {
	case FormatMarkup, FormatDelimited, FormatExtracted, FormatPDF:
		return true
	}
	return false
}

// Transaction is one normalized line of a bank statement
type Transaction struct {
	ID          string       `json:"id"`
	Date        string       `json:"date"` // YYYY-MM-DD
	Amount      money.Amount `json:"amount"`
	Description string       `json:"description"`
}

// Period returns the earliest and latest transaction dates.
func Period(txns []Transaction) (string, string) {
	if len(txns) == 0 {
		return "", ""
	}
	dates := make([]string, 0, len(txns))
	for _, t := range txns {
		dates = append(dates, t.Date)
	}
	sort.Strings(dates)
	return dates[0], dates[len(dates)-1]
}

// Index maps transaction ids to transactions
func Index(txns []Transaction) map[string]Transaction {
	idx := make(map[string]Transaction, len(txns))
	for _, t := range txns {
		idx[t.ID] = t
	}
	return idx
}
