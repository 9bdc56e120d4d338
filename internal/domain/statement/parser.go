package statement

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/encoding/charmap"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

// Parser turns raw statements into normalized transactions. It is stateless and safe for
// concurrent use.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a new statement parser
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse extracts the transactions of a raw statement. It never returns an empty slice without
// an error: an input that yields nothing is a PARSE_ERROR.
func (p *Parser) Parse(format Format, raw []byte) ([]Transaction, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.NewParseError("statement is empty", nil)
	}

	text := decode(raw)

	var (
		txns    []Transaction
		skipped int
	)
	switch format {
	case FormatMarkup:
		txns, skipped = parseMarkup(text)
	case FormatDelimited, FormatExtracted:
		txns, skipped = parseDelimited(text)
	case FormatPDF:
		return nil, errors.NewParseError("pdf statements must be extracted to text before parsing", nil)
	default:
		return nil, errors.NewParseError(fmt.Sprintf("unsupported statement format %q", format), nil)
	}

	p.logger.Debug("statement parsed",
		zap.String("format", string(format)),
		zap.Int("transactions", len(txns)),
		zap.Int("skipped", skipped))

	if len(txns) == 0 {
		return nil, errors.NewParseError("no transactions found", nil).
			WithDetail("format", string(format)).
			WithDetail("skipped", skipped)
	}
	return txns, nil
}

// Digest fingerprints raw statement bytes for audit records.
func Digest(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// decode returns the statement as UTF-8. Bank exports that are not valid UTF-8 are almost always
// Windows-1252 or ISO-8859-1, which 1252 decodes identically for printable characters.
func decode(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// contentID derives a stable id for formats without a native transaction id. The ordinal
// disambiguates identical rows in the same statement.
func contentID(date string, amount int64, description string, ordinal int) string {
	h, _ := blake2b.New(16, nil)
	fmt.Fprintf(h, "%s|%d|%s|%d", date, amount, description, ordinal)
	return "row-" + hex.EncodeToString(h.Sum(nil))
}
