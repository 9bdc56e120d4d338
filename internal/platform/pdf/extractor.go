package pdf

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

// MaxTextBytes caps the text read from one document
const MaxTextBytes = 2 << 20

// statementLine is a line starting with a date and ending with an amount in cents, optionally
// followed by a running balance.
var statementLine = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})\s+(.+?)\s+(\(?[-+]?[\d.,]*[.,]\d{2}\)?-?)(?:\s+\(?[-+]?[\d.,]*[.,]\d{2}\)?-?)?$`)

// Extractor turns text-based PDF statements into delimited rows
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a new PDF extractor
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract reads the plain text of a PDF and rewrites its transaction lines as
// date;description;amount rows. Scanned documents without a text layer yield a PARSE_ERROR.
func (e *Extractor) Extract(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("pdf reader panicked", zap.Any("panic", r))
			text, err = "", errors.NewParseError("unreadable pdf document", fmt.Errorf("panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.NewParseError("failed to open pdf document", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", errors.NewParseError("failed to extract pdf text", err)
	}
	raw, err := io.ReadAll(io.LimitReader(plain, MaxTextBytes))
	if err != nil {
		return "", errors.NewParseError("failed to read pdf text", err)
	}

	rows := ToDelimited(string(raw))
	e.logger.Debug("pdf text extracted",
		zap.Int("pages", reader.NumPage()),
		zap.Int("textBytes", len(raw)),
		zap.Int("rows", len(rows)))
	if len(rows) == 0 {
		return "", errors.NewParseError("no transaction lines found in pdf text", nil).
			WithDetail("pages", reader.NumPage())
	}
	return strings.Join(rows, "\n") + "\n", nil
}

// ToDelimited keeps the lines that look like statement transactions
func ToDelimited(text string) []string {
	var rows []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		m := statementLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		description := strings.ReplaceAll(m[2], ";", ",")
		rows = append(rows, m[1]+";"+description+";"+m[3])
	}
	return rows
}
