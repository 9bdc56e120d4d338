package statement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hirosato/go-bank-reconciliation/internal/common/utils"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
)

const sniffLines = 10

// Header names are matched after lowercasing and stripping accents
var (
	dateHeaders        = []string{"data", "date"}
	amountHeaders      = []string{"valor", "amount", "value"}
	descriptionHeaders = []string{"historico", "descricao", "description", "memo", "lancamento"}
)

// columns maps the fields of a headed file. -1 marks a column that is absent.
type columns struct {
	date        int
	amount      int
	description int
}

// parseDelimited reads comma or semicolon separated rows. When the file opens with a header naming
// the date and amount columns, rows are read by column. Otherwise each row needs a date token and
// an amount token, and everything else that is not numeric becomes the description.
func parseDelimited(text string) ([]Transaction, int) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectSeparator(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var (
		txns       []Transaction
		skipped    int
		cols       *columns
		pastHeader bool
	)
	ordinals := make(map[string]int)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		if !pastHeader && !blankRecord(record) {
			if cols = headerColumns(record); cols != nil {
				pastHeader = true
				continue
			}
			pastHeader = hasDate(record)
		}

		var (
			txn Transaction
			ok  bool
		)
		if cols != nil {
			txn, ok = cols.parse(record)
		} else {
			txn, ok = parseRow(record)
		}
		if !ok {
			if !blankRecord(record) {
				skipped++
			}
			continue
		}

		key := fmt.Sprintf("%s|%d|%s", txn.Date, txn.Amount, txn.Description)
		txn.ID = contentID(txn.Date, int64(txn.Amount), txn.Description, ordinals[key])
		ordinals[key]++

		txns = append(txns, txn)
	}
	return txns, skipped
}

// detectSeparator picks ';' when any of the leading lines carries one outside a quoted field,
// ',' otherwise.
func detectSeparator(text string) rune {
	var (
		quoted bool
		lines  int
	)
	for _, r := range text {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == ';':
			return ';'
		case r == '\n':
			lines++
			if lines >= sniffLines {
				return ','
			}
		}
	}
	return ','
}

// headerColumns maps a record with no date in it by column name. It returns nil when the record is
// not a header naming both the date and the amount column.
func headerColumns(record []string) *columns {
	if hasDate(record) {
		return nil
	}

	cols := &columns{date: -1, amount: -1, description: -1}
	for i, field := range record {
		name := foldHeader(field)
		switch {
		case name == "":
		case cols.date < 0 && containsAny(name, dateHeaders):
			cols.date = i
		case cols.amount < 0 && containsAny(name, amountHeaders):
			cols.amount = i
		case cols.description < 0 && containsAny(name, descriptionHeaders):
			cols.description = i
		}
	}
	if cols.date < 0 || cols.amount < 0 {
		return nil
	}
	return cols
}

func (c *columns) parse(record []string) (Transaction, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, ok := utils.NormalizeDate(field(c.date))
	if !ok {
		return Transaction{}, false
	}
	amount, err := money.Parse(field(c.amount))
	if err != nil {
		return Transaction{}, false
	}

	txn := Transaction{Date: date, Amount: amount}
	if c.description >= 0 {
		txn.Description = field(c.description)
		return txn, true
	}

	var descParts []string
	for i := range record {
		if i == c.date || i == c.amount {
			continue
		}
		token := field(i)
		if token == "" {
			continue
		}
		if _, err := money.Parse(token); err == nil {
			continue
		}
		if _, isDate := utils.NormalizeDate(token); isDate {
			continue
		}
		descParts = append(descParts, token)
	}
	txn.Description = strings.Join(descParts, " ")
	return txn, true
}

func hasDate(record []string) bool {
	for _, field := range record {
		if _, ok := utils.NormalizeDate(strings.TrimSpace(field)); ok {
			return true
		}
	}
	return false
}

func foldHeader(field string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(field))
	if err != nil {
		folded = field
	}
	return strings.ToLower(folded)
}

func containsAny(name string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(name, c) {
			return true
		}
	}
	return false
}

func parseRow(record []string) (Transaction, bool) {
	var (
		txn       Transaction
		haveDate  bool
		haveAmt   bool
		descParts []string
	)

	for _, raw := range record {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}

		if !haveDate {
			if date, ok := utils.NormalizeDate(token); ok {
				txn.Date = date
				haveDate = true
				continue
			}
		}

		if amount, err := money.Parse(token); err == nil {
			if !haveAmt {
				txn.Amount = amount
				haveAmt = true
			}
			// later numeric columns are running balances
			continue
		}

		if _, isDate := utils.NormalizeDate(token); isDate {
			continue
		}
		descParts = append(descParts, token)
	}

	if !haveDate || !haveAmt {
		return Transaction{}, false
	}
	txn.Description = strings.Join(descParts, " ")
	return txn, true
}

func blankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func normalizeISO(value string) (string, bool) {
	return utils.NormalizeDate(value)
}
