package statement

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
)

var (
	blockRegex = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)
	fieldRegex = map[string]*regexp.Regexp{}
)

func init() {
	for _, tag := range []string{"DTPOSTED", "TRNAMT", "MEMO", "NAME", "FITID"} {
		// SGML files omit closing tags, so a value runs until the next tag or line break.
		fieldRegex[tag] = regexp.MustCompile(fmt.Sprintf(`(?i)<%s>([^<\r\n]*)`, tag))
	}
}

func field(block, tag string) string {
	if m := fieldRegex[tag].FindStringSubmatch(block); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// parseMarkup scans repeating <STMTTRN> blocks. Blocks without a usable date or amount are skipped.
func parseMarkup(text string) ([]Transaction, int) {
	var (
		txns    []Transaction
		skipped int
	)
	seenIDs := make(map[string]int)
	ordinals := make(map[string]int)

	for _, match := range blockRegex.FindAllStringSubmatch(text, -1) {
		block := match[1]

		date, ok := postedDate(field(block, "DTPOSTED"))
		if !ok {
			skipped++
			continue
		}
		amount, err := money.Parse(field(block, "TRNAMT"))
		if err != nil {
			skipped++
			continue
		}

		description := field(block, "MEMO")
		if description == "" {
			description = field(block, "NAME")
		}

		id := field(block, "FITID")
		if id == "" {
			key := fmt.Sprintf("%s|%d|%s", date, amount, description)
			id = contentID(date, int64(amount), description, ordinals[key])
			ordinals[key]++
		}
		if n := seenIDs[id]; n > 0 {
			seenIDs[id]++
			id = fmt.Sprintf("%s#%d", id, n)
		} else {
			seenIDs[id] = 1
		}

		txns = append(txns, Transaction{
			ID:          id,
			Date:        date,
			Amount:      amount,
			Description: description,
		})
	}
	return txns, skipped
}

// postedDate reads the YYYYMMDD prefix of an OFX datetime such as 20240301120000[-3:BRT].
func postedDate(value string) (string, bool) {
	if len(value) < 8 {
		return "", false
	}
	digits := value[:8]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return normalizeISO(fmt.Sprintf("%s-%s-%s", digits[0:4], digits[4:6], digits[6:8]))
}
