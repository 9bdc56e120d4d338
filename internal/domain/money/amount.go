package money

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Amount is a signed quantity in the smallest currency unit (e.g., cents).
type Amount int64

// Epsilon is the tolerance under which two amounts are treated as equal (0.01).
const Epsilon Amount = 1

// Abs returns the absolute value of the amount
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// String renders the amount with two decimals and a leading minus when negative.
func (a Amount) String() string {
	sign := ""
	if a < 0 {
		sign = "-"
	}
	abs := a.Abs()
	return fmt.Sprintf("%s%d.%02d", sign, abs/100, abs%100)
}

// Equal reports whether the amounts differ by less than Epsilon.
func Equal(a, b Amount) bool {
	return (a - b).Abs() < Epsilon
}

// EqualAbs compares magnitudes only, ignoring sign.
func EqualAbs(a, b Amount) bool {
	return Equal(a.Abs(), b.Abs())
}

// Sum adds the amounts
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// Parse reads a decimal amount as written on bank statements. It accepts a decimal point or a
// decimal comma, optional thousands separators, currency symbols, a leading or trailing minus and
// accounting parentheses: "1.234,56", "1,234.56", "-150.00", "R$ 75,50", "(20.00)", "30.00-".
func Parse(raw string) (Amount, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s, ok := stripCurrency(s)
	if !ok {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-', r == '+':
			b.WriteRune(r)
		case unicode.IsSpace(r):
		default:
			return 0, fmt.Errorf("invalid character %q in amount %q", r, raw)
		}
	}
	s = b.String()

	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = !negative
		s = s[:len(s)-1]
	}
	if s == "" || strings.ContainsAny(s, "+-") {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	intPart, fracPart, err := splitDecimal(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	for len(fracPart) < 2 {
		fracPart += "0"
	}
	cents, err := strconv.ParseInt(fracPart[:2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	// Half-up on a third decimal, some banks export three.
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		cents++
	}

	total := Amount(units*100 + cents)
	if negative {
		total = -total
	}
	return total, nil
}

// MustParse is Parse for literals in fixtures and tests.
func MustParse(raw string) Amount {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

var (
	currencyPrefix = regexp.MustCompile(`^(?:` + isoCodes + `|[A-Z]{0,2}\p{Sc})\s*`)
	currencySuffix = regexp.MustCompile(`\s*(?:` + isoCodes + `|\p{Sc})$`)
)

const isoCodes = `BRL|USD|EUR|GBP|JPY|CAD|AUD|CHF|MXN|ARS|CLP|COP`

// stripCurrency removes a currency code or symbol ("R$", "USD", "€") from either end. Any other
// letter left in the token means it is text, not an amount.
func stripCurrency(s string) (string, bool) {
	s = currencyPrefix.ReplaceAllString(strings.TrimSpace(s), "")
	s = currencySuffix.ReplaceAllString(s, "")
	return s, s != ""
}

// splitDecimal decides which separator is the decimal one and strips the other.
func splitDecimal(s string) (string, string, error) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	var decimalSep byte
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			decimalSep = '.'
		} else {
			decimalSep = ','
		}
	case lastDot >= 0:
		decimalSep = decimalCandidate(s, ".")
	case lastComma >= 0:
		decimalSep = decimalCandidate(s, ",")
	}

	var intPart, fracPart string
	if decimalSep == 0 {
		intPart = strings.NewReplacer(".", "", ",", "").Replace(s)
	} else {
		idx := strings.LastIndexByte(s, decimalSep)
		if strings.IndexByte(s[:idx], decimalSep) >= 0 {
			return "", "", fmt.Errorf("misplaced separator")
		}
		intPart = strings.NewReplacer(".", "", ",", "").Replace(s[:idx])
		fracPart = s[idx+1:]
		if strings.ContainsAny(fracPart, ".,") {
			return "", "", fmt.Errorf("misplaced separator")
		}
	}

	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return "", "", fmt.Errorf("not a number")
	}
	return intPart, fracPart, nil
}

// decimalCandidate treats a lone separator as decimal unless it is a repeated or three-digit group
// separator such as "1,234" or "1.234.567".
func decimalCandidate(s, sep string) byte {
	if strings.Count(s, sep) > 1 {
		return 0
	}
	idx := strings.LastIndex(s, sep)
	if len(s)-idx-1 == 3 && idx > 0 && s[:idx] != "0" {
		return 0
	}
	return sep[0]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
