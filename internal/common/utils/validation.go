package utils

import (
	"regexp"
	"strings"
	"time"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

// ISODateLayout is the layout of every calendar date handled by the service.
const ISODateLayout = "2006-01-02"

var (
	// DateRegex validates ISO 8601 date strings (YYYY-MM-DD)
	DateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// DayFirstDateRegex matches DD/MM/YYYY dates found in delimited statements
	DayFirstDateRegex = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)

	// IdentifierRegex validates organization, account and entry identifiers
	IdentifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-:.]{0,127}$`)
)

// ValidateISODate validates an ISO 8601 date string (YYYY-MM-DD)
func ValidateISODate(date string) error {
	if !DateRegex.MatchString(date) {
		return errors.NewValidationError("invalid date format, should be YYYY-MM-DD")
	}

	// Parse the date to ensure it's valid
	_, err := time.Parse(ISODateLayout, date)
	if err != nil {
		return errors.NewValidationError("invalid date value")
	}

	return nil
}

// ValidateDateRange checks both bounds and their order. Empty bounds are rejected.
func ValidateDateRange(start, end string) error {
	if err := ValidateISODate(start); err != nil {
		return errors.NewValidationError("invalid start date, should be YYYY-MM-DD")
	}
	if err := ValidateISODate(end); err != nil {
		return errors.NewValidationError("invalid end date, should be YYYY-MM-DD")
	}
	if end < start {
		return errors.NewValidationError("end date must not be before start date")
	}
	return nil
}

// NormalizeDate accepts YYYY-MM-DD or DD/MM/YYYY and returns YYYY-MM-DD.
func NormalizeDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	layout := ""
	switch {
	case DateRegex.MatchString(value):
		layout = ISODateLayout
	case DayFirstDateRegex.MatchString(value):
		layout = "2/1/2006"
	default:
		return "", false
	}

	t, err := time.Parse(layout, value)
	if err != nil {
		return "", false
	}
	return t.Format(ISODateLayout), true
}

// DaysBetween returns the absolute number of days between two ISO dates.
func DaysBetween(a, b string) (int, error) {
	ta, err := time.Parse(ISODateLayout, a)
	if err != nil {
		return 0, err
	}
	tb, err := time.Parse(ISODateLayout, b)
	if err != nil {
		return 0, err
	}
	days := int(tb.Sub(ta).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days, nil
}

// ValidateIdentifier validates an opaque identifier used in keys and paths
func ValidateIdentifier(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(fieldName + " is required")
	}
	if !IdentifierRegex.MatchString(value) {
		return errors.NewValidationError("invalid " + fieldName)
	}
	return nil
}

// ValidateTenantID validates a tenant ID
func ValidateTenantID(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return errors.NewTenantError("organization ID is required")
	}
	return nil
}

// ValidateRequiredString validates that a string is not empty
func ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(fieldName + " is required")
	}
	return nil
}
