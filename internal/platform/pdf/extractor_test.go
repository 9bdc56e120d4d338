package pdf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	commonErrors "github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

func TestToDelimited(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "iso dates with balance column",
			text: "Statement March 2024\n2024-03-01  Supplier A   -150.00   1850.00\n2024-03-02 Client payment 2000.00\n",
			want: []string{
				"2024-03-01;Supplier A;-150.00",
				"2024-03-02;Client payment;2000.00",
			},
		},
		{
			name: "day first dates and separators in the description",
			text: "05/03/2024 Fee; monthly 75,50-\nPage 1 of 2\n",
			want: []string{"05/03/2024;Fee, monthly;75,50-"},
		},
		{
			name: "numbers inside the description",
			text: "2024-03-04 Invoice 123 paid -150.00 1700.00\n",
			want: []string{"2024-03-04;Invoice 123 paid;-150.00"},
		},
		{
			name: "no transaction lines",
			text: "Opening balance\nClosing balance 100.00\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			got := ToDelimited(tt.text)

			// Assert
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractor_RejectsNonPDF(t *testing.T) {
	// Setup
	e := NewExtractor(zaptest.NewLogger(t))

	// Act
	_, err := e.Extract([]byte("not a pdf"))

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, commonErrors.ErrParse))
}
