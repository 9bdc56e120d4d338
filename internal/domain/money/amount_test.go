package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Amount
	}{
		{"-150.00", -15000},
		{"2000.00", 200000},
		{"2000", 200000},
		{"-75,50", -7550},
		{"1.234,56", 123456},
		{"1,234.56", 123456},
		{"1.234.567,89", 123456789},
		{"1,234", 123400},
		{"R$ -75,50", -7550},
		{"USD 10.5", 1050},
		{"(20.00)", -2000},
		{"30.00-", -3000},
		{"+12.30", 1230},
		{"0.125", 13},
		{" 3,9 ", 390},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsText(t *testing.T) {
	for _, in := range []string{"", "-", "Invoice 123", "abc", "12-34", "1.2.3,4,5", "2024-03-01"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestEqualWithinEpsilon(t *testing.T) {
	assert.True(t, Equal(-15000, -15000))
	assert.False(t, Equal(-15000, -15001))
	assert.True(t, EqualAbs(-50000, 50000))
	assert.False(t, EqualAbs(-50000, 45000))
}

func TestString(t *testing.T) {
	assert.Equal(t, "50.00", Amount(5000).String())
	assert.Equal(t, "-75.50", Amount(-7550).String())
	assert.Equal(t, "0.05", Amount(5).String())
	assert.Equal(t, "-0.05", Amount(-5).String())
	assert.Equal(t, Amount(-45000), Sum(-30000, -15000))
}
