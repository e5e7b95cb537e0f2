package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromDecimal(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
		wantCode string
	}{
		{"euro cents", "150.00", EUR, 15000, EUR},
		{"negative", "-45.5", EUR, -4550, EUR},
		{"rounds half away from zero", "12.345", EUR, 1235, EUR},
		{"negative rounding", "-12.345", EUR, -1235, EUR},
		{"lower case code", "1", "usd", 100, USD},
		{"empty code defaults", "2.5", "", 250, DefaultCurrency},
		{"zero decimal currency", "1000", JPY, 1000, JPY},
		{"unknown code falls back", "1", "XXX1", 100, DefaultCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewFromDecimal(decimal.RequireFromString(tt.amount), tt.currency)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Amount())
			assert.Equal(t, tt.wantCode, m.Currency())
		})
	}
}

func TestNewFromDecimal_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     error
	}{
		{"overflows int64", "99999999999999999999.00", EUR, ErrOutOfRange},
		{"negative overflow", "-99999999999999999999.00", EUR, ErrOutOfRange},
		{"below one cent", "0.001", EUR, ErrBelowMinorUnit},
		{"below one yen", "0.4", JPY, ErrBelowMinorUnit},
		{"zero", "0", EUR, ErrBelowMinorUnit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewFromDecimal(decimal.RequireFromString(tt.amount), tt.currency)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, m)
		})
	}
}

func TestNewFromDecimal_Limits(t *testing.T) {
	m, err := NewFromDecimal(decimal.RequireFromString("92233720368547758.07"), EUR)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), m.Amount())

	m, err = NewFromDecimal(decimal.RequireFromString("0.005"), EUR)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Amount())
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"0.01", "1234.56", "-99.90"} {
		d := decimal.RequireFromString(s)
		m, err := NewFromDecimal(d, EUR)
		require.NoError(t, err)
		assert.True(t, d.Equal(m.ToDecimal()), s)
	}
	assert.Equal(t, "-99.90", New(-9990, EUR).String())
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("eur"))
	assert.True(t, Known(""))
	assert.False(t, Known("ZZZ"))
	assert.Error(t, Validate("ZZZ"))
	assert.NoError(t, Validate("CHF"))
}

func TestAbsAndNil(t *testing.T) {
	m := New(-500, EUR)
	assert.True(t, m.IsNegative())
	assert.Equal(t, int64(500), m.Abs().Amount())

	var nilMoney *Money
	assert.Equal(t, int64(0), nilMoney.Amount())
	assert.Equal(t, "", nilMoney.Currency())
	assert.True(t, nilMoney.ToDecimal().IsZero())
}
