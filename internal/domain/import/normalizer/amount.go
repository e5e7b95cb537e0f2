package normalizer

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount   = errors.New("empty amount")
	ErrInvalidAmount = errors.New("invalid amount")
)

// DefaultDecimalSeparator applies when neither the mapping nor a bank says otherwise.
const DefaultDecimalSeparator = "."

// ParseAmount parses a signed amount. Currency symbols, currency codes and
// whitespace are ignored. A value wrapped in parentheses or carrying a
// trailing minus is negative. With a "," separator every "." is a thousands
// separator; with "." every "," is.
func ParseAmount(raw, decimalSeparator string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == ',' || r == '.' || r == '-' || r == '+' || r == '(' || r == ')':
			return r
		case unicode.IsSpace(r), unicode.Is(unicode.Sc, r), unicode.IsLetter(r), r == '\'', r == '’':
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return decimal.Decimal{}, ErrEmptyAmount
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	switch {
	case strings.HasPrefix(cleaned, "-"):
		negative = !negative
		cleaned = cleaned[1:]
	case strings.HasPrefix(cleaned, "+"):
		cleaned = cleaned[1:]
	case strings.HasSuffix(cleaned, "-"):
		negative = !negative
		cleaned = cleaned[:len(cleaned)-1]
	}

	if decimalSeparator == "," {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	if cleaned == "" || strings.ContainsAny(cleaned, "+-()") {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// IsAmount reports whether raw parses as an amount.
func IsAmount(raw, decimalSeparator string) bool {
	_, err := ParseAmount(raw, decimalSeparator)
	return err == nil
}
