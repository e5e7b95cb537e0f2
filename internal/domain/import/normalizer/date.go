// Package normalizer converts raw statement cells into canonical values and
// implements the row transformer.
package normalizer

import (
	"errors"
	"strings"
	"time"
)

// ErrUnparseableDate is returned when no known layout yields a plausible date.
var ErrUnparseableDate = errors.New("unparseable date")

const (
	minYear = 1900
	maxYear = 2100
)

// datePatterns is the fixed priority list tried after a bank hint.
var datePatterns = []string{
	"dd/MM/yyyy",
	"dd-MM-yyyy",
	"yyyy-MM-dd",
	"MM/dd/yyyy",
	"dd.MM.yyyy",
	"d/M/yyyy",
	"yyyy/MM/dd",
	"dd/MM/yy",
	"yyyy-MM-dd HH:mm:ss",
}

// genericLayouts are the last resort, covering ISO timestamps and
// month-name formats some banks emit.
var genericLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"2006.01.02",
	"20060102",
}

var priorityLayouts = func() []string {
	layouts := make([]string, len(datePatterns))
	for i, p := range datePatterns {
		layouts[i] = LayoutFromPattern(p)
	}
	return layouts
}()

// ParseDate parses raw using the hinted pattern first, then the priority list,
// then the generic layouts. The first parse whose year lies in [1900, 2100]
// wins. The result is a UTC calendar date.
func ParseDate(raw, hintPattern string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrUnparseableDate
	}

	if hintPattern != "" {
		if t, ok := tryLayout(LayoutFromPattern(hintPattern), raw); ok {
			return t, nil
		}
	}
	for _, layout := range priorityLayouts {
		if t, ok := tryLayout(layout, raw); ok {
			return t, nil
		}
	}
	for _, layout := range genericLayouts {
		if t, ok := tryLayout(layout, raw); ok {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseableDate
}

func tryLayout(layout, raw string) (time.Time, bool) {
	t, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, false
	}
	if t.Year() < minYear || t.Year() > maxYear {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// LayoutFromPattern converts a dd/MM/yyyy style pattern into a Go reference
// layout. Characters other than pattern letters are copied as-is.
func LayoutFromPattern(pattern string) string {
	var sb strings.Builder
	runes := []rune(pattern)

	for i := 0; i < len(runes); {
		c := runes[i]
		j := i
		for j < len(runes) && runes[j] == c {
			j++
		}
		sb.WriteString(layoutToken(c, j-i, string(runes[i:j])))
		i = j
	}
	return sb.String()
}

func layoutToken(c rune, n int, literal string) string {
	switch c {
	case 'y':
		if n <= 2 {
			return "06"
		}
		return "2006"
	case 'M':
		switch {
		case n == 1:
			return "1"
		case n == 2:
			return "01"
		case n == 3:
			return "Jan"
		default:
			return "January"
		}
	case 'd':
		if n == 1 {
			return "2"
		}
		return "02"
	case 'H':
		return "15"
	case 'm':
		if n == 1 {
			return "4"
		}
		return "04"
	case 's':
		if n == 1 {
			return "5"
		}
		return "05"
	}
	return literal
}
