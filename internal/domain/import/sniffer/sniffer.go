// Package sniffer inspects raw upload bytes before parsing. It checks that a
// file's content agrees with its declared type and infers the delimiter and
// decimal separator of bank exports.
package sniffer

import (
	"strings"
)

// Supported delimiters, in tie-break order.
var delimiters = []rune{';', '\t', ','}

// DetectDelimiter returns the delimiter that occurs most often in the header
// line, defaulting to comma.
func DetectDelimiter(headerLine string) rune {
	delimiter, count := detectDelimiter(CleanLine(headerLine, true))
	if count == 0 {
		return ','
	}
	return delimiter
}

// FirstLine returns the first non-blank line of text.
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// CleanLine trims line endings and, on the first line, the UTF-8 BOM.
func CleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

// ProbeDecimalSeparator inspects amount cells and returns "," or "." when
// the evidence points one way only, or "" when it is absent or mixed.
func ProbeDecimalSeparator(values []string) string {
	europeanHints := 0
	usHints := 0

	for _, val := range values {
		hint := analyzeAmountFormat(val)
		if hint > 0 {
			europeanHints++
		} else if hint < 0 {
			usHints++
		}
	}

	switch {
	case europeanHints > 0 && usHints == 0:
		return ","
	case usHints > 0 && europeanHints == 0:
		return "."
	}
	return ""
}

// analyzeAmountFormat returns: >0 for comma decimals, <0 for dot decimals, 0 for ambiguous
func analyzeAmountFormat(val string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, val)

	if cleaned == "" {
		return 0
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both present: last one is decimal separator
		if lastComma > lastDot {
			return 1 // 1.234,56
		}
		return -1 // 1,234.56

	case lastComma >= 0:
		// A comma followed by three digits reads as a thousands separator
		if len(cleaned)-lastComma-1 <= 2 {
			return 1
		}
		return 0

	case lastDot >= 0:
		if len(cleaned)-lastDot-1 <= 2 {
			return -1
		}
		return 0
	}

	return 0
}
