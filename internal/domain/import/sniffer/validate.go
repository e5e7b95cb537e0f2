package sniffer

import (
	"bytes"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Declared content types accepted by the import endpoints.
const (
	MIMECSV  = "text/csv"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEZIP  = "application/zip"
)

// csvAliases are content types browsers and HTTP clients send for CSV files.
var csvAliases = map[string]bool{
	MIMECSV:                       true,
	"application/csv":             true,
	"text/comma-separated-values": true,
	"text/plain":                  true,
	"text/tab-separated-values":   true,
}

// zipMagic is the local file header signature every XLSX container starts with.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// csvProbeBytes bounds the prefix scanned for delimiters.
const csvProbeBytes = 100

// Verdict is the file validator's answer.
type Verdict struct {
	Valid        bool   `json:"valid"`
	DetectedType string `json:"detectedType"`
}

// NormalizeMIME lowercases a content type and drops its parameters.
func NormalizeMIME(claimed string) string {
	if i := strings.IndexByte(claimed, ';'); i >= 0 {
		claimed = claimed[:i]
	}
	claimed = strings.ToLower(strings.TrimSpace(claimed))
	if csvAliases[claimed] {
		return MIMECSV
	}
	return claimed
}

// ValidateFile checks that data is plausibly of the claimed type. It never
// passes a file it failed to inspect.
func ValidateFile(data []byte, claimedMIME string) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = Verdict{Valid: false, DetectedType: "error"}
		}
	}()

	switch NormalizeMIME(claimedMIME) {
	case MIMECSV:
		if looksDelimited(data) {
			return Verdict{Valid: true, DetectedType: MIMECSV}
		}
		return Verdict{Valid: false, DetectedType: mimetype.Detect(data).String()}

	case MIMEXLSX:
		detected := mimetype.Detect(data)
		if detected.Is(MIMEXLSX) {
			return Verdict{Valid: true, DetectedType: MIMEXLSX}
		}
		// Signature detection needs the workbook entries near the start of the
		// archive. Any ZIP container is handed to the spreadsheet reader.
		if bytes.HasPrefix(data, zipMagic) {
			return Verdict{Valid: true, DetectedType: MIMEZIP}
		}
		return Verdict{Valid: false, DetectedType: detected.String()}
	}

	return Verdict{Valid: false, DetectedType: mimetype.Detect(data).String()}
}

// looksDelimited reports whether the leading bytes hold a delimiter outside
// of angle or curly brackets, which rules out HTML, XML and JSON bodies.
func looksDelimited(data []byte) bool {
	if len(data) > csvProbeBytes {
		data = data[:csvProbeBytes]
	}

	depth := 0
	for _, b := range data {
		switch b {
		case '<', '{':
			depth++
		case '>', '}':
			if depth > 0 {
				depth--
			}
		case ',', ';', '\t':
			if depth == 0 {
				return true
			}
		}
	}
	return false
}
