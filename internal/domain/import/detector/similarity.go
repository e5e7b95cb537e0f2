// Package detector maps statement headers onto canonical fields and
// recognizes known bank export formats. Both detectors share one header
// similarity function and read their tables from an embedded catalog.
package detector

import (
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/smart-import/internal/domain/import/normalizer"
)

const (
	scoreIdentical   = 1.0
	scoreContainment = 0.8
)

// Normalize lowercases s, strips accents and collapses whitespace so that
// "Libellé " and "libelle" compare equal.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(normalizer.FoldAccents(s))), " ")
}

// Similarity scores two header strings in [0, 1]: 1 when identical after
// normalization, 0.8 when one contains the other, otherwise one minus the
// Levenshtein distance over the longer length.
func Similarity(a, b string) float64 {
	return similarity(Normalize(a), Normalize(b))
}

// similarity expects normalized input.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return scoreIdentical
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return scoreContainment
	}

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	score := 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

// bestSimilarity returns the highest score of header against candidates.
func bestSimilarity(header string, candidates []string) float64 {
	best := 0.0
	for _, c := range candidates {
		if s := similarity(header, c); s > best {
			best = s
			if best == scoreIdentical {
				break
			}
		}
	}
	return best
}
