package detector

import (
	"sort"

	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
)

const (
	headerMatchSimilarity = 0.75
	minBankScore          = 0.5
)

// BankDetector matches file headers against the catalog's bank signatures.
type BankDetector struct {
	catalog *Catalog
}

// NewBankDetector creates a detector over the catalog's bank table.
func NewBankDetector(catalog *Catalog) *BankDetector {
	return &BankDetector{catalog: catalog}
}

// Signatures returns a copy of the cataloged banks.
func (d *BankDetector) Signatures() []model.BankSignature {
	out := make([]model.BankSignature, len(d.catalog.Banks))
	copy(out, d.catalog.Banks)
	return out
}

// BankScore is one bank's match against a file.
type BankScore struct {
	BankID        string
	Coverage      float64
	AvgSimilarity float64
	Score         float64
}

// Detect returns the best matching bank, or no bank when the best score is
// not above 0.5.
func (d *BankDetector) Detect(headers []string) model.BankDetectionResult {
	scores := d.Rank(headers)
	if len(scores) == 0 || scores[0].Score <= minBankScore {
		return model.BankDetectionResult{}
	}

	bank, ok := d.catalog.Bank(scores[0].BankID)
	if !ok {
		return model.BankDetectionResult{}
	}
	return model.BankDetectionResult{Bank: bank, Confidence: round(scores[0].Score)}
}

// Rank scores every cataloged bank, best first. Ties keep catalog order.
func (d *BankDetector) Rank(headers []string) []BankScore {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = Normalize(h)
	}

	scores := make([]BankScore, 0, len(d.catalog.Banks))
	for _, bank := range d.catalog.Banks {
		expected := d.catalog.normalizedHeaders[bank.ID]

		matched := 0
		total := 0.0
		for _, e := range expected {
			best := bestSimilarity(e, normalized)
			if best > headerMatchSimilarity {
				matched++
				total += best
			}
		}

		s := BankScore{BankID: bank.ID}
		if matched > 0 {
			s.Coverage = float64(matched) / float64(len(expected))
			s.AvgSimilarity = total / float64(matched)
			s.Score = s.Coverage * s.AvgSimilarity
		}
		scores = append(scores, s)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}
