package detector

import (
	"math"
	"sort"
	"strings"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
	"github.com/FACorreiaa/smart-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smart-import/internal/domain/import/sniffer"
)

const (
	// MaxSampleRows bounds the rows read for content validation.
	MaxSampleRows = 20

	headerMatchThreshold = 0.7
	contentWeight        = 0.3
	emptyPenalty         = 0.5
	minFieldConfidence   = 0.4

	// LowConfidence marks a retained mapping worth a second look.
	LowConfidence = 0.6
)

// ColumnDetector scores canonical fields against file headers and sampled cells.
type ColumnDetector struct {
	catalog *Catalog
}

// NewColumnDetector creates a detector over the catalog's field tables.
func NewColumnDetector(catalog *Catalog) *ColumnDetector {
	return &ColumnDetector{catalog: catalog}
}

type candidate struct {
	field    model.Field
	order    int
	column   int
	score    float64
	weight   float64
	validate func(string) bool
}

// Detect proposes a mapping. Stage A matches headers against each field's
// synonyms; stage B checks the sampled cells of surviving candidates. A
// header serves at most one field, assigned greedily by header score.
func (d *ColumnDetector) Detect(headers []string, sample []model.RawRow) model.ColumnDetection {
	if len(sample) > MaxSampleRows {
		sample = sample[:MaxSampleRows]
	}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = Normalize(h)
	}

	var candidates []candidate
	for order, spec := range d.catalog.Fields {
		for col, header := range normalized {
			score := bestSimilarity(header, spec.normalized)
			if score <= headerMatchThreshold {
				continue
			}
			candidates = append(candidates, candidate{
				field:    spec.Field,
				order:    order,
				column:   col,
				score:    score,
				weight:   spec.Weight,
				validate: validatorFor(spec.Field),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].order != candidates[j].order {
			return candidates[i].order < candidates[j].order
		}
		return candidates[i].column < candidates[j].column
	})

	mapping := model.NewColumnMapping()
	usedColumns := make(map[int]bool, len(headers))

	for _, c := range candidates {
		if mapping.Has(c.field) || usedColumns[c.column] {
			continue
		}
		usedColumns[c.column] = true

		confidence := c.score * c.weight
		if len(sample) > 0 {
			valid, empty := scoreCells(sample, headers[c.column], c.validate)
			confidence += valid * contentWeight
			confidence *= 1 - empty*emptyPenalty
		}
		if confidence < minFieldConfidence {
			continue
		}

		mapping.Set(c.field, model.FieldMapping{
			SourceColumnIndex: c.column,
			SourceHeaderName:  headers[c.column],
			Confidence:        round(confidence),
		})
	}

	// Debit and credit columns take precedence over a single amount column.
	if mapping.DualAmount() {
		delete(mapping.Fields, model.FieldAmount)
	}
	mapping.DecimalSeparator = probeSeparator(mapping, sample)

	return model.ColumnDetection{
		Mapping:           mapping,
		OverallConfidence: OverallConfidence(mapping),
	}
}

// OverallConfidence is the mean confidence of the mapped fields.
func OverallConfidence(mapping model.ColumnMapping) float64 {
	if len(mapping.Fields) == 0 {
		return 0
	}
	total := 0.0
	for _, fm := range mapping.Fields {
		total += fm.Confidence
	}
	return round(total / float64(len(mapping.Fields)))
}

// LowConfidenceFields lists mapped fields below LowConfidence, in canonical order.
func LowConfidenceFields(mapping model.ColumnMapping) []model.Field {
	var low []model.Field
	for _, f := range model.Fields {
		if fm, ok := mapping.Get(f); ok && fm.Confidence < LowConfidence {
			low = append(low, f)
		}
	}
	return low
}

// scoreCells returns the share of valid cells and the share of blank cells.
func scoreCells(sample []model.RawRow, header string, validate func(string) bool) (valid, empty float64) {
	validCount, emptyCount := 0, 0
	for _, row := range sample {
		v := strings.TrimSpace(row.Get(header))
		if v == "" {
			emptyCount++
		}
		if validate(v) {
			validCount++
		}
	}
	n := float64(len(sample))
	return float64(validCount) / n, float64(emptyCount) / n
}

func validatorFor(f model.Field) func(string) bool {
	switch f {
	case model.FieldDate:
		return func(v string) bool {
			_, err := normalizer.ParseDate(v, "")
			return err == nil
		}
	case model.FieldAmount, model.FieldBalance:
		return func(v string) bool {
			return normalizer.IsAmount(v, normalizer.DefaultDecimalSeparator)
		}
	case model.FieldDebit, model.FieldCredit:
		// One of the pair is blank on every row
		return func(v string) bool {
			return v == "" || normalizer.IsAmount(v, normalizer.DefaultDecimalSeparator)
		}
	case model.FieldType:
		return func(v string) bool {
			_, ok := normalizer.ParseType(v)
			return ok
		}
	}
	return func(v string) bool { return v != "" }
}

// probeSeparator reads the decimal separator from the sampled cells of the
// mapped numeric columns, or "" when they do not settle it.
func probeSeparator(mapping model.ColumnMapping, sample []model.RawRow) string {
	var values []string
	for _, f := range []model.Field{model.FieldAmount, model.FieldDebit, model.FieldCredit, model.FieldBalance} {
		fm, ok := mapping.Get(f)
		if !ok {
			continue
		}
		for _, row := range sample {
			values = append(values, row.Get(fm.SourceHeaderName))
		}
	}
	return sniffer.ProbeDecimalSeparator(values)
}

// RequiredFields reports whether mapping can produce importable rows and,
// if not, which requirements are missing.
func RequiredFields(mapping model.ColumnMapping) (bool, []string) {
	var missing []string
	if !mapping.Has(model.FieldDate) {
		missing = append(missing, string(model.FieldDate))
	}
	if !mapping.Has(model.FieldDescription) {
		missing = append(missing, string(model.FieldDescription))
	}
	if !mapping.Has(model.FieldAmount) && !mapping.DualAmount() {
		missing = append(missing, "amount or debit+credit")
	}
	return len(missing) == 0, missing
}

// ResolveMapping checks a caller-supplied mapping against the file headers and
// fills in whichever of header name or column index was omitted.
func ResolveMapping(headers []string, mapping model.ColumnMapping) (model.ColumnMapping, error) {
	if mapping.DecimalSeparator != "" && mapping.DecimalSeparator != "," && mapping.DecimalSeparator != "." {
		return model.ColumnMapping{}, common.E(common.KindInvalidInput, `decimal separator must be "," or "."`)
	}

	out := model.NewColumnMapping()
	out.DecimalSeparator = mapping.DecimalSeparator

	for f, fm := range mapping.Fields {
		if !f.Valid() {
			return model.ColumnMapping{}, common.E(common.KindInvalidInput, "unknown field "+string(f))
		}

		col := -1
		if fm.SourceHeaderName != "" {
			col = indexOf(headers, fm.SourceHeaderName)
		} else if fm.SourceColumnIndex >= 0 && fm.SourceColumnIndex < len(headers) {
			col = fm.SourceColumnIndex
		}
		if col < 0 {
			return model.ColumnMapping{}, common.E(common.KindInvalidInput, "field "+string(f)+" refers to a column the file does not have")
		}

		confidence := fm.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 1
		}
		out.Set(f, model.FieldMapping{SourceColumnIndex: col, SourceHeaderName: headers[col], Confidence: confidence})
	}
	return out, nil
}

func indexOf(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
