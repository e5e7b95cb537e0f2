package detector

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

// FieldSpec is one canonical field's matching table.
type FieldSpec struct {
	Field    model.Field `yaml:"field"`
	Weight   float64     `yaml:"weight"`
	Synonyms []string    `yaml:"synonyms"`

	normalized []string
}

// Catalog holds the reference data both detectors read. It is built once at
// startup and never mutated.
type Catalog struct {
	Fields []FieldSpec
	Banks  []model.BankSignature

	normalizedHeaders map[string][]string
}

type fieldsFile struct {
	Fields []FieldSpec `yaml:"fields"`
}

type banksFile struct {
	Banks []model.BankSignature `yaml:"banks"`
}

// LoadCatalog parses the embedded field and bank tables.
func LoadCatalog() (*Catalog, error) {
	fields, err := catalogFS.ReadFile("catalog/fields.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read field catalog: %w", err)
	}
	banks, err := catalogFS.ReadFile("catalog/banks.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read bank catalog: %w", err)
	}
	return ParseCatalog(fields, banks)
}

// ParseCatalog builds a catalog from YAML documents.
func ParseCatalog(fieldsYAML, banksYAML []byte) (*Catalog, error) {
	var ff fieldsFile
	if err := yaml.Unmarshal(fieldsYAML, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse field catalog: %w", err)
	}
	var bf banksFile
	if err := yaml.Unmarshal(banksYAML, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse bank catalog: %w", err)
	}

	c := &Catalog{
		Fields:            ff.Fields,
		Banks:             bf.Banks,
		normalizedHeaders: make(map[string][]string, len(bf.Banks)),
	}
	if err := c.prepare(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) prepare() error {
	seenFields := make(map[model.Field]bool, len(c.Fields))
	for i := range c.Fields {
		spec := &c.Fields[i]
		if !spec.Field.Valid() {
			return fmt.Errorf("unknown field %q in catalog", spec.Field)
		}
		if seenFields[spec.Field] {
			return fmt.Errorf("field %q listed twice in catalog", spec.Field)
		}
		seenFields[spec.Field] = true
		if spec.Weight <= 0 || spec.Weight > 1 {
			return fmt.Errorf("field %q: weight must be in (0, 1]", spec.Field)
		}
		if len(spec.Synonyms) == 0 {
			return fmt.Errorf("field %q has no synonyms", spec.Field)
		}
		spec.normalized = make([]string, len(spec.Synonyms))
		for j, s := range spec.Synonyms {
			spec.normalized[j] = Normalize(s)
		}
	}

	for _, bank := range c.Banks {
		if bank.ID == "" {
			return errors.New("bank without id in catalog")
		}
		if _, dup := c.normalizedHeaders[bank.ID]; dup {
			return fmt.Errorf("bank %q listed twice in catalog", bank.ID)
		}
		if len(bank.ExpectedHeaders) == 0 {
			return fmt.Errorf("bank %q has no expected headers", bank.ID)
		}
		if bank.DecimalSeparator != "," && bank.DecimalSeparator != "." {
			return fmt.Errorf("bank %q: decimal separator must be \",\" or \".\"", bank.ID)
		}
		if strings.TrimSpace(bank.DateFormatHint) == "" {
			return fmt.Errorf("bank %q has no date format", bank.ID)
		}

		headers := make([]string, len(bank.ExpectedHeaders))
		for i, h := range bank.ExpectedHeaders {
			headers[i] = Normalize(h)
		}
		c.normalizedHeaders[bank.ID] = headers
	}
	return nil
}

// Bank returns the catalog entry with the given id.
func (c *Catalog) Bank(id string) (*model.BankSignature, bool) {
	for i := range c.Banks {
		if c.Banks[i].ID == id {
			b := c.Banks[i]
			return &b, true
		}
	}
	return nil, false
}
