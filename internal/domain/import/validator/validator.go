// Package validator resolves transformed rows against the tenant's ledger and
// drops the ones that cannot be imported.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
	"github.com/FACorreiaa/smart-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smart-import/internal/domain/import/repository"
)

// Result splits the input into importable rows and reported issues.
type Result struct {
	Valid    []model.ValidatedRow
	Issues   []model.Issue
	Rejected int
}

// Validator checks rows for one tenant.
type Validator struct {
	dir    repository.Directory
	logger *slog.Logger
	now    func() time.Time
}

// New creates a validator reading accounts and categories from dir.
func New(dir repository.Directory, logger *slog.Logger) *Validator {
	return &Validator{dir: dir, logger: logger, now: time.Now}
}

type lookups struct {
	accounts   map[string]repository.Account
	categories map[string]repository.Category
}

func lookupKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (v *Validator) load(ctx context.Context, tenantID uuid.UUID) (*lookups, error) {
	accounts, err := v.dir.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	categories, err := v.dir.ListCategories(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	l := &lookups{
		accounts:   make(map[string]repository.Account, len(accounts)),
		categories: make(map[string]repository.Category, len(categories)),
	}
	for _, a := range accounts {
		l.accounts[lookupKey(a.Name)] = a
	}
	for _, c := range categories {
		l.categories[lookupKey(c.Name)] = c
	}
	return l, nil
}

// Validate resolves every row. defaultAccountID must belong to tenantID.
func (v *Validator) Validate(ctx context.Context, rows []model.TransformedRow, tenantID, defaultAccountID uuid.UUID) (*Result, error) {
	l, err := v.load(ctx, tenantID)
	if err != nil {
		return nil, common.Wrap(common.KindInternal, "failed to load ledger references", err)
	}

	owned := false
	for _, a := range l.accounts {
		if a.ID == defaultAccountID {
			owned = true
			break
		}
	}
	if !owned {
		v.logger.Warn("default account not owned by tenant",
			slog.Bool("security", true),
			slog.String("tenant_id", tenantID.String()),
			slog.String("account_id", defaultAccountID.String()))
		return nil, common.NotFound("account")
	}

	y, m, d := v.now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	res := &Result{}
	for _, row := range rows {
		issues := checkRow(row)
		if len(issues) > 0 {
			res.Issues = append(res.Issues, issues...)
			res.Rejected++
			continue
		}

		vr := model.ValidatedRow{
			TransformedRow: row,
			AccountID:      defaultAccountID,
			OccurredAt:     row.Date.UTC(),
		}

		if row.AccountName != "" {
			if a, ok := l.accounts[lookupKey(row.AccountName)]; ok {
				vr.AccountID = a.ID
			} else {
				res.Issues = append(res.Issues, warning(row.Line, model.FieldAccount,
					fmt.Sprintf("unknown account %q, using the selected account", row.AccountName)))
			}
		}

		if row.CategoryName != "" {
			c, ok := l.categories[lookupKey(row.CategoryName)]
			switch {
			case !ok:
				res.Issues = append(res.Issues, warning(row.Line, model.FieldCategory,
					fmt.Sprintf("unknown category %q", row.CategoryName)))
			case c.Kind != kindFor(row.Type):
				res.Issues = append(res.Issues, warning(row.Line, model.FieldCategory,
					fmt.Sprintf("category %q is %s but the transaction is a %s", c.Name, c.Kind, row.Type)))
			default:
				id := c.ID
				vr.CategoryID = &id
			}
		}

		if vr.OccurredAt.After(today) {
			res.Issues = append(res.Issues, warning(row.Line, model.FieldDate, "date is in the future"))
		}

		res.Valid = append(res.Valid, vr)
	}
	return res, nil
}

// checkRow returns the fatal issues for a row.
func checkRow(row model.TransformedRow) []model.Issue {
	var issues []model.Issue
	if !row.HasDate() {
		issues = append(issues, fatal(row.Line, model.FieldDate, "date is missing or invalid"))
	}
	if !row.Amount.Valid || !row.Amount.Decimal.IsPositive() {
		issues = append(issues, fatal(row.Line, model.FieldAmount, "amount is missing or not positive"))
	}
	if !row.Type.Valid() {
		issues = append(issues, fatal(row.Line, model.FieldType, "type must be credit or debit"))
	}
	if utf8.RuneCountInString(row.Description) > normalizer.MaxDescriptionLength {
		issues = append(issues, fatal(row.Line, model.FieldDescription,
			fmt.Sprintf("description exceeds %d characters", normalizer.MaxDescriptionLength)))
	}
	return issues
}

func kindFor(t model.TxType) repository.CategoryKind {
	if t == model.TypeDebit {
		return repository.KindExpense
	}
	return repository.KindIncome
}

func fatal(line int, f model.Field, msg string) model.Issue {
	return model.Issue{Line: line, Field: string(f), Message: msg, Severity: model.SeverityError}
}

func warning(line int, f model.Field, msg string) model.Issue {
	return model.Issue{Line: line, Field: string(f), Message: msg, Severity: model.SeverityWarning}
}
