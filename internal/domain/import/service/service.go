// Package service orchestrates the analyze, preview and confirm steps of a
// statement import.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/antivirus"
	"github.com/FACorreiaa/smart-import/internal/domain/import/detector"
	"github.com/FACorreiaa/smart-import/internal/domain/import/importer"
	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
	"github.com/FACorreiaa/smart-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smart-import/internal/domain/import/parser"
	"github.com/FACorreiaa/smart-import/internal/domain/import/repository"
	"github.com/FACorreiaa/smart-import/internal/domain/import/session"
	"github.com/FACorreiaa/smart-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/smart-import/internal/domain/import/validator"
	"github.com/FACorreiaa/smart-import/pkg/metrics"
)

const (
	DefaultMaxUploadBytes = 15 << 20
	DefaultPreviewRows    = 20
	analyzePreviewRows    = 5
)

var tracer = otel.Tracer("smart-import/import")

// Upload is a file received from the caller.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DetectedColumns describes a mapping and whether it is importable.
type DetectedColumns struct {
	Mappings            map[model.Field]model.FieldMapping `json:"mappings"`
	DecimalSeparator    string                             `json:"decimalSeparator,omitempty"`
	OverallConfidence   float64                            `json:"overallConfidence"`
	RequiredFieldsValid bool                               `json:"requiredFieldsValid"`
	MissingFields       []string                           `json:"missingFields"`
}

func describe(det model.ColumnDetection) DetectedColumns {
	ok, missing := detector.RequiredFields(det.Mapping)
	if missing == nil {
		missing = []string{}
	}
	return DetectedColumns{
		Mappings:            det.Mapping.Fields,
		DecimalSeparator:    det.Mapping.DecimalSeparator,
		OverallConfidence:   det.OverallConfidence,
		RequiredFieldsValid: ok,
		MissingFields:       missing,
	}
}

// DetectedBank is the bank guess shown to the caller.
type DetectedBank struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Confidence  float64 `json:"confidence"`
}

// AnalyzeResult is returned after an upload.
type AnalyzeResult struct {
	SessionID       string          `json:"sessionId"`
	Filename        string          `json:"filename"`
	RowCount        int             `json:"rowCount"`
	Headers         []string        `json:"headers"`
	DetectedBank    *DetectedBank   `json:"detectedBank,omitempty"`
	DetectedColumns DetectedColumns `json:"detectedColumns"`
	Preview         []model.RawRow  `json:"preview"`
	Warnings        []string        `json:"warnings"`
}

// PreviewRow pairs a source row with its transformed form or error.
type PreviewRow struct {
	Line        int                   `json:"line"`
	Original    map[string]string     `json:"original"`
	Transformed *model.TransformedRow `json:"transformed,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// PreviewResult is the transformed head of a session's rows.
type PreviewResult struct {
	SessionID       string          `json:"sessionId"`
	DetectedColumns DetectedColumns `json:"detectedColumns"`
	Rows            []PreviewRow    `json:"rows"`
}

// ConfirmRequest selects the target account and optionally adjusts the mapping.
type ConfirmRequest struct {
	AccountID uuid.UUID            `json:"accountId"`
	Mapping   *model.ColumnMapping `json:"mapping,omitempty"`
}

// ImportService runs the import pipeline for authenticated tenants.
type ImportService struct {
	sessions       *session.Store
	parser         *parser.Parser
	columns        *detector.ColumnDetector
	banks          *detector.BankDetector
	guard          *antivirus.Guard
	ledger         repository.Ledger
	validator      *validator.Validator
	importer       *importer.Importer
	metrics        *metrics.Metrics
	logger         *slog.Logger
	maxUploadBytes int
	previewRows    int
}

// Option configures an ImportService.
type Option func(*ImportService)

// WithMaxUploadBytes caps accepted file sizes.
func WithMaxUploadBytes(n int) Option {
	return func(s *ImportService) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithMaxRows caps the data rows a file may hold.
func WithMaxRows(n int) Option {
	return func(s *ImportService) { s.parser = parser.NewParser(n) }
}

// WithPreviewRows sets how many rows the preview step transforms.
func WithPreviewRows(n int) Option {
	return func(s *ImportService) {
		if n > 0 {
			s.previewRows = n
		}
	}
}

// WithImporter replaces the default batch importer.
func WithImporter(imp *importer.Importer) Option {
	return func(s *ImportService) { s.importer = imp }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ImportService) { s.metrics = m }
}

// NewImportService creates the service. guard may not be nil; pass a guard
// without a scanner to disable scanning.
func NewImportService(catalog *detector.Catalog, sessions *session.Store, ledger repository.Ledger, guard *antivirus.Guard, logger *slog.Logger, opts ...Option) *ImportService {
	s := &ImportService{
		sessions:       sessions,
		parser:         parser.NewParser(parser.DefaultMaxRows),
		columns:        detector.NewColumnDetector(catalog),
		banks:          detector.NewBankDetector(catalog),
		guard:          guard,
		ledger:         ledger,
		validator:      validator.New(ledger, logger),
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
		previewRows:    DefaultPreviewRows,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.importer == nil {
		s.importer = importer.New(ledger, logger, importer.WithBatchObserver(s.metrics.Batch))
	}
	return s
}

// Analyze validates, scans and parses an upload, detects its layout and
// opens a review session.
func (s *ImportService) Analyze(ctx context.Context, tenantID, userID uuid.UUID, up Upload) (res *AnalyzeResult, err error) {
	ctx, span := tracer.Start(ctx, "ImportService.Analyze", trace.WithAttributes(
		attribute.String("filename", up.Filename),
		attribute.Int("size", len(up.Data)),
	))
	defer func() {
		endSpan(span, err)
		if err != nil {
			s.metrics.Analysis(string(common.KindOf(err)), 0)
		} else {
			s.metrics.Analysis("ok", res.DetectedColumns.OverallConfidence)
		}
	}()

	if len(up.Data) == 0 {
		return nil, common.E(common.KindInvalidInput, "file is empty")
	}
	if len(up.Data) > s.maxUploadBytes {
		return nil, common.E(common.KindInvalidInput, fmt.Sprintf("file exceeds the %d byte upload limit", s.maxUploadBytes))
	}

	verdict := sniffer.ValidateFile(up.Data, up.ContentType)
	if !verdict.Valid {
		s.logger.Info("upload rejected by file validation",
			slog.String("filename", up.Filename),
			slog.String("claimed", up.ContentType),
			slog.String("detected", verdict.DetectedType))
		return nil, common.E(common.KindInvalidInput, "file content does not match a CSV or spreadsheet")
	}

	var warnings []string
	warning, err := s.guard.Check(ctx, up.Data, up.Filename)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		warnings = append(warnings, warning)
	}

	table, err := s.parser.Parse(up.Data, verdict.DetectedType)
	if err != nil {
		return nil, err
	}

	columns := s.columns.Detect(table.Headers, table.Sample(detector.MaxSampleRows))
	bank := s.banks.Detect(table.Headers)
	for _, f := range detector.LowConfidenceFields(columns.Mapping) {
		fm, _ := columns.Mapping.Get(f)
		warnings = append(warnings, fmt.Sprintf("column %q was mapped to %s with low confidence (%.2f)", fm.SourceHeaderName, f, fm.Confidence))
	}

	id, err := s.sessions.Create(session.Session{
		TenantID:   tenantID,
		UploaderID: userID,
		Filename:   up.Filename,
		Table:      table,
		Bank:       bank,
		Columns:    columns,
	})
	if err != nil {
		return nil, err
	}

	res = &AnalyzeResult{
		SessionID:       id,
		Filename:        up.Filename,
		RowCount:        len(table.Rows),
		Headers:         table.Headers,
		DetectedColumns: describe(columns),
		Preview:         table.Sample(analyzePreviewRows),
		Warnings:        warnings,
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	if bank.Bank != nil {
		res.DetectedBank = &DetectedBank{ID: bank.Bank.ID, DisplayName: bank.Bank.DisplayName, Confidence: bank.Confidence}
	}

	s.logger.Info("import analyzed",
		slog.String("tenant_id", tenantID.String()),
		slog.String("filename", up.Filename),
		slog.Int("rows", res.RowCount),
		slog.Float64("confidence", columns.OverallConfidence),
		slog.String("bank", bankID(bank)))
	return res, nil
}

// Preview transforms the first rows of a session. A non-nil override replaces
// the stored mapping for later steps.
func (s *ImportService) Preview(ctx context.Context, tenantID uuid.UUID, sessionID string, override *model.ColumnMapping) (res *PreviewResult, err error) {
	_, span := tracer.Start(ctx, "ImportService.Preview")
	defer func() { endSpan(span, err) }()

	sess, err := s.sessions.Get(sessionID, tenantID)
	if err != nil {
		return nil, err
	}

	columns := sess.Columns
	if override != nil {
		mapping, err := detector.ResolveMapping(sess.Table.Headers, *override)
		if err != nil {
			return nil, err
		}
		columns = model.ColumnDetection{Mapping: mapping, OverallConfidence: detector.OverallConfidence(mapping)}
		if !s.sessions.Update(sessionID, tenantID, session.Patch{Columns: &columns}) {
			return nil, common.Wrap(common.KindNotFound, "import session not found", session.ErrNotFound)
		}
	}

	res = &PreviewResult{SessionID: sessionID, DetectedColumns: describe(columns)}
	for _, raw := range sess.Table.Sample(s.previewRows) {
		row := PreviewRow{Line: raw.Line, Original: raw.Values}
		transformed, err := normalizer.Transform(raw, columns.Mapping, sess.Bank.Bank)
		if err != nil {
			row.Error = rowErrorMessage(err)
		} else {
			row.Transformed = &transformed
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// Confirm imports every row of a session into req.AccountID. The session is
// consumed once the mapping and account are accepted, whatever the outcome.
func (s *ImportService) Confirm(ctx context.Context, tenantID uuid.UUID, sessionID string, req ConfirmRequest) (out *model.ImportOutcome, err error) {
	ctx, span := tracer.Start(ctx, "ImportService.Confirm", trace.WithAttributes(
		attribute.String("account_id", req.AccountID.String()),
	))
	defer func() { endSpan(span, err) }()

	sess, err := s.sessions.Get(sessionID, tenantID)
	if err != nil {
		return nil, err
	}

	mapping := sess.Columns.Mapping
	if req.Mapping != nil {
		if mapping, err = detector.ResolveMapping(sess.Table.Headers, *req.Mapping); err != nil {
			return nil, err
		}
	}
	if ok, missing := detector.RequiredFields(mapping); !ok {
		return nil, common.E(common.KindInvalidInput, "mapping is missing required fields: "+strings.Join(missing, ", "))
	}

	if req.AccountID == uuid.Nil {
		return nil, common.E(common.KindInvalidInput, "accountId is required")
	}
	account, err := s.ledger.GetAccount(ctx, req.AccountID, tenantID)
	if err != nil {
		return nil, common.Wrap(common.KindInternal, "failed to verify account", err)
	}
	if account == nil {
		s.logger.Warn("confirm targets an account outside the tenant",
			slog.Bool("security", true),
			slog.String("tenant_id", tenantID.String()),
			slog.String("account_id", req.AccountID.String()))
		return nil, common.NotFound("account")
	}

	if sess, err = s.sessions.Take(sessionID, tenantID); err != nil {
		return nil, err
	}

	outcome := model.ImportOutcome{}
	rows := make([]model.TransformedRow, 0, len(sess.Table.Rows))
	for _, raw := range sess.Table.Rows {
		row, err := normalizer.Transform(raw, mapping, sess.Bank.Bank)
		if err != nil {
			outcome.Failed++
			outcome.Issues = append(outcome.Issues, model.Issue{Line: raw.Line, Message: rowErrorMessage(err), Severity: model.SeverityError})
			continue
		}
		rows = append(rows, row)
	}

	validated, err := s.validator.Validate(ctx, rows, tenantID, account.ID)
	if err != nil {
		return nil, err
	}
	outcome.Failed += validated.Rejected
	outcome.Issues = append(outcome.Issues, validated.Issues...)

	imported := s.importer.Import(ctx, validated.Valid, tenantID)
	outcome.Imported = imported.Imported
	outcome.Duplicates = imported.Duplicates
	outcome.Failed += imported.Failed
	outcome.Issues = append(outcome.Issues, imported.Issues...)

	sort.SliceStable(outcome.Issues, func(i, j int) bool { return outcome.Issues[i].Line < outcome.Issues[j].Line })
	if outcome.Issues == nil {
		outcome.Issues = []model.Issue{}
	}

	s.metrics.Rows(outcome.Imported, outcome.Duplicates, outcome.Failed)
	span.SetAttributes(
		attribute.Int("imported", outcome.Imported),
		attribute.Int("duplicates", outcome.Duplicates),
		attribute.Int("failed", outcome.Failed),
	)
	s.logger.Info("import confirmed",
		slog.String("tenant_id", tenantID.String()),
		slog.String("account_id", account.ID.String()),
		slog.String("filename", sess.Filename),
		slog.Int("imported", outcome.Imported),
		slog.Int("duplicates", outcome.Duplicates),
		slog.Int("failed", outcome.Failed))
	return &outcome, nil
}

// Banks lists the bank signatures the detector knows.
func (s *ImportService) Banks() []model.BankSignature {
	return s.banks.Signatures()
}

func rowErrorMessage(err error) string {
	var rowErr *normalizer.RowError
	if errors.As(err, &rowErr) {
		return rowErr.Err.Error()
	}
	return err.Error()
}

func bankID(res model.BankDetectionResult) string {
	if res.Bank == nil {
		return ""
	}
	return res.Bank.ID
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, common.MessageOf(err))
	}
	span.End()
}
