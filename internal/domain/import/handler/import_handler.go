// Package handler exposes the import pipeline over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/service"
	"github.com/FACorreiaa/smart-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/smart-import/pkg/interceptors"
)

const (
	formFileField   = "file"
	multipartMemory = 1 << 20
	maxJSONBody     = 1 << 20
)

// ImportHandler serves the analyze, preview and confirm endpoints.
type ImportHandler struct {
	svc            *service.ImportService
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewImportHandler creates a new import handler.
func NewImportHandler(svc *service.ImportService, maxUploadBytes int64, logger *slog.Logger) *ImportHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &ImportHandler{svc: svc, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Routes mounts the endpoints on r. r must run behind interceptors.Auth.
func (h *ImportHandler) Routes(r chi.Router) {
	r.Post("/import/analyze", h.Analyze)
	r.Get("/import/preview/{sessionID}", h.Preview)
	r.Post("/import/preview/{sessionID}", h.Preview)
	r.Post("/import/confirm/{sessionID}", h.Confirm)
	r.Get("/import/banks", h.Banks)
}

// Analyze accepts a multipart upload in the "file" field.
func (h *ImportHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, ok := h.identity(w, r)
	if !ok {
		return
	}

	// Multipart framing adds a little on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, common.E(common.KindInvalidInput, fmt.Sprintf("file exceeds the %d byte upload limit", h.maxUploadBytes)))
			return
		}
		h.writeError(w, common.E(common.KindInvalidInput, "expected a multipart form upload"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(formFileField)
	if err != nil {
		h.writeError(w, common.E(common.KindInvalidInput, "no file uploaded"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.writeError(w, common.Wrap(common.KindInvalidInput, "failed to read upload", err))
		return
	}

	res, err := h.svc.Analyze(r.Context(), tenantID, userID, service.Upload{
		Filename:    filepath.Base(header.Filename),
		ContentType: contentType(header.Header.Get("Content-Type"), header.Filename),
		Data:        data,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Preview transforms the first rows of a session. A POST body may carry a
// replacement mapping.
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req previewRequest
	if r.Method == http.MethodPost {
		if err := decodeJSON(w, r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}

	res, err := h.svc.Preview(r.Context(), tenantID, chi.URLParam(r, "sessionID"), req.Mapping)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Confirm imports a session. With ?report=csv the issue list is returned as
// a CSV attachment and the counts as headers.
func (h *ImportHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		h.writeError(w, common.E(common.KindInvalidInput, "accountId must be a UUID"))
		return
	}

	out, err := h.svc.Confirm(r.Context(), tenantID, chi.URLParam(r, "sessionID"), service.ConfirmRequest{
		AccountID: accountID,
		Mapping:   req.Mapping,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	if r.URL.Query().Get("report") != "csv" {
		h.writeJSON(w, http.StatusOK, out)
		return
	}

	report, err := gocsv.MarshalBytes(out.Issues)
	if err != nil {
		h.writeError(w, common.Wrap(common.KindInternal, "failed to render report", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="import-issues.csv"`)
	w.Header().Set("X-Import-Imported", strconv.Itoa(out.Imported))
	w.Header().Set("X-Import-Duplicates", strconv.Itoa(out.Duplicates))
	w.Header().Set("X-Import-Failed", strconv.Itoa(out.Failed))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

// Banks lists the bank formats the detector recognizes.
func (h *ImportHandler) Banks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, banksResponse{Banks: h.svc.Banks()})
}

// identity reads the caller from the auth context and writes 401 when absent.
func (h *ImportHandler) identity(w http.ResponseWriter, r *http.Request) (userID, tenantID uuid.UUID, ok bool) {
	userStr, okUser := interceptors.GetUserIDFromContext(r.Context())
	tenantStr, okTenant := interceptors.GetTenantIDFromContext(r.Context())
	if okUser && okTenant {
		var errUser, errTenant error
		userID, errUser = uuid.Parse(userStr)
		tenantID, errTenant = uuid.Parse(tenantStr)
		if errUser == nil && errTenant == nil {
			return userID, tenantID, true
		}
	}
	h.writeJSON(w, http.StatusUnauthorized, NewAPIError(ErrCodeUnauthenticated, "authentication required"))
	return uuid.Nil, uuid.Nil, false
}

func (h *ImportHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *ImportHandler) writeError(w http.ResponseWriter, err error) {
	status, body := FromError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("import request failed", slog.Any("error", err))
	}
	h.writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return common.Wrap(common.KindInvalidInput, "malformed request body", err)
	}
	return nil
}

// contentType falls back to the file extension when the client sent no
// useful part type.
func contentType(claimed, filename string) string {
	claimed = strings.TrimSpace(claimed)
	if claimed != "" && claimed != "application/octet-stream" {
		return claimed
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return sniffer.MIMECSV
	case ".xlsx":
		return sniffer.MIMEXLSX
	}
	return claimed
}
