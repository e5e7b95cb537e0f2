package handler

import (
	"net/http"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrCodeUnauthenticated is the only code not derived from an error kind.
const ErrCodeUnauthenticated = "unauthenticated"

// NewAPIError creates an APIError.
func NewAPIError(code, message string) APIError {
	return APIError{Code: code, Message: message}
}

// FromError converts a pipeline error into a status and body. Internal
// details never reach the caller.
func FromError(err error) (int, APIError) {
	kind := common.KindOf(err)
	return statusFor(kind), NewAPIError(string(kind), common.MessageOf(err))
}

func statusFor(kind common.Kind) int {
	switch kind {
	case common.KindInvalidInput, common.KindRejected:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type previewRequest struct {
	Mapping *model.ColumnMapping `json:"mapping"`
}

type confirmRequest struct {
	AccountID string               `json:"accountId"`
	Mapping   *model.ColumnMapping `json:"mapping,omitempty"`
}

type banksResponse struct {
	Banks []model.BankSignature `json:"banks"`
}
