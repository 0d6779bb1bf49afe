package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// WriteDomainError maps a service error to an HTTP response. The error code
// is the sentinel reason; the message carries the full error chain.
func WriteDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	status := statusFor(err)
	var rejection *domain.RejectionError
	switch {
	case errors.As(err, &rejection):
		WriteError(w, status, rejection.Reason.Error(), err.Error())
	case errors.Is(err, domain.ErrSettlementFailed):
		WriteError(w, status, domain.ErrSettlementFailed.Error(), err.Error())
	case status == http.StatusInternalServerError:
		WriteError(w, status, "internal_error", "An unexpected error occurred")
	default:
		WriteError(w, status, err.Error(), err.Error())
	}
}

// statusFor picks the HTTP status for a domain error. Categories are checked
// before reasons: a version conflict on a filled order is still a 412.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrSettlementFailed):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrNotOrderOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrInstrumentNotFound),
		errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrWebhookNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountAlreadyExists),
		errors.Is(err, domain.ErrInstrumentAlreadyExists),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrNoLiquidity),
		errors.Is(err, domain.ErrOrderAlreadyFilled),
		errors.Is(err, domain.ErrOrderAlreadyCancelled),
		errors.Is(err, domain.ErrOrderAlreadyRejected):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInstrumentInactive),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrOrderKindUnsupported):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func dollarsPtr(cents *int64) *float64 {
	if cents == nil {
		return nil
	}
	v := domain.CentsToDollars(*cents)
	return &v
}
