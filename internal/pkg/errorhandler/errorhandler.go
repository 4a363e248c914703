package errorhandler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/pkg/logger"
	"github.com/ptcearn/ptcearn-api/internal/pkg/response"
)

// StatusFor maps a ledger failure kind to its HTTP status.
func StatusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindInvalidRequest:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindInsufficientFunds,
		ledger.KindAlreadyUsed,
		ledger.KindDuplicateView,
		ledger.KindAlreadyProcessed,
		ledger.KindLimitReached,
		ledger.KindConflict:
		return http.StatusConflict
	case ledger.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// HandleLedgerError writes err as an envelope carrying its stable kind.
// Server-side failures are logged with the cause and answered with a generic message.
func HandleLedgerError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := ledger.KindOf(err)
	status := StatusFor(kind)
	l := logger.FromContext(ctx)

	switch {
	case kind == ledger.KindStorageUnavailable:
		l.Error().Err(err).Str("error_code", string(kind)).Msg("Storage unavailable")
		response.ServiceUnavailable(w)
	case status >= http.StatusInternalServerError:
		l.Error().Err(err).Str("error_code", string(kind)).Msg("Request error")
		response.InternalError(w)
	default:
		l.Debug().Err(err).Str("error_code", string(kind)).Int("status_code", status).Msg("Request rejected")
		response.Error(w, status, string(kind), err.Error())
	}
}

// HandleError logs err and sends a plain error response.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := logger.FromContext(ctx).Error().
		Str("error_code", code).
		Str("error_message", message).
		Int("status_code", status)
	if err != nil {
		event.Err(err)
	}
	event.Msg("Request error")

	response.Error(w, status, code, message)
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	errJSON, _ := json.Marshal(fieldErrors)
	logger.FromContext(ctx).Warn().
		RawJSON("validation_errors", errJSON).
		Msg("Validation error")
}

// HandleValidation answers a DTO validation failure as INVALID_REQUEST with per-field details.
func HandleValidation(ctx context.Context, w http.ResponseWriter, details map[string]string) {
	LogValidationError(ctx, details)
	response.ErrorWithDetails(w, http.StatusBadRequest, string(ledger.KindInvalidRequest), "Validation failed", details)
}
