package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge{limit: tooLarge.Limit}
		}
		return nil, &domain.ErrValidation{Field: "body", Message: err.Error()}
	}
	return body, nil
}

type errBodyTooLarge struct {
	limit int64
}

func (e errBodyTooLarge) Error() string {
	return fmt.Sprintf("request body exceeds %d bytes", e.limit)
}

// handleServiceError maps domain errors to HTTP responses. Upstream
// failures are checked first: an external error may wrap a payload error
// coming from a collaborator, which is not the caller's fault.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var (
		circuitOpen  *domain.ErrCircuitOpen
		timeout      *domain.ErrTimeout
		external     *domain.ErrExternalService
		unavailable  *domain.ErrUnavailable
		readOnly     *domain.ErrReadOnly
		notFound     *domain.ErrNotFound
		missing      *domain.ErrMissingField
		malformed    *domain.ErrMalformedTransactions
		validation   *domain.ErrValidation
		unauthorized *domain.ErrUnauthorized
		tooLarge     errBodyTooLarge
	)

	switch {
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &external):
		logger.Error("external service failure", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &unavailable):
		logger.Warn("capability unavailable", zap.String("capability", unavailable.Capability))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &readOnly):
		logger.Debug("read-only backend", zap.String("backend", readOnly.Backend))
		writeError(w, http.StatusMethodNotAllowed, err.Error())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &missing), errors.As(err, &malformed), errors.As(err, &validation):
		logger.Debug("invalid snapshot", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &tooLarge):
		logger.Debug("body too large", zap.Int64("limit", tooLarge.limit))
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &unauthorized):
		logger.Debug("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
