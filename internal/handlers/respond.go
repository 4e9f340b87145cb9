// Package handlers implements the /api/v1 endpoint surface. Handlers are
// closures over their service dependencies; they decode, validate, call one
// service method, and encode. All business rules live in the services.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/middleware"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// errorBody is the wire shape of every failure.
type errorBody struct {
	Error         string                 `json:"error"`
	Code          string                 `json:"code"`
	Detail        map[string]interface{} `json:"detail,omitempty"`
	CorrelationID string                 `json:"correlation_id"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindPrecondition:
		return http.StatusForbidden
	case apperr.KindProtocolViolation, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	correlationID := middleware.CorrelationID(r.Context())

	body := errorBody{
		Error:         err.Error(),
		Code:          kind.String(),
		CorrelationID: correlationID,
	}
	if ae := apperr.As(err); ae != nil {
		body.Detail = ae.Detail
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

// decode parses the JSON body and runs struct validation.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("malformed request body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid request", err)
	}
	return nil
}
