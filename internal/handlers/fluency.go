package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/fluency"
	"github.com/mutqin/backend/internal/middleware"
)

// HandleFluencyStart opens a page-read test on an unmemorized page.
func HandleFluencyStart(svc *fluency.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		res, err := svc.Start(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

type fluencySubmitRequest struct {
	TestID          uuid.UUID `json:"test_id" validate:"required"`
	DurationSeconds int       `json:"duration_seconds" validate:"required,min=1"`
	ErrorCount      int       `json:"error_count" validate:"min=0"`
}

// HandleFluencySubmit scores an in-progress test.
func HandleFluencySubmit(svc *fluency.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		var req fluencySubmitRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, logger, err)
			return
		}

		res, err := svc.Submit(r.Context(), user.ID, req.TestID, req.DurationSeconds, req.ErrorCount)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleFluencyStatus reports the user's gate flags and latest test.
func HandleFluencyStatus(svc *fluency.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		res, err := svc.Status(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
