package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/middleware"
	"github.com/mutqin/backend/internal/session"
)

// HandleSessionStart opens (or idempotently re-opens) a session run.
func HandleSessionStart(svc *session.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		var in session.StartInput
		if err := decode(r, &in); err != nil {
			writeError(w, r, logger, err)
			return
		}

		res, err := svc.Start(r.Context(), user.ID, in)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// HandleSessionStep submits one protocol step.
func HandleSessionStep(svc *session.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		var in session.StepInput
		if err := decode(r, &in); err != nil {
			writeError(w, r, logger, err)
			return
		}

		res, err := svc.Step(r.Context(), user.ID, in)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type sessionCompleteRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
}

// HandleSessionComplete closes the session and returns the daily rollup.
func HandleSessionComplete(svc *session.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		var req sessionCompleteRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, logger, err)
			return
		}

		res, err := svc.Complete(r.Context(), user.ID, req.SessionID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
