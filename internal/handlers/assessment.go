package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/assessment"
	"github.com/mutqin/backend/internal/middleware"
)

// HandleAssessmentSubmit computes and persists the user's scheduling plan.
func HandleAssessmentSubmit(svc *assessment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		var in assessment.Input
		if err := decode(r, &in); err != nil {
			writeError(w, r, logger, err)
			return
		}

		params, err := svc.Submit(r.Context(), user.ID, in)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, params)
	}
}
