package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/middleware"
	"github.com/mutqin/backend/internal/planner"
)

// HandleQueueToday builds and returns the today queue.
func HandleQueueToday(svc *planner.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		q, err := svc.Build(r.Context(), user.ID, time.Now().UTC())
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}
