package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/analytics"
	"github.com/mutqin/backend/internal/middleware"
)

// HandleUserStats returns lifetime totals plus today's rollup.
func HandleUserStats(svc *analytics.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		st, err := svc.Stats(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// HandleUserCalendar returns one month of activity (?month=YYYY-MM).
func HandleUserCalendar(svc *analytics.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		cal, err := svc.Calendar(r.Context(), user.ID, r.URL.Query().Get("month"))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, cal)
	}
}

// HandleUserAchievements returns the badge set with earned flags.
func HandleUserAchievements(svc *analytics.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		list, err := svc.Achievements(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// HandleUserProgress returns the learning-health view.
func HandleUserProgress(svc *analytics.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		p, err := svc.Progress(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
