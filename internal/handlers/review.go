package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/core"
	"github.com/mutqin/backend/internal/ingest"
	"github.com/mutqin/backend/internal/middleware"
)

// reviewEventRequest is the wire shape of one raw event submission. Union
// shape rules (review vs transition fields) are enforced by the event store.
type reviewEventRequest struct {
	EventType       core.EventType   `json:"event_type" validate:"required,oneof=REVIEW_ATTEMPTED TRANSITION_ATTEMPTED"`
	SessionRunID    *uuid.UUID       `json:"session_run_id"`
	ClientEventID   *string          `json:"client_event_id" validate:"omitempty,max=128"`
	SessionType     *string          `json:"session_type"`
	ItemAyahID      *int             `json:"item_ayah_id" validate:"omitempty,min=1,max=6236"`
	Tier            *core.ReviewTier `json:"tier" validate:"omitempty,oneof=SABAQ SABQI MANZIL"`
	StepType        *core.StepType   `json:"step_type" validate:"omitempty,oneof=EXPOSURE GUIDED BLIND LINK"`
	AttemptNumber   *int             `json:"attempt_number" validate:"omitempty,min=1"`
	ScaffoldingUsed bool             `json:"scaffolding_used"`
	LinkedAyahID    *int             `json:"linked_ayah_id" validate:"omitempty,min=1,max=6236"`
	FromAyahID      *int             `json:"from_ayah_id" validate:"omitempty,min=1,max=6236"`
	ToAyahID        *int             `json:"to_ayah_id" validate:"omitempty,min=1,max=6236"`
	Success         *bool            `json:"success"`
	ErrorsCount     *int             `json:"errors_count" validate:"omitempty,min=0"`
	DurationSeconds *int             `json:"duration_seconds" validate:"omitempty,min=1"`
	ErrorTags       []string         `json:"error_tags"`
	OccurredAt      *time.Time       `json:"occurred_at"`
}

// HandleReviewEvent appends one event to the store, idempotently.
func HandleReviewEvent(svc *ingest.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		var req reviewEventRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, logger, err)
			return
		}

		in := ingest.Input{
			EventType:       req.EventType,
			SessionRunID:    req.SessionRunID,
			ClientEventID:   req.ClientEventID,
			SessionType:     req.SessionType,
			ItemAyahID:      req.ItemAyahID,
			Tier:            req.Tier,
			StepType:        req.StepType,
			AttemptNumber:   req.AttemptNumber,
			ScaffoldingUsed: req.ScaffoldingUsed,
			LinkedAyahID:    req.LinkedAyahID,
			FromAyahID:      req.FromAyahID,
			ToAyahID:        req.ToAyahID,
			Success:         req.Success,
			ErrorsCount:     req.ErrorsCount,
			DurationSeconds: req.DurationSeconds,
			ErrorTags:       req.ErrorTags,
		}
		if req.OccurredAt != nil {
			in.OccurredAt = *req.OccurredAt
		}

		res, err := svc.Ingest(r.Context(), user.ID, in)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
