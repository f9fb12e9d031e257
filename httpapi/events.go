package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pulsefest/registration/events"
	"github.com/pulsefest/registration/slices"
)

func (a *API) getEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 50 {
			a.writeError(w, http.StatusBadRequest, Error{Code: LimitOutOfBounds, Message: "Limit must be between 1 and 50"})
			return
		}
		limit = parsed
	}

	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	result, err := a.db.GetEvents(ctx, int32(limit), cursor)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to list events", slog.String("error", err.Error()))

		var eventErr *events.Error
		if errors.As(err, &eventErr) && eventErr.Reason == events.REASON_INVALID_CURSOR {
			a.writeError(w, http.StatusBadRequest, Error{Code: InvalidCursor, Message: "Passed in cursor is invalid"})
			return
		}

		a.writeError(w, http.StatusInternalServerError, Error{Code: InternalError, Message: "Failed to list events"})
		return
	}

	a.writeJSON(w, http.StatusOK, EventsResponse{
		Data:        slices.Map(result.Data, eventToWire),
		Cursor:      result.Cursor,
		HasNextPage: result.HasNextPage,
	})
}
