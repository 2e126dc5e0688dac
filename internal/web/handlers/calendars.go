package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/service-interactor/internal/provider"
)

// CalendarsHandler lists the calendars of the active service.
func CalendarsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := active(w, r)
		if !ok {
			return
		}
		cals, err := provider.Collect(a.Calendars(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if cals == nil {
			cals = []provider.Calendar{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"calendars": cals, "count": len(cals)})
	}
}

// CalendarEventsHandler lists events of calendar {id}. Query parameters:
// time_min and time_max (RFC 3339), limit, order_by, single_events.
func CalendarEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := active(w, r)
		if !ok {
			return
		}
		limit, err := intParam(r, "limit", DefaultLimit)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		q := provider.EventQuery{
			OrderBy:      r.URL.Query().Get("order_by"),
			SingleEvents: boolParam(r, "single_events"),
		}
		if q.TimeMin, err = timeParam(r, "time_min"); err != nil {
			badRequest(w, err.Error())
			return
		}
		if q.TimeMax, err = timeParam(r, "time_max"); err != nil {
			badRequest(w, err.Error())
			return
		}
		if q.OrderBy == "startTime" {
			// Google only orders expanded recurring events by start time.
			q.SingleEvents = true
		}

		events, err := take(a.CalendarEvents(r.Context(), chi.URLParam(r, "id"), q), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
	}
}

// CreateEventHandler creates an event in calendar {id} from a JSON
// EventInput body.
func CreateEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := active(w, r)
		if !ok {
			return
		}
		var in provider.EventInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			badRequest(w, "invalid event body")
			return
		}
		if in.Summary == "" || in.Start.IsZero() || in.End.IsZero() {
			badRequest(w, "summary, start and end are required")
			return
		}
		if in.End.Before(in.Start) {
			badRequest(w, "end is before start")
			return
		}
		ev, err := a.CreateCalendarEvent(r.Context(), chi.URLParam(r, "id"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ev)
	}
}

// DeleteEventHandler removes event {eventID} from calendar {id}.
func DeleteEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := active(w, r)
		if !ok {
			return
		}
		if err := a.DeleteCalendarEvent(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "eventID")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
