package http

import (
	"net/http"
	"strconv"

	"github.com/classmark/examhub/internal/eventlog"
)

// GET /events?after=0&limit=100 — admin polling feed over the append-only
// attempt event log, paged by offset.
func ListEventsHandler(repo *eventlog.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		events, err := repo.ListAfter(r.Context(), after, limit)
		if err != nil {
			httpError(w, "list events", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []eventlog.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}
