package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/classmark/examhub/internal/attempt"
	"github.com/classmark/examhub/internal/catalog"
)

// writeError maps service-layer sentinels to HTTP statuses so that every
// handler in the package reports failures the same way.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case catalog.IsValidation(err),
		errors.Is(err, attempt.ErrInvalidQuestion),
		errors.Is(err, attempt.ErrInvalidChoice):
		httpError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, attempt.ErrForbidden),
		errors.Is(err, attempt.ErrNoAccess),
		errors.Is(err, catalog.ErrNotOwner):
		httpError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, catalog.ErrExamNotFound),
		errors.Is(err, catalog.ErrQuestionNotFound),
		errors.Is(err, catalog.ErrChoiceNotFound),
		errors.Is(err, catalog.ErrAccessNotFound),
		errors.Is(err, attempt.ErrSubmissionNotFound):
		httpError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, attempt.ErrNotActive),
		errors.Is(err, attempt.ErrTimeExpired),
		errors.Is(err, attempt.ErrAttemptInProgress),
		errors.Is(err, attempt.ErrAttemptConflict),
		errors.Is(err, attempt.ErrNoAttemptsLeft),
		errors.Is(err, attempt.ErrNotAvailableYet),
		errors.Is(err, attempt.ErrExamExpired),
		errors.Is(err, catalog.ErrExamLocked):
		httpError(w, err.Error(), http.StatusConflict)
	default:
		httpError(w, "internal error", http.StatusInternalServerError)
	}
}

func httpError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
