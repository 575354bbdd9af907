package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classmark/examhub/internal/attempt"
	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/rbac"
)

// GET /exams/{examID}/status
func ExamStatusHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := rbac.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())
		status, err := svc.Status(r.Context(), chi.URLParam(r, "examID"), subject, role)
		if err != nil {
			writeError(w, err)
			return
		}
		remaining, err := svc.RemainingAttempts(r.Context(), chi.URLParam(r, "examID"), subject)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":             status,
			"remaining_attempts": remaining,
		})
	}
}

// GET /exams/{examID}/view — the full student-facing exam page.
func ExamViewHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := rbac.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())
		view, err := svc.View(r.Context(), chi.URLParam(r, "examID"), subject, role)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// POST /exams/{examID}/attempts
func StartAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := rbac.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())
		sub, err := svc.Start(r.Context(), chi.URLParam(r, "examID"), subject, role)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	}
}

// GET /attempts/{submissionID}/questions — randomized order, keys stripped.
func AttemptQuestionsHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := rbac.SubjectFromContext(r.Context())
		questions, answers, err := svc.Questions(r.Context(), chi.URLParam(r, "submissionID"), subject)
		if err != nil {
			writeError(w, err)
			return
		}
		if questions == nil {
			questions = []catalog.Question{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"questions": questions,
			"answers":   answers,
		})
	}
}

// GET /exams/{examID}/attempts — the caller's own submissions.
func AttemptHistoryHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := rbac.SubjectFromContext(r.Context())
		subs, err := svc.History(r.Context(), chi.URLParam(r, "examID"), subject)
		if err != nil {
			writeError(w, err)
			return
		}
		if subs == nil {
			subs = []attempt.Submission{}
		}
		writeJSON(w, http.StatusOK, subs)
	}
}

// POST /attempts/{submissionID}/answers  { "question_id": "...", "choice_id": "..."|null }
func SaveAnswerHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			QuestionID string  `json:"question_id"`
			ChoiceID   *string `json:"choice_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.QuestionID == "" {
			httpError(w, "question_id required", http.StatusBadRequest)
			return
		}
		subject := rbac.SubjectFromContext(r.Context())
		err := svc.SaveAnswer(r.Context(), chi.URLParam(r, "submissionID"), subject, in.QuestionID, in.ChoiceID)
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /attempts/{submissionID}/submit
func SubmitAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := rbac.SubjectFromContext(r.Context())
		sub, err := svc.Submit(r.Context(), chi.URLParam(r, "submissionID"), subject)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// GET /attempts/{submissionID}/time
func TimeRemainingHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := rbac.SubjectFromContext(r.Context())
		remaining, err := svc.TimeRemaining(r.Context(), chi.URLParam(r, "submissionID"), subject)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"time_remaining": remaining})
	}
}

// GET /attempts/{submissionID}/result
func AttemptResultHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := rbac.SubjectFromContext(r.Context())
		result, err := svc.Result(r.Context(), chi.URLParam(r, "submissionID"), subject)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
