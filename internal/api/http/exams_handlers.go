package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/rbac"
)

type examRequest struct {
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	StartAt           time.Time `json:"start_at"`
	EndAt             time.Time `json:"end_at"`
	DurationMinutes   int       `json:"duration_minutes"`
	MaxAttempts       int       `json:"max_attempts"`
	PassingPercentage int       `json:"passing_percentage"`
	AccessType        string    `json:"access_type"`
	AllowedStudents   []string  `json:"allowed_students"`
	IsActive          *bool     `json:"is_active"`
}

func (in examRequest) toExam(id string) catalog.Exam {
	e := catalog.Exam{
		ID:                id,
		Title:             in.Title,
		Description:       in.Description,
		StartAt:           in.StartAt,
		EndAt:             in.EndAt,
		DurationMinutes:   in.DurationMinutes,
		MaxAttempts:       in.MaxAttempts,
		PassingPercentage: in.PassingPercentage,
		AccessType:        catalog.AccessType(in.AccessType),
		AllowedStudents:   in.AllowedStudents,
		IsActive:          true,
	}
	if in.IsActive != nil {
		e.IsActive = *in.IsActive
	}
	return e
}

// POST /exams
func CreateExamHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in examRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, "bad json", http.StatusBadRequest)
			return
		}
		teacherID := rbac.SubjectFromContext(r.Context())
		exam, err := svc.CreateExam(r.Context(), teacherID, in.toExam(""))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, exam)
	}
}

// PUT /exams/{examID}
func UpdateExamHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in examRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, "bad json", http.StatusBadRequest)
			return
		}
		teacherID := rbac.SubjectFromContext(r.Context())
		exam, err := svc.UpdateExam(r.Context(), teacherID, in.toExam(chi.URLParam(r, "examID")))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exam)
	}
}

// GET /exams — the caller's role decides which listing they get.
func ListExamsHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := rbac.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		var (
			exams []catalog.Exam
			err   error
		)
		if role == rbac.RoleStudent {
			exams, err = svc.ListForStudent(r.Context(), subject, limit, offset)
		} else {
			exams, err = svc.ListForTeacher(r.Context(), subject, limit, offset)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if exams == nil {
			exams = []catalog.Exam{}
		}
		writeJSON(w, http.StatusOK, exams)
	}
}

// GET /exams/{examID} — owner view with the question list attached.
func GetExamHandler(svc *catalog.Service, store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teacherID := rbac.SubjectFromContext(r.Context())
		examID := chi.URLParam(r, "examID")
		exam, err := svc.GetOwnedExam(r.Context(), teacherID, examID)
		if err != nil {
			writeError(w, err)
			return
		}
		questions, err := store.ListQuestions(r.Context(), examID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"exam":      exam,
			"questions": questions,
		})
	}
}

// DELETE /exams/{examID}
func DeleteExamHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teacherID := rbac.SubjectFromContext(r.Context())
		if err := svc.DeleteExam(r.Context(), teacherID, chi.URLParam(r, "examID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type questionRequest struct {
	Text         string   `json:"text"`
	Marks        int      `json:"marks"`
	Choices      []string `json:"choices"`
	CorrectLabel string   `json:"correct_label"`
}

// POST /exams/{examID}/questions
func AddQuestionHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in questionRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, "bad json", http.StatusBadRequest)
			return
		}
		teacherID := rbac.SubjectFromContext(r.Context())
		q, err := svc.AddQuestion(r.Context(), teacherID, chi.URLParam(r, "examID"), catalog.NewQuestion{
			Text:         in.Text,
			Marks:        in.Marks,
			ChoiceTexts:  in.Choices,
			CorrectLabel: in.CorrectLabel,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// DELETE /exams/{examID}/questions/{questionID}
func DeleteQuestionHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teacherID := rbac.SubjectFromContext(r.Context())
		err := svc.DeleteQuestion(r.Context(), teacherID, chi.URLParam(r, "examID"), chi.URLParam(r, "questionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PUT /exams/{examID}/answer-key  { "picks": { questionID: choiceID } }
func SetAnswerKeyHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Picks map[string]string `json:"picks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, "bad json", http.StatusBadRequest)
			return
		}
		teacherID := rbac.SubjectFromContext(r.Context())
		if err := svc.SetAnswerKey(r.Context(), teacherID, chi.URLParam(r, "examID"), in.Picks); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /exams/{examID}/access  { "student_id": "..." }
func GrantAccessHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			StudentID string `json:"student_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.StudentID == "" {
			httpError(w, "student_id required", http.StatusBadRequest)
			return
		}
		teacherID := rbac.SubjectFromContext(r.Context())
		grant, err := svc.GrantAccess(r.Context(), teacherID, chi.URLParam(r, "examID"), in.StudentID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, grant)
	}
}

// DELETE /exams/{examID}/access/{studentID}
func RevokeAccessHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teacherID := rbac.SubjectFromContext(r.Context())
		err := svc.RevokeAccess(r.Context(), teacherID, chi.URLParam(r, "examID"), chi.URLParam(r, "studentID"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /exams/{examID}/access
func ListAccessHandler(svc *catalog.Service, store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teacherID := rbac.SubjectFromContext(r.Context())
		examID := chi.URLParam(r, "examID")
		if _, err := svc.GetOwnedExam(r.Context(), teacherID, examID); err != nil {
			writeError(w, err)
			return
		}
		grants, err := store.ListAccess(r.Context(), examID)
		if err != nil {
			writeError(w, err)
			return
		}
		if grants == nil {
			grants = []catalog.ExamAccess{}
		}
		writeJSON(w, http.StatusOK, grants)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
