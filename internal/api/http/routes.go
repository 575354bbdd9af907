package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classmark/examhub/internal/analytics"
	"github.com/classmark/examhub/internal/attempt"
	"github.com/classmark/examhub/internal/auth"
	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/eventlog"
	"github.com/classmark/examhub/internal/rbac"
)

// Deps carries everything the route table needs.
type Deps struct {
	DB        *sql.DB
	Auth      *auth.AuthService
	Catalog   *catalog.Service
	CatStore  catalog.Store
	Attempts  *attempt.Service
	Analytics *analytics.Service
	Events    *eventlog.Repo
}

// Mount attaches the API surface to r. Everything except login and the
// health probes sits behind JWT auth plus a per-route permission check.
func Mount(r chi.Router, d Deps) {
	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.DB))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		// Exam catalog: listing is shared, authoring is teacher/admin.
		pr.With(rbac.Require("exam:list")).Get("/exams", ListExamsHandler(d.Catalog))
		pr.With(rbac.Require("exam:create")).Post("/exams", CreateExamHandler(d.Catalog))
		pr.With(rbac.Require("exam:update_own")).Put("/exams/{examID}", UpdateExamHandler(d.Catalog))
		pr.With(rbac.Require("exam:view_own")).Get("/exams/{examID}", GetExamHandler(d.Catalog, d.CatStore))
		pr.With(rbac.Require("exam:update_own")).Delete("/exams/{examID}", DeleteExamHandler(d.Catalog))

		pr.With(rbac.Require("question:manage")).Post("/exams/{examID}/questions", AddQuestionHandler(d.Catalog))
		pr.With(rbac.Require("question:manage")).Delete("/exams/{examID}/questions/{questionID}", DeleteQuestionHandler(d.Catalog))
		pr.With(rbac.Require("answerkey:manage")).Put("/exams/{examID}/answer-key", SetAnswerKeyHandler(d.Catalog))

		pr.With(rbac.Require("access:grant")).Post("/exams/{examID}/access", GrantAccessHandler(d.Catalog))
		pr.With(rbac.Require("access:grant")).Delete("/exams/{examID}/access/{studentID}", RevokeAccessHandler(d.Catalog))
		pr.With(rbac.Require("access:grant")).Get("/exams/{examID}/access", ListAccessHandler(d.Catalog, d.CatStore))

		// Attempt lifecycle: students only.
		pr.With(rbac.Require("exam:status")).Get("/exams/{examID}/status", ExamStatusHandler(d.Attempts))
		pr.With(rbac.Require("exam:status")).Get("/exams/{examID}/view", ExamViewHandler(d.Attempts))
		pr.With(rbac.Require("attempt:start")).Post("/exams/{examID}/attempts", StartAttemptHandler(d.Attempts))
		pr.With(rbac.Require("attempt:answer")).Get("/attempts/{submissionID}/questions", AttemptQuestionsHandler(d.Attempts))
		pr.With(rbac.Require("attempt:answer")).Post("/attempts/{submissionID}/answers", SaveAnswerHandler(d.Attempts))
		pr.With(rbac.Require("attempt:submit")).Post("/attempts/{submissionID}/submit", SubmitAttemptHandler(d.Attempts))
		pr.With(rbac.Require("attempt:answer")).Get("/attempts/{submissionID}/time", TimeRemainingHandler(d.Attempts))
		pr.With(rbac.Require("attempt:view_own")).Get("/attempts/{submissionID}/result", AttemptResultHandler(d.Attempts))
		pr.With(rbac.Require("attempt:view_own")).Get("/exams/{examID}/attempts", AttemptHistoryHandler(d.Attempts))

		pr.With(rbac.Require("analytics:view")).Get("/exams/{examID}/analytics", ExamReportHandler(d.Analytics))

		// Account administration and the event feed.
		pr.With(rbac.Require("*")).Post("/users/bulk", BulkUpsertUsersHandler(d.DB))
		pr.With(rbac.Require("*")).Get("/users", ListUsersHandler(d.DB))
		pr.With(rbac.Require("*")).Get("/events", ListEventsHandler(d.Events))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}
