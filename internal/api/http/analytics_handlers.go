package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classmark/examhub/internal/analytics"
	"github.com/classmark/examhub/internal/rbac"
)

// GET /exams/{examID}/analytics — aggregate report for the exam's owner
// or an admin.
func ExamReportHandler(svc *analytics.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID := rbac.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())
		report, err := svc.ReportFor(r.Context(), chi.URLParam(r, "examID"), viewerID, role)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
