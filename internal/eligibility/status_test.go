package eligibility_test

import (
	"testing"
	"time"

	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/eligibility"
	"github.com/classmark/examhub/internal/rbac"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func baseExam() catalog.Exam {
	return catalog.Exam{
		ID:              "exam-1",
		Title:           "Algebra I",
		StartAt:         now.Add(-time.Hour),
		EndAt:           now.Add(time.Hour),
		DurationMinutes: 30,
		MaxAttempts:     2,
		AccessType:      catalog.AccessAllStudents,
		IsActive:        true,
	}
}

func TestForStudent(t *testing.T) {
	started := now.Add(-10 * time.Minute)
	overdue := now.Add(-45 * time.Minute)

	tests := []struct {
		name string
		mut  func(*eligibility.Snapshot)
		want eligibility.Status
	}{
		{"available", func(s *eligibility.Snapshot) {}, eligibility.StatusAvailable},
		{"upcoming", func(s *eligibility.Snapshot) {
			s.Exam.StartAt = now.Add(time.Minute)
		}, eligibility.StatusUpcoming},
		{"expired", func(s *eligibility.Snapshot) {
			s.Exam.EndAt = now.Add(-time.Minute)
		}, eligibility.StatusExpired},
		{"no access for non-students on open exams", func(s *eligibility.Snapshot) {
			s.ViewerRole = rbac.RoleTeacher
		}, eligibility.StatusNoAccess},
		{"no access off the allow-list", func(s *eligibility.Snapshot) {
			s.Exam.AccessType = catalog.AccessSpecificStudents
			s.IsAllowed = false
		}, eligibility.StatusNoAccess},
		{"allow-listed student", func(s *eligibility.Snapshot) {
			s.Exam.AccessType = catalog.AccessSpecificStudents
			s.IsAllowed = true
		}, eligibility.StatusAvailable},
		{"attempts exhausted", func(s *eligibility.Snapshot) {
			s.AttemptsMade = 2
		}, eligibility.StatusNoAttempts},
		{"in progress", func(s *eligibility.Snapshot) {
			s.AttemptsMade = 1
			s.OngoingStartedAt = &started
		}, eligibility.StatusInProgress},
		{"timer elapsed on ongoing attempt", func(s *eligibility.Snapshot) {
			s.AttemptsMade = 1
			s.OngoingStartedAt = &overdue
		}, eligibility.StatusTimeUp},
		// The window outranks access, access outranks attempts: an
		// exhausted student still sees "expired" once the window closes.
		{"expired outranks no_attempts", func(s *eligibility.Snapshot) {
			s.Exam.EndAt = now.Add(-time.Minute)
			s.AttemptsMade = 2
		}, eligibility.StatusExpired},
		{"no_access outranks no_attempts", func(s *eligibility.Snapshot) {
			s.Exam.AccessType = catalog.AccessSpecificStudents
			s.IsAllowed = false
			s.AttemptsMade = 2
		}, eligibility.StatusNoAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := eligibility.Snapshot{
				Exam:       baseExam(),
				ViewerRole: rbac.RoleStudent,
			}
			tt.mut(&snap)
			if got := eligibility.ForStudent(snap, now); got != tt.want {
				t.Fatalf("ForStudent = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimeUpBoundary(t *testing.T) {
	// Exactly at the allotment the attempt is still in progress; one
	// second past it, the timer has elapsed.
	exact := now.Add(-30 * time.Minute)
	snap := eligibility.Snapshot{
		Exam:             baseExam(),
		ViewerRole:       rbac.RoleStudent,
		AttemptsMade:     1,
		OngoingStartedAt: &exact,
	}
	if got := eligibility.ForStudent(snap, now); got != eligibility.StatusInProgress {
		t.Fatalf("at boundary: got %q, want in_progress", got)
	}
	past := now.Add(-30*time.Minute - time.Second)
	snap.OngoingStartedAt = &past
	if got := eligibility.ForStudent(snap, now); got != eligibility.StatusTimeUp {
		t.Fatalf("past boundary: got %q, want time_up", got)
	}
}

func TestRemainingAttempts(t *testing.T) {
	tests := []struct {
		max, made, want int
	}{
		{3, 0, 3},
		{3, 2, 1},
		{3, 3, 0},
		{3, 5, 0},
	}
	for _, tt := range tests {
		if got := eligibility.RemainingAttempts(tt.max, tt.made); got != tt.want {
			t.Errorf("RemainingAttempts(%d, %d) = %d, want %d", tt.max, tt.made, got, tt.want)
		}
	}
}
