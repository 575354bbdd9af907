// Package eligibility decides whether a student may view or attempt an
// exam at a given instant. The decision is a pure function of the exam
// configuration, the student's access grant, the attempts already made,
// and the clock, so it is consistent across processes and restarts.
package eligibility

import (
	"time"

	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/rbac"
)

type Status string

const (
	StatusUpcoming   Status = "upcoming"
	StatusExpired    Status = "expired"
	StatusNoAccess   Status = "no_access"
	StatusNoAttempts Status = "no_attempts"
	StatusInProgress Status = "in_progress"
	StatusTimeUp     Status = "time_up"
	StatusAvailable  Status = "available"
)

// Snapshot carries everything ForStudent needs, read once by the caller.
type Snapshot struct {
	Exam         catalog.Exam
	ViewerRole   string
	IsAllowed    bool // membership in the exam's allow-list
	AttemptsMade int  // submissions for (exam, student), active and completed
	// OngoingStartedAt is the start instant of the student's incomplete
	// submission, nil when there is none.
	OngoingStartedAt *time.Time
}

// ForStudent evaluates the exam status for a student. The check order is
// load-bearing: the time window is checked before access, before the
// attempt count, before ongoing-submission state, because each later
// check assumes the earlier ones passed.
func ForStudent(in Snapshot, now time.Time) Status {
	e := in.Exam
	if e.IsUpcoming(now) {
		return StatusUpcoming
	}
	if e.IsExpired(now) {
		return StatusExpired
	}
	if !CanStudentAccess(e, in.ViewerRole, in.IsAllowed) {
		return StatusNoAccess
	}
	if in.AttemptsMade >= e.MaxAttempts {
		return StatusNoAttempts
	}
	if in.OngoingStartedAt != nil {
		if now.Sub(*in.OngoingStartedAt) > e.Duration() {
			return StatusTimeUp
		}
		return StatusInProgress
	}
	return StatusAvailable
}

// CanStudentAccess is true for any student when the exam is open to all
// students, otherwise only for allow-listed students. Revocable
// ExamAccess grant records are deliberately not consulted here.
func CanStudentAccess(e catalog.Exam, viewerRole string, isAllowed bool) bool {
	if e.AccessType == catalog.AccessAllStudents && viewerRole == rbac.RoleStudent {
		return true
	}
	return isAllowed
}

// RemainingAttempts floors at zero; attempts made counts both active and
// completed submissions.
func RemainingAttempts(maxAttempts, attemptsMade int) int {
	if r := maxAttempts - attemptsMade; r > 0 {
		return r
	}
	return 0
}
