package attempt

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNotActive          = errors.New("submission is not active")
	ErrTimeExpired        = errors.New("time is up for this submission")
	ErrInvalidQuestion    = errors.New("question does not belong to this exam")
	ErrInvalidChoice      = errors.New("choice does not belong to this question")
	ErrNoAccess           = errors.New("student has no access to this exam")
	ErrNoAttemptsLeft     = errors.New("no attempts left for this exam")
	ErrNotAvailableYet    = errors.New("exam has not started yet")
	ErrExamExpired        = errors.New("exam window has closed")
	ErrAttemptInProgress  = errors.New("an attempt is already in progress")
	ErrForbidden          = errors.New("submission belongs to another student")
	// ErrAttemptConflict surfaces when two concurrent starts race on the
	// same attempt number; the unique index lets exactly one win.
	ErrAttemptConflict = errors.New("conflicting attempt creation, retry")
)

// Finalization is the atomic write that moves a submission from Active
// to Completed. The store must reject it when the submission is already
// completed.
type Finalization struct {
	SubmissionID  string
	SubmittedAt   time.Time
	TimeTakenSecs int64
	Score         int
	TotalMarks    int
	Percentage    float64
	AutoSubmitted bool
}

type Store interface {
	// CreateSubmission assigns attempt_number = prior count + 1 and
	// inserts the row in one transaction. A concurrent creator for the
	// same (exam, student) yields ErrAttemptConflict.
	CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	// GetOngoing returns the student's incomplete submission for the
	// exam, or nil when there is none.
	GetOngoing(ctx context.Context, examID, studentID string) (*Submission, error)
	CountAttempts(ctx context.Context, examID, studentID string) (int, error)
	ListByStudent(ctx context.Context, examID, studentID string, completedOnly bool) ([]Submission, error)

	// UpsertAnswer writes the answer keyed by (submission, question);
	// last write wins.
	UpsertAnswer(ctx context.Context, a StudentAnswer) error
	// Answers returns selected choice by question ID for the submission.
	Answers(ctx context.Context, submissionID string) (map[string]*string, error)

	Finalize(ctx context.Context, f Finalization) error
}
