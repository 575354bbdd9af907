package attempt

import (
	"time"

	"github.com/classmark/examhub/internal/catalog"
)

// Submission is one student's timed run through an exam. It is created
// Active and finalized exactly once into Completed; no transition leaves
// Completed.
type Submission struct {
	ID            string     `json:"id"`
	ExamID        string     `json:"exam_id"`
	StudentID     string     `json:"student_id"`
	AttemptNumber int        `json:"attempt_number"`
	Score         int        `json:"score"`
	TotalMarks    int        `json:"total_marks"`
	Percentage    float64    `json:"percentage"`
	StartedAt     time.Time  `json:"started_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	IsCompleted   bool       `json:"is_completed"`
	TimeTakenSecs int64      `json:"time_taken_secs,omitempty"`
	// QuestionOrder is the randomized question-ID permutation captured at
	// creation. It never changes afterwards, so reloads within the same
	// attempt present the identical sequence.
	QuestionOrder []string `json:"question_order"`
	AutoSubmitted bool     `json:"auto_submitted"`
}

// TimeRemaining returns whole seconds left on the attempt timer, floored
// at zero. Completed submissions have no time left.
func (s Submission) TimeRemaining(allotted time.Duration, now time.Time) int {
	if s.IsCompleted {
		return 0
	}
	remaining := allotted - now.Sub(s.StartedAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

func (s Submission) IsTimeUp(allotted time.Duration, now time.Time) bool {
	return !s.IsCompleted && s.TimeRemaining(allotted, now) <= 0
}

// StudentAnswer records the selected choice for one question of one
// submission. A nil ChoiceID means the answer was cleared. Repeated
// saves for the same question overwrite: last write wins.
type StudentAnswer struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	QuestionID   string    `json:"question_id"`
	ChoiceID     *string   `json:"choice_id,omitempty"`
	AnsweredAt   time.Time `json:"answered_at"`
}

// ResultItem is the per-question breakdown of a graded submission.
type ResultItem struct {
	Question       catalog.Question `json:"question"`
	SelectedChoice *string          `json:"selected_choice,omitempty"`
	CorrectChoice  string           `json:"correct_choice,omitempty"`
	IsCorrect      bool             `json:"is_correct"`
	PointsEarned   int              `json:"points_earned"`
	Explanation    string           `json:"explanation,omitempty"`
}

type Result struct {
	Submission Submission   `json:"submission"`
	Items      []ResultItem `json:"items"`
	Passed     bool         `json:"passed"`
}

// ExamView is the student-facing snapshot of an exam: status, attempt
// counters, the ongoing submission if any, and past results.
type ExamView struct {
	Exam              catalog.Exam `json:"exam"`
	Status            string       `json:"status"`
	AttemptsMade      int          `json:"attempts_made"`
	RemainingAttempts int          `json:"remaining_attempts"`
	Ongoing           *Submission  `json:"ongoing,omitempty"`
	TimeRemaining     int          `json:"time_remaining,omitempty"`
	Completed         []Submission `json:"completed,omitempty"`
}
