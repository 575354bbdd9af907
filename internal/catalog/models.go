package catalog

import "time"

type AccessType string

const (
	AccessAllStudents      AccessType = "all_students"
	AccessSpecificStudents AccessType = "specific_students"
)

type Exam struct {
	ID                string     `json:"id"`
	TeacherID         string     `json:"teacher_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	StartAt           time.Time  `json:"start_at"`
	EndAt             time.Time  `json:"end_at"`
	DurationMinutes   int        `json:"duration_minutes"`
	MaxAttempts       int        `json:"max_attempts"`
	PassingPercentage int        `json:"passing_percentage"`
	AccessType        AccessType `json:"access_type"`
	AllowedStudents   []string   `json:"allowed_students,omitempty"`
	TotalMarks        int        `json:"total_marks"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (e Exam) IsUpcoming(now time.Time) bool { return now.Before(e.StartAt) }
func (e Exam) IsExpired(now time.Time) bool  { return now.After(e.EndAt) }

// IsOpen reports whether the exam window is currently open for taking.
func (e Exam) IsOpen(now time.Time) bool {
	return e.IsActive && !e.IsUpcoming(now) && !e.IsExpired(now)
}

// Duration is the per-attempt time allotment.
func (e Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

type Question struct {
	ID        string    `json:"id"`
	ExamID    string    `json:"exam_id"`
	Text      string    `json:"text"`
	Marks     int       `json:"marks"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	Choices   []Choice  `json:"choices,omitempty"`
}

type Choice struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Label      string `json:"label"` // single letter, A-D
	Text       string `json:"text"`
	Order      int    `json:"order"`
}

type AnswerKey struct {
	ID        string    `json:"id"`
	ExamID    string    `json:"exam_id"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CorrectAnswer struct {
	ID          string `json:"id"`
	AnswerKeyID string `json:"answer_key_id"`
	QuestionID  string `json:"question_id"`
	ChoiceID    string `json:"choice_id"`
	Explanation string `json:"explanation,omitempty"`
}

// ExamAccess is a revocable per-student grant record. It is advisory
// metadata only; eligibility consults the exam's allow-list, not this.
type ExamAccess struct {
	ID        string     `json:"id"`
	ExamID    string     `json:"exam_id"`
	StudentID string     `json:"student_id"`
	GrantedBy string     `json:"granted_by"`
	GrantedAt time.Time  `json:"granted_at"`
	IsRevoked bool       `json:"is_revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// TotalMarks sums question marks; exams.total_marks must track this.
func TotalMarks(questions []Question) int {
	total := 0
	for _, q := range questions {
		total += q.Marks
	}
	return total
}
