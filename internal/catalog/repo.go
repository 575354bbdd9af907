package catalog

import (
	"context"
	"errors"
)

var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrChoiceNotFound   = errors.New("choice not found")
	ErrAccessNotFound   = errors.New("access grant not found")
	ErrExamLocked       = errors.New("exam can no longer be edited")
	ErrNotOwner         = errors.New("exam belongs to another teacher")
)

// ValidationError marks user-correctable input problems.
type ValidationError string

func (v ValidationError) Error() string { return string(v) }

func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

type ListOpts struct {
	TeacherID string // exams owned by this teacher
	StudentID string // exams the student can see (all_students or allow-listed)
	Limit     int
	Offset    int
}

// NewQuestion is the authoring input for a question plus its four choices
// and the correct label, created in one transaction.
type NewQuestion struct {
	Text         string
	Marks        int
	ChoiceTexts  []string // exactly four, labeled A-D in order
	CorrectLabel string   // A|B|C|D
}

type Store interface {
	CreateExam(ctx context.Context, e Exam) error
	UpdateExam(ctx context.Context, e Exam) error
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context, opts ListOpts) ([]Exam, error)
	DeleteExam(ctx context.Context, id string) error
	CountStudents(ctx context.Context) (int, error)

	// AddQuestion appends a question at the next order slot, creates its
	// choices and answer-key entry, and recomputes the exam total.
	AddQuestion(ctx context.Context, examID, createdBy string, in NewQuestion) (Question, error)
	// DeleteQuestion removes the question and compacts the order of the
	// remainder, then recomputes the exam total.
	DeleteQuestion(ctx context.Context, examID, questionID string) error
	ListQuestions(ctx context.Context, examID string) ([]Question, error)

	// GetAnswerKey returns the correct answer per question ID. An exam
	// without a key yields an empty map, not an error.
	GetAnswerKey(ctx context.Context, examID string) (map[string]CorrectAnswer, error)
	// SetCorrectAnswers upserts answer-key entries; picks maps question ID
	// to the chosen choice ID, which must belong to that question.
	SetCorrectAnswers(ctx context.Context, examID, createdBy string, picks map[string]string) error

	GrantAccess(ctx context.Context, examID, studentID, grantedBy string) (ExamAccess, error)
	RevokeAccess(ctx context.Context, examID, studentID string) error
	ListAccess(ctx context.Context, examID string) ([]ExamAccess, error)
}
