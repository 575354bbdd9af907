package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Service wraps the store with authoring rules: input validation,
// ownership checks, and the edit lock after an exam's window closes.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) CreateExam(ctx context.Context, teacherID string, e Exam) (Exam, error) {
	total, err := s.store.CountStudents(ctx)
	if err != nil {
		return Exam{}, err
	}
	e.TeacherID = teacherID
	if err := ValidateExam(e, total); err != nil {
		return Exam{}, err
	}
	now := s.now()
	e.ID = uuid.NewString()
	e.TotalMarks = 0
	e.IsActive = true
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := s.store.CreateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (s *Service) UpdateExam(ctx context.Context, teacherID string, e Exam) (Exam, error) {
	cur, err := s.ownedEditable(ctx, teacherID, e.ID)
	if err != nil {
		return Exam{}, err
	}
	total, err := s.store.CountStudents(ctx)
	if err != nil {
		return Exam{}, err
	}
	e.TeacherID = cur.TeacherID
	if err := ValidateExam(e, total); err != nil {
		return Exam{}, err
	}
	e.TotalMarks = cur.TotalMarks
	e.CreatedAt = cur.CreatedAt
	e.UpdatedAt = s.now()
	if err := s.store.UpdateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	return e, nil
}

// DeleteExam cascades to questions, choices, keys and submissions.
func (s *Service) DeleteExam(ctx context.Context, teacherID, examID string) error {
	if _, err := s.GetOwnedExam(ctx, teacherID, examID); err != nil {
		return err
	}
	return s.store.DeleteExam(ctx, examID)
}

func (s *Service) GetOwnedExam(ctx context.Context, teacherID, examID string) (Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if e.TeacherID != teacherID {
		return Exam{}, ErrNotOwner
	}
	return e, nil
}

func (s *Service) AddQuestion(ctx context.Context, teacherID, examID string, in NewQuestion) (Question, error) {
	if _, err := s.ownedEditable(ctx, teacherID, examID); err != nil {
		return Question{}, err
	}
	if err := ValidateQuestion(in); err != nil {
		return Question{}, err
	}
	return s.store.AddQuestion(ctx, examID, teacherID, in)
}

func (s *Service) DeleteQuestion(ctx context.Context, teacherID, examID, questionID string) error {
	if _, err := s.ownedEditable(ctx, teacherID, examID); err != nil {
		return err
	}
	return s.store.DeleteQuestion(ctx, examID, questionID)
}

func (s *Service) SetAnswerKey(ctx context.Context, teacherID, examID string, picks map[string]string) error {
	if _, err := s.ownedEditable(ctx, teacherID, examID); err != nil {
		return err
	}
	if len(picks) == 0 {
		return ValidationError("no answers to save")
	}
	return s.store.SetCorrectAnswers(ctx, examID, teacherID, picks)
}

func (s *Service) GrantAccess(ctx context.Context, teacherID, examID, studentID string) (ExamAccess, error) {
	if _, err := s.GetOwnedExam(ctx, teacherID, examID); err != nil {
		return ExamAccess{}, err
	}
	return s.store.GrantAccess(ctx, examID, studentID, teacherID)
}

func (s *Service) RevokeAccess(ctx context.Context, teacherID, examID, studentID string) error {
	if _, err := s.GetOwnedExam(ctx, teacherID, examID); err != nil {
		return err
	}
	return s.store.RevokeAccess(ctx, examID, studentID)
}

func (s *Service) ListForTeacher(ctx context.Context, teacherID string, limit, offset int) ([]Exam, error) {
	exams, err := s.store.ListExams(ctx, ListOpts{TeacherID: teacherID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	SortByPriority(exams, s.now())
	return exams, nil
}

func (s *Service) ListForStudent(ctx context.Context, studentID string, limit, offset int) ([]Exam, error) {
	exams, err := s.store.ListExams(ctx, ListOpts{StudentID: studentID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	SortByPriority(exams, s.now())
	return exams, nil
}

func (s *Service) ownedEditable(ctx context.Context, teacherID, examID string) (Exam, error) {
	e, err := s.GetOwnedExam(ctx, teacherID, examID)
	if err != nil {
		return Exam{}, err
	}
	if e.IsExpired(s.now()) {
		return Exam{}, ErrExamLocked
	}
	return e, nil
}

// Priority ranks an exam for dashboard ordering: running exams first,
// then upcoming, then expired, with disabled exams last.
func Priority(e Exam, now time.Time) int {
	switch {
	case e.IsOpen(now):
		return 1
	case e.IsActive && e.IsUpcoming(now):
		return 2
	case e.IsExpired(now):
		return 3
	default:
		return 4
	}
}

func SortByPriority(exams []Exam, now time.Time) {
	sort.SliceStable(exams, func(i, j int) bool {
		pi, pj := Priority(exams[i], now), Priority(exams[j], now)
		if pi != pj {
			return pi < pj
		}
		return exams[i].StartAt.Before(exams[j].StartAt)
	})
}
