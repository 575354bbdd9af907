package analytics

import (
	"context"
	"database/sql"

	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/rbac"
)

// Catalog is the slice of the catalog store the aggregator reads.
type Catalog interface {
	GetExam(ctx context.Context, id string) (catalog.Exam, error)
	ListQuestions(ctx context.Context, examID string) ([]catalog.Question, error)
	GetAnswerKey(ctx context.Context, examID string) (map[string]catalog.CorrectAnswer, error)
}

type Store interface {
	CompletedAttempts(ctx context.Context, examID string) ([]CompletedAttempt, error)
	AnswerRows(ctx context.Context, examID string) ([]AnswerRow, error)
	// AllStudentIDs lists every registered student, the eligible set for
	// an all-students exam.
	AllStudentIDs(ctx context.Context) ([]string, error)
	// OngoingStudents reports which students hold an unfinished
	// submission for the exam.
	OngoingStudents(ctx context.Context, examID string) (map[string]bool, error)
}

type Service struct {
	store   Store
	catalog Catalog
}

func NewService(store Store, cat Catalog) *Service {
	return &Service{store: store, catalog: cat}
}

// ReportFor assembles the full exam report for a viewer. Teachers see
// only their own exams; admins see any.
func (s *Service) ReportFor(ctx context.Context, examID, viewerID, viewerRole string) (ExamReport, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return ExamReport{}, err
	}
	if viewerRole != rbac.RoleAdmin && exam.TeacherID != viewerID {
		return ExamReport{}, catalog.ErrNotOwner
	}
	return s.report(ctx, exam)
}

func (s *Service) report(ctx context.Context, exam catalog.Exam) (ExamReport, error) {
	examID := exam.ID
	questions, err := s.catalog.ListQuestions(ctx, examID)
	if err != nil {
		return ExamReport{}, err
	}
	key, err := s.catalog.GetAnswerKey(ctx, examID)
	if err != nil {
		return ExamReport{}, err
	}
	attempts, err := s.store.CompletedAttempts(ctx, examID)
	if err != nil {
		return ExamReport{}, err
	}
	rows, err := s.store.AnswerRows(ctx, examID)
	if err != nil {
		return ExamReport{}, err
	}

	eligible := exam.AllowedStudents
	if exam.AccessType == catalog.AccessAllStudents {
		eligible, err = s.store.AllStudentIDs(ctx)
		if err != nil {
			return ExamReport{}, err
		}
	}
	ongoing, err := s.store.OngoingStudents(ctx, examID)
	if err != nil {
		return ExamReport{}, err
	}
	students := Completion(eligible, attempts, ongoing)
	completed, inProgress, notStarted := CountByStatus(students)

	return ExamReport{
		ExamID:            examID,
		TotalAttempts:     len(attempts),
		StudentsTaken:     DistinctStudents(attempts),
		CompletedCount:    completed,
		InProgressCount:   inProgress,
		NotStartedCount:   notStarted,
		PassRate:          PassRate(attempts, exam.PassingPercentage),
		AveragePercentage: AveragePercentage(attempts),
		TimeEfficiency:    TimeEfficiency(attempts, exam.Duration()),
		Students:          students,
		Difficulty:        Difficulty(questions, key, attempts, rows),
	}, nil
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) CompletedAttempts(ctx context.Context, examID string) ([]CompletedAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, student_id, percentage, COALESCE(time_taken_secs, 0)
		FROM submissions WHERE exam_id=$1 AND is_completed=1`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CompletedAttempt
	for rows.Next() {
		var a CompletedAttempt
		if err := rows.Scan(&a.ID, &a.StudentID, &a.Percentage, &a.TimeTakenSecs); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) AllStudentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users WHERE role='student' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) OngoingStudents(ctx context.Context, examID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT student_id FROM submissions WHERE exam_id=$1 AND is_completed=0`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *SQLStore) AnswerRows(ctx context.Context, examID string) ([]AnswerRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sa.submission_id, sa.question_id, sa.choice_id
		FROM student_answers sa
		JOIN submissions sub ON sub.id = sa.submission_id
		WHERE sub.exam_id=$1 AND sub.is_completed=1`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnswerRow
	for rows.Next() {
		var r AnswerRow
		var choice sql.NullString
		if err := rows.Scan(&r.SubmissionID, &r.QuestionID, &choice); err != nil {
			return nil, err
		}
		if choice.Valid {
			c := choice.String
			r.ChoiceID = &c
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
