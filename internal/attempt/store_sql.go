package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const submissionCols = `id,exam_id,student_id,attempt_number,score,total_marks,percentage,
	started_at,submitted_at,is_completed,time_taken_secs,question_order,auto_submitted`

func (s *SQLStore) CreateSubmission(ctx context.Context, sub Submission) (Submission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Submission{}, err
	}
	defer tx.Rollback()

	var prior int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id=$1 AND student_id=$2`,
		sub.ExamID, sub.StudentID).Scan(&prior); err != nil {
		return Submission{}, err
	}
	sub.AttemptNumber = prior + 1

	order, err := json.Marshal(sub.QuestionOrder)
	if err != nil {
		return Submission{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO submissions
		(id,exam_id,student_id,attempt_number,score,total_marks,percentage,started_at,
		 is_completed,question_order,auto_submitted)
		VALUES ($1,$2,$3,$4,0,$5,0,$6,0,$7,0)`,
		sub.ID, sub.ExamID, sub.StudentID, sub.AttemptNumber, sub.TotalMarks,
		sub.StartedAt.Unix(), string(order))
	if err != nil {
		if isUniqueViolation(err) {
			return Submission{}, ErrAttemptConflict
		}
		return Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

func (s *SQLStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE id=$1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, ErrSubmissionNotFound
	}
	return sub, err
}

func (s *SQLStore) GetOngoing(ctx context.Context, examID, studentID string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions
		 WHERE exam_id=$1 AND student_id=$2 AND is_completed=0
		 ORDER BY started_at DESC LIMIT 1`, examID, studentID)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *SQLStore) CountAttempts(ctx context.Context, examID, studentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id=$1 AND student_id=$2`,
		examID, studentID).Scan(&n)
	return n, err
}

func (s *SQLStore) ListByStudent(ctx context.Context, examID, studentID string, completedOnly bool) ([]Submission, error) {
	q := `SELECT ` + submissionCols + ` FROM submissions WHERE exam_id=$1 AND student_id=$2`
	if completedOnly {
		q += ` AND is_completed=1`
	}
	q += ` ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, q, examID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertAnswer(ctx context.Context, a StudentAnswer) error {
	var choice interface{}
	if a.ChoiceID != nil {
		choice = *a.ChoiceID
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO student_answers
		(id,submission_id,question_id,choice_id,answered_at) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (submission_id, question_id) DO UPDATE SET
			choice_id=EXCLUDED.choice_id, answered_at=EXCLUDED.answered_at`,
		uuid.NewString(), a.SubmissionID, a.QuestionID, choice, a.AnsweredAt.Unix())
	return err
}

func (s *SQLStore) Answers(ctx context.Context, submissionID string) (map[string]*string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, choice_id FROM student_answers WHERE submission_id=$1`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]*string{}
	for rows.Next() {
		var qid string
		var choice sql.NullString
		if err := rows.Scan(&qid, &choice); err != nil {
			return nil, err
		}
		if choice.Valid {
			c := choice.String
			out[qid] = &c
		} else {
			out[qid] = nil
		}
	}
	return out, rows.Err()
}

func (s *SQLStore) Finalize(ctx context.Context, f Finalization) error {
	res, err := s.db.ExecContext(ctx, `UPDATE submissions SET
		score=$1, total_marks=$2, percentage=$3, submitted_at=$4, is_completed=1,
		time_taken_secs=$5, auto_submitted=$6
		WHERE id=$7 AND is_completed=0`,
		f.Score, f.TotalMarks, f.Percentage, f.SubmittedAt.Unix(),
		f.TimeTakenSecs, b2i(f.AutoSubmitted), f.SubmissionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either finalized already or missing entirely.
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM submissions WHERE id=$1`, f.SubmissionID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSubmissionNotFound
		}
		if err != nil {
			return err
		}
		return ErrNotActive
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(r rowScanner) (Submission, error) {
	var sub Submission
	var started int64
	var submitted, timeTaken sql.NullInt64
	var completed, auto int
	var order string
	if err := r.Scan(&sub.ID, &sub.ExamID, &sub.StudentID, &sub.AttemptNumber,
		&sub.Score, &sub.TotalMarks, &sub.Percentage, &started, &submitted,
		&completed, &timeTaken, &order, &auto); err != nil {
		return Submission{}, err
	}
	sub.StartedAt = time.Unix(started, 0).UTC()
	if submitted.Valid {
		t := time.Unix(submitted.Int64, 0).UTC()
		sub.SubmittedAt = &t
	}
	sub.IsCompleted = completed != 0
	if timeTaken.Valid {
		sub.TimeTakenSecs = timeTaken.Int64
	}
	sub.AutoSubmitted = auto != 0
	if err := json.Unmarshal([]byte(order), &sub.QuestionOrder); err != nil {
		sub.QuestionOrder = nil
	}
	return sub, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // sqlite
		strings.Contains(msg, "duplicate key") // postgres
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
