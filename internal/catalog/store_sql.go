package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO exams
		(id,teacher_id,title,description,start_at,end_at,duration_minutes,max_attempts,
		 passing_percentage,access_type,total_marks,is_active,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.TeacherID, e.Title, e.Description, e.StartAt.Unix(), e.EndAt.Unix(),
		e.DurationMinutes, e.MaxAttempts, e.PassingPercentage, string(e.AccessType),
		e.TotalMarks, b2i(e.IsActive), e.CreatedAt.Unix(), e.UpdatedAt.Unix())
	if err != nil {
		return err
	}
	if err := replaceAllowedStudents(ctx, tx, e.ID, e.AllowedStudents); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) UpdateExam(ctx context.Context, e Exam) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE exams SET
		title=$1, description=$2, start_at=$3, end_at=$4, duration_minutes=$5,
		max_attempts=$6, passing_percentage=$7, access_type=$8, is_active=$9, updated_at=$10
		WHERE id=$11`,
		e.Title, e.Description, e.StartAt.Unix(), e.EndAt.Unix(), e.DurationMinutes,
		e.MaxAttempts, e.PassingPercentage, string(e.AccessType), b2i(e.IsActive),
		e.UpdatedAt.Unix(), e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExamNotFound
	}
	if err := replaceAllowedStudents(ctx, tx, e.ID, e.AllowedStudents); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceAllowedStudents(ctx context.Context, tx *sql.Tx, examID string, students []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM exam_allowed_students WHERE exam_id=$1`, examID); err != nil {
		return err
	}
	for _, sid := range students {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exam_allowed_students (exam_id, student_id) VALUES ($1,$2)`, examID, sid); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,teacher_id,title,description,start_at,end_at,
		duration_minutes,max_attempts,passing_percentage,access_type,total_marks,is_active,
		created_at,updated_at FROM exams WHERE id=$1`, id)
	e, err := scanExam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Exam{}, ErrExamNotFound
		}
		return Exam{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id FROM exam_allowed_students WHERE exam_id=$1 ORDER BY student_id`, id)
	if err != nil {
		return Exam{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return Exam{}, err
		}
		e.AllowedStudents = append(e.AllowedStudents, sid)
	}
	return e, rows.Err()
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]Exam, error) {
	q := `SELECT id,teacher_id,title,description,start_at,end_at,duration_minutes,max_attempts,
		passing_percentage,access_type,total_marks,is_active,created_at,updated_at FROM exams`
	var args []interface{}
	switch {
	case opts.TeacherID != "":
		q += ` WHERE teacher_id=$1`
		args = append(args, opts.TeacherID)
	case opts.StudentID != "":
		q += ` WHERE is_active=1 AND (access_type='all_students'
			OR id IN (SELECT exam_id FROM exam_allowed_students WHERE student_id=$1))`
		args = append(args, opts.StudentID)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, normLimit(opts.Limit), max0(opts.Offset))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteExam(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exams WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExamNotFound
	}
	return nil
}

func (s *SQLStore) CountStudents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role='student'`).Scan(&n)
	return n, err
}

func (s *SQLStore) AddQuestion(ctx context.Context, examID, createdBy string, in NewQuestion) (Question, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Question{}, err
	}
	defer tx.Rollback()

	var nextOrd int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ord),0)+1 FROM questions WHERE exam_id=$1`, examID).Scan(&nextOrd); err != nil {
		return Question{}, err
	}

	now := time.Now()
	q := Question{
		ID:        uuid.NewString(),
		ExamID:    examID,
		Text:      in.Text,
		Marks:     in.Marks,
		Order:     nextOrd,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO questions (id,exam_id,question_text,marks,ord,created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		q.ID, q.ExamID, q.Text, q.Marks, q.Order, now.Unix()); err != nil {
		return Question{}, err
	}

	var correctChoiceID string
	for i, text := range in.ChoiceTexts {
		c := Choice{
			ID:         uuid.NewString(),
			QuestionID: q.ID,
			Label:      choiceLabels[i],
			Text:       text,
			Order:      i + 1,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO choices (id,question_id,label,choice_text,ord) VALUES ($1,$2,$3,$4,$5)`,
			c.ID, c.QuestionID, c.Label, c.Text, c.Order); err != nil {
			return Question{}, err
		}
		if c.Label == in.CorrectLabel {
			correctChoiceID = c.ID
		}
		q.Choices = append(q.Choices, c)
	}

	keyID, err := ensureAnswerKey(ctx, tx, examID, createdBy, now)
	if err != nil {
		return Question{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO correct_answers (id,answer_key_id,question_id,choice_id,explanation) VALUES ($1,$2,$3,$4,'')`,
		uuid.NewString(), keyID, q.ID, correctChoiceID); err != nil {
		return Question{}, err
	}

	if err := recomputeTotalMarks(ctx, tx, examID, now); err != nil {
		return Question{}, err
	}
	if err := tx.Commit(); err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, examID, questionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ord int
	err = tx.QueryRowContext(ctx,
		`SELECT ord FROM questions WHERE id=$1 AND exam_id=$2`, questionID, examID).Scan(&ord)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrQuestionNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, questionID); err != nil {
		return err
	}

	// Compact the order of the remainder, ascending so the unique
	// (exam_id, ord) index never sees a transient duplicate.
	rows, err := tx.QueryContext(ctx,
		`SELECT id, ord FROM questions WHERE exam_id=$1 AND ord>$2 ORDER BY ord`, examID, ord)
	if err != nil {
		return err
	}
	type pair struct {
		id  string
		ord int
	}
	var shift []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.id, &p.ord); err != nil {
			rows.Close()
			return err
		}
		shift = append(shift, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, p := range shift {
		if _, err := tx.ExecContext(ctx,
			`UPDATE questions SET ord=$1 WHERE id=$2`, p.ord-1, p.id); err != nil {
			return err
		}
	}

	if err := recomputeTotalMarks(ctx, tx, examID, time.Now()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ListQuestions(ctx context.Context, examID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,exam_id,question_text,marks,ord,created_at
		FROM questions WHERE exam_id=$1 ORDER BY ord`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var qs []Question
	idx := map[string]int{}
	for rows.Next() {
		var q Question
		var created int64
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Marks, &q.Order, &created); err != nil {
			return nil, err
		}
		q.CreatedAt = time.Unix(created, 0).UTC()
		idx[q.ID] = len(qs)
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := s.db.QueryContext(ctx, `SELECT c.id,c.question_id,c.label,c.choice_text,c.ord
		FROM choices c JOIN questions q ON q.id=c.question_id
		WHERE q.exam_id=$1 ORDER BY c.question_id, c.ord`, examID)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var c Choice
		if err := crows.Scan(&c.ID, &c.QuestionID, &c.Label, &c.Text, &c.Order); err != nil {
			return nil, err
		}
		if i, ok := idx[c.QuestionID]; ok {
			qs[i].Choices = append(qs[i].Choices, c)
		}
	}
	return qs, crows.Err()
}

func (s *SQLStore) GetAnswerKey(ctx context.Context, examID string) (map[string]CorrectAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ca.id,ca.answer_key_id,ca.question_id,ca.choice_id,ca.explanation
		FROM correct_answers ca JOIN answer_keys ak ON ak.id=ca.answer_key_id
		WHERE ak.exam_id=$1`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	key := map[string]CorrectAnswer{}
	for rows.Next() {
		var ca CorrectAnswer
		if err := rows.Scan(&ca.ID, &ca.AnswerKeyID, &ca.QuestionID, &ca.ChoiceID, &ca.Explanation); err != nil {
			return nil, err
		}
		key[ca.QuestionID] = ca
	}
	return key, rows.Err()
}

func (s *SQLStore) SetCorrectAnswers(ctx context.Context, examID, createdBy string, picks map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	keyID, err := ensureAnswerKey(ctx, tx, examID, createdBy, now)
	if err != nil {
		return err
	}

	for questionID, choiceID := range picks {
		var ok int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM choices c JOIN questions q ON q.id=c.question_id
			WHERE c.id=$1 AND c.question_id=$2 AND q.exam_id=$3`, choiceID, questionID, examID).Scan(&ok)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrChoiceNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO correct_answers (id,answer_key_id,question_id,choice_id,explanation)
			VALUES ($1,$2,$3,$4,'')
			ON CONFLICT (answer_key_id, question_id) DO UPDATE SET choice_id=EXCLUDED.choice_id`,
			uuid.NewString(), keyID, questionID, choiceID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE answer_keys SET updated_at=$1 WHERE id=$2`, now.Unix(), keyID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) GrantAccess(ctx context.Context, examID, studentID, grantedBy string) (ExamAccess, error) {
	now := time.Now()
	a := ExamAccess{
		ID:        uuid.NewString(),
		ExamID:    examID,
		StudentID: studentID,
		GrantedBy: grantedBy,
		GrantedAt: now.UTC(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO exam_access (id,exam_id,student_id,granted_by,granted_at,is_revoked)
		VALUES ($1,$2,$3,$4,$5,0)
		ON CONFLICT (exam_id, student_id) DO UPDATE SET
			granted_by=EXCLUDED.granted_by, granted_at=EXCLUDED.granted_at, is_revoked=0, revoked_at=NULL`,
		a.ID, examID, studentID, grantedBy, now.Unix())
	if err != nil {
		return ExamAccess{}, err
	}
	return a, nil
}

func (s *SQLStore) RevokeAccess(ctx context.Context, examID, studentID string) error {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE exam_access SET is_revoked=1, revoked_at=$1 WHERE exam_id=$2 AND student_id=$3`,
		now, examID, studentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccessNotFound
	}
	return nil
}

func (s *SQLStore) ListAccess(ctx context.Context, examID string) ([]ExamAccess, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,exam_id,student_id,granted_by,granted_at,is_revoked,revoked_at
		FROM exam_access WHERE exam_id=$1 ORDER BY granted_at`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExamAccess
	for rows.Next() {
		var a ExamAccess
		var granted int64
		var revoked sql.NullInt64
		var revokedFlag int
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.GrantedBy, &granted, &revokedFlag, &revoked); err != nil {
			return nil, err
		}
		a.GrantedAt = time.Unix(granted, 0).UTC()
		a.IsRevoked = revokedFlag != 0
		if revoked.Valid {
			t := time.Unix(revoked.Int64, 0).UTC()
			a.RevokedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func ensureAnswerKey(ctx context.Context, tx *sql.Tx, examID, createdBy string, now time.Time) (string, error) {
	var keyID string
	err := tx.QueryRowContext(ctx, `SELECT id FROM answer_keys WHERE exam_id=$1`, examID).Scan(&keyID)
	if errors.Is(err, sql.ErrNoRows) {
		keyID = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO answer_keys (id,exam_id,created_by,created_at,updated_at) VALUES ($1,$2,$3,$4,$5)`,
			keyID, examID, createdBy, now.Unix(), now.Unix())
	}
	return keyID, err
}

func recomputeTotalMarks(ctx context.Context, tx *sql.Tx, examID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE exams SET
		total_marks=(SELECT COALESCE(SUM(marks),0) FROM questions WHERE exam_id=$1),
		updated_at=$2
		WHERE id=$1`, examID, now.Unix())
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExam(r rowScanner) (Exam, error) {
	var e Exam
	var start, end, created, updated int64
	var access string
	var active int
	if err := r.Scan(&e.ID, &e.TeacherID, &e.Title, &e.Description, &start, &end,
		&e.DurationMinutes, &e.MaxAttempts, &e.PassingPercentage, &access, &e.TotalMarks,
		&active, &created, &updated); err != nil {
		return Exam{}, err
	}
	e.StartAt = time.Unix(start, 0).UTC()
	e.EndAt = time.Unix(end, 0).UTC()
	e.AccessType = AccessType(access)
	e.IsActive = active != 0
	e.CreatedAt = time.Unix(created, 0).UTC()
	e.UpdatedAt = time.Unix(updated, 0).UTC()
	return e, nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func normLimit(n int) int {
	if n <= 0 || n > 200 {
		return 50
	}
	return n
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
