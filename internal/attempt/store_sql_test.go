package attempt_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/classmark/examhub/internal/attempt"
	"github.com/classmark/examhub/internal/db"
)

func openAttemptDB(t *testing.T) *sql.DB {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite,
		"file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })

	_, err = dbh.ExecContext(context.Background(), `INSERT INTO exams
		(id,teacher_id,title,start_at,end_at,duration_minutes,max_attempts,
		 passing_percentage,access_type,total_marks,is_active,created_at,updated_at)
		VALUES ('exam-1','t1','Algebra I',0,4102444800,30,3,40,'all_students',10,1,0,0)`)
	if err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	return dbh
}

func TestCreateSubmissionNumbersSequentially(t *testing.T) {
	dbh := openAttemptDB(t)
	store := attempt.NewSQLStore(dbh)
	ctx := context.Background()

	first, err := store.CreateSubmission(ctx, attempt.Submission{
		ID: "sub-1", ExamID: "exam-1", StudentID: "s1",
		TotalMarks: 10, StartedAt: time.Now().UTC(), QuestionOrder: []string{"q1", "q2"},
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.AttemptNumber != 1 {
		t.Fatalf("attempt number = %d, want 1", first.AttemptNumber)
	}

	second, err := store.CreateSubmission(ctx, attempt.Submission{
		ID: "sub-2", ExamID: "exam-1", StudentID: "s1",
		TotalMarks: 10, StartedAt: time.Now().UTC(), QuestionOrder: []string{"q2", "q1"},
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.AttemptNumber != 2 {
		t.Fatalf("attempt number = %d, want 2", second.AttemptNumber)
	}

	// The stored permutation round-trips through the JSON column.
	got, err := store.GetSubmission(ctx, "sub-2")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if len(got.QuestionOrder) != 2 || got.QuestionOrder[0] != "q2" || got.QuestionOrder[1] != "q1" {
		t.Fatalf("question order = %v, want [q2 q1]", got.QuestionOrder)
	}
}

func TestCreateSubmissionConflictOnDuplicateNumber(t *testing.T) {
	dbh := openAttemptDB(t)
	store := attempt.NewSQLStore(dbh)
	ctx := context.Background()

	// A row already holds the attempt number the COUNT-based assignment
	// will pick next (one prior row, so the next insert computes 2), the
	// situation a concurrent racer produces. The unique
	// (exam_id, student_id, attempt_number) index lets exactly one insert
	// through; the loser must surface the conflict sentinel.
	_, err := dbh.ExecContext(ctx, `INSERT INTO submissions
		(id,exam_id,student_id,attempt_number,started_at)
		VALUES ('sub-racer','exam-1','s1',2,0)`)
	if err != nil {
		t.Fatalf("seed racer: %v", err)
	}

	_, err = store.CreateSubmission(ctx, attempt.Submission{
		ID: "sub-loser", ExamID: "exam-1", StudentID: "s1",
		StartedAt: time.Now().UTC(), QuestionOrder: []string{"q1"},
	})
	if !errors.Is(err, attempt.ErrAttemptConflict) {
		t.Fatalf("error = %v, want ErrAttemptConflict", err)
	}

	// The racer's row is untouched and the loser left nothing behind.
	var n int
	if err := dbh.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id='exam-1' AND student_id='s1'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("submission rows = %d, want 1", n)
	}
}
