package attempt_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/classmark/examhub/internal/attempt"
	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/eligibility"
	"github.com/classmark/examhub/internal/rbac"
)

/* ---------------- In-memory fakes for attempt.Store and attempt.Catalog ---------------- */

type fakeStore struct {
	subs    map[string]attempt.Submission
	answers map[string]map[string]*string // submission -> question -> choice
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:    map[string]attempt.Submission{},
		answers: map[string]map[string]*string{},
	}
}

func (s *fakeStore) CreateSubmission(_ context.Context, sub attempt.Submission) (attempt.Submission, error) {
	n := 0
	for _, existing := range s.subs {
		if existing.ExamID == sub.ExamID && existing.StudentID == sub.StudentID {
			n++
		}
	}
	sub.AttemptNumber = n + 1
	if sub.ID == "" {
		s.nextID++
		sub.ID = fmt.Sprintf("sub-%d", s.nextID)
	}
	s.subs[sub.ID] = sub
	return sub, nil
}

func (s *fakeStore) GetSubmission(_ context.Context, id string) (attempt.Submission, error) {
	sub, ok := s.subs[id]
	if !ok {
		return attempt.Submission{}, attempt.ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *fakeStore) GetOngoing(_ context.Context, examID, studentID string) (*attempt.Submission, error) {
	for _, sub := range s.subs {
		if sub.ExamID == examID && sub.StudentID == studentID && !sub.IsCompleted {
			cp := sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CountAttempts(_ context.Context, examID, studentID string) (int, error) {
	n := 0
	for _, sub := range s.subs {
		if sub.ExamID == examID && sub.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListByStudent(_ context.Context, examID, studentID string, completedOnly bool) ([]attempt.Submission, error) {
	var out []attempt.Submission
	for _, sub := range s.subs {
		if sub.ExamID != examID || sub.StudentID != studentID {
			continue
		}
		if completedOnly && !sub.IsCompleted {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *fakeStore) UpsertAnswer(_ context.Context, a attempt.StudentAnswer) error {
	m, ok := s.answers[a.SubmissionID]
	if !ok {
		m = map[string]*string{}
		s.answers[a.SubmissionID] = m
	}
	m[a.QuestionID] = a.ChoiceID
	return nil
}

func (s *fakeStore) Answers(_ context.Context, submissionID string) (map[string]*string, error) {
	out := map[string]*string{}
	for q, c := range s.answers[submissionID] {
		out[q] = c
	}
	return out, nil
}

func (s *fakeStore) Finalize(_ context.Context, f attempt.Finalization) error {
	sub, ok := s.subs[f.SubmissionID]
	if !ok {
		return attempt.ErrSubmissionNotFound
	}
	if sub.IsCompleted {
		return attempt.ErrNotActive
	}
	at := f.SubmittedAt
	sub.SubmittedAt = &at
	sub.TimeTakenSecs = f.TimeTakenSecs
	sub.Score = f.Score
	sub.TotalMarks = f.TotalMarks
	sub.Percentage = f.Percentage
	sub.AutoSubmitted = f.AutoSubmitted
	sub.IsCompleted = true
	s.subs[f.SubmissionID] = sub
	return nil
}

type fakeCatalog struct {
	exam      catalog.Exam
	questions []catalog.Question
	key       map[string]catalog.CorrectAnswer
}

func (c *fakeCatalog) GetExam(_ context.Context, id string) (catalog.Exam, error) {
	if id != c.exam.ID {
		return catalog.Exam{}, catalog.ErrExamNotFound
	}
	return c.exam, nil
}

func (c *fakeCatalog) ListQuestions(_ context.Context, examID string) ([]catalog.Question, error) {
	return append([]catalog.Question(nil), c.questions...), nil
}

func (c *fakeCatalog) GetAnswerKey(_ context.Context, examID string) (map[string]catalog.CorrectAnswer, error) {
	out := map[string]catalog.CorrectAnswer{}
	for k, v := range c.key {
		out[k] = v
	}
	return out, nil
}

// reverseShuffler reverses the slice so the permutation is deterministic
// and observably different from insertion order.
type reverseShuffler struct{}

func (reverseShuffler) Shuffle(n int, swap func(i, j int)) {
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		swap(i, j)
	}
}

/* ---------------- Fixture ---------------- */

var epoch = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *fakeStore
	cat   *fakeCatalog
	svc   *attempt.Service
	now   time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture() *fixture {
	f := &fixture{store: newFakeStore(), now: epoch}
	f.cat = &fakeCatalog{
		exam: catalog.Exam{
			ID:                "exam-1",
			TeacherID:         "t1",
			Title:             "Algebra I",
			StartAt:           epoch.Add(-time.Hour),
			EndAt:             epoch.Add(4 * time.Hour),
			DurationMinutes:   30,
			MaxAttempts:       2,
			PassingPercentage: 40,
			AccessType:        catalog.AccessAllStudents,
			TotalMarks:        10,
			IsActive:          true,
		},
		questions: []catalog.Question{
			{ID: "q1", ExamID: "exam-1", Text: "first", Marks: 5, Order: 1,
				Choices: []catalog.Choice{{ID: "q1-a", Label: "A"}, {ID: "q1-b", Label: "B"}}},
			{ID: "q2", ExamID: "exam-1", Text: "second", Marks: 5, Order: 2,
				Choices: []catalog.Choice{{ID: "q2-a", Label: "A"}, {ID: "q2-b", Label: "B"}}},
		},
		key: map[string]catalog.CorrectAnswer{
			"q1": {QuestionID: "q1", ChoiceID: "q1-a"},
			"q2": {QuestionID: "q2", ChoiceID: "q2-b"},
		},
	}
	f.svc = attempt.NewService(f.store, f.cat,
		attempt.WithClock(func() time.Time { return f.now }),
		attempt.WithShuffler(reverseShuffler{}),
	)
	return f
}

func strptr(s string) *string { return &s }

/* ---------------- Tests ---------------- */

func TestStartAssignsAttemptNumbersAndOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sub.AttemptNumber != 1 {
		t.Fatalf("attempt number = %d, want 1", sub.AttemptNumber)
	}
	if sub.TotalMarks != 10 {
		t.Fatalf("total marks snapshot = %d, want 10", sub.TotalMarks)
	}
	if len(sub.QuestionOrder) != 2 || sub.QuestionOrder[0] != "q2" || sub.QuestionOrder[1] != "q1" {
		t.Fatalf("question order = %v, want reversed [q2 q1]", sub.QuestionOrder)
	}

	// A second start while one is in flight is refused.
	if _, err := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent); !errors.Is(err, attempt.ErrAttemptInProgress) {
		t.Fatalf("second start error = %v, want ErrAttemptInProgress", err)
	}

	// Finish it; the next attempt is numbered 2.
	if _, err := f.svc.Submit(ctx, sub.ID, "s1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sub2, err := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	if err != nil {
		t.Fatalf("Start #2: %v", err)
	}
	if sub2.AttemptNumber != 2 {
		t.Fatalf("attempt number = %d, want 2", sub2.AttemptNumber)
	}

	// MaxAttempts=2, both used up.
	if _, err := f.svc.Submit(ctx, sub2.ID, "s1"); err != nil {
		t.Fatalf("Submit #2: %v", err)
	}
	if _, err := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent); !errors.Is(err, attempt.ErrNoAttemptsLeft) {
		t.Fatalf("third start error = %v, want ErrNoAttemptsLeft", err)
	}
}

func TestQuestionOrderStableAcrossReload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		questions, _, err := f.svc.Questions(ctx, sub.ID, "s1")
		if err != nil {
			t.Fatalf("Questions reload %d: %v", i, err)
		}
		if questions[0].ID != "q2" || questions[1].ID != "q1" {
			t.Fatalf("reload %d: order changed to %v", i, []string{questions[0].ID, questions[1].ID})
		}
	}
}

func TestSaveAnswerLastWriteWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)

	if err := f.svc.SaveAnswer(ctx, sub.ID, "s1", "q1", strptr("q1-b")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := f.svc.SaveAnswer(ctx, sub.ID, "s1", "q1", strptr("q1-a")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := f.svc.SaveAnswer(ctx, sub.ID, "s1", "q2", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}

	_, answers, err := f.svc.Questions(ctx, sub.ID, "s1")
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if got := answers["q1"]; got == nil || *got != "q1-a" {
		t.Fatalf("q1 answer = %v, want q1-a", got)
	}
	if got, ok := answers["q2"]; !ok || got != nil {
		t.Fatalf("q2 answer = %v (present=%v), want recorded nil", got, ok)
	}
}

func TestSaveAnswerValidatesQuestionAndChoice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)

	if err := f.svc.SaveAnswer(ctx, sub.ID, "s1", "nope", strptr("q1-a")); !errors.Is(err, attempt.ErrInvalidQuestion) {
		t.Fatalf("unknown question error = %v", err)
	}
	if err := f.svc.SaveAnswer(ctx, sub.ID, "s1", "q1", strptr("q2-a")); !errors.Is(err, attempt.ErrInvalidChoice) {
		t.Fatalf("foreign choice error = %v", err)
	}
	if err := f.svc.SaveAnswer(ctx, sub.ID, "s2", "q1", strptr("q1-a")); !errors.Is(err, attempt.ErrForbidden) {
		t.Fatalf("other student error = %v", err)
	}
}

func TestSubmitGradesAndIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	_ = f.svc.SaveAnswer(ctx, sub.ID, "s1", "q1", strptr("q1-a")) // correct
	_ = f.svc.SaveAnswer(ctx, sub.ID, "s1", "q2", strptr("q2-a")) // wrong

	f.advance(10 * time.Minute)
	done, err := f.svc.Submit(ctx, sub.ID, "s1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !done.IsCompleted || done.AutoSubmitted {
		t.Fatalf("submission state = %+v, want completed manual", done)
	}
	if done.Score != 5 || done.Percentage != 50.00 {
		t.Fatalf("score=%d pct=%v, want 5 / 50.00", done.Score, done.Percentage)
	}
	if done.TimeTakenSecs != 600 {
		t.Fatalf("time taken = %d, want 600", done.TimeTakenSecs)
	}

	if _, err := f.svc.Submit(ctx, sub.ID, "s1"); !errors.Is(err, attempt.ErrNotActive) {
		t.Fatalf("double submit error = %v, want ErrNotActive", err)
	}
	if err := f.svc.SaveAnswer(ctx, sub.ID, "s1", "q1", strptr("q1-b")); !errors.Is(err, attempt.ErrNotActive) {
		t.Fatalf("save after submit error = %v, want ErrNotActive", err)
	}
}

func TestTimeoutAutoSubmitsWithFullAllotment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	_ = f.svc.SaveAnswer(ctx, sub.ID, "s1", "q1", strptr("q1-a"))

	// Student walks away; the timer elapses.
	f.advance(31 * time.Minute)

	if err := f.svc.SaveAnswer(ctx, sub.ID, "s1", "q2", strptr("q2-b")); !errors.Is(err, attempt.ErrTimeExpired) {
		t.Fatalf("save after timeout error = %v, want ErrTimeExpired", err)
	}

	stored, err := f.store.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if !stored.IsCompleted || !stored.AutoSubmitted {
		t.Fatalf("state = %+v, want auto-submitted", stored)
	}
	// Recorded as the full 30-minute allotment, not 31 minutes of wall time.
	if stored.TimeTakenSecs != 1800 {
		t.Fatalf("time taken = %d, want 1800", stored.TimeTakenSecs)
	}
	// Only the answer saved before the deadline counts.
	if stored.Score != 5 {
		t.Fatalf("score = %d, want 5", stored.Score)
	}
}

func TestSubmitAfterTimeoutReturnsFinalizedAttempt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	f.advance(40 * time.Minute)

	done, err := f.svc.Submit(ctx, sub.ID, "s1")
	if err != nil {
		t.Fatalf("Submit after timeout: %v", err)
	}
	if !done.IsCompleted || !done.AutoSubmitted {
		t.Fatalf("state = %+v, want auto-submitted", done)
	}
}

func TestTimeRemainingFloorsAtZeroAndFinalizes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)

	f.advance(10 * time.Minute)
	remaining, err := f.svc.TimeRemaining(ctx, sub.ID, "s1")
	if err != nil {
		t.Fatalf("TimeRemaining: %v", err)
	}
	if remaining != 1200 {
		t.Fatalf("remaining = %d, want 1200", remaining)
	}

	f.advance(25 * time.Minute)
	remaining, err = f.svc.TimeRemaining(ctx, sub.ID, "s1")
	if err != nil {
		t.Fatalf("TimeRemaining past deadline: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("remaining = %d, want 0", remaining)
	}
	stored, _ := f.store.GetSubmission(ctx, sub.ID)
	if !stored.IsCompleted || !stored.AutoSubmitted {
		t.Fatalf("poll past deadline did not finalize: %+v", stored)
	}
}

func TestLiveTotalRecomputeAtSubmit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	if sub.TotalMarks != 10 {
		t.Fatalf("snapshot = %d, want 10", sub.TotalMarks)
	}
	_ = f.svc.SaveAnswer(ctx, sub.ID, "s1", "q1", strptr("q1-a"))

	// A third question lands mid-attempt; grading uses the live set.
	f.cat.questions = append(f.cat.questions, catalog.Question{
		ID: "q3", ExamID: "exam-1", Text: "third", Marks: 10, Order: 3,
		Choices: []catalog.Choice{{ID: "q3-a", Label: "A"}},
	})
	f.cat.key["q3"] = catalog.CorrectAnswer{QuestionID: "q3", ChoiceID: "q3-a"}

	done, err := f.svc.Submit(ctx, sub.ID, "s1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if done.TotalMarks != 20 {
		t.Fatalf("total marks = %d, want live 20", done.TotalMarks)
	}
	if done.Score != 5 || done.Percentage != 25.00 {
		t.Fatalf("score=%d pct=%v, want 5 / 25.00", done.Score, done.Percentage)
	}
}

func TestOrderDropsDeletedAndAppendsNewQuestions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)

	// q2 deleted, q3 added after the snapshot was taken.
	f.cat.questions = []catalog.Question{
		f.cat.questions[0],
		{ID: "q3", ExamID: "exam-1", Text: "third", Marks: 5, Order: 3,
			Choices: []catalog.Choice{{ID: "q3-a", Label: "A"}}},
	}

	questions, _, err := f.svc.Questions(ctx, sub.ID, "s1")
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	got := make([]string, len(questions))
	for i, q := range questions {
		got[i] = q.ID
	}
	// Snapshot order [q2 q1] minus q2, plus appended q3.
	if len(got) != 2 || got[0] != "q1" || got[1] != "q3" {
		t.Fatalf("order = %v, want [q1 q3]", got)
	}
}

func TestResultBreakdownAndStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	status, err := f.svc.Status(ctx, "exam-1", "s1", rbac.RoleStudent)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != eligibility.StatusAvailable {
		t.Fatalf("status = %q, want available", status)
	}

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)

	// Result of an active, in-time attempt is not reachable.
	if _, err := f.svc.Result(ctx, sub.ID, "s1"); !errors.Is(err, attempt.ErrNotActive) {
		t.Fatalf("early result error = %v, want ErrNotActive", err)
	}

	_ = f.svc.SaveAnswer(ctx, sub.ID, "s1", "q1", strptr("q1-a"))
	_ = f.svc.SaveAnswer(ctx, sub.ID, "s1", "q2", strptr("q2-b"))
	if _, err := f.svc.Submit(ctx, sub.ID, "s1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res, err := f.svc.Result(ctx, sub.ID, "s1")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !res.Passed {
		t.Fatalf("100%% should pass a 40%% threshold: %+v", res.Submission)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(res.Items))
	}
	// Breakdown follows the stored randomized order.
	if res.Items[0].Question.ID != "q2" || res.Items[1].Question.ID != "q1" {
		t.Fatalf("breakdown order = [%s %s], want [q2 q1]",
			res.Items[0].Question.ID, res.Items[1].Question.ID)
	}
	for _, item := range res.Items {
		if !item.IsCorrect || item.PointsEarned != 5 {
			t.Fatalf("item %s: %+v, want correct for 5 points", item.Question.ID, item)
		}
	}
}

func TestResultReachableAfterTimeout(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	_ = f.svc.SaveAnswer(ctx, sub.ID, "s1", "q1", strptr("q1-a"))
	f.advance(time.Hour)

	res, err := f.svc.Result(ctx, sub.ID, "s1")
	if err != nil {
		t.Fatalf("Result after timeout: %v", err)
	}
	if !res.Submission.IsCompleted || !res.Submission.AutoSubmitted {
		t.Fatalf("submission = %+v, want auto-submitted", res.Submission)
	}
	if res.Submission.Score != 5 {
		t.Fatalf("score = %d, want 5", res.Submission.Score)
	}
}

func TestStartAfterTimeoutRecoversStaleAttempt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	f.advance(time.Hour)

	// The stale attempt is finalized in passing and a fresh one starts.
	second, err := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	if err != nil {
		t.Fatalf("Start after stale attempt: %v", err)
	}
	if second.AttemptNumber != 2 {
		t.Fatalf("attempt number = %d, want 2", second.AttemptNumber)
	}
	stale, _ := f.store.GetSubmission(ctx, first.ID)
	if !stale.IsCompleted || !stale.AutoSubmitted {
		t.Fatalf("stale attempt not recovered: %+v", stale)
	}
}

func TestAccessGates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.cat.exam.AccessType = catalog.AccessSpecificStudents
	f.cat.exam.AllowedStudents = []string{"s1"}

	if _, err := f.svc.Start(ctx, "exam-1", "s2", rbac.RoleStudent); !errors.Is(err, attempt.ErrNoAccess) {
		t.Fatalf("off-list start error = %v, want ErrNoAccess", err)
	}
	if _, err := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent); err != nil {
		t.Fatalf("allow-listed start: %v", err)
	}

	f.cat.exam.StartAt = f.now.Add(time.Hour)
	if _, err := f.svc.Start(ctx, "exam-1", "s3", rbac.RoleStudent); !errors.Is(err, attempt.ErrNotAvailableYet) {
		t.Fatalf("upcoming start error = %v, want ErrNotAvailableYet", err)
	}
	f.cat.exam.StartAt = epoch.Add(-2 * time.Hour)
	f.cat.exam.EndAt = f.now.Add(-time.Minute)
	if _, err := f.svc.Start(ctx, "exam-1", "s3", rbac.RoleStudent); !errors.Is(err, attempt.ErrExamExpired) {
		t.Fatalf("expired start error = %v, want ErrExamExpired", err)
	}
}

func TestView(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := f.svc.Start(ctx, "exam-1", "s1", rbac.RoleStudent)
	f.advance(5 * time.Minute)

	view, err := f.svc.View(ctx, "exam-1", "s1", rbac.RoleStudent)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if view.Status != string(eligibility.StatusInProgress) {
		t.Fatalf("status = %q, want in_progress", view.Status)
	}
	if view.AttemptsMade != 1 || view.RemainingAttempts != 1 {
		t.Fatalf("attempts = %d/%d, want 1 made 1 left", view.AttemptsMade, view.RemainingAttempts)
	}
	if view.Ongoing == nil || view.Ongoing.ID != sub.ID {
		t.Fatalf("ongoing = %+v, want %s", view.Ongoing, sub.ID)
	}
	if view.TimeRemaining != 1500 {
		t.Fatalf("time remaining = %d, want 1500", view.TimeRemaining)
	}
}
