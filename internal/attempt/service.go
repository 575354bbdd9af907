package attempt

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/eligibility"
	"github.com/classmark/examhub/internal/eventlog"
	"github.com/classmark/examhub/internal/grading"
)

// Catalog is the slice of the catalog store the attempt engine reads.
type Catalog interface {
	GetExam(ctx context.Context, id string) (catalog.Exam, error)
	ListQuestions(ctx context.Context, examID string) ([]catalog.Question, error)
	GetAnswerKey(ctx context.Context, examID string) (map[string]catalog.CorrectAnswer, error)
}

// EventSink receives attempt lifecycle events; writes are best-effort.
type EventSink interface {
	Append(ctx context.Context, typ, key, dataJSON string) error
}

// Shuffler permutes question order at attempt creation. Injected so
// tests can supply a deterministic permutation.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type randShuffler struct{}

func (randShuffler) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithShuffler(sh Shuffler) Option       { return func(s *Service) { s.shuffle = sh } }
func WithEvents(sink EventSink) Option      { return func(s *Service) { s.events = sink } }

// Service drives the attempt lifecycle: eligibility-gated start, timed
// answer capture, and single finalization with grading. Every operation
// checks the domain timer first; an expired Active submission is
// auto-submitted before the operation proceeds or is rejected.
type Service struct {
	store   Store
	catalog Catalog
	events  EventSink
	now     func() time.Time
	shuffle Shuffler
}

func NewService(store Store, cat Catalog, opts ...Option) *Service {
	s := &Service{
		store:   store,
		catalog: cat,
		now:     time.Now,
		shuffle: randShuffler{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Status evaluates the exam for the student at this instant.
func (s *Service) Status(ctx context.Context, examID, studentID, viewerRole string) (eligibility.Status, error) {
	snap, err := s.snapshot(ctx, examID, studentID, viewerRole)
	if err != nil {
		return "", err
	}
	return eligibility.ForStudent(snap, s.now()), nil
}

func (s *Service) RemainingAttempts(ctx context.Context, examID, studentID string) (int, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return 0, err
	}
	made, err := s.store.CountAttempts(ctx, examID, studentID)
	if err != nil {
		return 0, err
	}
	return eligibility.RemainingAttempts(exam.MaxAttempts, made), nil
}

// Start opens a new attempt. Preconditions: the exam is `available` for
// this student right now. The attempt number, the total-marks snapshot,
// the randomized question order and the start instant are persisted
// atomically by the store.
func (s *Service) Start(ctx context.Context, examID, studentID, viewerRole string) (Submission, error) {
	snap, err := s.snapshot(ctx, examID, studentID, viewerRole)
	if err != nil {
		return Submission{}, err
	}
	status := eligibility.ForStudent(snap, s.now())

	if status == eligibility.StatusTimeUp {
		// Lazy timeout recovery: finalize the expired attempt, then
		// re-evaluate as if the student had come back after it closed.
		if ongoing, err := s.store.GetOngoing(ctx, examID, studentID); err == nil && ongoing != nil {
			s.autoSubmit(ctx, *ongoing, snap.Exam)
		}
		snap, err = s.snapshot(ctx, examID, studentID, viewerRole)
		if err != nil {
			return Submission{}, err
		}
		status = eligibility.ForStudent(snap, s.now())
	}

	switch status {
	case eligibility.StatusAvailable:
	case eligibility.StatusUpcoming:
		return Submission{}, ErrNotAvailableYet
	case eligibility.StatusExpired:
		return Submission{}, ErrExamExpired
	case eligibility.StatusNoAccess:
		return Submission{}, ErrNoAccess
	case eligibility.StatusNoAttempts:
		return Submission{}, ErrNoAttemptsLeft
	case eligibility.StatusInProgress, eligibility.StatusTimeUp:
		return Submission{}, ErrAttemptInProgress
	default:
		return Submission{}, fmt.Errorf("unexpected exam status %q", status)
	}

	questions, err := s.catalog.ListQuestions(ctx, examID)
	if err != nil {
		return Submission{}, err
	}
	order := make([]string, len(questions))
	for i, q := range questions {
		order[i] = q.ID
	}
	s.shuffle.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	sub := Submission{
		ID:            uuid.NewString(),
		ExamID:        examID,
		StudentID:     studentID,
		TotalMarks:    snap.Exam.TotalMarks,
		StartedAt:     s.now().UTC(),
		QuestionOrder: order,
	}
	sub, err = s.store.CreateSubmission(ctx, sub)
	if err != nil {
		return Submission{}, err
	}
	s.emit(ctx, eventlog.TypeAttemptStarted, sub)
	return sub, nil
}

// SaveAnswer upserts the student's answer for one question. A nil
// choiceID clears the answer. If the timer has elapsed the write is
// rejected and the submission is auto-submitted instead.
func (s *Service) SaveAnswer(ctx context.Context, submissionID, studentID, questionID string, choiceID *string) error {
	sub, exam, err := s.loadOwned(ctx, submissionID, studentID)
	if err != nil {
		return err
	}
	if sub.IsCompleted {
		return ErrNotActive
	}
	if sub.IsTimeUp(exam.Duration(), s.now()) {
		s.autoSubmit(ctx, sub, exam)
		return ErrTimeExpired
	}

	questions, err := s.catalog.ListQuestions(ctx, sub.ExamID)
	if err != nil {
		return err
	}
	q, ok := findQuestion(questions, questionID)
	if !ok {
		return ErrInvalidQuestion
	}
	if choiceID != nil && !hasChoice(q, *choiceID) {
		return ErrInvalidChoice
	}

	return s.store.UpsertAnswer(ctx, StudentAnswer{
		SubmissionID: submissionID,
		QuestionID:   questionID,
		ChoiceID:     choiceID,
		AnsweredAt:   s.now().UTC(),
	})
}

// Submit finalizes the attempt explicitly. A second submit of the same
// submission is rejected: the row is no longer reachable as Active. If
// the timer elapsed before the student's submit arrived, the attempt is
// auto-submitted and the finalized submission is returned so the caller
// can still reach the result view.
func (s *Service) Submit(ctx context.Context, submissionID, studentID string) (Submission, error) {
	sub, exam, err := s.loadOwned(ctx, submissionID, studentID)
	if err != nil {
		return Submission{}, err
	}
	if sub.IsCompleted {
		return Submission{}, ErrNotActive
	}
	if sub.IsTimeUp(exam.Duration(), s.now()) {
		s.autoSubmit(ctx, sub, exam)
		return s.store.GetSubmission(ctx, submissionID)
	}
	return s.finalize(ctx, sub, exam, false)
}

// TimeRemaining reports whole seconds left; once it hits zero the
// submission is auto-submitted in place so the next poll sees the
// completed state.
func (s *Service) TimeRemaining(ctx context.Context, submissionID, studentID string) (int, error) {
	sub, exam, err := s.loadOwned(ctx, submissionID, studentID)
	if err != nil {
		return 0, err
	}
	remaining := sub.TimeRemaining(exam.Duration(), s.now())
	if remaining <= 0 && !sub.IsCompleted {
		s.autoSubmit(ctx, sub, exam)
	}
	return remaining, nil
}

// Questions returns the attempt's questions in the stored randomized
// order, answer keys stripped, along with the answers saved so far.
func (s *Service) Questions(ctx context.Context, submissionID, studentID string) ([]catalog.Question, map[string]*string, error) {
	sub, exam, err := s.loadOwned(ctx, submissionID, studentID)
	if err != nil {
		return nil, nil, err
	}
	if sub.IsCompleted {
		return nil, nil, ErrNotActive
	}
	if sub.IsTimeUp(exam.Duration(), s.now()) {
		s.autoSubmit(ctx, sub, exam)
		return nil, nil, ErrTimeExpired
	}
	questions, err := s.catalog.ListQuestions(ctx, sub.ExamID)
	if err != nil {
		return nil, nil, err
	}
	answers, err := s.store.Answers(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	return orderQuestions(questions, sub.QuestionOrder), answers, nil
}

// Result grades and exposes the per-question breakdown for a completed
// submission. An Active submission whose timer elapsed is auto-submitted
// first, so the result view is always reachable after timeout.
func (s *Service) Result(ctx context.Context, submissionID, studentID string) (Result, error) {
	sub, exam, err := s.loadOwned(ctx, submissionID, studentID)
	if err != nil {
		return Result{}, err
	}
	if !sub.IsCompleted {
		if !sub.IsTimeUp(exam.Duration(), s.now()) {
			return Result{}, ErrNotActive
		}
		s.autoSubmit(ctx, sub, exam)
		sub, err = s.store.GetSubmission(ctx, submissionID)
		if err != nil {
			return Result{}, err
		}
		if !sub.IsCompleted {
			// Auto-submit is best-effort; the next access retries.
			return Result{}, ErrNotActive
		}
	}

	questions, err := s.catalog.ListQuestions(ctx, sub.ExamID)
	if err != nil {
		return Result{}, err
	}
	key, err := s.catalog.GetAnswerKey(ctx, sub.ExamID)
	if err != nil {
		return Result{}, err
	}
	answers, err := s.store.Answers(ctx, submissionID)
	if err != nil {
		return Result{}, err
	}

	items := make([]ResultItem, 0, len(questions))
	for _, q := range orderQuestions(questions, sub.QuestionOrder) {
		selected := answers[q.ID]
		item := ResultItem{
			Question:       q,
			SelectedChoice: selected,
			IsCorrect:      grading.IsCorrect(key, q.ID, selected),
		}
		if ca, ok := key[q.ID]; ok {
			item.CorrectChoice = ca.ChoiceID
			item.Explanation = ca.Explanation
		}
		if item.IsCorrect {
			item.PointsEarned = q.Marks
		}
		items = append(items, item)
	}
	return Result{
		Submission: sub,
		Items:      items,
		Passed:     grading.Passed(sub.IsCompleted, sub.Percentage, exam.PassingPercentage),
	}, nil
}

// History lists the student's submissions for the exam, newest first.
func (s *Service) History(ctx context.Context, examID, studentID string) ([]Submission, error) {
	return s.store.ListByStudent(ctx, examID, studentID, false)
}

// View assembles the student-facing exam page data.
func (s *Service) View(ctx context.Context, examID, studentID, viewerRole string) (ExamView, error) {
	snap, err := s.snapshot(ctx, examID, studentID, viewerRole)
	if err != nil {
		return ExamView{}, err
	}
	now := s.now()
	status := eligibility.ForStudent(snap, now)
	made, err := s.store.CountAttempts(ctx, examID, studentID)
	if err != nil {
		return ExamView{}, err
	}
	view := ExamView{
		Exam:              snap.Exam,
		Status:            string(status),
		AttemptsMade:      made,
		RemainingAttempts: eligibility.RemainingAttempts(snap.Exam.MaxAttempts, made),
	}
	if ongoing, err := s.store.GetOngoing(ctx, examID, studentID); err == nil && ongoing != nil {
		if !ongoing.IsTimeUp(snap.Exam.Duration(), now) {
			view.Ongoing = ongoing
			view.TimeRemaining = ongoing.TimeRemaining(snap.Exam.Duration(), now)
		}
	}
	completed, err := s.store.ListByStudent(ctx, examID, studentID, true)
	if err != nil {
		return ExamView{}, err
	}
	view.Completed = completed
	return view, nil
}

func (s *Service) snapshot(ctx context.Context, examID, studentID, viewerRole string) (eligibility.Snapshot, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return eligibility.Snapshot{}, err
	}
	made, err := s.store.CountAttempts(ctx, examID, studentID)
	if err != nil {
		return eligibility.Snapshot{}, err
	}
	snap := eligibility.Snapshot{
		Exam:         exam,
		ViewerRole:   viewerRole,
		IsAllowed:    contains(exam.AllowedStudents, studentID),
		AttemptsMade: made,
	}
	ongoing, err := s.store.GetOngoing(ctx, examID, studentID)
	if err != nil {
		return eligibility.Snapshot{}, err
	}
	if ongoing != nil {
		started := ongoing.StartedAt
		snap.OngoingStartedAt = &started
	}
	return snap, nil
}

func (s *Service) loadOwned(ctx context.Context, submissionID, studentID string) (Submission, catalog.Exam, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, catalog.Exam{}, err
	}
	if sub.StudentID != studentID {
		return Submission{}, catalog.Exam{}, ErrForbidden
	}
	exam, err := s.catalog.GetExam(ctx, sub.ExamID)
	if err != nil {
		return Submission{}, catalog.Exam{}, err
	}
	return sub, exam, nil
}

// finalize is the single Active→Completed transition. Total marks are
// recomputed from the live question set at submission time, not the
// value snapshotted at start: questions added or removed mid-attempt
// change the grading basis. That is documented behavior.
func (s *Service) finalize(ctx context.Context, sub Submission, exam catalog.Exam, auto bool) (Submission, error) {
	now := s.now().UTC()

	questions, err := s.catalog.ListQuestions(ctx, sub.ExamID)
	if err != nil {
		return Submission{}, err
	}
	key, err := s.catalog.GetAnswerKey(ctx, sub.ExamID)
	if err != nil {
		return Submission{}, err
	}
	answers, err := s.store.Answers(ctx, sub.ID)
	if err != nil {
		return Submission{}, err
	}

	totalMarks := catalog.TotalMarks(questions)
	score := grading.Score(questions, key, answers)
	percentage := grading.Percentage(score, totalMarks)

	timeTaken := int64(now.Sub(sub.StartedAt) / time.Second)
	if auto {
		// Timed-out attempts are recorded as having used the full
		// allotment, not the wall time until someone noticed.
		timeTaken = int64(exam.Duration() / time.Second)
	}

	f := Finalization{
		SubmissionID:  sub.ID,
		SubmittedAt:   now,
		TimeTakenSecs: timeTaken,
		Score:         score,
		TotalMarks:    totalMarks,
		Percentage:    percentage,
		AutoSubmitted: auto,
	}
	if err := s.store.Finalize(ctx, f); err != nil {
		return Submission{}, err
	}

	sub.Score = score
	sub.TotalMarks = totalMarks
	sub.Percentage = percentage
	sub.SubmittedAt = &now
	sub.IsCompleted = true
	sub.TimeTakenSecs = timeTaken
	sub.AutoSubmitted = auto

	typ := eventlog.TypeAttemptSubmitted
	if auto {
		typ = eventlog.TypeAttemptAutoSubmitted
	}
	s.emit(ctx, typ, sub)
	return sub, nil
}

// autoSubmit swallows failures: timeout finalization must never block
// the student from reaching a result view, and the next access retries.
func (s *Service) autoSubmit(ctx context.Context, sub Submission, exam catalog.Exam) {
	_, _ = s.finalize(ctx, sub, exam, true)
}

func (s *Service) emit(ctx context.Context, typ string, sub Submission) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"exam_id":        sub.ExamID,
		"student_id":     sub.StudentID,
		"attempt_number": sub.AttemptNumber,
		"score":          sub.Score,
		"total_marks":    sub.TotalMarks,
	})
	if err != nil {
		return
	}
	_ = s.events.Append(ctx, typ, sub.ID, string(data))
}

func findQuestion(questions []catalog.Question, id string) (catalog.Question, bool) {
	for _, q := range questions {
		if q.ID == id {
			return q, true
		}
	}
	return catalog.Question{}, false
}

func hasChoice(q catalog.Question, choiceID string) bool {
	for _, c := range q.Choices {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}

// orderQuestions arranges the live question set by the stored
// permutation; questions added after the attempt started go last in
// their authoring order, deleted ones drop out.
func orderQuestions(questions []catalog.Question, order []string) []catalog.Question {
	byID := make(map[string]catalog.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	out := make([]catalog.Question, 0, len(questions))
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if q, ok := byID[id]; ok {
			out = append(out, q)
			seen[id] = true
		}
	}
	for _, q := range questions {
		if !seen[q.ID] {
			out = append(out, q)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
