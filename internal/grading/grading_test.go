package grading_test

import (
	"testing"

	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/grading"
)

func strptr(s string) *string { return &s }

func twoQuestions() ([]catalog.Question, grading.Key) {
	questions := []catalog.Question{
		{ID: "q1", Marks: 5},
		{ID: "q2", Marks: 5},
	}
	key := grading.Key{
		"q1": {QuestionID: "q1", ChoiceID: "q1-a"},
		"q2": {QuestionID: "q2", ChoiceID: "q2-c"},
	}
	return questions, key
}

func TestScoreAndPercentage(t *testing.T) {
	questions, key := twoQuestions()

	// One right, one wrong: 5/10 = 50.00.
	answers := map[string]*string{
		"q1": strptr("q1-a"),
		"q2": strptr("q2-a"),
	}
	if got := grading.Score(questions, key, answers); got != 5 {
		t.Fatalf("Score = %d, want 5", got)
	}
	if got := grading.Percentage(5, 10); got != 50.00 {
		t.Fatalf("Percentage = %v, want 50.00", got)
	}
}

func TestUnansweredCountsAsIncorrect(t *testing.T) {
	questions, key := twoQuestions()
	answers := map[string]*string{
		"q1": strptr("q1-a"),
		"q2": nil, // cleared answer
		// q3 would be absent entirely; both forms score zero
	}
	if got := grading.Score(questions, key, answers); got != 5 {
		t.Fatalf("Score = %d, want 5", got)
	}
	if grading.IsCorrect(key, "q2", nil) {
		t.Fatal("nil selection must be incorrect")
	}
	if grading.IsCorrect(key, "missing", strptr("x")) {
		t.Fatal("question missing from key must be incorrect")
	}
}

func TestPercentageRounding(t *testing.T) {
	tests := []struct {
		score, total int
		want         float64
	}{
		{1, 3, 33.33},
		{2, 3, 66.67},
		{10, 10, 100},
		{0, 10, 0},
		{5, 0, 0}, // empty exam grades to zero, not a division error
	}
	for _, tt := range tests {
		if got := grading.Percentage(tt.score, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.score, tt.total, got, tt.want)
		}
	}
}

func TestPassed(t *testing.T) {
	if !grading.Passed(true, 70, 70) {
		t.Fatal("exactly at threshold should pass")
	}
	if grading.Passed(true, 69.99, 70) {
		t.Fatal("below threshold should fail")
	}
	if grading.Passed(false, 100, 70) {
		t.Fatal("incomplete attempt can never pass")
	}
}
