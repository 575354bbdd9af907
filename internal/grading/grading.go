// Package grading computes scores for completed exam attempts. All
// functions are pure; the attempt engine loads the question set, the
// answer key and the recorded answers, then asks this package for the
// verdict.
package grading

import (
	"math"

	"github.com/classmark/examhub/internal/catalog"
)

// Key is an exam's answer key, indexed by question ID.
type Key map[string]catalog.CorrectAnswer

// IsCorrect reports whether the selected choice matches the key entry
// for the question. A missing key entry or a missing selection counts
// as incorrect, never an error.
func IsCorrect(key Key, questionID string, selected *string) bool {
	if selected == nil {
		return false
	}
	ca, ok := key[questionID]
	if !ok {
		return false
	}
	return ca.ChoiceID == *selected
}

// Score sums the marks of questions whose recorded answer is correct.
// answers maps question ID to the selected choice ID (nil = unanswered).
func Score(questions []catalog.Question, key Key, answers map[string]*string) int {
	score := 0
	for _, q := range questions {
		if IsCorrect(key, q.ID, answers[q.ID]) {
			score += q.Marks
		}
	}
	return score
}

// Percentage is score/total*100 rounded to two decimals, or 0 when the
// total is zero.
func Percentage(score, totalMarks int) float64 {
	if totalMarks <= 0 {
		return 0
	}
	return math.Round(float64(score)/float64(totalMarks)*100*100) / 100
}

// Passed requires a completed attempt at or above the passing threshold.
func Passed(completed bool, percentage float64, passingPercentage int) bool {
	return completed && percentage >= float64(passingPercentage)
}
