package catalog

import (
	"fmt"
	"strings"
)

var choiceLabels = []string{"A", "B", "C", "D"}

// ValidateExam checks an exam definition before create/update.
// totalStudents is the number of registered students, needed to reject
// all_students exams in an empty system.
func ValidateExam(e Exam, totalStudents int) error {
	if strings.TrimSpace(e.Title) == "" {
		return ValidationError("title is required")
	}
	if !e.StartAt.Before(e.EndAt) {
		return ValidationError("start date and time must be before end date and time")
	}
	if e.DurationMinutes < 1 {
		return ValidationError("duration must be at least 1 minute")
	}
	if e.MaxAttempts < 1 {
		return ValidationError("max attempts must be at least 1")
	}
	if e.PassingPercentage < 1 || e.PassingPercentage > 100 {
		return ValidationError("passing percentage must be between 1 and 100")
	}
	switch e.AccessType {
	case AccessAllStudents:
		if totalStudents == 0 {
			return ValidationError("cannot create an exam for all students: no students are registered")
		}
	case AccessSpecificStudents:
		if len(e.AllowedStudents) == 0 {
			return ValidationError("exam has no participants: select at least one student or open it to all students")
		}
	default:
		return ValidationError(fmt.Sprintf("unknown access type %q", e.AccessType))
	}
	return nil
}

// ValidateQuestion checks authoring input for a new question.
func ValidateQuestion(in NewQuestion) error {
	if strings.TrimSpace(in.Text) == "" {
		return ValidationError("question text is required")
	}
	if in.Marks < 1 {
		return ValidationError("marks must be a positive integer")
	}
	if len(in.ChoiceTexts) != len(choiceLabels) {
		return ValidationError("all four choices (A, B, C, D) are required")
	}
	for _, c := range in.ChoiceTexts {
		if strings.TrimSpace(c) == "" {
			return ValidationError("all four choices (A, B, C, D) are required")
		}
	}
	if !validLabel(in.CorrectLabel) {
		return ValidationError("correct answer must be one of A, B, C or D")
	}
	return nil
}

func validLabel(l string) bool {
	for _, label := range choiceLabels {
		if l == label {
			return true
		}
	}
	return false
}
