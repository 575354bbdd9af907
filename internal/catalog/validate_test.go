package catalog_test

import (
	"testing"
	"time"

	"github.com/classmark/examhub/internal/catalog"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func validExam() catalog.Exam {
	return catalog.Exam{
		Title:             "Midterm",
		StartAt:           now,
		EndAt:             now.Add(2 * time.Hour),
		DurationMinutes:   60,
		MaxAttempts:       1,
		PassingPercentage: 40,
		AccessType:        catalog.AccessAllStudents,
	}
}

func TestValidateExam(t *testing.T) {
	tests := []struct {
		name     string
		mut      func(*catalog.Exam)
		students int
		wantErr  bool
	}{
		{"valid", func(e *catalog.Exam) {}, 10, false},
		{"blank title", func(e *catalog.Exam) { e.Title = "  " }, 10, true},
		{"start after end", func(e *catalog.Exam) { e.EndAt = e.StartAt.Add(-time.Minute) }, 10, true},
		{"start equals end", func(e *catalog.Exam) { e.EndAt = e.StartAt }, 10, true},
		{"zero duration", func(e *catalog.Exam) { e.DurationMinutes = 0 }, 10, true},
		{"zero attempts", func(e *catalog.Exam) { e.MaxAttempts = 0 }, 10, true},
		{"passing too low", func(e *catalog.Exam) { e.PassingPercentage = 0 }, 10, true},
		{"passing too high", func(e *catalog.Exam) { e.PassingPercentage = 101 }, 10, true},
		{"all students but none registered", func(e *catalog.Exam) {}, 0, true},
		{"specific with empty allow-list", func(e *catalog.Exam) {
			e.AccessType = catalog.AccessSpecificStudents
		}, 10, true},
		{"specific with allow-list", func(e *catalog.Exam) {
			e.AccessType = catalog.AccessSpecificStudents
			e.AllowedStudents = []string{"s1"}
		}, 10, false},
		{"unknown access type", func(e *catalog.Exam) { e.AccessType = "invite_only" }, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validExam()
			tt.mut(&e)
			err := catalog.ValidateExam(e, tt.students)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateExam error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !catalog.IsValidation(err) {
				t.Fatalf("error %v is not a ValidationError", err)
			}
		})
	}
}

func TestValidateQuestion(t *testing.T) {
	valid := catalog.NewQuestion{
		Text:         "2 + 2 = ?",
		Marks:        5,
		ChoiceTexts:  []string{"3", "4", "5", "6"},
		CorrectLabel: "B",
	}
	if err := catalog.ValidateQuestion(valid); err != nil {
		t.Fatalf("valid question rejected: %v", err)
	}

	tests := []struct {
		name string
		mut  func(*catalog.NewQuestion)
	}{
		{"blank text", func(q *catalog.NewQuestion) { q.Text = "" }},
		{"zero marks", func(q *catalog.NewQuestion) { q.Marks = 0 }},
		{"three choices", func(q *catalog.NewQuestion) { q.ChoiceTexts = q.ChoiceTexts[:3] }},
		{"blank choice", func(q *catalog.NewQuestion) { q.ChoiceTexts = []string{"3", "", "5", "6"} }},
		{"bad label", func(q *catalog.NewQuestion) { q.CorrectLabel = "E" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mut(&q)
			if err := catalog.ValidateQuestion(q); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSortByPriority(t *testing.T) {
	open := validExam()
	open.ID = "open"
	open.StartAt = now.Add(-time.Hour)
	open.EndAt = now.Add(time.Hour)
	open.IsActive = true

	upcoming := validExam()
	upcoming.ID = "upcoming"
	upcoming.StartAt = now.Add(time.Hour)
	upcoming.EndAt = now.Add(2 * time.Hour)
	upcoming.IsActive = true

	expired := validExam()
	expired.ID = "expired"
	expired.StartAt = now.Add(-3 * time.Hour)
	expired.EndAt = now.Add(-time.Hour)
	expired.IsActive = true

	disabled := validExam()
	disabled.ID = "disabled"
	disabled.StartAt = now.Add(time.Hour)
	disabled.EndAt = now.Add(2 * time.Hour)
	disabled.IsActive = false

	exams := []catalog.Exam{disabled, expired, upcoming, open}
	catalog.SortByPriority(exams, now)

	want := []string{"open", "upcoming", "expired", "disabled"}
	for i, id := range want {
		if exams[i].ID != id {
			t.Fatalf("position %d: got %q, want %q", i, exams[i].ID, id)
		}
	}
}
