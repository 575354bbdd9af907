// Package analytics derives cross-attempt statistics for reporting. It
// is read-only and computed on demand from completed submissions; every
// divide-by-zero case yields 0 rather than an error.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/grading"
)

// CompletedAttempt is the slice of a finished submission the
// aggregator needs.
type CompletedAttempt struct {
	ID            string
	StudentID     string
	Percentage    float64
	TimeTakenSecs int64
}

// AnswerRow is one recorded answer from a completed submission.
type AnswerRow struct {
	SubmissionID string
	QuestionID   string
	ChoiceID     *string
}

// QuestionStat ranks one question by how often it was answered
// correctly across completed attempts.
type QuestionStat struct {
	QuestionID   string  `json:"question_id"`
	Text         string  `json:"text"`
	Order        int     `json:"order"`
	Marks        int     `json:"marks"`
	CorrectCount int     `json:"correct_count"`
	Attempts     int     `json:"attempts"`
	CorrectRate  float64 `json:"correct_rate"` // 0..100
}

// StudentProgress is one row of the per-student completion table: the
// student's standing on the exam regardless of how many attempts they
// have made.
type StudentProgress struct {
	StudentID      string  `json:"student_id"`
	Status         string  `json:"status"` // completed | in_progress | not_started
	AttemptsMade   int     `json:"attempts_made"`
	BestPercentage float64 `json:"best_percentage"`
}

const (
	ProgressCompleted  = "completed"
	ProgressInProgress = "in_progress"
	ProgressNotStarted = "not_started"
)

type ExamReport struct {
	ExamID            string  `json:"exam_id"`
	TotalAttempts     int     `json:"total_attempts"`
	StudentsTaken     int     `json:"students_taken"`
	CompletedCount    int     `json:"completed_count"`
	InProgressCount   int     `json:"in_progress_count"`
	NotStartedCount   int     `json:"not_started_count"`
	PassRate          float64 `json:"pass_rate"`
	AveragePercentage float64 `json:"average_percentage"`
	TimeEfficiency    float64 `json:"time_efficiency"`
	// Students is the completion table over the eligible set, completed
	// rows first.
	Students []StudentProgress `json:"students"`
	// Difficulty is ascending by correct rate, so the hardest questions
	// come first.
	Difficulty []QuestionStat `json:"difficulty"`
}

// PassRate is passed/total×100 over completed attempts.
func PassRate(attempts []CompletedAttempt, passingPercentage int) float64 {
	if len(attempts) == 0 {
		return 0
	}
	passed := 0
	for _, a := range attempts {
		if grading.Passed(true, a.Percentage, passingPercentage) {
			passed++
		}
	}
	return round2(float64(passed) / float64(len(attempts)) * 100)
}

// AveragePercentage over completed attempts, 0 when there are none.
func AveragePercentage(attempts []CompletedAttempt) float64 {
	if len(attempts) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range attempts {
		sum += a.Percentage
	}
	return round2(sum / float64(len(attempts)))
}

// TimeEfficiency is the average actual time taken over the allotted
// duration, as a percentage.
func TimeEfficiency(attempts []CompletedAttempt, allotted time.Duration) float64 {
	if len(attempts) == 0 || allotted <= 0 {
		return 0
	}
	sum := 0.0
	for _, a := range attempts {
		sum += float64(a.TimeTakenSecs)
	}
	avg := sum / float64(len(attempts))
	return round2(avg / allotted.Seconds() * 100)
}

// Difficulty grades every completed attempt's answer per question and
// sorts ascending by correct rate: hardest first. An attempt that never
// answered a question counts as incorrect for it.
func Difficulty(questions []catalog.Question, key grading.Key, attempts []CompletedAttempt, rows []AnswerRow) []QuestionStat {
	answers := make(map[string]map[string]*string, len(attempts)) // submission -> question -> choice
	for _, r := range rows {
		m, ok := answers[r.SubmissionID]
		if !ok {
			m = map[string]*string{}
			answers[r.SubmissionID] = m
		}
		m[r.QuestionID] = r.ChoiceID
	}

	stats := make([]QuestionStat, 0, len(questions))
	for _, q := range questions {
		st := QuestionStat{
			QuestionID: q.ID,
			Text:       q.Text,
			Order:      q.Order,
			Marks:      q.Marks,
			Attempts:   len(attempts),
		}
		for _, a := range attempts {
			if grading.IsCorrect(key, q.ID, answers[a.ID][q.ID]) {
				st.CorrectCount++
			}
		}
		if st.Attempts > 0 {
			st.CorrectRate = round2(float64(st.CorrectCount) / float64(st.Attempts) * 100)
		}
		stats = append(stats, st)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].CorrectRate != stats[j].CorrectRate {
			return stats[i].CorrectRate < stats[j].CorrectRate
		}
		return stats[i].Order < stats[j].Order
	})
	return stats
}

// Completion builds the per-student table over the eligible set. A
// student with any completed attempt is completed; one with only an
// unfinished submission is in progress; the rest have not started.
// Completed rows sort first, then in progress, then by student ID.
func Completion(eligible []string, attempts []CompletedAttempt, ongoing map[string]bool) []StudentProgress {
	byStudent := map[string]*StudentProgress{}
	for _, a := range attempts {
		p, ok := byStudent[a.StudentID]
		if !ok {
			p = &StudentProgress{StudentID: a.StudentID, Status: ProgressCompleted}
			byStudent[a.StudentID] = p
		}
		p.AttemptsMade++
		if a.Percentage > p.BestPercentage {
			p.BestPercentage = a.Percentage
		}
	}

	rows := make([]StudentProgress, 0, len(eligible))
	for _, sid := range eligible {
		if p, ok := byStudent[sid]; ok {
			row := *p
			if ongoing[sid] {
				row.AttemptsMade++
			}
			rows = append(rows, row)
			continue
		}
		row := StudentProgress{StudentID: sid, Status: ProgressNotStarted}
		if ongoing[sid] {
			row.Status = ProgressInProgress
			row.AttemptsMade = 1
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := progressRank(rows[i].Status), progressRank(rows[j].Status)
		if ri != rj {
			return ri < rj
		}
		return rows[i].StudentID < rows[j].StudentID
	})
	return rows
}

func progressRank(status string) int {
	switch status {
	case ProgressCompleted:
		return 0
	case ProgressInProgress:
		return 1
	default:
		return 2
	}
}

// CountByStatus tallies the completion table.
func CountByStatus(rows []StudentProgress) (completed, inProgress, notStarted int) {
	for _, r := range rows {
		switch r.Status {
		case ProgressCompleted:
			completed++
		case ProgressInProgress:
			inProgress++
		default:
			notStarted++
		}
	}
	return completed, inProgress, notStarted
}

// DistinctStudents counts how many students completed at least once.
func DistinctStudents(attempts []CompletedAttempt) int {
	seen := map[string]bool{}
	for _, a := range attempts {
		seen[a.StudentID] = true
	}
	return len(seen)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
