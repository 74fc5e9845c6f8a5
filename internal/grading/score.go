// Package grading implements the pure scoring function for exam attempts.
// It has no side effects and no clock or storage dependencies, so a disputed
// grade can be recomputed from the stored answers and question set at any time.
package grading

import (
	"math"

	"github.com/google/uuid"
	"github.com/vigilearn/examguard-backend/internal/model"
)

// PassThreshold is the minimum integer score (0-100) that counts as a pass.
// A score exactly at the threshold passes.
const PassThreshold = 50

// Answer is one submitted answer, keyed by question ID.
type Answer struct {
	QuestionID     uuid.UUID
	SelectedOption string
}

// Result is the outcome of grading one attempt.
type Result struct {
	Score          int  `json:"score"`
	CorrectCount   int  `json:"correct_count"`
	TotalQuestions int  `json:"total_questions"`
	Passed         bool `json:"passed"`
}

// Score grades a set of answers against an exam's question list.
//
// A question counts as correct only when the selected option equals the
// stored correct option by value. Unanswered questions and answers referencing
// unknown question IDs count as incorrect. The score is
// round(100 * correct / total); an exam with zero questions scores 0.
func Score(answers []Answer, questions []model.Question) Result {
	total := len(questions)
	if total == 0 {
		return Result{Score: 0, CorrectCount: 0, TotalQuestions: 0, Passed: false}
	}

	selected := make(map[uuid.UUID]string, len(answers))
	for _, a := range answers {
		selected[a.QuestionID] = a.SelectedOption
	}

	correct := 0
	for _, q := range questions {
		if opt, ok := selected[q.ID]; ok && opt == q.CorrectOption {
			correct++
		}
	}

	score := int(math.Round(float64(correct) / float64(total) * 100))

	return Result{
		Score:          score,
		CorrectCount:   correct,
		TotalQuestions: total,
		Passed:         score >= PassThreshold,
	}
}

// AnswersFromSubmissions converts submitted answer payloads into grading input.
func AnswersFromSubmissions(subs []model.AnswerSubmission) []Answer {
	answers := make([]Answer, 0, len(subs))
	for _, s := range subs {
		answers = append(answers, Answer{QuestionID: s.QuestionID, SelectedOption: s.SelectedOption})
	}
	return answers
}
