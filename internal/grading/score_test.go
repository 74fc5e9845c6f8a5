package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/vigilearn/examguard-backend/internal/model"
)

func makeQuestions(correct ...string) []model.Question {
	qs := make([]model.Question, len(correct))
	for i, c := range correct {
		qs[i] = model.Question{ID: uuid.New(), CorrectOption: c, Position: i}
	}
	return qs
}

func TestScore(t *testing.T) {
	qs := makeQuestions("Paris", "4", "H2O", "Go")

	tests := []struct {
		name        string
		answered    int // answer the first N questions correctly
		wantScore   int
		wantCorrect int
		wantPassed  bool
	}{
		{"all correct", 4, 100, 4, true},
		{"three of four", 3, 75, 3, true},
		{"half", 2, 50, 2, true}, // boundary: exactly the threshold passes
		{"one of four", 1, 25, 1, false},
		{"none correct", 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var answers []Answer
			for i := 0; i < tt.answered; i++ {
				answers = append(answers, Answer{QuestionID: qs[i].ID, SelectedOption: qs[i].CorrectOption})
			}
			// Answer the rest incorrectly.
			for i := tt.answered; i < len(qs); i++ {
				answers = append(answers, Answer{QuestionID: qs[i].ID, SelectedOption: "wrong"})
			}

			res := Score(answers, qs)
			if res.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", res.Score, tt.wantScore)
			}
			if res.CorrectCount != tt.wantCorrect {
				t.Errorf("CorrectCount = %d, want %d", res.CorrectCount, tt.wantCorrect)
			}
			if res.TotalQuestions != 4 {
				t.Errorf("TotalQuestions = %d, want 4", res.TotalQuestions)
			}
			if res.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v", res.Passed, tt.wantPassed)
			}
		})
	}
}

func TestScoreRounding(t *testing.T) {
	qs := makeQuestions("a", "b", "c")

	// 1/3 rounds 33.33 to 33; 2/3 rounds 66.67 to 67.
	res := Score([]Answer{{QuestionID: qs[0].ID, SelectedOption: "a"}}, qs)
	if res.Score != 33 {
		t.Errorf("1/3 Score = %d, want 33", res.Score)
	}

	res = Score([]Answer{
		{QuestionID: qs[0].ID, SelectedOption: "a"},
		{QuestionID: qs[1].ID, SelectedOption: "b"},
	}, qs)
	if res.Score != 67 {
		t.Errorf("2/3 Score = %d, want 67", res.Score)
	}
}

func TestScoreEmptyExam(t *testing.T) {
	res := Score([]Answer{{QuestionID: uuid.New(), SelectedOption: "a"}}, nil)
	if res.Score != 0 || res.TotalQuestions != 0 || res.CorrectCount != 0 {
		t.Errorf("empty exam: got %+v, want zero result", res)
	}
}

func TestScoreUnansweredAndUnknownIDs(t *testing.T) {
	qs := makeQuestions("yes", "no")

	// One unanswered question, one answer to a question that is not on the exam.
	answers := []Answer{
		{QuestionID: qs[0].ID, SelectedOption: "yes"},
		{QuestionID: uuid.New(), SelectedOption: "no"},
	}

	res := Score(answers, qs)
	if res.CorrectCount != 1 {
		t.Errorf("CorrectCount = %d, want 1", res.CorrectCount)
	}
	if res.Score != 50 {
		t.Errorf("Score = %d, want 50", res.Score)
	}
}

func TestScoreComparesByValueNotPosition(t *testing.T) {
	// Two questions share the same option text at different positions; only
	// value equality with the correct option matters.
	q := model.Question{ID: uuid.New(), CorrectOption: "B", IncorrectOptions: []string{"A", "C"}}
	res := Score([]Answer{{QuestionID: q.ID, SelectedOption: "B"}}, []model.Question{q})
	if res.Score != 100 {
		t.Errorf("Score = %d, want 100", res.Score)
	}

	res = Score([]Answer{{QuestionID: q.ID, SelectedOption: "b"}}, []model.Question{q})
	if res.Score != 0 {
		t.Errorf("case-differing option graded correct, Score = %d, want 0", res.Score)
	}
}

func TestScoreInRange(t *testing.T) {
	qs := makeQuestions("a", "b", "c", "d", "e", "f", "g")
	for n := 0; n <= len(qs); n++ {
		var answers []Answer
		for i := 0; i < n; i++ {
			answers = append(answers, Answer{QuestionID: qs[i].ID, SelectedOption: qs[i].CorrectOption})
		}
		res := Score(answers, qs)
		if res.Score < 0 || res.Score > 100 {
			t.Errorf("n=%d: Score %d out of [0,100]", n, res.Score)
		}
	}
}
