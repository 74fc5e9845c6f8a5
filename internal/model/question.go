package model

import (
	"math/rand"

	"github.com/google/uuid"
)

// Question represents a single multiple-choice exam question.
//
// The correct option is stored by value, not by index into an options list,
// so reordering options can never change which answer grades as correct.
type Question struct {
	ID               uuid.UUID `json:"id"`
	ExamID           uuid.UUID `json:"exam_id"`
	Prompt           string    `json:"prompt"`
	CorrectOption    string    `json:"correct_option,omitempty"`
	IncorrectOptions []string  `json:"incorrect_options,omitempty"`
	Position         int       `json:"position"`
}

// QuestionForStudent is a question with the answer key stripped, sent to
// students taking the exam. Options holds the correct and incorrect values
// shuffled together so position never reveals the key.
type QuestionForStudent struct {
	ID       uuid.UUID `json:"id"`
	Prompt   string    `json:"prompt"`
	Options  []string  `json:"options"`
	Position int       `json:"position"`
}

// ForStudent strips the answer key from a question.
func (q *Question) ForStudent() QuestionForStudent {
	options := make([]string, 0, len(q.IncorrectOptions)+1)
	options = append(options, q.CorrectOption)
	options = append(options, q.IncorrectOptions...)
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return QuestionForStudent{
		ID:       q.ID,
		Prompt:   q.Prompt,
		Options:  options,
		Position: q.Position,
	}
}

// AddQuestionRequest is the payload for one question in a replace request.
type AddQuestionRequest struct {
	Prompt           string   `json:"prompt" binding:"required,min=1,max=2000"`
	CorrectOption    string   `json:"correct_option" binding:"required,min=1,max=500"`
	IncorrectOptions []string `json:"incorrect_options" binding:"required,min=1,max=10,dive,min=1,max=500"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}
