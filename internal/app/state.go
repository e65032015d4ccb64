package app

import (
	"fmt"
	"time"

	"smong-quiz-service/internal/domain"
)

// transition describes an accepted answer.
type transition struct {
	index    int
	question domain.Question
	choice   domain.Choice
}

// applyAnswer is the InProgress -> InProgress|Completed transition. It either
// mutates session fully or leaves it untouched and returns an error.
func applyAnswer(session *domain.QuizSession, bank *domain.QuestionBank, submission domain.AnswerSubmission, now time.Time) (transition, error) {
	if session.Completed {
		return transition{}, domain.ErrAlreadyCompleted
	}
	if session.CurrentQuestion >= bank.Len() {
		return transition{}, domain.ErrAlreadyCompleted
	}
	if session.CurrentQuestion < 0 || len(session.Answers) != session.CurrentQuestion || session.AnswerSum() != session.Score {
		return transition{}, fmt.Errorf("%w: session %s", domain.ErrSessionCorrupt, session.ID)
	}

	question, _ := bank.Question(session.CurrentQuestion)
	if submission.QuestionID != "" && submission.QuestionID != question.ID {
		return transition{}, fmt.Errorf("%w: question %q is not current (expected %q)", domain.ErrInvalidChoice, submission.QuestionID, question.ID)
	}
	choice, ok := question.Choice(submission.ChoiceID)
	if !ok {
		return transition{}, fmt.Errorf("%w: %q", domain.ErrInvalidChoice, submission.ChoiceID)
	}

	step := transition{index: session.CurrentQuestion, question: question, choice: choice}
	session.Answers = append(session.Answers, domain.Answer{
		QuestionID: question.ID,
		ChoiceID:   choice.ID,
		Correct:    choice.Correct,
		Points:     choice.Points,
		AnsweredAt: now,
	})
	session.Score += choice.Points
	session.CurrentQuestion++
	if session.CurrentQuestion == bank.Len() {
		completedAt := now
		session.Completed = true
		session.CompletedAt = &completedAt
	}
	return step, nil
}
