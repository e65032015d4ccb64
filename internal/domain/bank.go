package domain

import (
	"fmt"
	"sort"
)

// QuestionBank is an ordered, immutable set of questions for one quiz type.
// Slice order is presentation order.
type QuestionBank struct {
	quizType  string
	questions []Question
	index     map[string]int
	maxScore  int
}

// NewQuestionBank validates and copies questions into a bank.
func NewQuestionBank(quizType string, questions []Question) (*QuestionBank, error) {
	if quizType == "" {
		return nil, fmt.Errorf("%w: quiz type is required", ErrInvalidInput)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: quiz %q has no questions", ErrInvalidInput, quizType)
	}

	bank := &QuestionBank{
		quizType:  quizType,
		questions: make([]Question, len(questions)),
		index:     make(map[string]int, len(questions)),
	}
	for i, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("%w: question %d has no id", ErrInvalidInput, i)
		}
		if _, dup := bank.index[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %q", ErrInvalidInput, q.ID)
		}
		if len(q.Choices) == 0 {
			return nil, fmt.Errorf("%w: question %q has no choices", ErrInvalidInput, q.ID)
		}

		best := 0
		seen := make(map[string]struct{}, len(q.Choices))
		choices := make([]Choice, len(q.Choices))
		for j, c := range q.Choices {
			if c.ID == "" {
				return nil, fmt.Errorf("%w: question %q choice %d has no id", ErrInvalidInput, q.ID, j)
			}
			if _, dup := seen[c.ID]; dup {
				return nil, fmt.Errorf("%w: question %q has duplicate choice %q", ErrInvalidInput, q.ID, c.ID)
			}
			if c.Points < 0 {
				return nil, fmt.Errorf("%w: question %q choice %q has negative points", ErrInvalidInput, q.ID, c.ID)
			}
			seen[c.ID] = struct{}{}
			choices[j] = c
			if c.Points > best {
				best = c.Points
			}
		}

		q.Choices = choices
		bank.questions[i] = q
		bank.index[q.ID] = i
		bank.maxScore += best
	}
	return bank, nil
}

// QuizType returns the quiz type the bank serves.
func (b *QuestionBank) QuizType() string { return b.quizType }

// Len returns the number of questions.
func (b *QuestionBank) Len() int { return len(b.questions) }

// MaxScore is the best achievable total: each question's highest choice points summed.
func (b *QuestionBank) MaxScore() int { return b.maxScore }

// Question returns a copy of the question at index i.
func (b *QuestionBank) Question(i int) (Question, bool) {
	if i < 0 || i >= len(b.questions) {
		return Question{}, false
	}
	return cloneQuestion(b.questions[i]), true
}

// QuestionByID returns a copy of the question with the given id.
func (b *QuestionBank) QuestionByID(id string) (Question, bool) {
	i, ok := b.index[id]
	if !ok {
		return Question{}, false
	}
	return cloneQuestion(b.questions[i]), true
}

// Questions returns a copy of every question in order.
func (b *QuestionBank) Questions() []Question {
	out := make([]Question, len(b.questions))
	for i, q := range b.questions {
		out[i] = cloneQuestion(q)
	}
	return out
}

// PublicQuestion returns the client-safe view of question i.
func (b *QuestionBank) PublicQuestion(i int) (QuestionView, bool) {
	if i < 0 || i >= len(b.questions) {
		return QuestionView{}, false
	}
	return b.questions[i].View(), true
}

// Choice looks up a choice by id.
func (q Question) Choice(id string) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// View strips correctness, points, and feedback.
func (q Question) View() QuestionView {
	view := QuestionView{
		ID:      q.ID,
		Title:   q.Title,
		Prompt:  q.Prompt,
		Choices: make([]ChoiceView, len(q.Choices)),
	}
	for i, c := range q.Choices {
		view.Choices[i] = ChoiceView{ID: c.ID, Text: c.Text}
	}
	return view
}

func cloneQuestion(q Question) Question {
	choices := make([]Choice, len(q.Choices))
	copy(choices, q.Choices)
	q.Choices = choices
	return q
}

// Catalog holds the question banks loaded at startup, keyed by quiz type.
type Catalog struct {
	defaultType string
	banks       map[string]*QuestionBank
}

// NewCatalog builds a catalog. The default quiz type must be among the banks.
func NewCatalog(defaultType string, banks ...*QuestionBank) (*Catalog, error) {
	c := &Catalog{defaultType: defaultType, banks: make(map[string]*QuestionBank, len(banks))}
	for _, b := range banks {
		if b == nil {
			continue
		}
		if _, dup := c.banks[b.quizType]; dup {
			return nil, fmt.Errorf("%w: quiz type %q registered twice", ErrInvalidInput, b.quizType)
		}
		c.banks[b.quizType] = b
	}
	if _, ok := c.banks[defaultType]; !ok {
		return nil, fmt.Errorf("%w: default quiz type %q", ErrQuizNotFound, defaultType)
	}
	return c, nil
}

// DefaultType returns the quiz type used when callers omit one.
func (c *Catalog) DefaultType() string { return c.defaultType }

// Bank resolves a quiz type, falling back to the default when empty.
func (c *Catalog) Bank(quizType string) (*QuestionBank, error) {
	if quizType == "" {
		quizType = c.defaultType
	}
	bank, ok := c.banks[quizType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrQuizNotFound, quizType)
	}
	return bank, nil
}

// Types returns the registered quiz types in sorted order.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.banks))
	for t := range c.banks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
