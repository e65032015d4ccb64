package questionbank

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"smong-quiz-service/internal/domain"
)

//go:embed default.yaml
var defaultBanks []byte

// Loader fetches the question bank of one quiz type.
type Loader interface {
	LoadBank(ctx context.Context, quizType string) (*domain.QuestionBank, error)
}

// File is the on-disk shape of a bank file.
type File struct {
	Quizzes []Definition `yaml:"quizzes" validate:"min=1,dive"`
}

// Definition is one quiz type with its ordered questions.
type Definition struct {
	QuizType  string            `yaml:"quizType" validate:"required"`
	Questions []domain.Question `yaml:"questions" validate:"min=1,dive"`
}

// StaticLoader serves banks parsed up front.
type StaticLoader struct {
	banks map[string]*domain.QuestionBank
}

// Default returns the banks compiled into the binary.
func Default() (*StaticLoader, error) {
	return Parse(defaultBanks)
}

// LoadFile parses a YAML bank file from disk.
func LoadFile(path string) (*StaticLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML bank content.
func Parse(data []byte) (*StaticLoader, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode question bank: %v", domain.ErrInvalidInput, err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("%w: question bank: %v", domain.ErrInvalidInput, err)
	}
	return FromDefinitions(file.Quizzes)
}

// FromDefinitions builds banks from already decoded definitions.
func FromDefinitions(defs []Definition) (*StaticLoader, error) {
	loader := &StaticLoader{banks: make(map[string]*domain.QuestionBank, len(defs))}
	for _, def := range defs {
		if _, dup := loader.banks[def.QuizType]; dup {
			return nil, fmt.Errorf("%w: quiz type %q defined twice", domain.ErrInvalidInput, def.QuizType)
		}
		bank, err := domain.NewQuestionBank(def.QuizType, def.Questions)
		if err != nil {
			return nil, err
		}
		loader.banks[def.QuizType] = bank
	}
	return loader, nil
}

func (l *StaticLoader) LoadBank(_ context.Context, quizType string) (*domain.QuestionBank, error) {
	if bank, ok := l.banks[quizType]; ok {
		return bank, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrQuizNotFound, quizType)
}

// Types lists the quiz types this loader knows, sorted.
func (l *StaticLoader) Types() []string {
	out := make([]string, 0, len(l.banks))
	for t := range l.banks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// LoadCatalog loads every requested quiz type once and assembles the catalog.
// The default type is always loaded.
func LoadCatalog(ctx context.Context, loader Loader, defaultType string, types []string) (*domain.Catalog, error) {
	seen := map[string]struct{}{}
	var banks []*domain.QuestionBank
	for _, quizType := range append([]string{defaultType}, types...) {
		if _, ok := seen[quizType]; ok {
			continue
		}
		seen[quizType] = struct{}{}
		bank, err := loader.LoadBank(ctx, quizType)
		if err != nil {
			return nil, fmt.Errorf("load quiz %q: %w", quizType, err)
		}
		banks = append(banks, bank)
	}
	return domain.NewCatalog(defaultType, banks...)
}
