package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no quiz session exists for an id.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrAlreadyCompleted is returned when a completed session is asked to advance.
	ErrAlreadyCompleted = errors.New("quiz session already completed")
	// ErrInvalidChoice indicates the choice does not belong to the session's current question.
	ErrInvalidChoice = errors.New("invalid choice for current question")
	// ErrInvalidInput indicates a missing or malformed request field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorageUnavailable wraps failures of the session store itself.
	ErrStorageUnavailable = errors.New("session storage unavailable")
	// ErrSessionExists is returned by stores when a session id is already taken.
	ErrSessionExists = errors.New("quiz session already exists")
	// ErrConflict is returned when a concurrent update could not be applied.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrSessionCorrupt indicates a stored session violates its own invariants.
	ErrSessionCorrupt = errors.New("quiz session record is inconsistent")
	// ErrQuizNotFound indicates no question bank is registered for a quiz type.
	ErrQuizNotFound = errors.New("quiz not found")
)

// IsDomainError reports whether err belongs to the quiz error taxonomy.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrSessionNotFound,
		ErrAlreadyCompleted,
		ErrInvalidChoice,
		ErrInvalidInput,
		ErrStorageUnavailable,
		ErrSessionExists,
		ErrConflict,
		ErrSessionCorrupt,
		ErrQuizNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
