package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrIO                = errors.New("storage failure")
)

// TransitionError reports an action that is not legal from the entity's
// current state. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	Entity  string
	ID      string
	Current string
	Action  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s %s is %s, cannot %s", ErrInvalidTransition, e.Entity, e.ID, e.Current, e.Action)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
