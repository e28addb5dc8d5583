package timing

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotResolved is returned by a step that needs the session key before ResolveSession found it
	ErrSessionNotResolved = errors.New("timing: session not resolved")
	// ErrAlreadyBuilt is returned when a builder is used after Build
	ErrAlreadyBuilt = errors.New("timing: builder already built")
	// ErrIncomplete is returned by Build when a required step did not run
	ErrIncomplete = errors.New("timing: snapshot incomplete")
)

// ValidationError rejects caller arguments before anything is fetched
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
