package engagement

import (
	"errors"
	"fmt"

	"github.com/example/artist-portfolio/internal/platform/docstore"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrUnavailable is the storage layer's transient failure.
	ErrUnavailable = docstore.ErrUnavailable
)

// ValidationError names the offending input field.
// errors.Is(err, ErrValidation) holds for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func commentNotFound(id string) error {
	return fmt.Errorf("comment %q: %w", id, ErrNotFound)
}

// storeErr maps storage errors to engagement kinds.
func storeErr(id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return commentNotFound(id)
	}
	return err
}
