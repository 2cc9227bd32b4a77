package mapping

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Compile errors wrap one of these, so callers can
// branch with errors.Is while still getting the full path/fragment message.
var (
	// ErrMissingField marks a required configuration field that is absent.
	ErrMissingField = errors.New("required field is missing")

	// ErrInvalidColumnRef marks a column reference with both or neither of
	// column_position and column_name set, or a malformed position.
	ErrInvalidColumnRef = errors.New("invalid column reference")

	// ErrInvalidShape marks a field whose JSON shape is wrong (object where
	// an array was expected and the like).
	ErrInvalidShape = errors.New("invalid field shape")

	// ErrEmptyBinList marks a mapping whose binList is empty or not a
	// non-empty array.
	ErrEmptyBinList = errors.New("binList must be a non-empty array")
)

// Error is a single compile failure. Path is the dotted/indexed location of
// the offending field (e.g. "mappings[1].binList[0].value") and Fragment is
// a rendering of the offending configuration fragment.
type Error struct {
	Path     string
	Message  string
	Fragment string
	Kind     error
}

func (e *Error) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("mapping: %s at %s", e.Message, e.Path)
	}
	return fmt.Sprintf("mapping: %s at %s: %s", e.Message, e.Path, e.Fragment)
}

// Unwrap exposes the sentinel kind for errors.Is.
func (e *Error) Unwrap() error { return e.Kind }

func errAt(kind error, path, fragment, format string, args ...any) error {
	return &Error{
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Fragment: fragment,
		Kind:     kind,
	}
}
