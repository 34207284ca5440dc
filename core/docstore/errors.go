package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidPath is returned for malformed collection paths or document ids.
	ErrInvalidPath = errors.New("invalid path")
	// ErrTypeMismatch is returned when a Value is projected into the wrong type.
	ErrTypeMismatch = errors.New("value type mismatch")
	// ErrUnsupportedValue is returned when raw data has no Value representation.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// IOError reports a failed store operation on a single path. It is recoverable
// at document granularity: the same call may succeed on a later run.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// WrapIO wraps err as an IOError unless it is nil or already a not-found error.
func WrapIO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// NotFound builds the error returned for a missing document.
func NotFound(path string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, path)
}
