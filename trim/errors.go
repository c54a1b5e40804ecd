package trim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned when startMs < 0 or endMs <= startMs.
	ErrInvalidRange = errors.New("invalid trim range")
	// ErrNoTracks is returned when the input has neither audio nor video.
	ErrNoTracks = errors.New("input has no audio or video tracks")
)

// IOError wraps a failure to read the input or write the output.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("trim: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func newIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}

// IsIOError checks if the error is (or wraps) an IOError
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
