package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is delivered in a TokenResult when the user declines the capture grant.
	ErrPermissionDenied = errors.New("screen capture permission denied")
	// ErrUnsupportedOperation is emitted when pause or resume is requested on a platform without support.
	ErrUnsupportedOperation = errors.New("operation not supported on this platform")
)

// SetupError is emitted when the encoder or virtual display could not be created
// after a capture grant was received.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to start recording: %v", e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsSetupError checks if the error is (or wraps) a SetupError
func IsSetupError(err error) bool {
	var setupErr *SetupError
	return errors.As(err, &setupErr)
}
