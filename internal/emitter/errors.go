package emitter

import (
	"errors"
	"fmt"

	http_utils "github.com/benmeehan/kitchen-simulator/pkg/httpUtils"
)

var (
	// ErrInvalidField is returned by SetField for unknown fields or values outside an enumeration.
	ErrInvalidField = errors.New("invalid field")
	// ErrEmitterIdle is returned by a simulated transport when the emitter is not running.
	ErrEmitterIdle = errors.New("emitter is not running")
)

// PayloadSyntaxError reports a payload that is not valid JSON, or that
// violates the configured payload schema, at send time.
type PayloadSyntaxError struct {
	Emitter string
	Err     error
}

func (e *PayloadSyntaxError) Error() string {
	return fmt.Sprintf("%s: invalid payload: %v", e.Emitter, e.Err)
}

func (e *PayloadSyntaxError) Unwrap() error {
	return e.Err
}

// TransportError reports a send that could not be delivered.
type TransportError struct {
	Emitter string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: delivery failed: %v", e.Emitter, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of a rejected request, or 0 when the
// request never got a response.
func (e *TransportError) StatusCode() int {
	var statusErr *http_utils.StatusError
	if errors.As(e.Err, &statusErr) {
		return statusErr.Code
	}
	return 0
}
