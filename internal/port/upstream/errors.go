package upstream

import (
	"errors"
	"fmt"
)

// ErrUnreachable indicates the upstream API could not be reached at all
// (DNS, dial, TLS, timeout). Wrap with fmt.Errorf("%w: ...", ErrUnreachable).
var ErrUnreachable = errors.New("upstream unreachable")

// StatusError is a rejection from the upstream API: the call reached the
// remote and came back with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream API error %d: %s", e.StatusCode, e.Message)
}

// AsStatusError unwraps err into a *StatusError if it is one.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
