package llm

import (
	"errors"
	"fmt"
)

type ServiceErrorKind int

const (
	// ServiceErrorUnreachable means the service could not be contacted at
	// all (connection refused, DNS failure, timeout).
	ServiceErrorUnreachable ServiceErrorKind = iota
	// ServiceErrorStatus means the service answered with an error status
	// or an in-band error payload.
	ServiceErrorStatus
)

// ServiceError is a model-service failure. The two kinds produce different
// user-facing hints: an unreachable service usually means the endpoint or
// network is wrong, an error status usually means the request or credential
// is wrong.
type ServiceError struct {
	Kind     ServiceErrorKind
	Endpoint string
	Status   int
	Detail   string
	Err      error
}

func (e *ServiceError) Error() string {
	switch e.Kind {
	case ServiceErrorUnreachable:
		return fmt.Sprintf("model service unreachable at %s: %v (is the service running?)", e.Endpoint, e.Err)
	default:
		if e.Status != 0 {
			return fmt.Sprintf("model service returned status %d: %s", e.Status, e.Detail)
		}
		return fmt.Sprintf("model service returned an error: %s", e.Detail)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err is a connectivity-level service failure.
func IsUnreachable(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == ServiceErrorUnreachable
}
