package idp

import "errors"

// ErrResourceNotFound classifies the provider error raised when a
// referenced resource (typically a device record) does not exist. It is
// the single retryable condition in the challenge flow.
var ErrResourceNotFound = errors.New("resource not found")

// ErrNotAuthorized classifies rejected credentials and stale or mismatched
// session tokens. Always fatal.
var ErrNotAuthorized = errors.New("not authorized")

// ServiceError wraps any provider-reported failure that is not one of the
// dedicated sentinels.
type ServiceError struct {
	Type    string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}
