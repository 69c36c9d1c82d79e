// Package autherr defines the error taxonomy shared by the sign-in flows.
// Every failure surfaced to a caller is one of the four kinds below.
package autherr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindConfiguration marks errors caused by invalid static configuration,
	// e.g. a malformed redirect URI. Never retried.
	KindConfiguration Kind = iota
	// KindInvalidState marks misuse of the API by the host application,
	// e.g. submitting an answer for an attempt that is no longer active.
	KindInvalidState
	// KindService marks errors reported by or caused by the identity
	// provider, including malformed responses.
	KindService
)

var kindNames = map[Kind]string{
	KindConfiguration: "configuration",
	KindInvalidState:  "invalid state",
	KindService:       "service",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ErrUserCancelled is the underlying cause of a service error raised when
// the user aborted the browser session. Callers match it with errors.Is to
// retry silently instead of alarming the user.
var ErrUserCancelled = errors.New("sign-in cancelled by user")

// ErrInvalidServiceResponse is the underlying cause of a service error
// raised when the provider signalled completion but the expected token
// fields were missing.
var ErrInvalidServiceResponse = errors.New("invalid service response")

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %s", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

func InvalidState(message string) *Error {
	return &Error{Kind: KindInvalidState, Message: message}
}

func Service(message string, err error) *Error {
	return &Error{Kind: KindService, Message: message, Err: err}
}

// Cancelled reports a user-initiated abort. It is a service error with
// ErrUserCancelled as its distinguishable cause.
func Cancelled() *Error {
	return &Error{Kind: KindService, Message: "user cancelled the sign-in", Err: ErrUserCancelled}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var authErr *Error
	if !errors.As(err, &authErr) {
		return false
	}
	return authErr.Kind == kind
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrUserCancelled)
}
