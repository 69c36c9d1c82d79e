package authflow

import (
	"github.com/corvauth/signin-manager/internal/challenge"
	"github.com/corvauth/signin-manager/internal/hostedui"
	"github.com/corvauth/signin-manager/internal/token"
)

// EventKind tags the outcome an asynchronous action produced.
type EventKind int

const (
	// EventFinalizeSignIn carries a complete token set.
	EventFinalizeSignIn EventKind = iota
	// EventNextChallenge carries a further server-issued challenge.
	EventNextChallenge
	// EventConfirmDevice: sign-in succeeded on a new device.
	EventConfirmDevice
	// EventInitiateDeviceSRP: the provider requires device verification.
	EventInitiateDeviceSRP
	// EventRetryVerifyChallengeAnswer re-enters challenge resolution
	// without device context. Never surfaced to the caller.
	EventRetryVerifyChallengeAnswer
	// EventAuthorizationCodeReceived: the hosted-UI callback validated;
	// the code exchange follows.
	EventAuthorizationCodeReceived
	// EventThrowAuthError is terminal for the attempt.
	EventThrowAuthError
)

var eventNames = map[EventKind]string{
	EventFinalizeSignIn:             "finalizeSignIn",
	EventNextChallenge:              "nextChallenge",
	EventConfirmDevice:              "confirmDevice",
	EventInitiateDeviceSRP:          "initiateDeviceSRP",
	EventRetryVerifyChallengeAnswer: "retryVerifyChallengeAnswer",
	EventAuthorizationCodeReceived:  "authorizationCodeReceived",
	EventThrowAuthError:             "throwAuthError",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is an immutable message consumed exactly once by the state
// machine. AttemptID pins it to the attempt it was produced for; the
// machine drops events whose id no longer matches the active attempt.
type Event struct {
	AttemptID uint64
	Kind      EventKind

	Tokens    token.Set
	Challenge challenge.Challenge
	Username  string
	Params    map[string]string
	Callback  hostedui.Callback
	Err       error
}

// eventFromOutcome translates a verification verdict into the event the
// dispatcher carries.
func eventFromOutcome(attemptID uint64, out challenge.Outcome) Event {
	ev := Event{AttemptID: attemptID}

	switch out.Kind {
	case challenge.OutcomeFinalizeSignIn:
		ev.Kind = EventFinalizeSignIn
		ev.Tokens = out.Tokens
	case challenge.OutcomeNextChallenge:
		ev.Kind = EventNextChallenge
		ev.Challenge = out.Next
	case challenge.OutcomeConfirmDevice:
		ev.Kind = EventConfirmDevice
		ev.Tokens = out.Tokens
	case challenge.OutcomeInitiateDeviceSRP:
		ev.Kind = EventInitiateDeviceSRP
		ev.Username = out.Username
		ev.Params = out.Params
	case challenge.OutcomeRetry:
		ev.Kind = EventRetryVerifyChallengeAnswer
	case challenge.OutcomeError:
		ev.Kind = EventThrowAuthError
		ev.Err = out.Err
	}

	return ev
}
