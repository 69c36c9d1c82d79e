package challenge

import (
	"context"
	"errors"
	"fmt"

	slogctx "github.com/veqryn/slog-context"

	"github.com/corvauth/signin-manager/internal/autherr"
	"github.com/corvauth/signin-manager/internal/idp"
	"github.com/corvauth/signin-manager/internal/token"
)

// OutcomeKind is the closed set of next-state decisions the engine makes.
type OutcomeKind int

const (
	// OutcomeFinalizeSignIn: authentication is fully complete.
	OutcomeFinalizeSignIn OutcomeKind = iota
	// OutcomeNextChallenge: the provider issued a further challenge.
	OutcomeNextChallenge
	// OutcomeConfirmDevice: sign-in succeeded on a new, unregistered
	// device; registration follows out of band.
	OutcomeConfirmDevice
	// OutcomeInitiateDeviceSRP: the provider requires device SRP
	// verification before completion.
	OutcomeInitiateDeviceSRP
	// OutcomeRetry: the device record was missing; resubmit the same
	// answer without device context. The only retryable condition.
	OutcomeRetry
	// OutcomeError: terminal failure for this attempt.
	OutcomeError
)

// Outcome is the engine's verdict for one verification round. Exactly one
// of the payload fields is meaningful, selected by Kind.
type Outcome struct {
	Kind     OutcomeKind
	Tokens   token.Set
	Next     Challenge
	Username string
	Params   map[string]string
	Err      error
}

// Meta carries the contextual metadata accompanying a challenge answer.
type Meta struct {
	Attributes     map[string]string
	ClientMetadata map[string]string
	DeviceKey      string
	DeviceName     string
}

// Engine resolves one outstanding challenge against the identity provider.
// It never mutates shared state; all effects travel through the returned
// Outcome.
type Engine struct {
	client idp.Client
}

func NewEngine(client idp.Client) *Engine {
	return &Engine{client: client}
}

// Verify answers the challenge and classifies the provider's response.
func (e *Engine) Verify(ctx context.Context, ch Challenge, answer string, meta Meta) Outcome {
	responses := e.responsesFor(ch, answer, meta)

	result, err := e.client.RespondToChallenge(ctx, ch.Session, ch.Kind.WireName(), responses, meta.ClientMetadata)
	if err != nil {
		if errors.Is(err, idp.ErrResourceNotFound) {
			slogctx.Debug(ctx, "Device record not found, retrying without device context", "challenge", ch.Kind.String())
			return Outcome{Kind: OutcomeRetry}
		}
		return Outcome{Kind: OutcomeError, Err: autherr.Service("responding to auth challenge", err)}
	}

	return e.classify(ctx, ch, result)
}

func (e *Engine) classify(ctx context.Context, ch Challenge, result idp.ChallengeResult) Outcome {
	switch {
	case result.ChallengeName == idp.ChallengeNameDeviceSRPAuth:
		return Outcome{
			Kind:     OutcomeInitiateDeviceSRP,
			Username: ch.Username,
			Params:   result.ChallengeParameters,
		}

	case result.ChallengeName != "":
		kind := KindFromWireName(result.ChallengeName)
		if kind == KindUnknown {
			return Outcome{
				Kind: OutcomeError,
				Err: autherr.Service(
					fmt.Sprintf("provider issued unsupported challenge %q", result.ChallengeName),
					autherr.ErrInvalidServiceResponse,
				),
			}
		}
		return Outcome{
			Kind: OutcomeNextChallenge,
			Next: Challenge{
				Kind:       kind,
				Session:    result.Session,
				Parameters: result.ChallengeParameters,
				Username:   ch.Username,
			},
		}

	case result.AuthenticationResult != nil:
		auth := result.AuthenticationResult
		if auth.IDToken == "" || auth.AccessToken == "" {
			return Outcome{
				Kind: OutcomeError,
				Err:  autherr.Service("authentication result is missing mandatory tokens", autherr.ErrInvalidServiceResponse),
			}
		}

		tokens := token.Set{
			IDToken:      auth.IDToken,
			AccessToken:  auth.AccessToken,
			RefreshToken: auth.RefreshToken,
			Expiry:       token.ResolveExpiry(auth.ExpiresIn, auth.IDToken),
		}

		if auth.NewDeviceMetadata != nil {
			slogctx.Info(ctx, "Signed in on a new device", "device_key", auth.NewDeviceMetadata.DeviceKey)
			return Outcome{Kind: OutcomeConfirmDevice, Tokens: tokens}
		}

		return Outcome{Kind: OutcomeFinalizeSignIn, Tokens: tokens}

	default:
		return Outcome{
			Kind: OutcomeError,
			Err:  autherr.Service("provider returned neither tokens nor a challenge", autherr.ErrInvalidServiceResponse),
		}
	}
}

// responsesFor builds the wire response map for the challenge kind. The
// device key rides along only when present; a retry after a missing device
// record strips it.
func (e *Engine) responsesFor(ch Challenge, answer string, meta Meta) map[string]string {
	responses := map[string]string{
		"USERNAME": ch.Username,
	}

	switch ch.Kind {
	case KindSMSMFA:
		responses["SMS_MFA_CODE"] = answer
	case KindTOTPMFA:
		responses["SOFTWARE_TOKEN_MFA_CODE"] = answer
	case KindEmailOTP:
		responses["EMAIL_OTP_CODE"] = answer
	case KindSelectMFAType:
		responses["ANSWER"] = answer
	case KindNewPasswordRequired:
		responses["NEW_PASSWORD"] = answer
		for name, value := range meta.Attributes {
			responses["userAttributes."+name] = value
		}
	case KindPasswordVerifier, KindDeviceSRP, KindDevicePasswordVerifier:
		responses["PASSWORD_CLAIM_SIGNATURE"] = answer
	default:
		responses["ANSWER"] = answer
	}

	if meta.DeviceKey != "" {
		responses["DEVICE_KEY"] = meta.DeviceKey
	}
	if meta.DeviceName != "" {
		responses["DEVICE_NAME"] = meta.DeviceName
	}

	return responses
}
