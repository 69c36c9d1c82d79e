// Package idp defines the identity-provider client the challenge flow
// calls into, plus the error classification the verification engine
// depends on.
package idp

import "context"

// ChallengeNames the provider uses on the wire.
const (
	ChallengeNamePasswordVerifier    = "PASSWORD_VERIFIER"
	ChallengeNameSMSMFA              = "SMS_MFA"
	ChallengeNameSoftwareTokenMFA    = "SOFTWARE_TOKEN_MFA"
	ChallengeNameEmailOTP            = "EMAIL_OTP"
	ChallengeNameDeviceSRPAuth       = "DEVICE_SRP_AUTH"
	ChallengeNameDevicePasswordVerif = "DEVICE_PASSWORD_VERIFIER"
	ChallengeNameSelectMFAType       = "SELECT_MFA_TYPE"
	ChallengeNameNewPasswordRequired = "NEW_PASSWORD_REQUIRED"
)

// AuthenticationResult carries the token material of a completed
// authentication, if the provider signalled completion.
type AuthenticationResult struct {
	IDToken           string             `json:"IdToken"`
	AccessToken       string             `json:"AccessToken"`
	RefreshToken      string             `json:"RefreshToken"`
	ExpiresIn         int64              `json:"ExpiresIn"`
	NewDeviceMetadata *NewDeviceMetadata `json:"NewDeviceMetadata,omitempty"`
}

// NewDeviceMetadata is present when the provider registered a new,
// previously unseen device during this sign-in.
type NewDeviceMetadata struct {
	DeviceKey      string `json:"DeviceKey"`
	DeviceGroupKey string `json:"DeviceGroupKey"`
}

// ChallengeResult is the provider's answer to a challenge response: either
// a completed authentication or a follow-up challenge.
type ChallengeResult struct {
	AuthenticationResult *AuthenticationResult `json:"AuthenticationResult,omitempty"`
	ChallengeName        string                `json:"ChallengeName,omitempty"`
	Session              string                `json:"Session,omitempty"`
	ChallengeParameters  map[string]string     `json:"ChallengeParameters,omitempty"`
}

// Client sends challenge answers to the identity provider. ProviderError
// classification happens through errors.Is on the sentinels below.
type Client interface {
	RespondToChallenge(ctx context.Context, session, challengeName string, responses, clientMetadata map[string]string) (ChallengeResult, error)
}
