// Package challenge implements the verification of server-issued sign-in
// challenges: password-verifier proofs, MFA codes and device confirmation.
package challenge

import (
	"github.com/corvauth/signin-manager/internal/idp"
)

// Kind is the closed set of challenge kinds the engine understands.
type Kind int

const (
	KindUnknown Kind = iota
	KindPasswordVerifier
	KindSMSMFA
	KindTOTPMFA
	KindEmailOTP
	KindDeviceSRP
	KindDevicePasswordVerifier
	KindSelectMFAType
	KindNewPasswordRequired
)

var kindNames = map[Kind]string{
	KindPasswordVerifier:       "password-verifier",
	KindSMSMFA:                 "sms-mfa",
	KindTOTPMFA:                "totp-mfa",
	KindEmailOTP:               "email-otp",
	KindDeviceSRP:              "device-srp",
	KindDevicePasswordVerifier: "device-password-verifier",
	KindSelectMFAType:          "select-mfa-type",
	KindNewPasswordRequired:    "new-password-required",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var wireNames = map[Kind]string{
	KindPasswordVerifier:       idp.ChallengeNamePasswordVerifier,
	KindSMSMFA:                 idp.ChallengeNameSMSMFA,
	KindTOTPMFA:                idp.ChallengeNameSoftwareTokenMFA,
	KindEmailOTP:               idp.ChallengeNameEmailOTP,
	KindDeviceSRP:              idp.ChallengeNameDeviceSRPAuth,
	KindDevicePasswordVerifier: idp.ChallengeNameDevicePasswordVerif,
	KindSelectMFAType:          idp.ChallengeNameSelectMFAType,
	KindNewPasswordRequired:    idp.ChallengeNameNewPasswordRequired,
}

// WireName returns the provider's name for the challenge kind.
func (k Kind) WireName() string { return wireNames[k] }

// KindFromWireName maps a provider challenge name onto a Kind.
// Unrecognised names map to KindUnknown.
func KindFromWireName(name string) Kind {
	for kind, wire := range wireNames {
		if wire == name {
			return kind
		}
	}
	return KindUnknown
}

// Challenge is one pending server-issued challenge. The Session token must
// be sent back verbatim with the answer; the provider rejects stale or
// mismatched tokens.
type Challenge struct {
	Kind       Kind
	Session    string
	Parameters map[string]string
	Username   string
}
