package authflow

// State is the sign-in state machine's position. Terminal states are
// StateSignedIn and StateFailed; both return the machine to StateIdle so a
// fresh attempt starts clean.
type State int

const (
	StateIdle State = iota
	StateAwaitingChallengeAnswer
	StateExchangingChallenge
	StateAwaitingNextChallenge
	StatePresentingHostedUI
	StateExchangingAuthorizationCode
	StateSignedIn
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                        "Idle",
	StateAwaitingChallengeAnswer:     "AwaitingChallengeAnswer",
	StateExchangingChallenge:         "ExchangingChallenge",
	StateAwaitingNextChallenge:       "AwaitingNextChallenge",
	StatePresentingHostedUI:          "PresentingHostedUI",
	StateExchangingAuthorizationCode: "ExchangingAuthorizationCode",
	StateSignedIn:                    "SignedIn",
	StateFailed:                      "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Sign-in methods as reported on hub events and metrics.
const (
	MethodChallenge = "password-challenge"
	MethodHostedUI  = "hosted-ui"
)
