package authflow_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvauth/signin-manager/internal/autherr"
	"github.com/corvauth/signin-manager/internal/authflow"
	"github.com/corvauth/signin-manager/internal/challenge"
	"github.com/corvauth/signin-manager/internal/credstore"
	credstoremock "github.com/corvauth/signin-manager/internal/credstore/mock"
	"github.com/corvauth/signin-manager/internal/hostedui"
	"github.com/corvauth/signin-manager/internal/hub"
	"github.com/corvauth/signin-manager/internal/idp"
	idpmock "github.com/corvauth/signin-manager/internal/idp/mock"
	"github.com/corvauth/signin-manager/internal/randsrc"
)

// blockingClient parks RespondToChallenge until released, so tests can
// interleave machine calls with an in-flight verification.
type blockingClient struct {
	called  chan struct{}
	release chan struct{}
	result  idp.ChallengeResult
	err     error
}

func newBlockingClient(result idp.ChallengeResult, err error) *blockingClient {
	return &blockingClient{
		called:  make(chan struct{}, 8),
		release: make(chan struct{}),
		result:  result,
		err:     err,
	}
}

func (c *blockingClient) RespondToChallenge(_ context.Context, _, _ string, _, _ map[string]string) (idp.ChallengeResult, error) {
	c.called <- struct{}{}
	<-c.release
	return c.result, c.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []hub.TerminalEvent
}

func (s *recordingSink) Consume(_ context.Context, event hub.TerminalEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) outcomes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcomes := make([]string, 0, len(s.events))
	for _, event := range s.events {
		outcomes = append(outcomes, event.Outcome)
	}
	return outcomes
}

type stubPresenter struct {
	values url.Values
	err    error
}

func (p stubPresenter) Present(_ context.Context, _, _ string) (url.Values, error) {
	return p.values, p.err
}

func authResult() idp.ChallengeResult {
	return idp.ChallengeResult{
		AuthenticationResult: &idp.AuthenticationResult{
			IDToken:      "someIDToken",
			AccessToken:  "someAccessToken",
			RefreshToken: "someRefreshToken",
			ExpiresIn:    3600,
		},
	}
}

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id_token": "hostedIDToken",
			"access_token": "hostedAccessToken",
			"refresh_token": "hostedRefreshToken",
			"expires_in": 3600
		}`))
	}))
	t.Cleanup(server.Close)

	return server
}

func newHostedEngine(domain string) *hostedui.Engine {
	return hostedui.NewEngine(
		hostedui.Options{
			Domain:            domain,
			ClientID:          "1234567890",
			SignInRedirectURI: "myapp://callback",
		},
		randsrc.Fixed{
			StateValue: "someState",
			PKCEValue:  randsrc.PKCE{Verifier: "someVerifier", Challenge: "someChallenge", Method: randsrc.MethodS256},
		},
		nil,
	)
}

func newTestMachine(t *testing.T, client idp.Client, hosted *hostedui.Engine, store credstore.Store, sink hub.Sink) *authflow.Machine {
	t.Helper()

	cfg := authflow.Config{Store: store}
	if client != nil {
		cfg.Verifier = challenge.NewEngine(client)
	}
	cfg.Hosted = hosted
	if sink != nil {
		events := hub.New(sink, 16)
		t.Cleanup(events.Close)
		cfg.Hub = events
	}

	m := authflow.NewMachine(cfg)
	t.Cleanup(m.Close)

	return m
}

func TestMachineChallengeSignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("immediate success persists tokens", func(t *testing.T) {
		client := idpmock.NewClient(idpmock.WithResult(authResult()))
		store := credstoremock.NewInMemStore()
		m := newTestMachine(t, client, nil, store, nil)

		result, err := m.SignInWithChallenge(ctx, "jdoe", "someSignature", authflow.Options{})
		require.NoError(t, err)

		assert.True(t, result.IsSignedIn)
		assert.Equal(t, authflow.NextStepDone, result.NextStep.Kind)
		assert.Equal(t, "someIDToken", result.Tokens.IDToken)
		assert.Equal(t, "someAccessToken", result.Tokens.AccessToken)
		assert.True(t, result.Tokens.HasExpiry())
		assert.Equal(t, authflow.StateIdle, m.State())

		assert.Eventually(t, func() bool {
			stored, err := store.Load(ctx, "jdoe")
			return err == nil && stored.IDToken == "someIDToken"
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("MFA challenge then answer", func(t *testing.T) {
		client := idpmock.NewClient(
			idpmock.WithResult(idp.ChallengeResult{
				ChallengeName:       idp.ChallengeNameSMSMFA,
				Session:             "mfaSession",
				ChallengeParameters: map[string]string{"CODE_DELIVERY_DESTINATION": "+***1234"},
			}),
			idpmock.WithResult(authResult()),
		)
		m := newTestMachine(t, client, nil, nil, nil)

		result, err := m.SignInWithChallenge(ctx, "jdoe", "someSignature", authflow.Options{})
		require.NoError(t, err)
		require.False(t, result.IsSignedIn)
		assert.Equal(t, authflow.NextStepChallenge, result.NextStep.Kind)
		assert.Equal(t, challenge.KindSMSMFA, result.NextStep.Challenge)
		assert.Equal(t, "+***1234", result.NextStep.Parameters["CODE_DELIVERY_DESTINATION"])

		result, err = m.SubmitChallengeAnswer(ctx, "123456", authflow.Options{})
		require.NoError(t, err)
		assert.True(t, result.IsSignedIn)

		calls := client.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, "mfaSession", calls[1].Session)
		assert.Equal(t, idp.ChallengeNameSMSMFA, calls[1].ChallengeName)
		assert.Equal(t, "123456", calls[1].Responses["SMS_MFA_CODE"])
	})

	t.Run("missing device record retries without device key", func(t *testing.T) {
		client := idpmock.NewClient(
			idpmock.WithError(errors.Join(idp.ErrResourceNotFound, &idp.ServiceError{Type: "ResourceNotFoundException"})),
			idpmock.WithResult(authResult()),
		)
		m := newTestMachine(t, client, nil, nil, nil)

		result, err := m.SignInWithChallenge(ctx, "jdoe", "someSignature", authflow.Options{DeviceKey: "device-1"})
		require.NoError(t, err)
		assert.True(t, result.IsSignedIn)

		calls := client.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, "device-1", calls[0].Responses["DEVICE_KEY"])
		assert.NotContains(t, calls[1].Responses, "DEVICE_KEY")
		assert.Equal(t, calls[0].Responses["PASSWORD_CLAIM_SIGNATURE"], calls[1].Responses["PASSWORD_CLAIM_SIGNATURE"])
	})

	t.Run("provider failure leaves no residue", func(t *testing.T) {
		client := idpmock.NewClient(
			idpmock.WithError(errors.Join(idp.ErrNotAuthorized, &idp.ServiceError{Type: "NotAuthorizedException"})),
			idpmock.WithResult(authResult()),
		)
		m := newTestMachine(t, client, nil, nil, nil)

		_, err := m.SignInWithChallenge(ctx, "jdoe", "badSignature", authflow.Options{})
		require.Error(t, err)
		assert.True(t, autherr.IsKind(err, autherr.KindService))
		assert.Equal(t, authflow.StateIdle, m.State())

		result, err := m.SignInWithChallenge(ctx, "jdoe", "someSignature", authflow.Options{})
		require.NoError(t, err)
		assert.True(t, result.IsSignedIn)
	})

	t.Run("empty username is an invalid-state error", func(t *testing.T) {
		m := newTestMachine(t, idpmock.NewClient(), nil, nil, nil)

		_, err := m.SignInWithChallenge(ctx, "", "someSignature", authflow.Options{})
		assert.True(t, autherr.IsKind(err, autherr.KindInvalidState))
	})
}

func TestMachineSubmitChallengeAnswerWithoutAttempt(t *testing.T) {
	m := newTestMachine(t, idpmock.NewClient(), nil, nil, nil)

	_, err := m.SubmitChallengeAnswer(context.Background(), "123456", authflow.Options{})
	assert.True(t, autherr.IsKind(err, autherr.KindInvalidState))
}

func TestMachineHostedUISignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		server := newTokenServer(t)
		m := newTestMachine(t, nil, newHostedEngine(server.URL), nil, nil)

		presenter := stubPresenter{values: url.Values{
			"code":  []string{"someCode"},
			"state": []string{"someState"},
		}}

		result, err := m.SignInWithHostedUI(ctx, presenter, authflow.Options{})
		require.NoError(t, err)

		assert.True(t, result.IsSignedIn)
		assert.Equal(t, "hostedIDToken", result.Tokens.IDToken)
		assert.Equal(t, "hostedAccessToken", result.Tokens.AccessToken)
		assert.Equal(t, authflow.StateIdle, m.State())
	})

	t.Run("user cancels the browser session", func(t *testing.T) {
		server := newTokenServer(t)
		m := newTestMachine(t, nil, newHostedEngine(server.URL), nil, nil)

		_, err := m.SignInWithHostedUI(ctx, stubPresenter{err: hostedui.ErrCancelled}, authflow.Options{})
		assert.True(t, autherr.IsCancelled(err))
		assert.Equal(t, authflow.StateIdle, m.State())
	})

	t.Run("nil presenter is an invalid-state error", func(t *testing.T) {
		server := newTokenServer(t)
		m := newTestMachine(t, nil, newHostedEngine(server.URL), nil, nil)

		_, err := m.SignInWithHostedUI(ctx, nil, authflow.Options{})
		assert.True(t, autherr.IsKind(err, autherr.KindInvalidState))
	})

	t.Run("configuration error does not supersede a pending attempt", func(t *testing.T) {
		client := idpmock.NewClient(
			idpmock.WithResult(idp.ChallengeResult{
				ChallengeName: idp.ChallengeNameSMSMFA,
				Session:       "mfaSession",
			}),
			idpmock.WithResult(authResult()),
		)
		broken := hostedui.NewEngine(hostedui.Options{Domain: "auth.example.com"}, nil, nil)
		m := newTestMachine(t, client, broken, nil, nil)

		result, err := m.SignInWithChallenge(ctx, "jdoe", "someSignature", authflow.Options{})
		require.NoError(t, err)
		require.Equal(t, authflow.NextStepChallenge, result.NextStep.Kind)

		_, err = m.SignInWithHostedUI(ctx, stubPresenter{}, authflow.Options{})
		assert.True(t, autherr.IsKind(err, autherr.KindConfiguration))

		result, err = m.SubmitChallengeAnswer(ctx, "123456", authflow.Options{})
		require.NoError(t, err)
		assert.True(t, result.IsSignedIn)
	})
}

func TestMachineSupersession(t *testing.T) {
	ctx := context.Background()

	client := newBlockingClient(authResult(), nil)
	server := newTokenServer(t)
	sink := &recordingSink{}
	m := newTestMachine(t, client, newHostedEngine(server.URL), nil, sink)

	challengeErr := make(chan error, 1)
	go func() {
		_, err := m.SignInWithChallenge(ctx, "jdoe", "someSignature", authflow.Options{})
		challengeErr <- err
	}()

	select {
	case <-client.called:
	case <-time.After(time.Second):
		t.Fatal("challenge verification never started")
	}

	presenter := stubPresenter{values: url.Values{
		"code":  []string{"someCode"},
		"state": []string{"someState"},
	}}
	result, err := m.SignInWithHostedUI(ctx, presenter, authflow.Options{})
	require.NoError(t, err)
	assert.True(t, result.IsSignedIn)

	select {
	case err := <-challengeErr:
		require.Error(t, err)
		assert.ErrorIs(t, err, authflow.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded attempt never resolved")
	}

	// the stale completion must not flip the hosted attempt's result
	close(client.release)
	assert.Equal(t, authflow.StateIdle, m.State())

	assert.Eventually(t, func() bool {
		outcomes := sink.outcomes()
		return len(outcomes) == 2 &&
			outcomes[0] == hub.OutcomeSuperseded &&
			outcomes[1] == hub.OutcomeSignedIn
	}, time.Second, 10*time.Millisecond)
}

func TestMachineCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancellation wins over an in-flight completion", func(t *testing.T) {
		client := newBlockingClient(authResult(), nil)
		m := newTestMachine(t, client, nil, nil, nil)

		signInErr := make(chan error, 1)
		go func() {
			_, err := m.SignInWithChallenge(ctx, "jdoe", "someSignature", authflow.Options{})
			signInErr <- err
		}()

		select {
		case <-client.called:
		case <-time.After(time.Second):
			t.Fatal("challenge verification never started")
		}

		m.Cancel()

		select {
		case err := <-signInErr:
			assert.True(t, autherr.IsCancelled(err))
		case <-time.After(time.Second):
			t.Fatal("cancelled attempt never resolved")
		}

		// the late completion is dropped; a fresh attempt succeeds
		close(client.release)
		result, err := m.SignInWithChallenge(ctx, "jdoe", "someSignature", authflow.Options{})
		require.NoError(t, err)
		assert.True(t, result.IsSignedIn)
	})

	t.Run("cancel with no attempt is a no-op", func(t *testing.T) {
		m := newTestMachine(t, idpmock.NewClient(), nil, nil, nil)
		m.Cancel()
		assert.Equal(t, authflow.StateIdle, m.State())
	})

	t.Run("caller context cancellation cancels the attempt", func(t *testing.T) {
		client := newBlockingClient(authResult(), nil)
		m := newTestMachine(t, client, nil, nil, nil)

		callCtx, cancel := context.WithCancel(ctx)
		signInErr := make(chan error, 1)
		go func() {
			_, err := m.SignInWithChallenge(callCtx, "jdoe", "someSignature", authflow.Options{})
			signInErr <- err
		}()

		select {
		case <-client.called:
		case <-time.After(time.Second):
			t.Fatal("challenge verification never started")
		}
		cancel()

		select {
		case err := <-signInErr:
			assert.True(t, autherr.IsCancelled(err))
		case <-time.After(time.Second):
			t.Fatal("attempt did not resolve after context cancellation")
		}

		close(client.release)
		assert.Eventually(t, func() bool { return m.State() == authflow.StateIdle }, time.Second, 10*time.Millisecond)
	})
}
