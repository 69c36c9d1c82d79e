// Package business wires configuration into a running sign-in machine and
// drives the interactive command-line flows.
package business

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/exaring/otelpgx"
	"github.com/goccy/go-yaml"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/corvauth/signin-manager/internal/authflow"
	"github.com/corvauth/signin-manager/internal/challenge"
	"github.com/corvauth/signin-manager/internal/config"
	"github.com/corvauth/signin-manager/internal/credstore"
	credstorememory "github.com/corvauth/signin-manager/internal/credstore/memory"
	credstoresql "github.com/corvauth/signin-manager/internal/credstore/sql"
	credstorevalkey "github.com/corvauth/signin-manager/internal/credstore/valkey"
	"github.com/corvauth/signin-manager/internal/hostedui"
	"github.com/corvauth/signin-manager/internal/hub"
	"github.com/corvauth/signin-manager/internal/idp"
	"github.com/corvauth/signin-manager/internal/metrics"
)

// SignInMain runs the interactive challenge-based sign-in: it prompts for
// credentials on stdin and loops until the attempt terminates.
func SignInMain(ctx context.Context, cfg *config.Config) error {
	machine, closeFn, err := initMachine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the sign-in machine: %w", err)
	}

	defer closeFn()

	return runChallengeSignIn(ctx, machine, os.Stdin, os.Stdout)
}

// HostedUIMain runs the browser-delegated sign-in through a loopback
// redirect listener.
func HostedUIMain(ctx context.Context, cfg *config.Config) error {
	machine, closeFn, err := initMachine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the sign-in machine: %w", err)
	}

	defer closeFn()

	presenter := hostedui.NewLoopback(cfg.HostedUI.SignInRedirectURI)

	slogctx.Info(ctx, "Opening the hosted sign-in page")
	result, err := machine.SignInWithHostedUI(ctx, presenter, authflow.Options{})
	if err != nil {
		return fmt.Errorf("signing in through the hosted UI: %w", err)
	}

	return printResult(os.Stdout, result)
}

func runChallengeSignIn(ctx context.Context, machine *authflow.Machine, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	username, err := prompt(reader, out, "Username: ")
	if err != nil {
		return fmt.Errorf("reading username: %w", err)
	}

	password, err := prompt(reader, out, "Password: ")
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	result, err := machine.SignInWithChallenge(ctx, username, password, authflow.Options{})
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	for !result.IsSignedIn && result.NextStep.Kind == authflow.NextStepChallenge {
		answer, err := prompt(reader, out, challengePrompt(result.NextStep.Challenge))
		if err != nil {
			return fmt.Errorf("reading challenge answer: %w", err)
		}

		result, err = machine.SubmitChallengeAnswer(ctx, answer, authflow.Options{})
		if err != nil {
			return fmt.Errorf("answering the challenge: %w", err)
		}
	}

	return printResult(out, result)
}

func challengePrompt(kind challenge.Kind) string {
	switch kind {
	case challenge.KindSMSMFA:
		return "SMS code: "
	case challenge.KindTOTPMFA:
		return "Authenticator code: "
	case challenge.KindEmailOTP:
		return "Email code: "
	case challenge.KindNewPasswordRequired:
		return "New password: "
	case challenge.KindSelectMFAType:
		return "MFA type: "
	default:
		return fmt.Sprintf("%s: ", kind)
	}
}

func prompt(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	if _, err := fmt.Fprint(out, label); err != nil {
		return "", err
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

// resultSummary is the YAML document printed after a terminal result. The
// tokens themselves never appear on stdout.
type resultSummary struct {
	SignedIn      bool   `yaml:"signedIn"`
	NextStep      string `yaml:"nextStep,omitempty"`
	HasRefresh    bool   `yaml:"hasRefreshToken"`
	Expiry        string `yaml:"expiry,omitempty"`
	ConfirmDevice bool   `yaml:"confirmDevice,omitempty"`
}

func printResult(out io.Writer, result authflow.Result) error {
	summary := resultSummary{
		SignedIn:      result.IsSignedIn,
		HasRefresh:    result.Tokens.RefreshToken != "",
		ConfirmDevice: result.NextStep.Kind == authflow.NextStepConfirmDevice,
	}
	if result.Tokens.HasExpiry() {
		summary.Expiry = result.Tokens.Expiry.String()
	}
	if !result.IsSignedIn {
		summary.NextStep = result.NextStep.Challenge.String()
	}

	encoded, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding the result summary: %w", err)
	}

	_, err = out.Write(encoded)

	return err
}

func initMachine(ctx context.Context, cfg *config.Config) (_ *authflow.Machine, closeFn func(), _ error) {
	store, closeStore, err := initStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising the credential store: %w", err)
	}

	meters, err := metrics.New(cfg.Application.Name)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("initialising metrics: %w", err)
	}

	events := hub.New(hub.SlogSink{}, cfg.Hub.Buffer)

	machineCfg := authflow.Config{
		Store:   store,
		Hub:     events,
		Metrics: meters,
	}

	if cfg.Provider.Endpoint != "" {
		clientID, err := commoncfg.LoadValueFromSourceRef(cfg.Provider.ClientID)
		if err != nil {
			events.Close()
			closeStore()
			return nil, nil, fmt.Errorf("loading provider client id: %w", err)
		}

		machineCfg.Verifier = challenge.NewEngine(idp.NewHTTPClient(cfg.Provider.Endpoint, string(clientID), nil))
	}

	if cfg.HostedUI.Domain != "" {
		clientID, err := commoncfg.LoadValueFromSourceRef(cfg.HostedUI.ClientID)
		if err != nil {
			events.Close()
			closeStore()
			return nil, nil, fmt.Errorf("loading hosted UI client id: %w", err)
		}

		machineCfg.Hosted = hostedui.NewEngine(hostedui.Options{
			Domain:             cfg.HostedUI.Domain,
			ClientID:           string(clientID),
			Scopes:             cfg.HostedUI.Scopes,
			SignInRedirectURI:  cfg.HostedUI.SignInRedirectURI,
			SignOutRedirectURI: cfg.HostedUI.SignOutRedirectURI,
			IdentityProvider:   cfg.HostedUI.IdentityProvider,
			DisablePKCE:        cfg.HostedUI.DisablePKCE,
		}, nil, nil)
	}

	machine := authflow.NewMachine(machineCfg)

	return machine, func() {
		machine.Close()
		events.Close()
		closeStore()
	}, nil
}

func initStore(ctx context.Context, cfg *config.Config) (credstore.Store, func(), error) {
	switch cfg.CredentialStore.Backend {
	case config.CredentialStoreMemory, "":
		return credstorememory.NewStore(), func() {}, nil

	case config.CredentialStoreValKey:
		valkeyClient, err := newValkeyClient(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
		}

		return credstorevalkey.NewStore(valkeyClient, cfg.CredentialStore.Prefix), valkeyClient.Close, nil

	case config.CredentialStoreSQL:
		connStr, err := config.MakeConnStr(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("making dsn from config: %w", err)
		}

		poolCfg, err := pgxpool.ParseConfig(connStr)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing pgxpool config: %w", err)
		}

		poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

		db, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("initialising pgxpool connection: %w", err)
		}

		return credstoresql.NewStore(db), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown credential store backend %q", cfg.CredentialStore.Backend)
	}
}

func newValkeyClient(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	return valkey.NewClient(valkeyOpts)
}
