// Package authflow owns the sign-in state machine: it serializes
// concurrent sign-in attempts, dispatches asynchronous actions, applies
// their outcome events one at a time and guarantees every attempt resolves
// exactly once.
package authflow

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"

	"github.com/corvauth/signin-manager/internal/autherr"
	"github.com/corvauth/signin-manager/internal/challenge"
	"github.com/corvauth/signin-manager/internal/credstore"
	"github.com/corvauth/signin-manager/internal/hostedui"
	"github.com/corvauth/signin-manager/internal/hub"
	"github.com/corvauth/signin-manager/internal/metrics"
	"github.com/corvauth/signin-manager/internal/token"
)

// ErrSuperseded is the underlying cause reported to a waiter whose attempt
// was replaced by a newer sign-in call.
var ErrSuperseded = errors.New("attempt superseded by a newer sign-in")

// NextStepKind tells the caller what must happen before isSignedIn can
// become true.
type NextStepKind int

const (
	// NextStepDone: nothing further, the sign-in is complete.
	NextStepDone NextStepKind = iota
	// NextStepChallenge: answer the pending challenge via
	// SubmitChallengeAnswer.
	NextStepChallenge
	// NextStepConfirmDevice: signed in on a new device; registration
	// follows out of band.
	NextStepConfirmDevice
)

type NextStep struct {
	Kind       NextStepKind
	Challenge  challenge.Kind
	Parameters map[string]string
}

// Result is the caller-facing outcome of one sign-in call.
type Result struct {
	IsSignedIn bool
	NextStep   NextStep
	Tokens     token.Set
}

// Options carries per-call contextual metadata.
type Options struct {
	Attributes     map[string]string
	ClientMetadata map[string]string
	DeviceKey      string
	DeviceName     string
}

// Config wires the machine's collaborators. Verifier is required for the
// challenge flow, Hosted for the hosted-UI flow; Store, Hub and Metrics
// are optional.
type Config struct {
	Verifier *challenge.Engine
	Hosted   *hostedui.Engine
	Store    credstore.Store
	Hub      *hub.Hub
	Metrics  *metrics.Metrics
}

type outcome struct {
	result Result
	err    error
}

// attempt is one logical sign-in operation. Owned exclusively by the
// machine; engines only ever see immutable snapshots of its fields.
type attempt struct {
	id            uint64
	correlationID string
	method        string
	state         State
	username      string
	pending       challenge.Challenge
	meta          challenge.Meta
	lastAnswer    string

	// actx survives the originating call's cancellation so in-flight
	// actions run to completion; their events are discarded if stale.
	actx context.Context

	waiter   chan outcome
	resolved bool
}

func (a *attempt) resolve(res Result, err error) {
	if a.resolved {
		return
	}
	a.resolved = true
	a.waiter <- outcome{result: res, err: err}
}

// Machine is the top-level sign-in orchestrator.
type Machine struct {
	verifier *challenge.Engine
	hosted   *hostedui.Engine
	store    credstore.Store
	hub      *hub.Hub
	metrics  *metrics.Metrics

	disp *dispatcher

	mu     sync.Mutex
	nextID uint64
	active *attempt

	closeOnce sync.Once
	done      chan struct{}
}

func NewMachine(cfg Config) *Machine {
	m := &Machine{
		verifier: cfg.Verifier,
		hosted:   cfg.Hosted,
		store:    cfg.Store,
		hub:      cfg.Hub,
		metrics:  cfg.Metrics,
		disp:     newDispatcher(16),
		done:     make(chan struct{}),
	}
	go m.loop()

	return m
}

// Close stops the event loop. In-flight actions finish but their events go
// nowhere.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		m.disp.close()
		<-m.done
	})
}

// State reports the active attempt's state, or StateIdle.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return StateIdle
	}
	return m.active.state
}

// SignInWithChallenge starts a challenge-based sign-in: the credential
// proof answers the provider's password-verifier challenge. A pending
// attempt, if any, is superseded. The call blocks until the attempt needs
// caller input (an additional challenge) or terminates.
func (m *Machine) SignInWithChallenge(ctx context.Context, username, proof string, opts Options) (Result, error) {
	if username == "" {
		return Result{}, autherr.InvalidState("username must not be empty")
	}
	if m.verifier == nil {
		return Result{}, autherr.Configuration("challenge sign-in is not configured")
	}

	initial := challenge.Challenge{
		Kind:     challenge.KindPasswordVerifier,
		Username: username,
	}

	a := m.beginAttempt(ctx, MethodChallenge, username)
	a.state = StateExchangingChallenge
	a.pending = initial
	a.lastAnswer = proof
	a.meta = metaFromOptions(opts)

	go m.runVerify(a.actx, a.id, initial, proof, a.meta)

	return m.await(ctx, a.id, a.waiter)
}

// SignInWithHostedUI starts a browser-delegated sign-in. Configuration
// problems fail fast, before any attempt is created or network touched.
func (m *Machine) SignInWithHostedUI(ctx context.Context, presenter hostedui.Presenter, opts Options) (Result, error) {
	if m.hosted == nil {
		return Result{}, autherr.Configuration("hosted UI sign-in is not configured")
	}
	if presenter == nil {
		return Result{}, autherr.InvalidState("a presentation context must be supplied")
	}
	if err := m.hosted.ValidateConfiguration(); err != nil {
		return Result{}, err
	}

	a := m.beginAttempt(ctx, MethodHostedUI, "")
	a.state = StatePresentingHostedUI
	a.meta = metaFromOptions(opts)

	go m.runAuthorize(a.actx, a.id, presenter)

	return m.await(ctx, a.id, a.waiter)
}

// SubmitChallengeAnswer answers the pending challenge of the active
// attempt. Answers for superseded or terminal attempts fail with an
// invalid-state error.
func (m *Machine) SubmitChallengeAnswer(ctx context.Context, answer string, opts Options) (Result, error) {
	m.mu.Lock()

	a := m.active
	if a == nil || (a.state != StateAwaitingChallengeAnswer && a.state != StateAwaitingNextChallenge) {
		m.mu.Unlock()
		return Result{}, autherr.InvalidState("no attempt is awaiting a challenge answer")
	}

	a.state = StateExchangingChallenge
	a.lastAnswer = answer
	mergeOptions(&a.meta, opts)
	a.waiter = make(chan outcome, 1)
	a.resolved = false

	pending := a.pending
	meta := a.meta
	id := a.id
	actx := a.actx
	waiter := a.waiter
	m.mu.Unlock()

	go m.runVerify(actx, id, pending, answer, meta)

	return m.await(ctx, id, waiter)
}

// Cancel terminates the active attempt with a cancellation error. An
// action already in flight still completes; its event is discarded. When a
// cancellation and a resolution race, cancellation wins: it applies
// synchronously while resolutions queue through the dispatcher.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.active
	if a == nil {
		return
	}

	a.state = StateFailed
	a.resolve(Result{}, autherr.Cancelled())
	m.publish(a, hub.OutcomeCancelled, "cancelled by caller")
	m.metrics.AttemptFailed(a.actx, a.method)
	m.active = nil
}

// beginAttempt supersedes the active attempt and installs a fresh one.
func (m *Machine) beginAttempt(ctx context.Context, method, username string) *attempt {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old := m.active; old != nil {
		old.state = StateFailed
		old.resolve(Result{}, autherr.Service("attempt superseded", ErrSuperseded))
		m.publish(old, hub.OutcomeSuperseded, "superseded by a newer sign-in")
		slogctx.Debug(old.actx, "Superseding pending sign-in attempt", "attempt_id", old.id)
	}

	m.nextID++
	a := &attempt{
		id:            m.nextID,
		correlationID: uuid.NewString(),
		method:        method,
		username:      username,
		actx:          context.WithoutCancel(ctx),
		waiter:        make(chan outcome, 1),
	}
	m.active = a

	m.metrics.AttemptStarted(a.actx, method)

	return a
}

// await blocks until the attempt's current waiter resolves. Caller context
// cancellation cancels the attempt.
func (m *Machine) await(ctx context.Context, id uint64, waiter chan outcome) (Result, error) {
	select {
	case out := <-waiter:
		return out.result, out.err
	case <-ctx.Done():
		m.cancelIfActive(id)
		return Result{}, autherr.Service("sign-in context cancelled", errors.Join(autherr.ErrUserCancelled, ctx.Err()))
	}
}

func (m *Machine) cancelIfActive(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.active
	if a == nil || a.id != id {
		return
	}
	a.state = StateFailed
	a.resolve(Result{}, autherr.Cancelled())
	m.publish(a, hub.OutcomeCancelled, "context cancelled")
	m.metrics.AttemptFailed(a.actx, a.method)
	m.active = nil
}

// loop is the single consumer of the dispatcher. Processing one event at a
// time is what keeps transitions race-free without per-field locks.
func (m *Machine) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.disp.quit:
			return
		case ev := <-m.disp.events:
			m.apply(ev)
		}
	}
}

func (m *Machine) apply(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.active
	if a == nil || a.id != ev.AttemptID {
		// late completion of a superseded or cancelled attempt
		m.metrics.StaleEventDropped(context.Background())
		slogctx.Debug(context.Background(), "Dropping stale event", "event", ev.Kind.String(), "attempt_id", ev.AttemptID)
		return
	}

	switch ev.Kind {
	case EventFinalizeSignIn:
		m.finalize(a, ev.Tokens, NextStep{Kind: NextStepDone})

	case EventConfirmDevice:
		m.finalize(a, ev.Tokens, NextStep{Kind: NextStepConfirmDevice})

	case EventNextChallenge:
		a.state = StateAwaitingNextChallenge
		a.pending = ev.Challenge
		a.resolve(Result{NextStep: NextStep{
			Kind:       NextStepChallenge,
			Challenge:  ev.Challenge.Kind,
			Parameters: ev.Challenge.Parameters,
		}}, nil)

	case EventInitiateDeviceSRP:
		a.state = StateAwaitingNextChallenge
		a.pending = challenge.Challenge{
			Kind:       challenge.KindDeviceSRP,
			Session:    a.pending.Session,
			Parameters: ev.Params,
			Username:   ev.Username,
		}
		a.resolve(Result{NextStep: NextStep{
			Kind:       NextStepChallenge,
			Challenge:  challenge.KindDeviceSRP,
			Parameters: ev.Params,
		}}, nil)

	case EventRetryVerifyChallengeAnswer:
		// the single retryable condition: resubmit without device context
		a.meta.DeviceKey = ""
		m.metrics.ChallengeRetried(a.actx)
		go m.runVerify(a.actx, a.id, a.pending, a.lastAnswer, a.meta)

	case EventAuthorizationCodeReceived:
		a.state = StateExchangingAuthorizationCode
		go m.runExchange(a.actx, a.id, ev.Callback)

	case EventThrowAuthError:
		m.fail(a, ev.Err)
	}
}

// finalize ends the attempt in SignedIn: the token set is stored and the
// terminal event published, both fire-and-forget.
func (m *Machine) finalize(a *attempt, tokens token.Set, step NextStep) {
	a.state = StateSignedIn
	m.metrics.AttemptSignedIn(a.actx, a.method)
	m.publish(a, hub.OutcomeSignedIn, "")

	if m.store != nil {
		username := a.username
		actx := a.actx
		go func() {
			if err := m.store.Save(actx, username, tokens); err != nil {
				slogctx.Warn(actx, "Could not persist the token set", "error", err)
			}
		}()
	}

	a.resolve(Result{IsSignedIn: true, NextStep: step, Tokens: tokens}, nil)
	m.active = nil
}

func (m *Machine) fail(a *attempt, err error) {
	a.state = StateFailed
	m.metrics.AttemptFailed(a.actx, a.method)

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	outcomeKind := hub.OutcomeFailed
	if autherr.IsCancelled(err) {
		outcomeKind = hub.OutcomeCancelled
	}
	m.publish(a, outcomeKind, reason)

	a.resolve(Result{}, err)
	m.active = nil
}

func (m *Machine) publish(a *attempt, outcome, reason string) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(hub.TerminalEvent{
		CorrelationID: a.correlationID,
		AttemptID:     a.id,
		Method:        a.method,
		Outcome:       outcome,
		Reason:        reason,
	})
}

// runVerify is the challenge-resolution action: one provider round trip,
// one event.
func (m *Machine) runVerify(ctx context.Context, attemptID uint64, ch challenge.Challenge, answer string, meta challenge.Meta) {
	out := m.verifier.Verify(ctx, ch, answer, meta)
	m.disp.send(eventFromOutcome(attemptID, out))
}

// runAuthorize presents the browser session and reports the validated
// authorization code, or the mapped failure.
func (m *Machine) runAuthorize(ctx context.Context, attemptID uint64, presenter hostedui.Presenter) {
	callback, err := m.hosted.Authorize(ctx, presenter)
	if err != nil {
		m.disp.send(Event{AttemptID: attemptID, Kind: EventThrowAuthError, Err: err})
		return
	}
	m.disp.send(Event{AttemptID: attemptID, Kind: EventAuthorizationCodeReceived, Callback: callback})
}

// runExchange trades the authorization code for tokens.
func (m *Machine) runExchange(ctx context.Context, attemptID uint64, callback hostedui.Callback) {
	tokens, err := m.hosted.Exchange(ctx, callback)
	if err != nil {
		m.disp.send(Event{AttemptID: attemptID, Kind: EventThrowAuthError, Err: err})
		return
	}
	m.disp.send(Event{AttemptID: attemptID, Kind: EventFinalizeSignIn, Tokens: tokens})
}

func metaFromOptions(opts Options) challenge.Meta {
	return challenge.Meta{
		Attributes:     opts.Attributes,
		ClientMetadata: opts.ClientMetadata,
		DeviceKey:      opts.DeviceKey,
		DeviceName:     opts.DeviceName,
	}
}

func mergeOptions(meta *challenge.Meta, opts Options) {
	if opts.Attributes != nil {
		meta.Attributes = opts.Attributes
	}
	if opts.ClientMetadata != nil {
		meta.ClientMetadata = opts.ClientMetadata
	}
	if opts.DeviceKey != "" {
		meta.DeviceKey = opts.DeviceKey
	}
	if opts.DeviceName != "" {
		meta.DeviceName = opts.DeviceName
	}
}
