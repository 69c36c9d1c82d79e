// Package metrics exposes OpenTelemetry counters for the sign-in state
// machine. A nil *Metrics is valid and records nothing, so wiring telemetry
// stays optional.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	attemptsStarted    metric.Int64Counter
	attemptsSignedIn   metric.Int64Counter
	attemptsFailed     metric.Int64Counter
	challengeRetries   metric.Int64Counter
	staleEventsDropped metric.Int64Counter
}

func New(applicationName string) (*Metrics, error) {
	meter := otel.Meter(
		"signin-manager/"+applicationName,
		metric.WithInstrumentationVersion(otel.Version()),
	)

	m := &Metrics{}
	var err error

	m.attemptsStarted, err = meter.Int64Counter(
		"signin.attempt.started",
		metric.WithDescription("Sign-in attempts started"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attempt.started meter: %w", err)
	}

	m.attemptsSignedIn, err = meter.Int64Counter(
		"signin.attempt.signed_in",
		metric.WithDescription("Sign-in attempts that reached the SignedIn state"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attempt.signed_in meter: %w", err)
	}

	m.attemptsFailed, err = meter.Int64Counter(
		"signin.attempt.failed",
		metric.WithDescription("Sign-in attempts that reached the Failed state"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attempt.failed meter: %w", err)
	}

	m.challengeRetries, err = meter.Int64Counter(
		"signin.challenge.retries",
		metric.WithDescription("Challenge verifications retried after a missing device record"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating challenge.retries meter: %w", err)
	}

	m.staleEventsDropped, err = meter.Int64Counter(
		"signin.event.stale_dropped",
		metric.WithDescription("Events dropped because their attempt was superseded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating event.stale_dropped meter: %w", err)
	}

	return m, nil
}

func methodAttr(method string) metric.AddOption {
	return metric.WithAttributes(attribute.String("signin.method", method))
}

func (m *Metrics) AttemptStarted(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.attemptsStarted.Add(ctx, 1, methodAttr(method))
}

func (m *Metrics) AttemptSignedIn(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.attemptsSignedIn.Add(ctx, 1, methodAttr(method))
}

func (m *Metrics) AttemptFailed(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.attemptsFailed.Add(ctx, 1, methodAttr(method))
}

func (m *Metrics) ChallengeRetried(ctx context.Context) {
	if m == nil {
		return
	}
	m.challengeRetries.Add(ctx, 1)
}

func (m *Metrics) StaleEventDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.staleEventsDropped.Add(ctx, 1)
}
