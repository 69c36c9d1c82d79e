// Package idpmock provides an in-memory identity-provider client for tests.
package idpmock

import (
	"context"
	"sync"

	"github.com/corvauth/signin-manager/internal/idp"
)

type ClientOption func(*Client)

// Call records one RespondToChallenge invocation.
type Call struct {
	Session        string
	ChallengeName  string
	Responses      map[string]string
	ClientMetadata map[string]string
}

// Client replays a scripted sequence of results. Each invocation consumes
// the next scripted step; the last step repeats once the script runs out.
type Client struct {
	mu    sync.Mutex
	steps []step
	next  int
	calls []Call
}

type step struct {
	result idp.ChallengeResult
	err    error
}

var _ idp.Client = (*Client)(nil)

func WithResult(result idp.ChallengeResult) ClientOption {
	return func(c *Client) { c.steps = append(c.steps, step{result: result}) }
}

func WithError(err error) ClientOption {
	return func(c *Client) { c.steps = append(c.steps, step{err: err}) }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) RespondToChallenge(_ context.Context, session, challengeName string, responses, clientMetadata map[string]string) (idp.ChallengeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{
		Session:        session,
		ChallengeName:  challengeName,
		Responses:      responses,
		ClientMetadata: clientMetadata,
	})

	if len(c.steps) == 0 {
		return idp.ChallengeResult{}, &idp.ServiceError{Type: "NoScriptedResult"}
	}

	s := c.steps[c.next]
	if c.next < len(c.steps)-1 {
		c.next++
	}

	return s.result, s.err
}

// Calls returns a copy of all recorded invocations.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	calls := make([]Call, len(c.calls))
	copy(calls, c.calls)
	return calls
}
