package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const respondTarget = "AWSCognitoIdentityProviderService.RespondToAuthChallenge"

// HTTPClient talks to a Cognito-style JSON-RPC identity provider endpoint.
type HTTPClient struct {
	endpoint string
	clientID string
	client   *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(endpoint, clientID string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{
		endpoint: endpoint,
		clientID: clientID,
		client:   client,
	}
}

type respondRequest struct {
	ClientID           string            `json:"ClientId"`
	ChallengeName      string            `json:"ChallengeName"`
	Session            string            `json:"Session,omitempty"`
	ChallengeResponses map[string]string `json:"ChallengeResponses"`
	ClientMetadata     map[string]string `json:"ClientMetadata,omitempty"`
}

type errorResponse struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (c *HTTPClient) RespondToChallenge(ctx context.Context, session, challengeName string, responses, clientMetadata map[string]string) (ChallengeResult, error) {
	body, err := json.Marshal(respondRequest{
		ClientID:           c.clientID,
		ChallengeName:      challengeName,
		Session:            session,
		ChallengeResponses: responses,
		ClientMetadata:     clientMetadata,
	})
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("encoding challenge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", respondTarget)

	resp, err := c.client.Do(req)
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return ChallengeResult{}, classifyError(respBody, resp.StatusCode)
	}

	var result ChallengeResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return ChallengeResult{}, fmt.Errorf("decoding challenge response: %w", err)
	}

	return result, nil
}

// classifyError maps the provider's error envelope onto the package
// sentinels so callers can branch with errors.Is.
func classifyError(body []byte, statusCode int) error {
	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Type == "" {
		return &ServiceError{
			Type:    fmt.Sprintf("HTTP %d", statusCode),
			Message: string(body),
		}
	}

	svcErr := &ServiceError{Type: envelope.Type, Message: envelope.Message}
	switch envelope.Type {
	case "ResourceNotFoundException":
		return errors.Join(ErrResourceNotFound, svcErr)
	case "NotAuthorizedException":
		return errors.Join(ErrNotAuthorized, svcErr)
	default:
		return svcErr
	}
}
