package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/tropicnights/internal/models"
)

// RemoteGateway talks to a GoTrue-style external auth service over HTTP.
// The service owns all credentials; this client only relays email/password
// and maps rejections to AuthError.
type RemoteGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemoteGateway creates a gateway client for the auth service at baseURL,
// authenticating service-to-service calls with apiKey.
func NewRemoteGateway(baseURL, apiKey string, timeout time.Duration) *RemoteGateway {
	return &RemoteGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signInResponse carries the fields we need from the token response.
type signInResponse struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// gatewayError mirrors the error payloads the auth service produces; the
// message field varies by endpoint and service version.
type gatewayError struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func (e gatewayError) text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Msg != "":
		return e.Msg
	case e.ErrorDescription != "":
		return e.ErrorDescription
	}
	return "authentication failed"
}

// SignUp registers a new user with the auth service. Rejections (duplicate
// email, weak password) come back as *AuthError.
func (g *RemoteGateway) SignUp(ctx context.Context, email, password string) error {
	resp, err := g.post(ctx, "/signup", credentialsRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return g.rejection(resp)
	}
	return nil
}

// SignIn exchanges email/password for the authenticated user record.
func (g *RemoteGateway) SignIn(ctx context.Context, email, password string) (models.User, error) {
	resp, err := g.post(ctx, "/token?grant_type=password", credentialsRequest{Email: email, Password: password})
	if err != nil {
		return models.User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.User{}, g.rejection(resp)
	}

	var body signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.User{}, fmt.Errorf("decode auth response: %w", err)
	}

	id, err := uuid.Parse(body.User.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("auth service returned malformed user id %q: %w", body.User.ID, err)
	}

	return models.User{ID: id, Email: body.User.Email}, nil
}

// post sends a JSON body to the auth service with the service API key.
func (g *RemoteGateway) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service unreachable: %w", err)
	}
	return resp, nil
}

// rejection decodes an error payload into an *AuthError.
func (g *RemoteGateway) rejection(resp *http.Response) error {
	var ge gatewayError
	_ = json.NewDecoder(resp.Body).Decode(&ge)
	return &AuthError{Message: ge.text()}
}
