package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RemoteVerifier asks the hosted auth service who owns a token.
type RemoteVerifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRemoteVerifier creates a verifier calling {baseURL}/auth/v1/user.
func NewRemoteVerifier(baseURL, apiKey string) *RemoteVerifier {
	return &RemoteVerifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify resolves token to a user via the auth service.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: auth service returned %d", ErrInvalidToken, resp.StatusCode)
	}

	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if body.ID == "" {
		return nil, ErrAnonToken
	}
	id, err := uuid.Parse(body.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: user id is not a uuid", ErrInvalidToken)
	}
	return &User{ID: id, Email: body.Email, Role: body.Role}, nil
}
