// Package client talks to the sentinel-mfa HTTP API on behalf of terminal
// form hosts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
)

const (
	apiLogin  = "/v1/login"
	apiVerify = "/v1/mfa/verify"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrChallengeExpired = errors.New("challenge expired")
)

// APIError is any other non-success response.
type APIError struct {
	Status         int
	Message        string
	TranslationKey string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.Status, e.Message)
}

// Challenge is a login that needs a code before it can complete.
type Challenge struct {
	Message        string
	TranslationKey string
	Code           domain.CodeField
	State          domain.StateField
}

// LoginResult holds either a session or a challenge.
type LoginResult struct {
	Session   *domain.AuthResponse
	Challenge *Challenge
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient gets a
// default with a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Login submits the password step.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	status, body, err := c.post(ctx, apiLogin, map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var session domain.AuthResponse
		if err := json.Unmarshal(body, &session); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		return &LoginResult{Session: &session}, nil
	case http.StatusAccepted:
		ch, err := decodeChallenge(body)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Challenge: ch}, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	}
	return nil, apiError(status, body)
}

// Verify submits the code for the challenge identified by state.
func (c *Client) Verify(ctx context.Context, state, code string) (*domain.AuthResponse, error) {
	status, body, err := c.post(ctx, apiVerify, map[string]string{"state": state, "code": code})
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var session domain.AuthResponse
		if err := json.Unmarshal(body, &session); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		return &session, nil
	case http.StatusGone:
		return nil, ErrChallengeExpired
	}
	return nil, apiError(status, body)
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func decodeChallenge(body []byte) (*Challenge, error) {
	var raw struct {
		Message             string `json:"message"`
		TranslatableMessage struct {
			Key string `json:"key"`
		} `json:"translatableMessage"`
		Fields []json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}

	ch := &Challenge{Message: raw.Message, TranslationKey: raw.TranslatableMessage.Key}
	var haveCode, haveState bool
	for _, f := range raw.Fields {
		var header domain.Field
		if err := json.Unmarshal(f, &header); err != nil {
			return nil, fmt.Errorf("failed to decode field: %w", err)
		}
		switch header.Type {
		case domain.CodeFieldType:
			if err := json.Unmarshal(f, &ch.Code); err != nil {
				return nil, fmt.Errorf("failed to decode code field: %w", err)
			}
			haveCode = true
		case domain.StateFieldType:
			if err := json.Unmarshal(f, &ch.State); err != nil {
				return nil, fmt.Errorf("failed to decode state field: %w", err)
			}
			haveState = true
		}
	}
	if !haveCode || !haveState {
		return nil, errors.New("challenge is missing the code or state field")
	}
	return ch, nil
}

func apiError(status int, body []byte) error {
	var raw struct {
		Error               string `json:"error"`
		TranslatableMessage struct {
			Key string `json:"key"`
		} `json:"translatableMessage"`
	}
	_ = json.Unmarshal(body, &raw)
	if raw.Error == "" {
		raw.Error = http.StatusText(status)
	}
	return &APIError{Status: status, Message: raw.Error, TranslationKey: raw.TranslatableMessage.Key}
}
