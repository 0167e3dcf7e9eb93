package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"nestly/utils"
)

// TokenSource supplies the current bearer token, or "" when no session is
// live. The client reads it per request so a token refresh never requires
// rebuilding the client.
type TokenSource func() string

// Client is the REST client for the marketplace backend. All methods
// translate failures into the error taxonomy in errors.go; callers can rely
// on errors.Is(err, ErrUnauthorized) to detect a dead token.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	logger  *zap.Logger
}

// New builds a Client against baseURL. token may be nil for a client that
// only calls public endpoints.
func New(baseURL string, timeout time.Duration, token TokenSource) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		token:   token,
		logger:  utils.GetLogger(),
	}
}

// do performs one request and decodes the JSON response into out (when out
// is non-nil). Business error bodies are decoded into *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request for %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: build request for %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.logger.Warn("request rejected by auth",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("api: %s %s: %w", method, path, ErrUnauthorized)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		raw, _ := io.ReadAll(resp.Body)
		if len(raw) > 0 {
			var body errorBody
			if json.Unmarshal(raw, &body) == nil && body.Message != "" {
				apiErr.Message = body.Message
				apiErr.Details = body.Details
			} else {
				apiErr.Message = string(raw)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response of %s %s: %w", method, path, err)
	}
	return nil
}
