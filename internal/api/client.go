package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"homechat/internal/session"
)

const requestTimeout = 30 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Client talks to the marketplace REST API. Authenticated requests carry
// the stored access token; on a 401 the client refreshes the token pair
// once and retries the request. Safe for concurrent use.
type Client struct {
	origin string
	http   *http.Client
	creds  *session.Store
	logger *zap.Logger

	// refreshMu serializes token refreshes so concurrent 401s result in
	// a single refresh call.
	refreshMu chan struct{}
}

func NewClient(origin string, creds *session.Store, logger *zap.Logger) *Client {
	return &Client{
		origin:    origin,
		http:      &http.Client{Timeout: requestTimeout},
		creds:     creds,
		logger:    logger.Named("api"),
		refreshMu: make(chan struct{}, 1),
	}
}

// do performs an authenticated JSON request. A single 401 triggers a
// token refresh and one retry with the new access token.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	token := c.creds.AccessToken()
	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.creds.RefreshToken() != "" {
		drain(resp)
		if err := c.refreshTokens(ctx, token); err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, payload, c.creds.AccessToken())
		if err != nil {
			return err
		}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.origin+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// refreshTokens exchanges the refresh token for a new token pair.
// failedAccess is the access token that just got a 401; if another
// goroutine already rotated the tokens, the refresh is skipped.
func (c *Client) refreshTokens(ctx context.Context, failedAccess string) error {
	select {
	case c.refreshMu <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.refreshMu }()

	if c.creds.AccessToken() != failedAccess {
		return nil
	}

	c.logger.Info("access token rejected, refreshing")
	payload, err := json.Marshal(map[string]string{"refresh_token": c.creds.RefreshToken()})
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, http.MethodPost, "/auth/refresh", payload, "")
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		err := decodeError(resp)
		// The server rejected the refresh token; the stored pair is dead.
		c.logger.Warn("token refresh rejected, clearing credentials", zap.Error(err))
		if clearErr := c.creds.Clear(); clearErr != nil {
			c.logger.Warn("clear credentials", zap.Error(clearErr))
		}
		return fmt.Errorf("refresh token: %w", err)
	}
	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	return c.creds.SetTokens(tok.AccessToken, tok.RefreshToken)
}

func decodeError(resp *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	return &APIError{Status: resp.StatusCode, Detail: body.Detail}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
