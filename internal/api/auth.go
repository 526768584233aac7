package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"homechat/internal/session"
)

// Login authenticates with username and password and returns the full
// credential set, including the user's profile. It does not persist
// anything; the caller decides whether to save.
func (c *Client) Login(ctx context.Context, username, password string) (session.Credentials, error) {
	var creds session.Credentials

	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return creds, err
	}
	resp, err := c.send(ctx, http.MethodPost, "/auth/login", payload, "")
	if err != nil {
		return creds, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return creds, decodeError(resp)
	}
	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return creds, fmt.Errorf("decode login response: %w", err)
	}

	// The login endpoint only returns tokens; fetch the profile for the
	// user id the transport and echo reconciliation need.
	profile, err := c.profile(ctx, tok.AccessToken)
	if err != nil {
		return creds, fmt.Errorf("fetch profile: %w", err)
	}

	creds = session.Credentials{
		UserID:       profile.ID,
		Username:     profile.Username,
		Email:        profile.Email,
		Role:         profile.Role,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	return creds, nil
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &u)
	return u, err
}

func (c *Client) profile(ctx context.Context, accessToken string) (User, error) {
	var u User
	resp, err := c.send(ctx, http.MethodGet, "/auth/profile", nil, accessToken)
	if err != nil {
		return u, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return u, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return u, fmt.Errorf("decode profile: %w", err)
	}
	return u, nil
}
