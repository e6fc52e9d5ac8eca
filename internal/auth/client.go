package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/gateway"
)

var (
	// ErrNoAuthCode is returned when Exchange is called without a code.
	ErrNoAuthCode = errors.New("authorization code is required")
	// ErrNoToken is returned when the backend or a callback URL carried no
	// access token.
	ErrNoToken = errors.New("no access token received")
)

// Sender is the part of the gateway the auth flow needs.
type Sender interface {
	Send(ctx context.Context, req gateway.Request) ([]byte, error)
}

// Client runs the login and logout exchanges.
type Client struct {
	gw    Sender
	store *Store
}

// NewClient builds a Client writing to store.
func NewClient(gw Sender, store *Store) *Client {
	return &Client{gw: gw, store: store}
}

type exchangeResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresAt   json.RawMessage `json:"expires_at"`
}

// Exchange trades an OAuth authorization code for an access token and
// persists it.
func (c *Client) Exchange(ctx context.Context, code string) (Credentials, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Credentials{}, ErrNoAuthCode
	}

	payload, err := c.gw.Send(ctx, gateway.Request{
		Method:   http.MethodPost,
		Endpoint: "/auth/exchange-token",
		Query:    url.Values{"auth_code": {code}},
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("token exchange failed: %w", err)
	}

	var resp exchangeResponse
	if err := gateway.Data(payload, &resp); err != nil {
		return Credentials{}, fmt.Errorf("token exchange failed: %w", err)
	}
	if resp.AccessToken == "" {
		return Credentials{}, ErrNoToken
	}
	expires, err := ParseExpiry(strings.Trim(string(resp.ExpiresAt), `"`))
	if err != nil && string(resp.ExpiresAt) != "null" {
		return Credentials{}, fmt.Errorf("token exchange failed: %w", err)
	}

	creds := Credentials{AccessToken: resp.AccessToken, ExpiresAt: expires}
	if err := c.store.Save(creds); err != nil {
		return Credentials{}, err
	}
	utils.LogDebug("auth: token exchange succeeded")
	return creds, nil
}

// Logout tells the backend the session is over and removes the local token
// whatever the backend answers. It reports whether the backend confirmed.
func (c *Client) Logout(ctx context.Context) (bool, error) {
	_, sendErr := c.gw.Send(ctx, gateway.Request{Method: http.MethodGet, Endpoint: "/auth/logout"})
	if sendErr != nil {
		utils.LogDebug(fmt.Sprintf("auth: logout request failed: %v", sendErr))
	}
	if err := c.store.ClearToken(); err != nil {
		return false, err
	}
	return sendErr == nil, nil
}

// ParseCallback reads the credentials the backend puts on its post-login
// redirect: access_token, username, email and profile_picture.
func ParseCallback(rawURL string) (Credentials, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Credentials{}, fmt.Errorf("invalid callback URL: %w", err)
	}
	q := u.Query()
	creds := Credentials{
		AccessToken: q.Get("access_token"),
		Email:       q.Get("email"),
		Name:        q.Get("username"),
		Picture:     q.Get("profile_picture"),
	}
	if creds.AccessToken == "" {
		return Credentials{}, ErrNoToken
	}
	if exp := q.Get("expires_at"); exp != "" {
		if creds.ExpiresAt, err = ParseExpiry(exp); err != nil {
			return Credentials{}, err
		}
	}
	return creds, nil
}
