package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/portal-go/internal/credstore"
)

// Account endpoint paths.
const (
	loginPath   = "/users/login/"
	refreshPath = "/users/refresh/"
	profilePath = "/users/profile/"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// Login exchanges a username and password for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	var out loginResponse
	if err := c.postJSON(ctx, loginPath, loginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, fmt.Errorf("portal: login: %w", err)
	}

	if out.Access == "" || out.Refresh == "" {
		return nil, fmt.Errorf("portal: login: %w: response missing tokens", ErrRequestFailed)
	}

	c.logger.Info("login succeeded", slog.String("username", username))

	return newToken(out.Access, out.Refresh), nil
}

// Refresh exchanges a refresh token for a new access token. The returned
// token carries the same refresh token it was given.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var out refreshResponse
	if err := c.postJSON(ctx, refreshPath, refreshRequest{Refresh: refreshToken}, &out); err != nil {
		return nil, fmt.Errorf("portal: token refresh: %w", err)
	}

	if out.Access == "" {
		return nil, fmt.Errorf("portal: token refresh: %w: response missing access token", ErrRequestFailed)
	}

	c.logger.Debug("access token refreshed")

	return newToken(out.Access, refreshToken), nil
}

// Profile fetches the user the access token belongs to. It is a single
// attempt; an expired token here is a plain failure.
func (c *Client) Profile(ctx context.Context, accessToken string) (*credstore.Profile, error) {
	resp, err := c.send(ctx, &Request{
		Method: http.MethodGet,
		URL:    c.url(profilePath),
		Header: jsonHeader(),
	}, accessToken)
	if err != nil {
		return nil, fmt.Errorf("portal: profile fetch: %w", err)
	}

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("portal: profile fetch: %w", statusError(resp, classifyStatus(resp.StatusCode)))
	}

	var p credstore.Profile
	if err := decodeJSON(resp, &p); err != nil {
		return nil, fmt.Errorf("portal: profile fetch: %w", err)
	}

	return &p, nil
}

// postJSON sends an unauthenticated JSON POST and decodes a 2xx reply.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	resp, err := c.send(ctx, &Request{
		Method: http.MethodPost,
		URL:    c.url(path),
		Header: jsonHeader(),
		GetBody: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		},
	}, "")
	if err != nil {
		return err
	}

	if !isSuccess(resp.StatusCode) {
		return statusError(resp, classifyStatus(resp.StatusCode))
	}

	return decodeJSON(resp, out)
}

// newToken builds a bearer token, taking Expiry from the access token's
// exp claim when it has one.
func newToken(access, refresh string) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}

	if exp, ok := TokenExpiry(access); ok {
		tok.Expiry = exp
	}

	return tok
}

func jsonHeader() http.Header {
	return http.Header{"Content-Type": []string{"application/json"}}
}

// statusError reads and closes a failed response and wraps sentinel.
func statusError(resp *http.Response, sentinel error) *APIError {
	body := readErrorBody(resp)

	return &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(headerRequestID),
		Message:    string(bytes.TrimSpace(body)),
		Err:        sentinel,
	}
}
