package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Request and header constants.
const (
	defaultUserAgent = "portal-go/0.1"
	headerRequestID  = "X-Request-ID"

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Marker substring and fields of the one 401 that is refreshable:
// an expired access token reported by the backend's JWT layer.
const (
	tokenNotValidCode = "token_not_valid"
	accessTokenClass  = "AccessToken"
	accessTokenType   = "access"
	expiredMarker     = "expired"
)

// TokenReader exposes the persisted access token. The Executor re-reads it
// after a refresh instead of trusting the refresh call's return value.
type TokenReader interface {
	AccessToken() string
}

// RefreshFunc obtains and persists a new access token.
type RefreshFunc func(ctx context.Context) error

// Authorizer is the session view resource operations need: the current
// access token and a way to refresh it.
type Authorizer interface {
	AccessToken() string
	RefreshAccessToken(ctx context.Context) error
}

// Request describes one call for Execute. GetBody returns a fresh copy of
// the body for each attempt so the retry re-sends the same payload; nil
// means no body. A positive ContentLength is sent as is; otherwise a body
// goes out chunked.
type Request struct {
	Method        string
	URL           string
	Header        http.Header
	GetBody       func() (io.ReadCloser, error)
	ContentLength int64
}

// Client is an HTTP client for the portal backend.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokens        TokenReader
	logger        *slog.Logger
	userAgent     string
	maxUploadSize int64
}

// NewClient creates a portal client. baseURL is the backend host, e.g.
// "http://127.0.0.1:8000", without a trailing slash. tokens is consulted
// after every refresh.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenReader, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    httpClient,
		tokens:        tokens,
		logger:        logger,
		userAgent:     userAgent,
		maxUploadSize: MaxUploadSize,
	}
}

// BaseURL returns the backend host the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetMaxUploadSize overrides the client-side upload ceiling.
func (c *Client) SetMaxUploadSize(n int64) {
	c.maxUploadSize = n
}

// Execute sends req with "Authorization: Bearer accessToken" and returns
// the response untouched unless it is a 401.
//
// A 401 is retried only when its body carries the expired-access-token
// signature. In that case refresh is called once, the new token is read
// back from the TokenReader, and the request is re-sent once. Every other
// 401, a failed refresh, and a 401 on the retry all yield
// ErrAuthenticationFailed. The caller closes the returned body.
func (c *Client) Execute(ctx context.Context, req *Request, accessToken string, refresh RefreshFunc) (*http.Response, error) {
	resp, err := c.send(ctx, req, accessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	body := readErrorBody(resp)
	reqID := resp.Header.Get(headerRequestID)

	if !isAccessTokenExpired(body) {
		c.logger.Info("request rejected, not an expired access token",
			slog.String("method", req.Method),
			slog.String("url", req.URL),
		)

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  reqID,
			Message:    string(body),
			Err:        ErrAuthenticationFailed,
		}
	}

	if refresh == nil {
		return nil, fmt.Errorf("%w: access token expired and no refresh available", ErrAuthenticationFailed)
	}

	c.logger.Info("access token expired, refreshing",
		slog.String("method", req.Method),
		slog.String("url", req.URL),
	)

	if err := refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("portal: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("%w: refreshing access token: %w", ErrAuthenticationFailed, err)
	}

	newToken := c.tokens.AccessToken()
	if newToken == "" {
		return nil, fmt.Errorf("%w: no access token after refresh", ErrAuthenticationFailed)
	}

	resp, err = c.send(ctx, req, newToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		retryBody := readErrorBody(resp)

		c.logger.Warn("request still unauthorized after refresh",
			slog.String("method", req.Method),
			slog.String("url", req.URL),
		)

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get(headerRequestID),
			Message:    string(retryBody),
			Err:        ErrAuthenticationFailed,
		}
	}

	return resp, nil
}

// send performs a single attempt. Caller headers are copied first so they
// can never replace the bearer token.
func (c *Client) send(ctx context.Context, req *Request, accessToken string) (*http.Response, error) {
	var body io.Reader

	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("portal: preparing request body: %w", err)
		}

		body = rc
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("portal: creating request: %w", err)
	}

	if body != nil && req.ContentLength > 0 {
		httpReq.ContentLength = req.ContentLength
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	reqID := uuid.NewString()
	httpReq.Header.Set(headerRequestID, reqID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("portal: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("portal: %s %s: %w", req.Method, req.URL, err)
	}

	c.logger.Debug("request completed",
		slog.String("method", req.Method),
		slog.String("url", req.URL),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", reqID),
	)

	return resp, nil
}

// readErrorBody reads (up to maxErrorBody) and closes an error response.
func readErrorBody(resp *http.Response) []byte {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return []byte("(failed to read response body)")
	}

	return body
}

// tokenErrorBody is the backend's JWT rejection payload.
type tokenErrorBody struct {
	Code     string              `json:"code"`
	Messages []tokenErrorMessage `json:"messages"`
}

type tokenErrorMessage struct {
	TokenClass string `json:"token_class"`
	TokenType  string `json:"token_type"`
	Message    string `json:"message"`
}

// isAccessTokenExpired reports whether a 401 body is exactly the expired
// access token signature. Unparseable bodies are not.
func isAccessTokenExpired(body []byte) bool {
	var parsed tokenErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}

	if parsed.Code != tokenNotValidCode {
		return false
	}

	for _, m := range parsed.Messages {
		if m.TokenClass == accessTokenClass &&
			m.TokenType == accessTokenType &&
			strings.Contains(strings.ToLower(m.Message), expiredMarker) {
			return true
		}
	}

	return false
}

// url joins the base URL and an API path.
func (c *Client) url(path string) string {
	return c.baseURL + path
}

// decodeJSON decodes a successful response body into v and closes it.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("portal: decoding response: %w", err)
	}

	return nil
}
