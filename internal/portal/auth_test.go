package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedToken returns an HS256 JWT with the given exp claim.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp":        exp.Unix(),
		"token_type": "access",
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	return s
}

func TestLogin_Success(t *testing.T) {
	exp := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	access := signedToken(t, exp)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/login/", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"username": "alice", "password": "s3cret"}, body)

		_, _ = w.Write([]byte(`{"refresh":"r1","access":"` + access + `"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	tok, err := c.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, access, tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.True(t, exp.Equal(tok.Expiry))
}

func TestLogin_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	_, err := c.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "No active account")
}

func TestLogin_MissingTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access":"a"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	_, err := c.Login(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestRefresh_KeepsRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/refresh/", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r1", body["refresh"])

		_, _ = w.Write([]byte(`{"access":"a2"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	tok, err := c.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
	assert.True(t, tok.Expiry.IsZero(), "opaque token has no expiry")
}

func TestRefresh_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"token_not_valid","messages":[{"token_class":"RefreshToken","message":"Token is blacklisted"}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	_, err := c.Refresh(context.Background(), "revoked")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token refresh")
}

func TestProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/profile/", r.URL.Path)
		assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":3,"username":"alice","email":"a@example.kz","is_staff":true}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	p, err := c.Profile(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, "alice", p.Username)
	assert.True(t, p.IsStaff)
}

func TestProfile_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	_, err := c.Profile(context.Background(), "a1")
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	got, ok := TokenExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = TokenExpiry("not-a-jwt")
	assert.False(t, ok)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}).SignedString([]byte("k"))
	require.NoError(t, err)

	_, ok = TokenExpiry(noExp)
	assert.False(t, ok)
}
