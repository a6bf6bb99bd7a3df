package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesforce-lead-backend/internal/apperr"
)

func newTestAuthenticator(loginURL string) *Authenticator {
	return NewAuthenticator(AuthConfig{
		ClientID:    "client-123",
		RedirectURI: "https://app.example.com/api/auth/salesforce",
		LoginURL:    loginURL,
	})
}

func TestGenerateAuthURL(t *testing.T) {
	a := newTestAuthenticator("https://login.example.com/")

	req, err := a.GenerateAuthURL()
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, "login.example.com", u.Host)
	assert.Equal(t, "/services/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/api/auth/salesforce", q.Get("redirect_uri"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, GenerateCodeChallenge(req.Verifier), q.Get("code_challenge"))
	assert.Equal(t, req.State, q.Get("state"))
	assert.Regexp(t, `^[0-9a-f]{32}$`, req.State)
	assert.Empty(t, q.Get("scope"))

	other, err := a.GenerateAuthURL()
	require.NoError(t, err)
	assert.NotEqual(t, req.State, other.State)
	assert.NotEqual(t, req.Verifier, other.Verifier)
}

func TestGenerateAuthURLRequiresConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  AuthConfig
	}{
		{"missing_client_id", AuthConfig{RedirectURI: "https://app.example.com/cb", LoginURL: "https://login.example.com"}},
		{"missing_redirect_uri", AuthConfig{ClientID: "client-123", LoginURL: "https://login.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuthenticator(tt.cfg).GenerateAuthURL()
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindConfiguration))
		})
	}
}

func TestExchangeCodeForTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/services/oauth2/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-123", r.PostForm.Get("client_id"))
		assert.Equal(t, "https://app.example.com/api/auth/salesforce", r.PostForm.Get("redirect_uri"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "the-verifier", r.PostForm.Get("code_verifier"))
		assert.Empty(t, r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"instance_url":  "https://acme.my.salesforce.com",
			"token_type":    "Bearer",
		})
	}))
	defer srv.Close()

	tok, err := newTestAuthenticator(srv.URL).ExchangeCodeForTokens(context.Background(), "the-code", "the-verifier")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, "https://acme.my.salesforce.com", tok.InstanceURL)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.False(t, tok.IssuedAt.IsZero())
}

func TestExchangeCodeForTokensUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"expired authorization code"}`))
	}))
	defer srv.Close()

	_, err := newTestAuthenticator(srv.URL).ExchangeCodeForTokens(context.Background(), "stale", "v")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTokenExchange))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "invalid_grant")
}

func TestRefreshAccessToken(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-123", r.PostForm.Get("client_id"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "access-2",
			"instance_url": "https://acme.my.salesforce.com",
			"token_type":   "Bearer",
		})
	}))
	defer srv.Close()

	tok, err := newTestAuthenticator(srv.URL).RefreshAccessToken(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, "https://acme.my.salesforce.com", tok.InstanceURL)
}

func TestRefreshAccessTokenFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"token revoked"}`))
	}))
	defer srv.Close()

	_, err := newTestAuthenticator(srv.URL).RefreshAccessToken(context.Background(), "revoked")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTokenRefresh))

	_, err = newTestAuthenticator(srv.URL).RefreshAccessToken(context.Background(), " ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = NewAuthenticator(AuthConfig{LoginURL: srv.URL}).RefreshAccessToken(context.Background(), "r")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}
