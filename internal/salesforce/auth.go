package salesforce

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"salesforce-lead-backend/internal/apperr"
	"salesforce-lead-backend/internal/types"
)

const (
	authorizePath = "/services/oauth2/authorize"
	tokenPath     = "/services/oauth2/token"
)

type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	LoginURL     string
	Scopes       []string
	HTTPClient   *http.Client
}

// Authenticator runs the OAuth 2.0 authorization-code flow with PKCE against
// the Salesforce login host. It keeps no state between calls: persisting the
// state -> verifier mapping is up to the caller.
type Authenticator struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

// AuthRequest is an issued authorization URL plus the values the caller must
// keep until the callback arrives.
type AuthRequest struct {
	URL      string
	State    string
	Verifier string
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	login := strings.TrimRight(cfg.LoginURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	return &Authenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   login + authorizePath,
				TokenURL:  login + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: hc,
	}
}

// GenerateAuthURL issues a new authorization URL with a fresh verifier and state.
func (a *Authenticator) GenerateAuthURL() (AuthRequest, error) {
	if a.oauth.ClientID == "" || a.oauth.RedirectURL == "" {
		return AuthRequest{}, apperr.Configuration("missing SALESFORCE_CLIENT_ID or SALESFORCE_REDIRECT_URI").WithOp("GenerateAuthURL")
	}
	verifier := GenerateCodeVerifier()
	state, err := randomState()
	if err != nil {
		return AuthRequest{}, err
	}
	u := a.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", GenerateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return AuthRequest{URL: u, State: state, Verifier: verifier}, nil
}

// ExchangeCodeForTokens trades an authorization code and its verifier for tokens.
func (a *Authenticator) ExchangeCodeForTokens(ctx context.Context, code, verifier string) (types.TokenSet, error) {
	if a.oauth.ClientID == "" || a.oauth.RedirectURL == "" {
		return types.TokenSet{}, apperr.Configuration("missing SALESFORCE_CLIENT_ID or SALESFORCE_REDIRECT_URI").WithOp("ExchangeCodeForTokens")
	}
	tok, err := a.oauth.Exchange(a.withClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return types.TokenSet{}, apperr.Wrap(apperr.KindTokenExchange, "failed to exchange code for tokens", err).
			WithOp("ExchangeCodeForTokens").
			WithDetails(upstreamBody(err))
	}
	return tokenSetFrom(tok), nil
}

// RefreshAccessToken obtains a new access token. The refresh token is carried
// over when Salesforce does not rotate it.
func (a *Authenticator) RefreshAccessToken(ctx context.Context, refreshToken string) (types.TokenSet, error) {
	if a.oauth.ClientID == "" {
		return types.TokenSet{}, apperr.Configuration("missing SALESFORCE_CLIENT_ID").WithOp("RefreshAccessToken")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return types.TokenSet{}, apperr.Validation("refresh token is required").WithOp("RefreshAccessToken")
	}
	src := a.oauth.TokenSource(a.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return types.TokenSet{}, apperr.Wrap(apperr.KindTokenRefresh, "failed to refresh access token", err).
			WithOp("RefreshAccessToken").
			WithDetails(upstreamBody(err))
	}
	return tokenSetFrom(tok), nil
}

func (a *Authenticator) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

func tokenSetFrom(tok *oauth2.Token) types.TokenSet {
	ts := types.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		IssuedAt:     time.Now().UTC(),
	}
	if v, ok := tok.Extra("instance_url").(string); ok {
		ts.InstanceURL = strings.TrimRight(v, "/")
	}
	return ts
}

// upstreamBody returns the token endpoint's error body when there is one.
func upstreamBody(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && len(re.Body) > 0 {
		return strings.TrimSpace(string(re.Body))
	}
	return err.Error()
}
