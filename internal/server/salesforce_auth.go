package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"salesforce-lead-backend/internal/apperr"
	"salesforce-lead-backend/internal/types"
)

const (
	msgInvalidState   = "Invalid state parameter"
	msgExchangeFailed = "Failed to exchange code for tokens"
	msgRefreshFailed  = "Failed to refresh access token"
)

// GET /api/auth/salesforce
// Without parameters it redirects to the Salesforce authorization page. On the
// callback (?code=&state=) it exchanges the code and returns the token set.
// Salesforce errors (?error=&error_description=) are echoed back as 400.
func (s *Server) handleSalesforceAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if oauthErr := q.Get("error"); oauthErr != "" {
		s.log.WithContext(r.Context()).OAuthEvent("callback", false, oauthErr)
		writeJSON(w, http.StatusBadRequest, types.OAuthErrorResponse{
			Error:            oauthErr,
			ErrorDescription: q.Get("error_description"),
		})
		return
	}

	code, state := q.Get("code"), q.Get("state")
	switch {
	case code != "" && state != "":
		s.completeSalesforceAuth(w, r, code, state)
	case code != "":
		s.log.WithContext(r.Context()).OAuthEvent("callback", false, "missing state")
		s.writeError(w, http.StatusBadRequest, msgInvalidState)
	default:
		s.startSalesforceAuth(w, r)
	}
}

func (s *Server) startSalesforceAuth(w http.ResponseWriter, r *http.Request) {
	req, err := s.auth.GenerateAuthURL()
	if err != nil {
		s.log.WithContext(r.Context()).OAuthEvent("authorize", false, err.Error())
		s.writeAppError(w, r, err)
		return
	}
	if err := s.verifiers.Put(r.Context(), req.State, req.Verifier); err != nil {
		s.log.WithContext(r.Context()).Error("storing pkce verifier", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.log.WithContext(r.Context()).OAuthEvent("authorize", true, "")
	http.Redirect(w, r, req.URL, http.StatusFound)
}

// completeSalesforceAuth consumes the verifier before exchanging, so a state
// token is good for one attempt only.
func (s *Server) completeSalesforceAuth(w http.ResponseWriter, r *http.Request, code, state string) {
	log := s.log.WithContext(r.Context())
	verifier, ok, err := s.verifiers.Take(r.Context(), state)
	if err != nil {
		log.Error("reading pkce verifier", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !ok {
		log.OAuthEvent("callback", false, "unknown state")
		s.writeAppError(w, r, apperr.InvalidState(msgInvalidState))
		return
	}

	tok, err := s.auth.ExchangeCodeForTokens(r.Context(), code, verifier)
	if err != nil {
		log.OAuthEvent("token_exchange", false, err.Error())
		if apperr.Is(err, apperr.KindConfiguration) {
			s.writeAppError(w, r, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, msgExchangeFailed)
		return
	}
	log.OAuthEvent("token_exchange", true, "")
	s.persistToken(r.Context(), &tok)
	writeJSON(w, http.StatusOK, tok)
}

// POST /api/auth/salesforce/refresh
// Body {refresh_token?}; the stored refresh token is used when the body has none.
func (s *Server) handleSalesforceRefresh(w http.ResponseWriter, r *http.Request) {
	var req types.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var previous *types.TokenSet
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		stored, ok := s.creds.latestRefreshToken(r.Context())
		if !ok {
			s.writeError(w, http.StatusBadRequest, "refresh_token is required")
			return
		}
		previous = stored
		refreshToken = stored.RefreshToken
	}

	tok, err := s.auth.RefreshAccessToken(r.Context(), refreshToken)
	if err != nil {
		s.log.WithContext(r.Context()).OAuthEvent("token_refresh", false, err.Error())
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindTokenRefresh {
			var details any
			if ae.Details != "" {
				details = ae.Details
			}
			s.writeErrorDetails(w, http.StatusBadGateway, msgRefreshFailed, details)
			return
		}
		s.writeAppError(w, r, err)
		return
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	if tok.InstanceURL == "" && previous != nil {
		tok.InstanceURL = previous.InstanceURL
	}
	s.log.WithContext(r.Context()).OAuthEvent("token_refresh", true, "")
	s.persistToken(r.Context(), &tok)
	writeJSON(w, http.StatusOK, tok)
}

// DELETE /api/auth/salesforce
// Forgets every stored token; the configured static credential, if any, stays in effect.
func (s *Server) handleSalesforceDisconnect(w http.ResponseWriter, r *http.Request) {
	for _, ts := range s.tokens {
		if err := ts.Clear(r.Context()); err != nil {
			s.log.WithContext(r.Context()).Error("clearing salesforce token", "error", err)
			s.writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}
	s.log.WithContext(r.Context()).OAuthEvent("disconnect", true, "")
	w.WriteHeader(http.StatusNoContent)
}

// persistToken saves tok to the primary token store. A failed save is logged;
// the caller still receives the token.
func (s *Server) persistToken(ctx context.Context, tok *types.TokenSet) {
	if len(s.tokens) == 0 {
		return
	}
	if err := s.tokens[0].Write(ctx, tok); err != nil {
		s.log.WithContext(ctx).Error("persisting salesforce token", "error", err)
	}
}
