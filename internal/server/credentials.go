package server

import (
	"context"
	"strings"

	"salesforce-lead-backend/internal/config"
	"salesforce-lead-backend/internal/logger"
	"salesforce-lead-backend/internal/store"
	"salesforce-lead-backend/internal/types"
)

// credentialChain resolves the Salesforce credential for REST calls:
// 1. persisted OAuth tokens, in store order (database, then file)
// 2. SALESFORCE_ACCESS_TOKEN / SALESFORCE_INSTANCE_URL from config
// A stored token without an instance URL borrows the configured one.
type credentialChain struct {
	stores []store.TokenStore
	static types.TokenSet
	log    *logger.Logger
}

func newCredentialChain(stores []store.TokenStore, cfg config.Config, log *logger.Logger) *credentialChain {
	return &credentialChain{
		stores: stores,
		static: types.TokenSet{
			AccessToken: cfg.SalesforceAccessToken,
			InstanceURL: cfg.SalesforceInstanceURL,
			TokenType:   "Bearer",
		},
		log: log,
	}
}

func (c *credentialChain) Token(ctx context.Context) (types.TokenSet, error) {
	for _, ts := range c.stores {
		tok, err := ts.Read(ctx)
		if err != nil {
			c.log.WithContext(ctx).Warn("reading stored salesforce token", "error", err)
			continue
		}
		if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
			continue
		}
		out := *tok
		if out.InstanceURL == "" {
			out.InstanceURL = c.static.InstanceURL
		}
		return out, nil
	}
	// An empty result is reported as a configuration error by the client.
	return c.static, nil
}

// latestRefreshToken returns the refresh token of the first stored credential that has one.
func (c *credentialChain) latestRefreshToken(ctx context.Context) (*types.TokenSet, bool) {
	for _, ts := range c.stores {
		tok, err := ts.Read(ctx)
		if err != nil || tok == nil {
			continue
		}
		if strings.TrimSpace(tok.RefreshToken) != "" {
			return tok, true
		}
	}
	return nil, false
}
