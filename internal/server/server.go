package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"salesforce-lead-backend/internal/apperr"
	"salesforce-lead-backend/internal/config"
	"salesforce-lead-backend/internal/db"
	"salesforce-lead-backend/internal/llm"
	"salesforce-lead-backend/internal/logger"
	"salesforce-lead-backend/internal/qualify"
	"salesforce-lead-backend/internal/salesforce"
	"salesforce-lead-backend/internal/store"
	"salesforce-lead-backend/internal/types"
)

// Deps are the collaborators built outside the server. Zero values fall back
// to in-process defaults.
type Deps struct {
	Logger    *logger.Logger
	Completer llm.Completer
	// Verifiers holds pending PKCE verifiers between redirect and callback.
	Verifiers store.VerifierStore
	// Tokens are the persisted Salesforce credentials in lookup order; the
	// first one receives newly issued tokens.
	Tokens   []store.TokenStore
	Database *db.DB
	// CRM overrides the Salesforce REST client.
	CRM        qualify.CRM
	HTTPClient *http.Client
}

type Server struct {
	router    *chi.Mux
	cfg       config.Config
	log       *logger.Logger
	validate  *validator.Validate
	auth      *salesforce.Authenticator
	verifiers store.VerifierStore
	tokens    []store.TokenStore
	creds     *credentialChain
	database  *db.DB
	node      *qualify.Node
}

func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	log := deps.Logger
	if log == nil {
		log = logger.New(cfg.AppEnv)
	}

	prompts, err := qualify.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	verifiers := deps.Verifiers
	if verifiers == nil {
		verifiers = store.NewMemoryStore(cfg.OAuthStateTTL)
	}
	tokens := deps.Tokens
	if len(tokens) == 0 && cfg.SalesforceTokenFile != "" {
		tokens = []store.TokenStore{store.NewFileTokenStore(cfg.SalesforceTokenFile)}
	}

	creds := newCredentialChain(tokens, cfg, log)
	crm := deps.CRM
	if crm == nil {
		crm = salesforce.NewClient(creds, salesforce.ClientConfig{
			LeadSource:  cfg.LeadSource,
			PhoneRegion: cfg.DefaultPhoneRegion,
			HTTPClient:  deps.HTTPClient,
		})
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	r.Use(requestID)
	r.Use(requestLogger(log))

	s := &Server{
		router:   r,
		cfg:      cfg,
		log:      log,
		validate: validator.New(),
		auth: salesforce.NewAuthenticator(salesforce.AuthConfig{
			ClientID:     cfg.SalesforceClientID,
			ClientSecret: cfg.SalesforceClientSecret,
			RedirectURI:  cfg.SalesforceRedirectURI,
			LoginURL:     cfg.SalesforceLoginURL,
			Scopes:       cfg.SalesforceScopes,
			HTTPClient:   deps.HTTPClient,
		}),
		verifiers: verifiers,
		tokens:    tokens,
		creds:     creds,
		database:  deps.Database,
		node: qualify.NewNode(qualify.NodeConfig{
			Completer:  deps.Completer,
			Prompts:    prompts,
			CRM:        crm,
			Logger:     log,
			LLMTimeout: cfg.LLMTimeout,
			CRMTimeout: cfg.CRMTimeout,
		}),
	}
	r.Use(s.recoverer)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/chat", s.handleChat)
	// Salesforce OAuth (PKCE)
	s.router.Get("/api/auth/salesforce", s.handleSalesforceAuth)
	s.router.Post("/api/auth/salesforce/refresh", s.handleSalesforceRefresh)
	s.router.Delete("/api/auth/salesforce", s.handleSalesforceDisconnect)
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.database.HealthCheck(ctx); err != nil {
			s.log.WithContext(r.Context()).Error("database health check failed", "error", err)
			s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/chat
// One qualification turn. The caller keeps the returned state and sends it back next turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			s.writeErrorDetails(w, http.StatusBadRequest, "invalid request", verrs.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	res := s.node.Run(r.Context(), qualify.Input{Text: req.Input, State: req.State})
	writeJSON(w, http.StatusOK, types.ChatResponse{
		Response:  res.Response,
		State:     res.State,
		ShouldEnd: res.ShouldEnd,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, types.ErrorResponse{Error: msg})
}

func (s *Server) writeErrorDetails(w http.ResponseWriter, code int, msg string, details any) {
	writeJSON(w, code, types.ErrorResponse{Error: msg, Details: details})
}

// writeAppError maps err to a status via its kind. Messages of unknown errors
// are not exposed.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		s.log.WithContext(r.Context()).Error("unhandled error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	status := ae.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.log.WithContext(r.Context()).Error("request failed", "kind", ae.Kind.String(), "error", err)
	}
	if ae.Details != nil && ae.Details != "" {
		s.writeErrorDetails(w, status, ae.Message, ae.Details)
		return
	}
	s.writeError(w, status, ae.Message)
}
