package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port          string `validate:"required,numeric"`
	AppEnv        string
	AllowedOrigin string `validate:"required"`
	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string `validate:"omitempty,url"`
	Model         string `validate:"required"`
	// Optional prompt catalogue override; the embedded one is used when empty
	PromptsFile string
	// Salesforce OAuth (PKCE). Missing values surface as configuration errors on use.
	SalesforceClientID     string
	SalesforceClientSecret string
	SalesforceRedirectURI  string `validate:"omitempty,url"`
	SalesforceLoginURL     string `validate:"required,url"`
	SalesforceScopes       []string
	// Salesforce REST API
	SalesforceInstanceURL string `validate:"omitempty,url"`
	SalesforceAccessToken string
	SalesforceTokenFile   string
	LeadSource            string `validate:"required"`
	DefaultPhoneRegion    string `validate:"required,len=2,alpha"`
	// Storage
	DatabaseURL   string
	RedisURL      string
	OAuthStateTTL time.Duration `validate:"gt=0"`
	// Timeouts applied around collaborator calls
	LLMTimeout time.Duration `validate:"gt=0"`
	CRMTimeout time.Duration `validate:"gt=0"`
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Port:                   getEnvDefault("PORT", "8080"),
		AppEnv:                 getEnvDefault("APP_ENV", "production"),
		AllowedOrigin:          getEnvDefault("ALLOWED_ORIGIN", "*"),
		OpenAIAPIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:          os.Getenv("OPENAI_BASE_URL"),
		Model:                  getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		PromptsFile:            os.Getenv("PROMPTS_FILE"),
		SalesforceClientID:     os.Getenv("SALESFORCE_CLIENT_ID"),
		SalesforceClientSecret: os.Getenv("SALESFORCE_CLIENT_SECRET"),
		SalesforceRedirectURI:  os.Getenv("SALESFORCE_REDIRECT_URI"),
		SalesforceLoginURL:     strings.TrimRight(getEnvDefault("SALESFORCE_LOGIN_URL", "https://login.salesforce.com"), "/"),
		SalesforceScopes:       getEnvListDefault("SALESFORCE_SCOPES", nil),
		SalesforceInstanceURL:  strings.TrimRight(os.Getenv("SALESFORCE_INSTANCE_URL"), "/"),
		SalesforceAccessToken:  os.Getenv("SALESFORCE_ACCESS_TOKEN"),
		SalesforceTokenFile:    getEnvDefault("SALESFORCE_TOKEN_FILE", "data/salesforce_token.json"),
		LeadSource:             getEnvDefault("LEAD_SOURCE", "Web Chat"),
		DefaultPhoneRegion:     strings.ToUpper(getEnvDefault("DEFAULT_PHONE_REGION", "US")),
		DatabaseURL:            os.Getenv("DB_URL"),
		RedisURL:               os.Getenv("REDIS_URL"),
		OAuthStateTTL:          getEnvDurationDefault("OAUTH_STATE_TTL", 10*time.Minute),
		LLMTimeout:             getEnvDurationDefault("LLM_TIMEOUT", 20*time.Second),
		CRMTimeout:             getEnvDurationDefault("CRM_TIMEOUT", 15*time.Second),
	}
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY is not set; replies will use fixed fallbacks")
	}
	if cfg.SalesforceClientID == "" || cfg.SalesforceRedirectURI == "" {
		slog.Warn("SALESFORCE_CLIENT_ID or SALESFORCE_REDIRECT_URI is not set; the OAuth flow is disabled")
	}
	return cfg
}

// Validate checks value formats. Absent Salesforce credentials are allowed here.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("ignoring malformed duration", "key", key, "value", v)
	}
	return def
}
