package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"salesforce-lead-backend/internal/apperr"
	"salesforce-lead-backend/internal/phone"
	"salesforce-lead-backend/internal/types"
)

const (
	leadPath = "/services/apexrest/api/v1/lead"
	casePath = "/services/apexrest/api/v1/case"

	caseSubject  = "Complex Requirements - Needs Human Review"
	notProvided  = "Not provided"
	unknownName  = "Unknown"
	statusNew    = "New"
	priorityCase = "Medium"
)

// TokenProvider supplies the bearer token and instance URL for REST calls.
type TokenProvider interface {
	Token(ctx context.Context) (types.TokenSet, error)
}

// StaticToken is a TokenProvider for a fixed, externally configured credential.
type StaticToken types.TokenSet

func (s StaticToken) Token(context.Context) (types.TokenSet, error) {
	return types.TokenSet(s), nil
}

type ClientConfig struct {
	LeadSource  string
	PhoneRegion string
	HTTPClient  *http.Client
}

// Client writes qualified prospects into Salesforce. Every call is a single
// POST; failures are returned, never retried.
type Client struct {
	httpClient  *http.Client
	tokens      TokenProvider
	leadSource  string
	phoneRegion string
}

func NewClient(tokens TokenProvider, cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		httpClient:  hc,
		tokens:      tokens,
		leadSource:  cfg.LeadSource,
		phoneRegion: cfg.PhoneRegion,
	}
}

type leadPayload struct {
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	Email       string `json:"Email"`
	Phone       string `json:"Phone,omitempty"`
	Company     string `json:"Company"`
	Description string `json:"Description"`
	LeadSource  string `json:"LeadSource"`
	Status      string `json:"Status"`
}

type casePayload struct {
	Subject     string `json:"Subject"`
	Description string `json:"Description"`
	Origin      string `json:"Origin"`
	Status      string `json:"Status"`
	Priority    string `json:"Priority"`
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateLead creates a Lead for a prospect with simple needs and returns its id.
func (c *Client) CreateLead(ctx context.Context, state *types.ConversationState) (string, error) {
	if state == nil || state.ContactInfo == nil {
		return "", apperr.Configuration("contact information is required").WithOp("CreateLead")
	}
	tok, err := c.credentials(ctx, "CreateLead")
	if err != nil {
		return "", err
	}
	ci := state.ContactInfo
	payload := leadPayload{
		FirstName:   valueOr(ci.FirstName, unknownName),
		LastName:    valueOr(ci.LastName, unknownName),
		Email:       ci.Email,
		Phone:       phone.NormalizeE164(ci.Phone, c.phoneRegion),
		Company:     ci.Company,
		Description: requirementsSummary(state),
		LeadSource:  c.leadSource,
		Status:      statusNew,
	}
	return c.postJSON(ctx, tok, leadPath, payload, "CreateLead")
}

// EscalateToCase opens a Case for a human to follow up and returns its id.
func (c *Client) EscalateToCase(ctx context.Context, state *types.ConversationState) (string, error) {
	if state == nil || state.ContactInfo == nil {
		return "", apperr.Configuration("contact information is required").WithOp("EscalateToCase")
	}
	tok, err := c.credentials(ctx, "EscalateToCase")
	if err != nil {
		return "", err
	}
	payload := casePayload{
		Subject:     caseSubject,
		Description: requirementsSummary(state) + "\n\n" + contactSummary(state.ContactInfo, c.phoneRegion),
		Origin:      c.leadSource,
		Status:      statusNew,
		Priority:    priorityCase,
	}
	return c.postJSON(ctx, tok, casePath, payload, "EscalateToCase")
}

func (c *Client) credentials(ctx context.Context, op string) (types.TokenSet, error) {
	if c.tokens == nil {
		return types.TokenSet{}, apperr.Configuration("salesforce access token not configured").WithOp(op)
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return types.TokenSet{}, apperr.Wrap(apperr.KindConfiguration, "salesforce credentials unavailable", err).WithOp(op)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return types.TokenSet{}, apperr.Configuration("salesforce access token not configured").WithOp(op)
	}
	if strings.TrimSpace(tok.InstanceURL) == "" {
		return types.TokenSet{}, apperr.Configuration("salesforce instance url not configured").WithOp(op)
	}
	return tok, nil
}

func (c *Client) postJSON(ctx context.Context, tok types.TokenSet, path string, payload any, op string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode payload: %w", op, err)
	}
	endpoint := strings.TrimRight(tok.InstanceURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(apperr.KindCRMWrite, "build request", err).WithOp(op)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindCRMWrite, "salesforce request failed", err).WithOp(op)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", apperr.New(apperr.KindCRMWrite, fmt.Sprintf("salesforce %s returned status %d", path, resp.StatusCode)).
			WithOp(op).
			WithDetails(strings.TrimSpace(string(b)))
	}
	var out createResponse
	// Apex endpoints may answer with an empty or non-JSON body; the write still succeeded.
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out.ID, nil
}

// requirementsSummary is the free-text description shared by Lead and Case records.
func requirementsSummary(s *types.ConversationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project Requirements: %s\n", valueOr(s.ProjectRequirements, notProvided))
	fmt.Fprintf(&b, "Desired Features: %s\n", valueOr(strings.Join(s.DesiredFeatures, ", "), notProvided))
	fmt.Fprintf(&b, "Budget: %s\n", valueOr(s.Budget, notProvided))
	fmt.Fprintf(&b, "Timeline: %s\n", valueOr(s.Timeline, notProvided))
	fmt.Fprintf(&b, "Additional Notes: %s", valueOr(s.AdditionalNotes, notProvided))
	return b.String()
}

func contactSummary(ci *types.ContactInfo, region string) string {
	var b strings.Builder
	b.WriteString("Contact Information:\n")
	fmt.Fprintf(&b, "Name: %s\n", strings.TrimSpace(ci.FirstName+" "+ci.LastName))
	fmt.Fprintf(&b, "Email: %s\n", ci.Email)
	fmt.Fprintf(&b, "Phone: %s\n", valueOr(phone.NormalizeE164(ci.Phone, region), notProvided))
	fmt.Fprintf(&b, "Company: %s", ci.Company)
	return b.String()
}

func valueOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
