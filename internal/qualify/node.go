// Package qualify runs the lead-qualification conversation: it pulls facts out
// of each message, moves the conversation through its stages and hands
// qualified prospects to the CRM.
package qualify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salesforce-lead-backend/internal/llm"
	"salesforce-lead-backend/internal/logger"
	"salesforce-lead-backend/internal/types"
)

const maxContextLines = 20

// CRM records a qualified prospect and returns the new record id.
type CRM interface {
	CreateLead(ctx context.Context, state *types.ConversationState) (string, error)
	EscalateToCase(ctx context.Context, state *types.ConversationState) (string, error)
}

type NodeConfig struct {
	Completer llm.Completer
	Prompts   *Prompts
	CRM       CRM
	Logger    *logger.Logger
	// LLMTimeout bounds each model call; zero means no extra bound.
	LLMTimeout time.Duration
	CRMTimeout time.Duration
}

// Node is the qualification conversation. It is safe for concurrent use; all
// per-conversation data travels in the state.
type Node struct {
	extractor  *Extractor
	responder  *Responder
	crm        CRM
	log        *logger.Logger
	llmTimeout time.Duration
	crmTimeout time.Duration
}

func NewNode(cfg NodeConfig) *Node {
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Node{
		extractor:  NewExtractor(cfg.Completer, prompts, log),
		responder:  NewResponder(cfg.Completer, prompts, log),
		crm:        cfg.CRM,
		log:        log,
		llmTimeout: cfg.LLMTimeout,
		crmTimeout: cfg.CRMTimeout,
	}
}

type Input struct {
	Text  string
	State *types.ConversationState
}

type Result struct {
	Response  string
	State     *types.ConversationState
	ShouldEnd bool
}

// Run handles one user turn. It never fails: problems with the model or the
// CRM turn into a fixed reply and the conversation can carry on. The caller's
// state is not modified.
func (n *Node) Run(ctx context.Context, in Input) (res Result) {
	state := in.State.Clone()
	if !state.Stage.Valid() {
		state.Stage = types.StageInitial
	}
	log := n.log.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("qualification turn panicked", "stage", state.Stage, "panic", fmt.Sprint(r))
			res = Result{Response: FallbackResponse(state.Stage), State: state}
		}
	}()

	extraction := n.extract(ctx, in.Text, state)
	extraction.Apply(state)

	from := state.Stage
	Advance(state)
	if state.Stage != from {
		log.Info("stage advanced", "from", from, "to", state.Stage)
	}

	var response string
	if state.Stage == types.StageQualification {
		response = n.qualify(ctx, state)
	} else {
		response = n.respond(ctx, state)
	}

	state.Context = appendTurn(state.Context, in.Text, response)
	return Result{
		Response:  response,
		State:     state,
		ShouldEnd: state.Stage == types.StageComplete,
	}
}

// Advance applies at most one stage transition, each guarded by the current
// stage so no stage is skipped. It reports whether the stage changed.
func Advance(state *types.ConversationState) bool {
	switch {
	case state.Stage == types.StageInitial && state.ProjectRequirements != "":
		state.Stage = types.StageGatheringRequirements
	case state.Stage == types.StageGatheringRequirements && state.Budget != "" && state.Timeline != "":
		state.Stage = types.StageContactInfo
	case state.Stage == types.StageContactInfo && state.Email() != "" && state.Company() != "":
		state.Stage = types.StageQualification
	default:
		return false
	}
	return true
}

func (n *Node) extract(ctx context.Context, text string, state *types.ConversationState) Extraction {
	if strings.TrimSpace(text) == "" {
		return Extraction{}
	}
	ctx, cancel := withTimeout(ctx, n.llmTimeout)
	defer cancel()
	return n.extractor.Extract(ctx, text, state)
}

func (n *Node) respond(ctx context.Context, state *types.ConversationState) string {
	ctx, cancel := withTimeout(ctx, n.llmTimeout)
	defer cancel()
	return n.responder.Respond(ctx, state)
}

// qualify writes the prospect to the CRM. Only a successful write completes
// the conversation; a failure keeps the qualification stage so the next turn
// retries.
func (n *Node) qualify(ctx context.Context, state *types.ConversationState) string {
	log := n.log.WithContext(ctx)
	if n.crm == nil {
		log.Error("no CRM configured, cannot record prospect", "company", state.Company())
		return crmFailureMessage
	}

	ctx, cancel := withTimeout(ctx, n.crmTimeout)
	defer cancel()

	analysis := AnalyzeRequirements(state)
	object, write, ack := "Lead", n.crm.CreateLead, leadCreatedMessage
	if analysis.IsComplex {
		object, write, ack = "Case", n.crm.EscalateToCase, caseEscalatedMessage
	}

	id, err := write(ctx, state)
	log.CRMWrite(object, state.Company(), id, err)
	if err != nil {
		return crmFailureMessage
	}
	state.Stage = types.StageComplete
	return ack
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func appendTurn(history, input, response string) string {
	var lines []string
	if history != "" {
		lines = strings.Split(history, "\n")
	}
	if input = strings.TrimSpace(input); input != "" {
		lines = append(lines, "User: "+oneLine(input))
	}
	lines = append(lines, "Assistant: "+oneLine(response))
	if len(lines) > maxContextLines {
		lines = lines[len(lines)-maxContextLines:]
	}
	return strings.Join(lines, "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
