package qualify

import (
	"context"
	"strings"

	"salesforce-lead-backend/internal/llm"
	"salesforce-lead-backend/internal/logger"
	"salesforce-lead-backend/internal/types"
)

// Responder generates the next conversational reply from the accumulated state.
type Responder struct {
	llm     llm.Completer
	prompts *Prompts
	log     *logger.Logger
}

func NewResponder(completer llm.Completer, prompts *Prompts, log *logger.Logger) *Responder {
	return &Responder{llm: completer, prompts: prompts, log: log}
}

// Respond returns the model's reply, or the fixed reply for the stage when the
// model is unavailable or answers with nothing.
func (r *Responder) Respond(ctx context.Context, state *types.ConversationState) string {
	if r.llm == nil {
		return FallbackResponse(state.Stage)
	}
	prompt, err := r.prompts.renderResponse(state)
	if err != nil {
		r.log.WithContext(ctx).Warn("render response prompt", "stage", state.Stage, "error", err)
		return FallbackResponse(state.Stage)
	}
	text, err := r.llm.Complete(ctx, prompt, r.prompts.responseStyle)
	if err != nil {
		r.log.WithContext(ctx).Warn("response generation failed", "stage", state.Stage, "error", err)
		return FallbackResponse(state.Stage)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackResponse(state.Stage)
	}
	return text
}
