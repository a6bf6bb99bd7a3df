package qualify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesforce-lead-backend/internal/llm"
	"salesforce-lead-backend/internal/types"
)

// scriptedLLM answers extraction prompts (JSON mode) with extraction and
// everything else with reply.
type scriptedLLM struct {
	extraction string
	reply      string
	err        error
	prompts    []string
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string, opts llm.Options) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if opts.JSON {
		return s.extraction, nil
	}
	return s.reply, nil
}

type fakeCRM struct {
	leads, cases int
	err          error
	seen         *types.ConversationState
}

func (f *fakeCRM) CreateLead(_ context.Context, state *types.ConversationState) (string, error) {
	f.leads++
	f.seen = state
	if f.err != nil {
		return "", f.err
	}
	return "00Q1", nil
}

func (f *fakeCRM) EscalateToCase(_ context.Context, state *types.ConversationState) (string, error) {
	f.cases++
	f.seen = state
	if f.err != nil {
		return "", f.err
	}
	return "5001", nil
}

func newTestNode(l llm.Completer, crm CRM) *Node {
	return NewNode(NodeConfig{Completer: l, CRM: crm})
}

func TestRunStartsFromInitialWhenStateMissing(t *testing.T) {
	l := &scriptedLLM{extraction: `{}`, reply: "Hi there! What are you working on?"}
	res := newTestNode(l, &fakeCRM{}).Run(context.Background(), Input{Text: "hello"})

	require.NotNil(t, res.State)
	assert.Equal(t, types.StageInitial, res.State.Stage)
	assert.Equal(t, "Hi there! What are you working on?", res.Response)
	assert.False(t, res.ShouldEnd)
}

func TestRunInitialToGatheringRequirements(t *testing.T) {
	l := &scriptedLLM{extraction: `{"projectRequirements":"need a CRM"}`, reply: "Tell me more."}
	res := newTestNode(l, &fakeCRM{}).Run(context.Background(), Input{
		Text:  "We need a CRM",
		State: &types.ConversationState{Stage: types.StageInitial},
	})

	assert.Equal(t, types.StageGatheringRequirements, res.State.Stage)
	assert.Equal(t, "need a CRM", res.State.ProjectRequirements)
}

func TestRunGatheringRequirementsToContactInfo(t *testing.T) {
	l := &scriptedLLM{extraction: `{}`, reply: "Who should we contact?"}
	res := newTestNode(l, &fakeCRM{}).Run(context.Background(), Input{
		Text: "that's all",
		State: &types.ConversationState{
			Stage:    types.StageGatheringRequirements,
			Budget:   "5k",
			Timeline: "2 months",
		},
	})

	assert.Equal(t, types.StageContactInfo, res.State.Stage)
}

func TestAdvanceContactInfoToQualification(t *testing.T) {
	state := &types.ConversationState{
		Stage:       types.StageContactInfo,
		ContactInfo: &types.ContactInfo{Email: "a@b.com", Company: "Acme"},
	}
	assert.True(t, Advance(state))
	assert.Equal(t, types.StageQualification, state.Stage)
}

func TestAdvanceMovesOneStageAtMost(t *testing.T) {
	state := &types.ConversationState{
		Stage:               types.StageInitial,
		ProjectRequirements: "Sales Cloud",
		Budget:              "10k",
		Timeline:            "Q1",
		ContactInfo:         &types.ContactInfo{Email: "a@b.com", Company: "Acme"},
	}
	assert.True(t, Advance(state))
	assert.Equal(t, types.StageGatheringRequirements, state.Stage)
}

func TestAdvanceNeverRegresses(t *testing.T) {
	for _, stage := range types.Stages {
		state := &types.ConversationState{Stage: stage}
		Advance(state)
		assert.True(t, state.Stage.Valid())
		assert.GreaterOrEqual(t, state.Stage.Index(), stage.Index(), "stage %s", stage)
	}
}

func TestRunContactInfoQualifiesAndCreatesLead(t *testing.T) {
	crm := &fakeCRM{}
	l := &scriptedLLM{extraction: `{"contactInfo":{"email":"a@b.com","company":"Acme"}}`}
	res := newTestNode(l, crm).Run(context.Background(), Input{
		Text: "I'm at Acme, a@b.com",
		State: &types.ConversationState{
			Stage:               types.StageContactInfo,
			ProjectRequirements: "basic website",
			Budget:              "5k",
			Timeline:            "flexible",
		},
	})

	assert.Equal(t, 1, crm.leads)
	assert.Equal(t, 0, crm.cases)
	assert.Equal(t, types.StageComplete, res.State.Stage)
	assert.True(t, res.ShouldEnd)
	assert.Equal(t, leadCreatedMessage, res.Response)
	assert.Equal(t, "Acme", crm.seen.Company())
}

func TestRunQualificationEscalatesComplexRequirements(t *testing.T) {
	crm := &fakeCRM{}
	res := newTestNode(&scriptedLLM{extraction: `{}`}, crm).Run(context.Background(), Input{
		Text: "ok",
		State: &types.ConversationState{
			Stage:               types.StageQualification,
			ProjectRequirements: "custom CRM integration",
			ContactInfo:         &types.ContactInfo{Email: "a@b.com", Company: "Acme"},
		},
	})

	assert.Equal(t, 0, crm.leads)
	assert.Equal(t, 1, crm.cases)
	assert.Equal(t, types.StageComplete, res.State.Stage)
	assert.Equal(t, caseEscalatedMessage, res.Response)
}

func TestRunCRMFailureKeepsQualificationStage(t *testing.T) {
	crm := &fakeCRM{err: errors.New("salesforce returned 500")}
	state := &types.ConversationState{
		Stage:               types.StageQualification,
		ProjectRequirements: "basic website",
		ContactInfo:         &types.ContactInfo{Email: "a@b.com", Company: "Acme"},
	}
	node := newTestNode(&scriptedLLM{extraction: `{}`}, crm)

	res := node.Run(context.Background(), Input{Text: "hi", State: state})
	assert.Equal(t, types.StageQualification, res.State.Stage)
	assert.False(t, res.ShouldEnd)
	assert.Equal(t, crmFailureMessage, res.Response)

	crm.err = nil
	res = node.Run(context.Background(), Input{Text: "any news?", State: res.State})
	assert.Equal(t, types.StageComplete, res.State.Stage)
	assert.Equal(t, 2, crm.leads)
}

func TestRunWithoutCRMApologises(t *testing.T) {
	res := newTestNode(&scriptedLLM{extraction: `{}`}, nil).Run(context.Background(), Input{
		State: &types.ConversationState{
			Stage:       types.StageQualification,
			ContactInfo: &types.ContactInfo{Email: "a@b.com", Company: "Acme"},
		},
	})
	assert.Equal(t, types.StageQualification, res.State.Stage)
	assert.Equal(t, crmFailureMessage, res.Response)
}

func TestRunLLMFailureFallsBack(t *testing.T) {
	l := &scriptedLLM{err: errors.New("upstream timeout")}
	res := newTestNode(l, &fakeCRM{}).Run(context.Background(), Input{
		Text:  "We want Service Cloud",
		State: &types.ConversationState{Stage: types.StageGatheringRequirements, Budget: "5k"},
	})

	assert.Equal(t, types.StageGatheringRequirements, res.State.Stage)
	assert.Equal(t, "5k", res.State.Budget)
	assert.Equal(t, FallbackResponse(types.StageGatheringRequirements), res.Response)
}

func TestRunMalformedExtractionIsIgnored(t *testing.T) {
	l := &scriptedLLM{extraction: "sorry, I can't help with that", reply: "Could you tell me more?"}
	res := newTestNode(l, &fakeCRM{}).Run(context.Background(), Input{
		Text:  "blah",
		State: &types.ConversationState{Stage: types.StageInitial},
	})
	assert.Equal(t, types.StageInitial, res.State.Stage)
	assert.Equal(t, "Could you tell me more?", res.Response)
}

func TestRunUnknownStageTreatedAsInitial(t *testing.T) {
	l := &scriptedLLM{extraction: `{}`, reply: "Hello!"}
	res := newTestNode(l, &fakeCRM{}).Run(context.Background(), Input{
		Text:  "hi",
		State: &types.ConversationState{Stage: "negotiating"},
	})
	assert.Equal(t, types.StageInitial, res.State.Stage)
}

func TestRunRecoversFromPanic(t *testing.T) {
	l := llm.CompleterFunc(func(context.Context, string, llm.Options) (string, error) {
		panic("boom")
	})
	res := newTestNode(l, &fakeCRM{}).Run(context.Background(), Input{
		Text:  "hi",
		State: &types.ConversationState{Stage: types.StageContactInfo},
	})
	assert.Equal(t, FallbackResponse(types.StageContactInfo), res.Response)
	assert.False(t, res.ShouldEnd)
}

func TestRunDoesNotMutateCallerState(t *testing.T) {
	l := &scriptedLLM{extraction: `{"projectRequirements":"Flows","contactInfo":{"email":"x@y.z"}}`, reply: "ok"}
	in := &types.ConversationState{
		Stage:       types.StageInitial,
		ContactInfo: &types.ContactInfo{Email: "old@y.z", Company: "Old"},
	}
	res := newTestNode(l, &fakeCRM{}).Run(context.Background(), Input{Text: "x", State: in})

	assert.Equal(t, types.StageInitial, in.Stage)
	assert.Equal(t, "old@y.z", in.ContactInfo.Email)
	assert.Equal(t, "x@y.z", res.State.ContactInfo.Email)
	assert.Empty(t, res.State.ContactInfo.Company, "contactInfo is replaced as a whole")
}

func TestRunAppendsTurnToContext(t *testing.T) {
	l := &scriptedLLM{extraction: `{}`, reply: "What's your budget?"}
	node := newTestNode(l, &fakeCRM{})

	res := node.Run(context.Background(), Input{Text: "We run\nsales in Europe", State: types.NewConversationState()})
	assert.Equal(t, "User: We run sales in Europe\nAssistant: What's your budget?", res.State.Context)

	for i := 0; i < 30; i++ {
		res = node.Run(context.Background(), Input{Text: "more", State: res.State})
	}
	assert.Len(t, strings.Split(res.State.Context, "\n"), maxContextLines)

	// the response prompt carries the accumulated history
	last := l.prompts[len(l.prompts)-1]
	assert.Contains(t, last, "User: more")
}
