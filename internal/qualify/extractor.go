package qualify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"salesforce-lead-backend/internal/apperr"
	"salesforce-lead-backend/internal/llm"
	"salesforce-lead-backend/internal/logger"
	"salesforce-lead-backend/internal/types"
)

var errNoJSONObject = errors.New("no JSON object in model output")

// Extraction holds the fields found in one message. A nil field was not mentioned.
type Extraction struct {
	ProjectRequirements *string
	DesiredFeatures     []string
	Budget              *string
	Timeline            *string
	AdditionalNotes     *string
	ContactInfo         *types.ContactInfo
}

func (e Extraction) Empty() bool {
	return e.ProjectRequirements == nil && e.DesiredFeatures == nil && e.Budget == nil &&
		e.Timeline == nil && e.AdditionalNotes == nil && e.ContactInfo == nil
}

// Apply merges e into state: mentioned fields replace the stored value whole
// (contactInfo included), everything else is left as it was.
func (e Extraction) Apply(state *types.ConversationState) {
	if e.ProjectRequirements != nil {
		state.ProjectRequirements = *e.ProjectRequirements
	}
	if e.DesiredFeatures != nil {
		state.DesiredFeatures = append([]string{}, e.DesiredFeatures...)
	}
	if e.Budget != nil {
		state.Budget = *e.Budget
	}
	if e.Timeline != nil {
		state.Timeline = *e.Timeline
	}
	if e.AdditionalNotes != nil {
		state.AdditionalNotes = *e.AdditionalNotes
	}
	if e.ContactInfo != nil {
		ci := *e.ContactInfo
		state.ContactInfo = &ci
	}
}

// Extractor asks the model to pull structured fields out of free text.
type Extractor struct {
	llm     llm.Completer
	prompts *Prompts
	log     *logger.Logger
}

func NewExtractor(completer llm.Completer, prompts *Prompts, log *logger.Logger) *Extractor {
	return &Extractor{llm: completer, prompts: prompts, log: log}
}

// Extract never fails: any problem is logged and yields an empty Extraction.
func (x *Extractor) Extract(ctx context.Context, text string, state *types.ConversationState) Extraction {
	e, err := x.extract(ctx, text, state)
	if err != nil {
		x.log.WithContext(ctx).Warn("extraction failed", "stage", state.Stage, "error", err)
		return Extraction{}
	}
	return e
}

func (x *Extractor) extract(ctx context.Context, text string, state *types.ConversationState) (Extraction, error) {
	if x.llm == nil {
		return Extraction{}, apperr.New(apperr.KindExtraction, "no language model configured")
	}
	prompt, err := x.prompts.renderExtraction(state.Stage, text)
	if err != nil {
		return Extraction{}, apperr.Wrap(apperr.KindExtraction, "render prompt", err)
	}
	raw, err := x.llm.Complete(ctx, prompt, x.prompts.extractionStyle)
	if err != nil {
		return Extraction{}, apperr.Wrap(apperr.KindExtraction, "completion failed", err)
	}
	e, err := ParseExtraction(raw)
	if err != nil {
		return Extraction{}, apperr.Wrap(apperr.KindExtraction, "unparseable model output", err)
	}
	return e, nil
}

// ParseExtraction reads the model's JSON answer. It tolerates surrounding prose
// or code fences, numbers where text is expected and a bare string for
// desiredFeatures; fields of an unusable shape are skipped.
func ParseExtraction(raw string) (Extraction, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return Extraction{}, err
	}
	var e Extraction
	e.ProjectRequirements = textField(fields["projectRequirements"])
	e.Budget = textField(fields["budget"])
	e.Timeline = textField(fields["timeline"])
	e.AdditionalNotes = textField(fields["additionalNotes"])
	e.DesiredFeatures = listField(fields["desiredFeatures"])
	e.ContactInfo = contactField(fields["contactInfo"])
	return e, nil
}

func decodeObject(raw string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err == nil && fields != nil {
		return fields, nil
	}
	first := strings.IndexByte(raw, '{')
	last := strings.LastIndexByte(raw, '}')
	if first < 0 || last <= first {
		return nil, errNoJSONObject
	}
	if err := json.Unmarshal([]byte(raw[first:last+1]), &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNoJSONObject
	}
	return fields, nil
}

// textField returns nil for absent, null or blank values and for objects and arrays.
func textField(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return &s
	case '{', '[':
		return nil
	default:
		// numbers and booleans keep their literal text
		s := string(raw)
		return &s
	}
}

func listField(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			if s := textField(it); s != nil && *s != "" {
				out = append(out, *s)
			}
		}
		return out
	}
	if s := textField(raw); s != nil && *s != "" {
		return []string{*s}
	}
	return nil
}

func contactField(raw json.RawMessage) *types.ContactInfo {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	str := func(key string) string {
		if s := textField(fields[key]); s != nil {
			return *s
		}
		return ""
	}
	ci := types.ContactInfo{
		FirstName: str("firstName"),
		LastName:  str("lastName"),
		Email:     str("email"),
		Phone:     str("phone"),
		Company:   str("company"),
	}
	if ci == (types.ContactInfo{}) {
		return nil
	}
	return &ci
}
