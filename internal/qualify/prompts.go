package qualify

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"salesforce-lead-backend/internal/llm"
	"salesforce-lead-backend/internal/types"
)

//go:embed prompts/qualification.yaml
var defaultPromptsYAML []byte

type promptStyle struct {
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// PromptSpec is the YAML shape of the prompt catalogue.
type PromptSpec struct {
	Extraction struct {
		promptStyle `yaml:",inline"`
		Template    string `yaml:"template"`
	} `yaml:"extraction"`
	Response struct {
		promptStyle   `yaml:",inline"`
		Template      string            `yaml:"template"`
		StageGuidance map[string]string `yaml:"stage_guidance"`
	} `yaml:"response"`
}

// Prompts holds the compiled extraction and response prompts.
type Prompts struct {
	extraction      *template.Template
	extractionStyle llm.Options
	response        *template.Template
	responseStyle   llm.Options
	guidance        map[types.Stage]string
}

// LoadPrompts reads a prompt catalogue from path, or the embedded one when path is empty.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return ParsePrompts(defaultPromptsYAML)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	return ParsePrompts(b)
}

// DefaultPrompts returns the embedded catalogue.
func DefaultPrompts() *Prompts {
	p, err := ParsePrompts(defaultPromptsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts: %v", err))
	}
	return p
}

func ParsePrompts(b []byte) (*Prompts, error) {
	var spec PromptSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if strings.TrimSpace(spec.Extraction.Template) == "" || strings.TrimSpace(spec.Response.Template) == "" {
		return nil, fmt.Errorf("parse prompts: extraction and response templates are required")
	}
	ext, err := template.New("extraction").Option("missingkey=zero").Parse(spec.Extraction.Template)
	if err != nil {
		return nil, fmt.Errorf("parse extraction template: %w", err)
	}
	resp, err := template.New("response").Option("missingkey=zero").Parse(spec.Response.Template)
	if err != nil {
		return nil, fmt.Errorf("parse response template: %w", err)
	}
	guidance := make(map[types.Stage]string, len(spec.Response.StageGuidance))
	for k, v := range spec.Response.StageGuidance {
		guidance[types.Stage(k)] = strings.TrimSpace(v)
	}
	return &Prompts{
		extraction:      ext,
		extractionStyle: styleOptions(spec.Extraction.promptStyle, 0.1, 500, true),
		response:        resp,
		responseStyle:   styleOptions(spec.Response.promptStyle, 0.7, 300, false),
		guidance:        guidance,
	}, nil
}

func styleOptions(s promptStyle, defTemp float32, defMax int, jsonMode bool) llm.Options {
	opts := llm.Options{Temperature: s.Temperature, MaxTokens: s.MaxTokens, JSON: jsonMode}
	if opts.Temperature <= 0 {
		opts.Temperature = defTemp
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defMax
	}
	return opts
}

func (p *Prompts) renderExtraction(stage types.Stage, message string) (string, error) {
	var b strings.Builder
	err := p.extraction.Execute(&b, struct {
		Stage   types.Stage
		Message string
	}{stage, message})
	return b.String(), err
}

func (p *Prompts) renderResponse(state *types.ConversationState) (string, error) {
	stateJSON, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	err = p.response.Execute(&b, struct {
		Stage     types.Stage
		Guidance  string
		Context   string
		StateJSON string
	}{state.Stage, p.guidance[state.Stage], state.Context, string(stateJSON)})
	return b.String(), err
}
