package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/Laisky/errors/v2"
	"gopkg.in/yaml.v3"
)

type scenarioKind string

const (
	kindInvoke   scenarioKind = "invoke"
	kindStream   scenarioKind = "stream"
	kindConverse scenarioKind = "converse"
)

// scenario is one Bedrock call the run command makes.
type scenario struct {
	Key     string       `yaml:"key"`
	Label   string       `yaml:"label"`
	Kind    scenarioKind `yaml:"kind"`
	ModelID string       `yaml:"model_id"`
	// Body is the JSON request body of invoke and stream scenarios.
	Body string `yaml:"body"`
	// System, Prompt and MaxTokens describe a converse scenario.
	System    string `yaml:"system"`
	Prompt    string `yaml:"prompt"`
	MaxTokens int32  `yaml:"max_tokens"`
	// Attributes are attached to the call's summary event.
	Attributes map[string]any `yaml:"attributes"`
	// Optional scenarios only run when named in --only.
	Optional bool `yaml:"optional"`
}

// scenarioFile is the layout of --scenario files.
type scenarioFile struct {
	Metadata  map[string]any `yaml:"metadata"`
	Scenarios []scenario     `yaml:"scenarios"`
}

var defaultScenarios = []scenario{
	{
		Key:     "claude",
		Label:   "Claude text completion",
		Kind:    kindInvoke,
		ModelID: "anthropic.claude-v2",
		Body:    `{"prompt":"\n\nHuman: Write a short poem about observability.\n\nAssistant:","max_tokens_to_sample":500,"temperature":0.7,"top_p":0.9}`,
	},
	{
		Key:     "titan",
		Label:   "Titan text",
		Kind:    kindInvoke,
		ModelID: "amazon.titan-text-express-v1",
		Body:    `{"inputText":"Write a short poem about observability.","textGenerationConfig":{"maxTokenCount":500,"temperature":0.7,"topP":0.9}}`,
	},
	{
		Key:     "embedding",
		Label:   "Titan embedding",
		Kind:    kindInvoke,
		ModelID: "amazon.titan-embed-text-v1",
		Body:    `{"inputText":"This is a sample text for embedding generation."}`,
	},
	{
		Key:     "stream",
		Label:   "Claude streaming",
		Kind:    kindStream,
		ModelID: "anthropic.claude-v2",
		Body:    `{"prompt":"\n\nHuman: Explain in 3 paragraphs what is AI observability and why it's important.\n\nAssistant:","max_tokens_to_sample":500,"temperature":0.7,"top_p":0.9}`,
	},
	{
		Key:       "converse",
		Label:     "Converse",
		Kind:      kindConverse,
		ModelID:   "anthropic.claude-3-haiku-20240307-v1:0",
		System:    "You answer in one sentence.",
		Prompt:    "What does an observability pipeline do?",
		MaxTokens: 200,
		Optional:  true,
	},
}

// validate reports the first problem of a scenario.
func (s scenario) validate() error {
	if strings.TrimSpace(s.Key) == "" {
		return errors.New("scenario key is required")
	}
	if strings.TrimSpace(s.ModelID) == "" {
		return errors.Errorf("scenario %q: model_id is required", s.Key)
	}

	switch s.Kind {
	case kindInvoke, kindStream:
		if !json.Valid([]byte(s.Body)) {
			return errors.Errorf("scenario %q: body is not valid JSON", s.Key)
		}
	case kindConverse:
		if strings.TrimSpace(s.Prompt) == "" {
			return errors.Errorf("scenario %q: prompt is required", s.Key)
		}
	default:
		return errors.Errorf("scenario %q: unknown kind %q", s.Key, s.Kind)
	}
	return nil
}

// loadScenarios reads a scenario file. An empty path yields the built-in scenarios.
func loadScenarios(path string) ([]scenario, map[string]any, error) {
	if path == "" {
		return defaultScenarios, nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read scenario file %q", path)
	}

	var file scenarioFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, errors.Wrapf(err, "parse scenario file %q", path)
	}
	if len(file.Scenarios) == 0 {
		return nil, nil, errors.Errorf("scenario file %q has no scenarios", path)
	}

	seen := make(map[string]bool, len(file.Scenarios))
	for i, s := range file.Scenarios {
		if s.Kind == "" {
			file.Scenarios[i].Kind = kindInvoke
			s.Kind = kindInvoke
		}
		if s.Label == "" {
			file.Scenarios[i].Label = s.Key
		}
		if err := s.validate(); err != nil {
			return nil, nil, errors.Wrapf(err, "scenario #%d", i+1)
		}
		if seen[s.Key] {
			return nil, nil, errors.Errorf("duplicate scenario key %q", s.Key)
		}
		seen[s.Key] = true
	}

	return file.Scenarios, file.Metadata, nil
}

// splitList tokenizes a comma, semicolon or newline separated list.
func splitList(raw string) []string {
	normalized := raw
	for _, sep := range []string{";", "\n", "\r"} {
		normalized = strings.ReplaceAll(normalized, sep, ",")
	}

	var out []string
	for _, part := range strings.Split(normalized, ",") {
		if candidate := strings.TrimSpace(part); candidate != "" {
			out = append(out, candidate)
		}
	}
	return out
}

// selectScenarios keeps the scenarios named in only, in their original order.
// An empty only selects every scenario that is not optional.
func selectScenarios(all []scenario, only string) ([]scenario, error) {
	keys := splitList(only)
	if len(keys) == 0 {
		selected := make([]scenario, 0, len(all))
		for _, s := range all {
			if !s.Optional {
				selected = append(selected, s)
			}
		}
		return selected, nil
	}

	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		found := false
		for _, s := range all {
			if strings.EqualFold(s.Key, k) {
				wanted[s.Key] = true
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Errorf("unknown scenario %q", k)
		}
	}

	selected := make([]scenario, 0, len(wanted))
	for _, s := range all {
		if wanted[s.Key] {
			selected = append(selected, s)
		}
	}
	return selected, nil
}
