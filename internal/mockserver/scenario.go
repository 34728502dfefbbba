package mockserver

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario scripts one streamed answer. The first scenario whose Match
// substring appears in the incoming question (case-insensitive) is played
// back; a scenario with an empty Match is the fallback.
type Scenario struct {
	// Match selects this scenario when the question contains it.
	Match string `yaml:"match"`

	// Stages are announced in order before any tokens flow.
	Stages []Stage `yaml:"stages"`

	// Tokens are streamed one frame each.
	Tokens []string `yaml:"tokens"`

	// SQL, when set, is emitted as an artifact frame after the stages.
	SQL string `yaml:"sql"`

	// Answer is the final text. When empty the joined tokens are used.
	Answer string `yaml:"answer"`

	// Error, when set, terminates the stream instead of a completion.
	Error *ScenarioError `yaml:"error"`

	// TokenDelay spaces out token frames. Zero streams at full speed.
	TokenDelay Duration `yaml:"token_delay"`
}

// Duration decodes YAML scalars like "250ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Stage is one pipeline stage announcement.
type Stage struct {
	Stage string `yaml:"stage"`
	Label string `yaml:"label"`
}

// ScenarioError scripts a failure frame.
type ScenarioError struct {
	Message string `yaml:"message"`
	Code    string `yaml:"code"`
}

// FinalAnswer returns the answer text, falling back to the joined tokens.
func (s *Scenario) FinalAnswer() string {
	if s.Answer != "" {
		return s.Answer
	}
	return strings.Join(s.Tokens, "")
}

// LoadScenarios reads a YAML scenario script.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenarios: %w", err)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes YAML scenario data.
func ParseScenarios(data []byte) ([]Scenario, error) {
	var doc struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing scenarios: %w", err)
	}
	if len(doc.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios defined")
	}
	return doc.Scenarios, nil
}

// DefaultScenarios is the built-in script used when no file is given.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Match: "error",
			Error: &ScenarioError{
				Message: "Rate limit reached. Please wait a moment or provide your own API key.",
				Code:    "rate_limit",
			},
		},
		{
			Stages: []Stage{
				{Stage: "analyzing", Label: "Analyzing your question"},
				{Stage: "generating_sql", Label: "Generating SQL query"},
				{Stage: "executing", Label: "Searching clinical trials"},
				{Stage: "summarizing", Label: "Summarizing results"},
			},
			SQL:    "SELECT COUNT(*) FROM trials WHERE phase = 'Phase 3'",
			Tokens: []string{"There ", "are ", "42 ", "matching ", "trials."},
		},
	}
}

// pick returns the scenario matching the question.
func pick(scenarios []Scenario, question string) Scenario {
	q := strings.ToLower(question)
	var fallback *Scenario
	for i := range scenarios {
		s := &scenarios[i]
		if s.Match == "" {
			if fallback == nil {
				fallback = s
			}
			continue
		}
		if strings.Contains(q, strings.ToLower(s.Match)) {
			return *s
		}
	}
	if fallback != nil {
		return *fallback
	}
	return scenarios[0]
}
