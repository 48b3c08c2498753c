// Package scenario defines the roleplay scenario: the counterparty persona,
// the plan under discussion and the scripted lines the counterparty speaks
// before the roleplay begins.
//
// A scenario is loaded from YAML:
//
//	name: insurance-sales
//	voice: alloy
//	language: ja
//	persona:
//	  - key: 年齢
//	    value: 32歳 会社員
//	opening:
//	  - これから営業のロールプレイングを始めます
//	closing: それでは始めてください
//
// The rendered texts can be overridden with text/template sources under
// templates.instructions, templates.opening and templates.reveal.
package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haivivi/rolecoach/pkg/realtime"
)

//go:embed default.yaml
var defaultYAML []byte

// Attribute is one key-value line of the persona or plan. An attribute
// without a key renders as its value alone.
type Attribute struct {
	Key   string `yaml:"key,omitempty" json:"key,omitzero"`
	Value string `yaml:"value" json:"value"`
}

// String renders "key: value", or the value alone.
func (a Attribute) String() string {
	if a.Key == "" {
		return a.Value
	}
	return a.Key + ": " + a.Value
}

// Templates overrides the built-in renderings.
type Templates struct {
	Instructions string `yaml:"instructions,omitempty" json:"instructions,omitzero"`
	Opening      string `yaml:"opening,omitempty" json:"opening,omitzero"`
	Reveal       string `yaml:"reveal,omitempty" json:"reveal,omitzero"`
}

// Scenario is a roleplay configuration. It is immutable for the duration
// of a session; callers hand sessions a Clone.
type Scenario struct {
	Name               string      `yaml:"name" json:"name"`
	Title              string      `yaml:"title,omitempty" json:"title,omitzero"`
	Voice              string      `yaml:"voice,omitempty" json:"voice,omitzero"`
	Language           string      `yaml:"language,omitempty" json:"language,omitzero"`
	TranscriptionModel string      `yaml:"transcription_model,omitempty" json:"transcription_model,omitzero"`
	Style              []string    `yaml:"style,omitempty" json:"style,omitzero"`
	Plan               []Attribute `yaml:"plan,omitempty" json:"plan,omitzero"`
	Persona            []Attribute `yaml:"persona" json:"persona"`
	Opening            []string    `yaml:"opening" json:"opening"`
	Closing            string      `yaml:"closing,omitempty" json:"closing,omitzero"`
	Templates          Templates   `yaml:"templates,omitempty" json:"templates,omitzero"`
}

// Default returns the built-in insurance sales scenario.
func Default() *Scenario {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("scenario: invalid default: %v", err))
	}
	return s
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a YAML scenario. Unset voice, language and
// transcription model take the defaults.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.Voice == "" {
		s.Voice = realtime.VoiceAlloy
	}
	if s.Language == "" {
		s.Language = "ja"
	}
	if s.TranscriptionModel == "" {
		s.TranscriptionModel = realtime.TranscriptionWhisper1
	}
}

// Validate checks that the scenario can drive a session.
func (s *Scenario) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Persona) == 0 {
		errs = append(errs, errors.New("persona must have at least one attribute"))
	}
	for i, a := range s.Persona {
		if strings.TrimSpace(a.Value) == "" {
			errs = append(errs, fmt.Errorf("persona[%d]: value is required", i))
		}
	}
	if len(s.Opening) == 0 {
		errs = append(errs, errors.New("opening must have at least one line"))
	}
	for _, t := range []struct{ name, src string }{
		{"instructions", s.Templates.Instructions},
		{"opening", s.Templates.Opening},
		{"reveal", s.Templates.Reveal},
	} {
		if t.src == "" {
			continue
		}
		if _, err := parseTemplate(t.name, t.src); err != nil {
			errs = append(errs, fmt.Errorf("templates.%s: %w", t.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Scenario) Clone() *Scenario {
	c := *s
	c.Style = slices.Clone(s.Style)
	c.Plan = slices.Clone(s.Plan)
	c.Persona = slices.Clone(s.Persona)
	c.Opening = slices.Clone(s.Opening)
	return &c
}

// SessionConfig builds the session.update payload: the rendered persona
// instructions, transcription of operator audio and an empty tool list.
func (s *Scenario) SessionConfig() (*realtime.SessionConfig, error) {
	instructions, err := s.Instructions()
	if err != nil {
		return nil, err
	}
	return &realtime.SessionConfig{
		Instructions: instructions,
		Voice:        s.Voice,
		InputAudioTranscription: &realtime.TranscriptionConfig{
			Model:    s.TranscriptionModel,
			Language: s.Language,
		},
		Tools:      []realtime.Tool{},
		ToolChoice: realtime.ToolChoiceAuto,
	}, nil
}

// Encode returns the scenario as YAML.
func (s *Scenario) Encode() ([]byte, error) {
	return yaml.Marshal(s)
}
