package scenario

import (
	"strings"
	"text/template"
)

const defaultInstructionsTpl = `You are role-playing a prospective customer in a {{if .Title}}{{.Title}}{{else}}sales training{{end}} session.
The operator is a salesperson practicing their pitch. Stay in character as the customer below for the whole conversation and never reveal that you are an AI.

# PERSONA
{{- range .Persona}}
- {{.}}
{{- end}}
{{- if .Plan}}

# PLAN UNDER DISCUSSION
{{- range .Plan}}
- {{.}}
{{- end}}
{{- end}}
{{- if .Style}}

# STYLE
{{- range .Style}}
- {{.}}
{{- end}}
{{- end}}`

const defaultOpeningTpl = `Say exactly:
{{- range .Opening}}
「{{.}}」
{{- end}}`

const defaultRevealTpl = `Say exactly：
「{{range $i, $a := .Persona}}{{if $i}}
{{end}}{{$a}}{{end}}」
{{- if .Closing}}

Say exactly「{{.Closing}}」
{{- end}}`

var (
	defaultInstructions = template.Must(parseTemplate("instructions", defaultInstructionsTpl))
	defaultOpening      = template.Must(parseTemplate("opening", defaultOpeningTpl))
	defaultReveal       = template.Must(parseTemplate("reveal", defaultRevealTpl))
)

func parseTemplate(name, src string) (*template.Template, error) {
	return template.New(name).Option("missingkey=error").Parse(src)
}

// revealData is passed to the reveal template. Pitch is the operator's
// description of the product, captured when the roleplay starts.
type revealData struct {
	*Scenario
	Pitch string
}

// Instructions renders the persona instructions sent with session.update.
func (s *Scenario) Instructions() (string, error) {
	return s.render(s.Templates.Instructions, defaultInstructions, s)
}

// OpeningDirective renders the instructions of the scripted opening lines.
func (s *Scenario) OpeningDirective() (string, error) {
	return s.render(s.Templates.Opening, defaultOpening, s)
}

// RevealDirective renders the instructions that make the counterparty
// declare its profile and start the roleplay.
func (s *Scenario) RevealDirective(pitch string) (string, error) {
	return s.render(s.Templates.Reveal, defaultReveal, revealData{Scenario: s, Pitch: pitch})
}

func (s *Scenario) render(src string, fallback *template.Template, data any) (string, error) {
	tpl := fallback
	if src != "" {
		var err error
		if tpl, err = parseTemplate(fallback.Name(), src); err != nil {
			return "", err
		}
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
