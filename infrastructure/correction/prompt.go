// Package correction implements the optional LLM correction pass: rendering
// the trajectory into a prompt, invoking the injected client exactly once
// under a timeout, and validating whatever comes back into a soil-moisture
// series or a typed failure.
//
// Every component here is safe for concurrent use. PromptBuilder and Parser
// hold only immutable configuration; PostProcessor holds no per-call state.
package correction

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/ahrav/go-soilcast/internal/domain"
)

const defaultPromptTemplate = `You are an expert hydrologist. A deterministic soil model has projected the atmospheric state and soil moisture for the next {{.Horizon}} hours in hourly increments. Correct the soil moisture series using the projected states and the summary features below.

Initial state: {{with .Initial}}T={{fixed .TemperatureC 1}}C, RH={{fixed .RelativeHumidity 1}}%, P={{fixed .PrecipitationMM 2}}mm, SM={{fixed .SoilMoisture 3}}{{end}}.

Projected states ({{len .Excerpt}} of {{.Horizon}} hours shown):
{{range .Excerpt}}{{.String}}
{{end}}
Key summary features:
{{range .Features}}- {{.Name}}: {{fixed .Value 3}}
{{end}}
IMPORTANT: You must respond with valid JSON in exactly this format:
{"soil_moisture": [{{seq .Horizon}}]}
The list must contain exactly {{.Horizon}} decimal numbers between 0 and 1, one per hour, starting one hour after the initial state. Do not include any other text.
`

// promptData is the template context.
type promptData struct {
	Horizon  int
	Initial  domain.AtmosphericState
	Excerpt  domain.Trajectory
	Features []domain.Feature
}

// templateFuncs returns the function map available to prompt templates.
// Every function is deterministic.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// fixed formats a float with a fixed number of decimals.
		// Template usage: {{fixed .Value 3}}
		"fixed": func(v float64, prec int) string {
			return strconv.FormatFloat(v, 'f', prec, 64)
		},
		// seq renders a placeholder list "v1, v2, ..., vN".
		// Template usage: {{seq .Horizon}}
		"seq": func(n int) string {
			switch {
			case n <= 0:
				return ""
			case n <= 3:
				parts := make([]string, n)
				for i := range parts {
					parts[i] = "v" + strconv.Itoa(i+1)
				}
				return strings.Join(parts, ", ")
			default:
				return fmt.Sprintf("v1, v2, ..., v%d", n)
			}
		},
	}
}

// PromptBuilder renders feature summaries and trajectory excerpts into the
// correction prompt. The template is parsed once at construction.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses text as the prompt template. An empty text selects
// the built-in template.
func NewPromptBuilder(text string) (*PromptBuilder, error) {
	if text == "" {
		text = defaultPromptTemplate
	}
	tmpl, err := template.New("correctionPrompt").Funcs(templateFuncs()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// MustPromptBuilder returns the builder for the built-in template.
func MustPromptBuilder() *PromptBuilder {
	b, err := NewPromptBuilder("")
	if err != nil {
		panic(err)
	}
	return b
}

// Build renders the prompt for a trajectory unrolled from initial. Identical
// inputs always yield byte-identical output.
func (b *PromptBuilder) Build(initial domain.AtmosphericState, summary domain.FeatureSummary, excerpt domain.Trajectory, horizon int) (string, error) {
	var sb strings.Builder
	data := promptData{
		Horizon:  horizon,
		Initial:  initial,
		Excerpt:  excerpt,
		Features: summary.Fields(),
	}
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return sb.String(), nil
}
