package agents

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/twquant/twse-agents/pkg/models"
	"github.com/twquant/twse-agents/pkg/templates"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// modeResponsibilities is the fixed responsibilities matrix rendered into
// every instruction set
var modeResponsibilities = map[models.AgentMode]string{
	models.ModeTrading: "You may research the market, analyze opportunities and execute simulated trades. " +
		"Validate every trade before executing it and record the rationale.",
	models.ModeRebalancing: "You may adjust existing positions toward your target weights. " +
		"New speculative positions and fundamental or sentiment research are out of scope.",
	models.ModeObservation: "You are in read-only mode. Observe the market and your portfolio; " +
		"you cannot trade or change strategy.",
	models.ModeStrategyReview: "Review your strategy against recent performance. You may record " +
		"strategy changes but cannot trade.",
}

// Composer renders an agent's profile and strategy-change log into one
// instruction string. Pure and deterministic: identical inputs produce
// byte-identical output.
type Composer struct {
	renderer templates.Renderer
}

// NewComposer creates a composer. A nil renderer falls back to the
// embedded instruction template.
func NewComposer(renderer templates.Renderer) (*Composer, error) {
	if renderer == nil {
		embedded, err := newEmbeddedRenderer()
		if err != nil {
			return nil, err
		}
		renderer = embedded
	}
	if !renderer.TemplateExists("instructions") {
		return nil, fmt.Errorf("instructions template not found")
	}
	return &Composer{renderer: renderer}, nil
}

type instructionData struct {
	Profile              models.AgentProfile
	Mode                 models.AgentMode
	ModeResponsibilities string
	RiskBand             string
	Tools                []string
	Changes              []models.StrategyChange
}

// Compose renders the instruction string for one session. The changes
// slice must be in insertion order; it is rendered as-is.
func (c *Composer) Compose(profile models.AgentProfile, mode models.AgentMode, tools []string, changes []models.StrategyChange) (string, error) {
	out, err := c.renderer.ExecuteTemplate("instructions", instructionData{
		Profile:              profile,
		Mode:                 mode,
		ModeResponsibilities: modeResponsibilities[mode],
		RiskBand:             profile.RiskBand(),
		Tools:                tools,
		Changes:              changes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to compose instructions: %w", err)
	}
	return strings.TrimSpace(out) + "\n", nil
}

// embeddedRenderer serves the compiled-in template set
type embeddedRenderer struct {
	templates *template.Template
}

func newEmbeddedRenderer() (*embeddedRenderer, error) {
	tmpl, err := template.New("root").Funcs(templates.GetDefaultFuncMap()).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	return &embeddedRenderer{templates: tmpl}, nil
}

func (r *embeddedRenderer) GetTemplate(name string) *template.Template {
	return r.templates.Lookup(name)
}

func (r *embeddedRenderer) ExecuteTemplate(name string, data any) (string, error) {
	tmpl := r.templates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("template %s not found", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (r *embeddedRenderer) TemplateExists(name string) bool {
	return r.templates.Lookup(name) != nil
}
