package quiz

import (
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"
)

// Prompt renders the configured prompt template around user text.
type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses a template that references {{.Text}}.
func NewPrompt(text string) (*Prompt, error) {
	if !strings.Contains(text, "{{.Text}}") {
		return nil, fmt.Errorf("%w: missing {{.Text}}", ErrInvalidTemplate)
	}
	tmpl, err := template.New("quiz").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return &Prompt{tmpl: tmpl}, nil
}

// Render returns the prompt for text.
func (p *Prompt) Render(text string) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, struct{ Text string }{Text: text}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

// estimateTokens approximates the token count of s at four characters
// per token, rounded up.
func estimateTokens(s string) int64 {
	n := int64(utf8.RuneCountInString(s))
	return (n + 3) / 4
}
