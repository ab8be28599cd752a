package template

import (
	"embed"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	texttemplate "text/template"
)

//go:embed prompts/*.tmpl
var defaultPrompts embed.FS

type Prompt string

const (
	ReviewPrompt    Prompt = "review"
	SentimentPrompt Prompt = "sentiment"
	SummaryPrompt   Prompt = "summary"
)

var allPrompts = []Prompt{ReviewPrompt, SentimentPrompt, SummaryPrompt}

// PromptData is the value every prompt template is executed against.
type PromptData struct {
	Content   string
	CharLimit int
}

type Template struct {
	textTmpl *texttemplate.Template
}

func (t *Template) Parse(name, text string, customFuncs texttemplate.FuncMap) error {
	funcs := texttemplate.FuncMap{
		"trim":  strings.TrimSpace,
		"upper": strings.ToUpper,
	}
	if customFuncs != nil {
		maps.Copy(funcs, customFuncs)
	}

	tmpl, err := texttemplate.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	t.textTmpl = tmpl
	return nil
}

func (t *Template) Load(path string, customFuncs texttemplate.FuncMap) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	return t.Parse(path, string(data), customFuncs)
}

func (t *Template) Execute(data any) (string, error) {
	var sb strings.Builder
	if err := t.textTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", t.textTmpl.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}

type Prompts struct {
	templates map[Prompt]*Template
}

// LoadPrompts parses the embedded prompts and applies any file overrides.
// An override that cannot be loaded is logged and the embedded prompt kept.
func LoadPrompts(overrides map[Prompt]string) (*Prompts, error) {
	p := &Prompts{templates: make(map[Prompt]*Template, len(allPrompts))}

	for _, kind := range allPrompts {
		data, err := defaultPrompts.ReadFile("prompts/" + string(kind) + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("missing embedded prompt %s: %w", kind, err)
		}

		tmpl := &Template{}
		if err := tmpl.Parse(string(kind), string(data), nil); err != nil {
			return nil, err
		}

		if path := overrides[kind]; path != "" {
			override := &Template{}
			if err := override.Load(path, nil); err != nil {
				slog.Error("Failed to load prompt override, using default", "prompt", kind, "path", path, "error", err)
			} else {
				slog.Info("Loaded prompt override", "prompt", kind, "path", path)
				tmpl = override
			}
		}

		p.templates[kind] = tmpl
	}

	return p, nil
}

func (p *Prompts) Render(kind Prompt, data PromptData) (string, error) {
	tmpl, ok := p.templates[kind]
	if !ok {
		return "", fmt.Errorf("unknown prompt: %s", kind)
	}
	return tmpl.Execute(data)
}
