package templates

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"
)

// Renderer renders named text templates for outbound messaging.
type Renderer struct {
	set *template.Template
}

// NewRenderer parses every template up front with strict missing-key semantics.
func NewRenderer(texts map[string]string) (*Renderer, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("templates: at least one template required")
	}
	names := make([]string, 0, len(texts))
	for name := range texts {
		names = append(names, name)
	}
	sort.Strings(names)

	root := template.New("root").Option("missingkey=error")
	for _, name := range names {
		if texts[name] == "" {
			return nil, fmt.Errorf("templates: template %q text required", name)
		}
		if _, err := root.New(name).Parse(texts[name]); err != nil {
			return nil, fmt.Errorf("templates: parse %s: %w", name, err)
		}
	}
	return &Renderer{set: root}, nil
}

// Has reports whether name was registered.
func (r *Renderer) Has(name string) bool {
	return r != nil && r.set.Lookup(name) != nil
}

// Render executes the named template against data.
func (r *Renderer) Render(name string, data any) (string, error) {
	if !r.Has(name) {
		return "", fmt.Errorf("templates: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := r.set.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("templates: execute %s: %w", name, err)
	}
	return buf.String(), nil
}
