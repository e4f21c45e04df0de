package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"text/template"

	"newspipe/pkg/llm"
)

//go:embed templates
var builtin embed.FS

// Manager handles loading and rendering of prompt templates.
// Templates under common/ are shared definitions; every other *.tmpl file is
// addressable by its slash path relative to the root (e.g. "extract.tmpl").
type Manager struct {
	root *template.Template
}

// NewManager loads the built-in templates, then any *.tmpl files in dir,
// which replace built-ins of the same name. dir may be empty.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{}
	m.root = template.New("root").Funcs(template.FuncMap{
		"clip":      llm.Clip,
		"join":      strings.Join,
		"orUnknown": orUnknown,
	})

	sub, err := fs.Sub(builtin, "templates")
	if err != nil {
		return nil, err
	}
	sources := []fs.FS{sub}
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("prompt dir: %w", err)
		}
		sources = append(sources, os.DirFS(dir))
	}

	for _, fsys := range sources {
		if err := m.load(fsys); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// load parses common/ first so later templates can reference its definitions.
func (m *Manager) load(fsys fs.FS) error {
	var common, named []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".tmpl") {
			return nil
		}
		if strings.HasPrefix(p, "common/") {
			common = append(common, p)
		} else {
			named = append(named, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	for _, p := range common {
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		if _, err := m.root.Parse(string(content)); err != nil {
			return fmt.Errorf("parsing %s: %w", p, err)
		}
	}
	for _, p := range named {
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		if _, err := m.root.New(path.Clean(p)).Parse(string(content)); err != nil {
			return fmt.Errorf("parsing %s: %w", p, err)
		}
	}
	return nil
}

// Render executes the named template with the provided data.
func (m *Manager) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := m.root.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// Has reports whether a template with the given name is loaded.
func (m *Manager) Has(name string) bool {
	return m.root.Lookup(name) != nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
