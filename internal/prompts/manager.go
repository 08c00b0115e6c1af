package prompts

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	errs "skill-runner/pkg/errors"
)

// Manager compiles prompt templates once and renders them by name.
// Files in an override directory replace embedded templates of the same name.
type Manager struct {
	mu   sync.RWMutex
	tpls map[string]*template.Template
}

// NewManager parses the embedded templates, then any *.txt.tmpl in
// overrideDir. An empty overrideDir means embedded only.
func NewManager(overrideDir string) (*Manager, error) {
	m := &Manager{tpls: make(map[string]*template.Template)}
	if err := m.load(FS()); err != nil {
		return nil, errs.NewConfig("prompts.NewManager", "failed to load embedded prompts", err)
	}
	if overrideDir != "" {
		if _, err := os.Stat(overrideDir); err != nil {
			return nil, errs.NewConfig("prompts.NewManager", "prompt directory not readable", err)
		}
		if err := m.load(os.DirFS(overrideDir)); err != nil {
			return nil, errs.NewConfig("prompts.NewManager", "failed to load prompt overrides", err)
		}
	}
	return m, nil
}

func (m *Manager) load(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".txt.tmpl") {
			return nil
		}
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read template %s: %w", p, err)
		}
		name := strings.TrimSuffix(filepath.Base(p), ".txt.tmpl")
		tpl, err := template.New(name).Parse(string(b))
		if err != nil {
			return fmt.Errorf("parse template %s: %w", p, err)
		}
		m.mu.Lock()
		m.tpls[name] = tpl
		m.mu.Unlock()
		return nil
	})
}

// Names lists the loaded templates.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.tpls))
	for n := range m.tpls {
		out = append(out, n)
	}
	return out
}

// Render executes a named template with data.
func (m *Manager) Render(name string, data any) (string, error) {
	m.mu.RLock()
	tpl, ok := m.tpls[name]
	m.mu.RUnlock()
	if !ok {
		return "", errs.NewValidation("prompts.Render", fmt.Sprintf("prompt template not found: %s", name), nil)
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", errs.NewConfig("prompts.Render", fmt.Sprintf("execute template %s", name), err)
	}
	return sb.String(), nil
}
