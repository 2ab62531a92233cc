// Package agentmd writes and removes the per-run AGENT.md task file the
// agent reads at the start of every work session: the issue it is
// resolving, the branch and working directory it is in, fork coordinates
// when relevant, and a feedback summary on restart. Grounded on the
// prior implementation's own AGENT.md generator (text/template + regeneration
// markers), narrowed from a per-project, merge-preserving file to a
// per-run, single-shot one.
package agentmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const (
	GeneratedStartMarker = "<!-- generated:start -->"
	GeneratedEndMarker   = "<!-- generated:end -->"

	// FileName is the task file's name at the repository root.
	FileName = "AGENT.md"
)

// TaskInfo carries everything the template needs to render one run's
// AGENT.md.
type TaskInfo struct {
	IssueURL      string
	Branch        string
	WorkingDir    string
	IsFork        bool
	ForkOwner     string
	UpstreamOwner string
	Repo          string

	// FeedbackSummary is non-empty only on a restart carrying a
	// FeedbackSnapshot-derived delta (spec.md 4.5's "minimal, feedback-only"
	// resume prompt).
	FeedbackSummary string
}

// Generator renders AGENT.md content from a TaskInfo.
type Generator struct {
	tmpl *template.Template
}

// NewGenerator parses the task-file template once for reuse.
func NewGenerator() (*Generator, error) {
	tmpl, err := template.New("agentmd").Parse(taskFileTemplate)
	if err != nil {
		return nil, fmt.Errorf("agentmd: parse template: %w", err)
	}
	return &Generator{tmpl: tmpl}, nil
}

// Generate renders AGENT.md content for info.
func (g *Generator) Generate(info TaskInfo) (string, error) {
	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, info); err != nil {
		return "", fmt.Errorf("agentmd: execute template: %w", err)
	}
	return buf.String(), nil
}

// WriteToRepo writes AGENT.md at the repository root. Unlike the prior
// implementation's WriteToProject, there is no prior custom section to
// preserve: this file is written once per work session and removed
// before the session's PR is finalised (see RemoveFromRepo).
func (g *Generator) WriteToRepo(rootDir string, info TaskInfo) error {
	content, err := g.Generate(info)
	if err != nil {
		return err
	}
	path := filepath.Join(rootDir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("agentmd: write %s: %w", path, err)
	}
	return nil
}

// RemoveFromRepo deletes AGENT.md once the agent session ends (spec.md
// 4.4's "AGENT.md is removed after the agent session ends"; its absence
// in the branch then signals an in-progress or completed task rather
// than a freshly bootstrapped one).
func RemoveFromRepo(rootDir string) error {
	path := filepath.Join(rootDir, FileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("agentmd: remove %s: %w", path, err)
	}
	return nil
}

// Exists reports whether AGENT.md is present at the repository root.
func Exists(rootDir string) bool {
	_, err := os.Stat(filepath.Join(rootDir, FileName))
	return err == nil
}
