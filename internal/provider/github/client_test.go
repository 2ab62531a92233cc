package github

import (
	"context"
	"testing"
)

type fakeRunner struct {
	stdout map[string][]byte
	lastCmd []string
}

func (f *fakeRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, []byte, error) {
	f.lastCmd = append([]string{name}, args...)
	key := name
	for _, a := range args {
		key += " " + a
	}
	if out, ok := f.stdout[key]; ok {
		return out, nil, nil
	}
	return []byte("{}"), nil, nil
}

func TestParsePRCreateOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		number int
	}{
		{"simple url", "https://github.com/acme/widgets/pull/88\n", 88},
		{"with warnings before url", "Warning: some notice\nhttps://github.com/acme/widgets/pull/3\n", 3},
		{"no url", "nothing useful here\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := parsePRCreateOutput(tt.output)
			if n != tt.number {
				t.Errorf("parsePRCreateOutput() number = %d, want %d", n, tt.number)
			}
		})
	}
}

func TestCheckAuthentication(t *testing.T) {
	fr := &fakeRunner{stdout: map[string][]byte{
		"gh api user --jq .login": []byte("octocat\n"),
	}}
	c := New()
	c.runner = fr

	identity, err := c.CheckAuthentication()
	if err != nil {
		t.Fatalf("CheckAuthentication() error = %v", err)
	}
	if identity != "octocat" {
		t.Errorf("CheckAuthentication() = %q, want octocat", identity)
	}
}

func TestMergeStateFromGH(t *testing.T) {
	tests := []struct {
		mergeable string
		status    string
		want      string
	}{
		{"CONFLICTING", "DIRTY", "DIRTY"},
		{"MERGEABLE", "CLEAN", "CLEAN"},
		{"MERGEABLE", "BEHIND", "BEHIND"},
		{"UNKNOWN", "", "UNKNOWN"},
	}
	for _, tt := range tests {
		got := mergeStateFromGH(tt.mergeable, tt.status)
		if string(got) != tt.want {
			t.Errorf("mergeStateFromGH(%q,%q) = %q, want %q", tt.mergeable, tt.status, got, tt.want)
		}
	}
}
