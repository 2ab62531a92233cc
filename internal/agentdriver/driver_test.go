package agentdriver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDriver_Run_ParsesSessionIDAndRenamesLog(t *testing.T) {
	dir := t.TempDir()
	script := `printf '{"type":"system","subtype":"init","session_id":"sess-abc"}\n{"type":"assistant","message":{"model":"claude-sonnet-4","content":[{"type":"text","text":"done"}]}}\n{"type":"result","result":{"model":"claude-sonnet-4","usage":{"input_tokens":10,"output_tokens":5},"stop_reason":"end_turn"}}\n'`

	d := NewDriver(nil)
	result, err := d.Run(context.Background(), RunParams{
		Argv:   []string{"sh", "-c", script},
		Dir:    dir,
		Prompt: "irrelevant",
		LogDir: dir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.SessionID != "sess-abc" {
		t.Errorf("SessionID = %q, want sess-abc", result.SessionID)
	}
	if filepath.Base(result.LogPath) != "sess-abc.log" {
		t.Errorf("LogPath = %q, want to end in sess-abc.log", result.LogPath)
	}
	if _, err := os.Stat(result.LogPath); err != nil {
		t.Errorf("expected log file to exist at %s: %v", result.LogPath, err)
	}
	if result.Parsed.ExtractAssistantText() != "done" {
		t.Errorf("assistant text = %q, want done", result.Parsed.ExtractAssistantText())
	}
	if result.CostUSD <= 0 {
		t.Errorf("CostUSD = %v, want > 0", result.CostUSD)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", result.ExitCode)
	}
}

func TestDriver_Run_WritesStructuredEventLog(t *testing.T) {
	dir := t.TempDir()
	script := `printf '{"type":"system","subtype":"init","session_id":"sess-events"}\n{"type":"assistant","message":{"model":"claude-sonnet-4","content":[{"type":"text","text":"hello"},{"type":"tool_use","name":"bash","input":{"command":"ls"}}]}}\n{"type":"result","result":{"model":"claude-sonnet-4","usage":{"input_tokens":1,"output_tokens":1}}}\n'`

	d := NewDriver(nil)
	result, err := d.Run(context.Background(), RunParams{
		Argv:   []string{"sh", "-c", script},
		Dir:    dir,
		Prompt: "irrelevant",
		LogDir: dir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if filepath.Base(filepath.Dir(result.EventsPath)) != "sess-events-events" {
		t.Errorf("EventsPath = %q, want to live under a sess-events-events dir", result.EventsPath)
	}
	content, readErr := os.ReadFile(result.EventsPath)
	if readErr != nil {
		t.Fatalf("read events log: %v", readErr)
	}
	if !strings.Contains(string(content), `"text"`) || !strings.Contains(string(content), `"tool_use"`) {
		t.Errorf("events log = %q, want to contain text and tool_use entries", string(content))
	}
}

func TestDriver_Run_ForbiddenIsFatal(t *testing.T) {
	dir := t.TempDir()
	script := `printf '{"type":"system","subtype":"error","error":"forbidden: please run /login"}\n'`

	d := NewDriver(nil)
	_, err := d.Run(context.Background(), RunParams{
		Argv:   []string{"sh", "-c", script},
		Dir:    dir,
		Prompt: "irrelevant",
		LogDir: dir,
	})
	if err != ErrForbidden {
		t.Errorf("Run() error = %v, want ErrForbidden", err)
	}
}

func TestDriver_Run_LimitReachedNotRetried(t *testing.T) {
	dir := t.TempDir()
	script := `printf '{"type":"result","result":{"limit_reset_at":"2026-08-01T00:00:00Z"}}\n'`

	d := NewDriver(nil)
	result, err := d.Run(context.Background(), RunParams{
		Argv:   []string{"sh", "-c", script},
		Dir:    dir,
		Prompt: "irrelevant",
		LogDir: dir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.LimitReached {
		t.Errorf("expected LimitReached=true")
	}
	if result.LimitResetAt != "2026-08-01T00:00:00Z" {
		t.Errorf("LimitResetAt = %q", result.LimitResetAt)
	}
}

func TestDriver_Run_OverloadedRetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "attempt-marker")
	script := `
if [ ! -f ` + marker + ` ]; then
  touch ` + marker + `
  printf '{"type":"system","subtype":"error","error":"Overloaded"}\n'
else
  printf '{"type":"result","result":{"model":"claude-sonnet-4","usage":{"input_tokens":1,"output_tokens":1}}}\n'
fi
`
	d := NewDriver(nil)
	d.BackoffBase = 1
	result, err := d.Run(context.Background(), RunParams{
		Argv:   []string{"sh", "-c", script},
		Dir:    dir,
		Prompt: "irrelevant",
		LogDir: dir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Retries != 1 {
		t.Errorf("Retries = %d, want 1", result.Retries)
	}
}

func TestDriver_Run_MalformedOutputStillProducesResult(t *testing.T) {
	dir := t.TempDir()
	script := `printf 'not json\nmore garbage\n'`

	d := NewDriver(nil)
	result, err := d.Run(context.Background(), RunParams{
		Argv:   []string{"sh", "-c", script},
		Dir:    dir,
		Prompt: "irrelevant",
		LogDir: dir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.SessionID != "" {
		t.Errorf("SessionID = %q, want empty", result.SessionID)
	}
	content, readErr := os.ReadFile(result.LogPath)
	if readErr != nil {
		t.Fatalf("read log: %v", readErr)
	}
	if !strings.Contains(string(content), "not json") {
		t.Errorf("log should still contain raw unparsed output")
	}
}
