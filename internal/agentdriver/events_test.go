package agentdriver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/andymwolf/solveengine/internal/events"
)

func TestToAgentEvents(t *testing.T) {
	now := time.Now()
	params := EventConvertParams{
		SessionID: "test-session",
		Iteration: 1,
		Adapter:   "claude-code",
		Timestamp: now,
	}

	tests := []struct {
		name     string
		input    []StreamEvent
		expected []events.AgentEvent
	}{
		{
			name: "text event",
			input: []StreamEvent{
				{Type: EventAssistant, Subtype: BlockText, Content: "Hello world"},
			},
			expected: []events.AgentEvent{
				{Timestamp: now, SessionID: "test-session", Iteration: 1, Adapter: "claude-code",
					Type: events.EventText, Content: "Hello world", Summary: "Hello world"},
			},
		},
		{
			name: "thinking event",
			input: []StreamEvent{
				{Type: EventAssistant, Subtype: BlockThinking, Content: "Let me think..."},
			},
			expected: []events.AgentEvent{
				{Timestamp: now, SessionID: "test-session", Iteration: 1, Adapter: "claude-code",
					Type: events.EventThinking, Content: "Let me think...", Summary: "Let me think..."},
			},
		},
		{
			name: "tool use event",
			input: []StreamEvent{
				{Type: EventAssistant, Subtype: BlockToolUse, ToolName: "Bash", ToolInput: json.RawMessage(`{"command": "ls -la"}`)},
			},
			expected: []events.AgentEvent{
				{Timestamp: now, SessionID: "test-session", Iteration: 1, Adapter: "claude-code",
					Type: events.EventToolUse, ToolName: "Bash", ToolInput: `{"command": "ls -la"}`, Summary: "Tool: Bash"},
			},
		},
		{
			name: "tool result event",
			input: []StreamEvent{
				{Type: EventUser, Subtype: BlockToolResult, Content: "file1.txt\nfile2.txt"},
			},
			expected: []events.AgentEvent{
				{Timestamp: now, SessionID: "test-session", Iteration: 1, Adapter: "claude-code",
					Type: events.EventToolResult, Content: "file1.txt\nfile2.txt", Summary: "file1.txt\nfile2.txt"},
			},
		},
		{
			name:     "system events are skipped",
			input:    []StreamEvent{{Type: EventSystem}},
			expected: nil,
		},
		{name: "empty input", input: []StreamEvent{}, expected: nil},
		{name: "nil input", input: nil, expected: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := ToAgentEvents(tc.input, params)
			if tc.expected == nil {
				if result != nil {
					t.Errorf("expected nil, got %v", result)
				}
				return
			}
			if len(result) != len(tc.expected) {
				t.Fatalf("expected %d events, got %d", len(tc.expected), len(result))
			}
			for i, exp := range tc.expected {
				got := result[i]
				if got.Type != exp.Type || got.SessionID != exp.SessionID || got.Iteration != exp.Iteration ||
					got.Adapter != exp.Adapter || got.Content != exp.Content || got.ToolName != exp.ToolName ||
					got.ToolInput != exp.ToolInput {
					t.Errorf("event[%d] = %+v, want %+v", i, got, exp)
				}
			}
		})
	}
}

func TestTruncateForSummary(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 10, ""},
		{"hello", 0, ""},
	}
	for _, tc := range tests {
		result := truncateForSummary(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("truncateForSummary(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}
