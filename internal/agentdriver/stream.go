package agentdriver

import (
	"bytes"
	"encoding/json"
	"strings"
)

// StreamEventType enumerates event types in the agent CLI's NDJSON
// stream-json output.
type StreamEventType string

const (
	EventSystem    StreamEventType = "system"
	EventAssistant StreamEventType = "assistant"
	EventUser      StreamEventType = "user"
	EventResult    StreamEventType = "result"
)

// ContentBlockType enumerates content block types within messages.
type ContentBlockType string

const (
	BlockText       ContentBlockType = "text"
	BlockThinking   ContentBlockType = "thinking"
	BlockToolUse    ContentBlockType = "tool_use"
	BlockToolResult ContentBlockType = "tool_result"
)

// TokenUsage holds one model's token counts from a result event, per
// spec.md 3's AgentSession.tokenUsage breakdown.
type TokenUsage struct {
	InputTokens       int `json:"input_tokens"`
	CacheCreation5m   int `json:"cache_creation_5m_tokens"`
	CacheCreation1h   int `json:"cache_creation_1h_tokens"`
	CacheReadTokens   int `json:"cache_read_input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	WebSearchRequests int `json:"web_search_requests"`
}

// Add accumulates u2 into u.
func (u *TokenUsage) Add(u2 TokenUsage) {
	u.InputTokens += u2.InputTokens
	u.CacheCreation5m += u2.CacheCreation5m
	u.CacheCreation1h += u2.CacheCreation1h
	u.CacheReadTokens += u2.CacheReadTokens
	u.OutputTokens += u2.OutputTokens
	u.WebSearchRequests += u2.WebSearchRequests
}

// StreamEvent is a single high-level event extracted from the NDJSON
// stream, generalized from the prior claudecode.StreamEvent to also
// carry the model id and session id a line may reveal.
type StreamEvent struct {
	Type       StreamEventType  `json:"type"`
	Subtype    ContentBlockType `json:"subtype,omitempty"`
	Content    string           `json:"content,omitempty"`
	ToolName   string           `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage  `json:"tool_input,omitempty"`
	Tokens     *TokenUsage      `json:"usage,omitempty"`
	StopReason string           `json:"stop_reason,omitempty"`
	Model      string           `json:"model,omitempty"`
	SessionID  string           `json:"session_id,omitempty"`
}

// ParseResult holds all parsed events and aggregated metadata for one
// agent run. Token usage is broken down per model because a single
// session may span more than one model (spec.md 4.5's cost calculation
// sums per-model contributions).
type ParseResult struct {
	Events       []StreamEvent
	TextContent  string
	TokensByModel map[string]*TokenUsage
	StopReason   string
	SessionID    string
	Overloaded   bool
	LimitReached bool
	LimitResetAt string
	Forbidden    bool
}

// MaxThinkingBytes truncates thinking content before it is logged, to
// respect Cloud Logging's per-entry size limit.
const MaxThinkingBytes = 50000

type rawContentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Content  interface{}     `json:"content,omitempty"`
}

type rawEvent struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type rawMessage struct {
	Content []rawContentBlock `json:"content"`
	Model   string            `json:"model,omitempty"`
}

type rawResult struct {
	Content      []rawContentBlock `json:"content"`
	Usage        *TokenUsage       `json:"usage,omitempty"`
	StopReason   string            `json:"stop_reason,omitempty"`
	Model        string            `json:"model,omitempty"`
	IsError      bool              `json:"is_error,omitempty"`
	ErrorSubtype string            `json:"subtype,omitempty"`
	LimitResetAt string            `json:"limit_reset_at,omitempty"`
}

// ParseLine parses a single NDJSON line into result, appending events and
// accumulating text/token state. Malformed lines are tolerated: the
// driver passes them through to the log unparsed rather than aborting
// the stream (spec.md 4.5).
func ParseLine(line []byte, result *ParseResult) (ok bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}

	var evt rawEvent
	if err := json.Unmarshal(line, &evt); err != nil {
		return false
	}

	if evt.SessionID != "" && result.SessionID == "" {
		result.SessionID = evt.SessionID
	}

	lower := strings.ToLower(string(line))
	switch {
	case strings.Contains(lower, "overloaded"):
		result.Overloaded = true
	case strings.Contains(lower, "forbidden") || strings.Contains(lower, "please run /login"):
		result.Forbidden = true
	case strings.Contains(lower, "limit reached") || strings.Contains(lower, "rate limit"):
		result.LimitReached = true
	}

	evtType := StreamEventType(evt.Type)
	switch evtType {
	case EventAssistant, EventUser:
		var msg rawMessage
		if err := json.Unmarshal(evt.Message, &msg); err != nil {
			return false
		}
		extractBlocks(evtType, msg.Model, msg.Content, result)

	case EventResult:
		var res rawResult
		if err := json.Unmarshal(evt.Result, &res); err != nil {
			return false
		}
		extractBlocks(evtType, res.Model, res.Content, result)
		if res.Usage != nil {
			addUsage(result, res.Model, *res.Usage)
		}
		if res.StopReason != "" {
			result.StopReason = res.StopReason
		}
		if res.LimitResetAt != "" {
			result.LimitReached = true
			result.LimitResetAt = res.LimitResetAt
		}

	case EventSystem:
		result.Events = append(result.Events, StreamEvent{
			Type:    EventSystem,
			Subtype: ContentBlockType(evt.Subtype),
		})
	}
	return true
}

// ParseStreamJSON parses a full buffer of NDJSON lines at once, for
// contexts (tests, one-shot validation calls) that have the whole
// output in hand rather than a live stream.
func ParseStreamJSON(data []byte) *ParseResult {
	result := &ParseResult{TokensByModel: map[string]*TokenUsage{}}
	for _, line := range bytes.Split(data, []byte("\n")) {
		ParseLine(line, result)
	}
	return result
}

func addUsage(result *ParseResult, model string, usage TokenUsage) {
	if result.TokensByModel == nil {
		result.TokensByModel = map[string]*TokenUsage{}
	}
	if model == "" {
		model = "unknown"
	}
	existing, ok := result.TokensByModel[model]
	if !ok {
		existing = &TokenUsage{}
		result.TokensByModel[model] = existing
	}
	existing.Add(usage)
}

func extractBlocks(evtType StreamEventType, model string, blocks []rawContentBlock, result *ParseResult) {
	for _, block := range blocks {
		blockType := ContentBlockType(block.Type)
		switch blockType {
		case BlockText:
			se := StreamEvent{Type: evtType, Subtype: BlockText, Content: block.Text, Model: model}
			result.Events = append(result.Events, se)
			if block.Text != "" {
				if result.TextContent != "" {
					result.TextContent += "\n"
				}
				result.TextContent += block.Text
			}

		case BlockThinking:
			content := block.Thinking
			if len(content) > MaxThinkingBytes {
				content = content[:MaxThinkingBytes]
			}
			result.Events = append(result.Events, StreamEvent{Type: evtType, Subtype: BlockThinking, Content: content, Model: model})

		case BlockToolUse:
			result.Events = append(result.Events, StreamEvent{Type: evtType, Subtype: BlockToolUse, ToolName: block.Name, ToolInput: block.Input, Model: model})

		case BlockToolResult:
			content := blockContentToString(block.Content)
			se := StreamEvent{Type: evtType, Subtype: BlockToolResult, Content: content, Model: model}
			result.Events = append(result.Events, se)
		}
	}
}

// ExtractAssistantText returns only text from assistant messages,
// suitable for a human-readable PR/issue comment.
func (pr *ParseResult) ExtractAssistantText() string {
	var parts []string
	for _, evt := range pr.Events {
		if evt.Type == EventAssistant && evt.Subtype == BlockText && evt.Content != "" {
			parts = append(parts, evt.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func blockContentToString(content interface{}) string {
	if content == nil {
		return ""
	}
	switch v := content.(type) {
	case string:
		return v
	case []interface{}:
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				if text, ok := m["text"].(string); ok && text != "" {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
