package agentdriver

import (
	"time"

	"github.com/andymwolf/solveengine/internal/events"
)

// EventConvertParams carries the run identity fields a converted
// events.AgentEvent needs but a bare StreamEvent does not carry itself.
type EventConvertParams struct {
	SessionID string
	Iteration int
	Adapter   string
	Timestamp time.Time // zero means time.Now()
}

// ToAgentEvents converts newly parsed StreamEvents into the unified
// events.AgentEvent shape the structured event log (events.FileSink)
// stores, per spec.md's "log every event structurally" requirement.
// System events and other unrecognized subtypes are dropped: they carry
// nothing a session transcript consumer needs beyond what the raw NDJSON
// log already has.
func ToAgentEvents(streamEvents []StreamEvent, params EventConvertParams) []events.AgentEvent {
	if len(streamEvents) == 0 {
		return nil
	}

	ts := params.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var out []events.AgentEvent
	for _, se := range streamEvents {
		converted := toAgentEvent(se, params, ts)
		if converted != nil {
			out = append(out, *converted)
		}
	}
	return out
}

func toAgentEvent(se StreamEvent, params EventConvertParams, ts time.Time) *events.AgentEvent {
	event := &events.AgentEvent{
		Timestamp: ts,
		SessionID: params.SessionID,
		Iteration: params.Iteration,
		Adapter:   params.Adapter,
	}

	switch se.Subtype {
	case BlockText:
		event.Type = events.EventText
		event.Content = se.Content
		event.Summary = truncateForSummary(se.Content, 100)

	case BlockThinking:
		event.Type = events.EventThinking
		event.Content = se.Content
		event.Summary = truncateForSummary(se.Content, 100)

	case BlockToolUse:
		event.Type = events.EventToolUse
		event.ToolName = se.ToolName
		if se.ToolInput != nil {
			event.ToolInput = string(se.ToolInput)
		}
		event.Summary = "Tool: " + se.ToolName

	case BlockToolResult:
		event.Type = events.EventToolResult
		event.Content = se.Content
		event.Summary = truncateForSummary(se.Content, 100)

	default:
		return nil
	}

	return event
}

// truncateForSummary shortens s to maxLen, appending "..." when cut.
func truncateForSummary(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
