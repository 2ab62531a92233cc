// Package summary implements C9: after an agent session ends, find the
// PR it worked against, compose a human-readable summary, decide
// whether to attach the session log inline or via an uploaded paste,
// and remove AGENT.md from the branch. Grounded on the prior
// internal/controller/comments.go posting idiom (reused via
// provider.Provider.AddComment rather than a second direct `gh pr
// comment` call site) and internal/agent/claudecode/stream.go's
// token/message counting fields, which this package's Compose turns
// into the prose spec.md 4.9 asks for.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andymwolf/solveengine/internal/agentdriver"
	"github.com/andymwolf/solveengine/internal/agentmd"
	"github.com/andymwolf/solveengine/internal/provider"
	"github.com/andymwolf/solveengine/internal/subprocess"
	"github.com/andymwolf/solveengine/internal/workspace"
)

// Summary is the composed, human-readable report for one agent session.
type Summary struct {
	SessionID       string
	MessageCount    int
	ToolUseCount    int
	TokensByModel   map[string]*agentdriver.TokenUsage
	CostUSD         float64
	UnknownModels   []string // model ids that contributed zero to CostUSD
	Duration        time.Duration
	LimitReached    bool
	LimitResetAt    string
	FailureReason   string // empty on success
}

// Compose builds a Summary from a completed driver run.
func Compose(result *agentdriver.RunResult, duration time.Duration, failureReason string) Summary {
	s := Summary{
		SessionID:     result.SessionID,
		TokensByModel: result.Parsed.TokensByModel,
		CostUSD:       result.CostUSD,
		UnknownModels: result.UnknownModels,
		Duration:      duration,
		LimitReached:  result.LimitReached,
		LimitResetAt:  result.LimitResetAt,
		FailureReason: failureReason,
	}
	for _, evt := range result.Parsed.Events {
		switch {
		case evt.Type == agentdriver.EventAssistant && evt.Subtype == agentdriver.BlockText:
			s.MessageCount++
		case evt.Subtype == agentdriver.BlockToolUse:
			s.ToolUseCount++
		}
	}
	return s
}

// Render produces the markdown body spec.md 4.9 describes: session id,
// message/tool counts, token totals per model, estimated cost, duration,
// limit state.
func (s Summary) Render() string {
	var b strings.Builder

	if s.FailureReason != "" {
		fmt.Fprintf(&b, "**Session failed:** %s\n\n", s.FailureReason)
	}

	fmt.Fprintf(&b, "**Session:** `%s`\n", s.SessionID)
	fmt.Fprintf(&b, "**Messages:** %d assistant messages, %d tool uses\n", s.MessageCount, s.ToolUseCount)
	fmt.Fprintf(&b, "**Duration:** %s\n", s.Duration.Round(time.Second))

	if len(s.TokensByModel) > 0 {
		b.WriteString("**Tokens:**\n")
		for model, usage := range s.TokensByModel {
			fmt.Fprintf(&b, "- `%s`: %d in, %d out, %d cache-read\n", model, usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens)
		}
	}

	if s.CostUSD > 0 {
		fmt.Fprintf(&b, "**Estimated cost:** $%.4f\n", s.CostUSD)
	} else {
		b.WriteString("**Estimated cost:** unknown (no recognized model in usage)\n")
	}

	if len(s.UnknownModels) > 0 {
		fmt.Fprintf(&b, "**Unrecognized model id(s), billed as zero cost:** %s\n", strings.Join(s.UnknownModels, ", "))
	}

	if s.LimitReached {
		fmt.Fprintf(&b, "**Rate limit reached.** Resets at %s.\n", s.LimitResetAt)
	}

	return strings.TrimSpace(b.String())
}

// FindPR resolves the PR a session worked against. The engine always
// knows the PR number from C4 (the draft PR it created) or from an
// IssueAutoContinue/PrContinue run's initial resolution; provider.Provider
// exposes no search-by-branch operation (spec.md 4.1 keeps the platform
// surface narrow), so a PR genuinely not yet known to the caller cannot
// be discovered here - the caller reports "no PR created" per spec.md
// 4.9 in that case, which is what a zero knownPRNumber signals.
func FindPR(p provider.Provider, owner, repo string, knownPRNumber int) (provider.PullRequest, bool, error) {
	if knownPRNumber <= 0 {
		return provider.PullRequest{}, false, nil
	}
	pr, err := p.GetPullRequest(owner, repo, knownPRNumber)
	if err != nil {
		return provider.PullRequest{}, false, fmt.Errorf("summary: fetch pull request: %w", err)
	}
	return pr, true, nil
}

// MaxInlineCommentSize is the conservative threshold below which a log
// tail is inlined in the summary comment rather than uploaded as a
// paste; real platform comment limits vary, this stays well under
// GitHub's ~65536 char cap to leave room for the rest of the comment.
const MaxInlineCommentSize = 40000

// AttachLog implements spec.md 4.9's log-attachment decision tree:
// inline if the sanitised log fits under MaxInlineCommentSize, otherwise
// upload it as a platform paste and link to it.
func AttachLog(p provider.Provider, logContent []byte) (string, error) {
	sanitized := subprocess.SanitizeForUpload(logContent)
	if len(sanitized) <= MaxInlineCommentSize {
		return fmt.Sprintf("<details><summary>Session log</summary>\n\n```\n%s\n```\n</details>", sanitized), nil
	}

	url, err := p.UploadPaste("session.log", sanitized)
	if err != nil {
		return "", fmt.Errorf("summary: upload log paste: %w", err)
	}
	return fmt.Sprintf("Session log exceeded inline size; full log: %s", url), nil
}

// PostSummary composes the comment body (summary prose, plus the log
// attachment when attachLog is true) and posts it to the PR.
func PostSummary(p provider.Provider, owner, repo string, prNumber int, s Summary, logContent []byte, attachLog bool) error {
	body := s.Render()
	if attachLog && logContent != nil {
		attachment, err := AttachLog(p, logContent)
		if err != nil {
			return err
		}
		body = body + "\n\n" + attachment
	}
	if err := p.AddComment(owner, repo, provider.TargetPR, prNumber, body); err != nil {
		return fmt.Errorf("summary: post summary comment: %w", err)
	}
	return nil
}

// RemoveAgentMDFile removes AGENT.md from the branch and commits the
// removal, unless the task is explicitly marked incomplete (spec.md
// 4.9's closing step). Reuses agentmd.RemoveFromRepo and
// workspace.CommitAll rather than re-implementing file removal and
// commit logic here.
func RemoveAgentMDFile(ctx context.Context, ws *workspace.Workspace, incomplete bool) error {
	if incomplete {
		return nil
	}
	if !agentmd.Exists(ws.TempDir) {
		return nil
	}
	if err := agentmd.RemoveFromRepo(ws.TempDir); err != nil {
		return fmt.Errorf("summary: remove AGENT.md: %w", err)
	}
	if err := ws.CommitAll(ctx, "Remove AGENT.md"); err != nil {
		return fmt.Errorf("summary: commit AGENT.md removal: %w", err)
	}
	return nil
}
