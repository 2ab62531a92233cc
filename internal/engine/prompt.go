package engine

import (
	"fmt"
	"strings"
)

// buildInitialPrompt assembles the prompt the agent CLI reads from stdin
// for a fresh issue-start or PR-continue session: the system prompt, the
// project's AGENT.md (if present - loaded separately by the caller and
// passed in as projectPrompt), and the issue/PR context. Grounded on the prior
// controller.go buildPromptWithIssues/buildPromptWithPRs (the
// same "system prompt + task context" concatenation), narrowed to the
// single-issue/single-PR shape spec.md 4.1 describes instead of the prior
// multi-task batch prompt.
func buildInitialPrompt(systemPrompt, projectPrompt, issueTitle, issueBody, issueURL string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "## Issue: %s\n\n%s\n\n%s\n", issueTitle, issueURL, issueBody)
	if projectPrompt != "" {
		b.WriteString("\n---\n\n")
		b.WriteString(projectPrompt)
	}
	return b.String()
}

// buildResumePrompt builds the minimal, feedback-only prompt spec.md 4.5
// describes for a restart: no full task restatement, just what changed.
func buildResumePrompt(systemPrompt, feedbackSummary string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n---\n\n## Feedback since your last session\n\n")
	b.WriteString(feedbackSummary)
	return b.String()
}

// buildAgentArgv constructs the agent CLI's argument list. The prompt
// itself is never included here: internal/agentdriver.RunParams always
// delivers it on stdin so it never appears in a process listing.
// Grounded on internal/agentdriver.RunParams's own doc comment describing
// this exact argv shape.
func buildAgentArgv(model, resumeSessionID string) []string {
	argv := []string{"claude", "-p", "--output-format", "stream-json", "--verbose"}
	if model != "" {
		argv = append(argv, "--model", model)
	}
	if resumeSessionID != "" {
		argv = append(argv, "--resume", resumeSessionID)
	}
	return argv
}
