package agentmd

// taskFileTemplate renders the per-run AGENT.md the agent reads on
// startup: where it is, what it's working on, and the literal directive
// to begin. Unlike the prior project-scanning template (rendered
// once at project-init time and merged with a preserved custom section
// on every regeneration) this file lives for exactly one work session and
// is removed once the agent session ends (spec.md 4.4/4.5).
const taskFileTemplate = `<!-- generated:start -->
# Task

**Issue:** {{.IssueURL}}
**Branch:** {{.Branch}}
**Working directory:** {{.WorkingDir}}
{{- if .IsFork}}
**Fork:** {{.ForkOwner}}/{{.Repo}}
**Upstream:** {{.UpstreamOwner}}/{{.Repo}}
{{- end}}
{{- if .FeedbackSummary}}

## Feedback since last session

{{.FeedbackSummary}}
{{- end}}
<!-- generated:end -->

Proceed.
`
