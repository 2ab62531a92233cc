// Package feedback implements C6: comparing server-side timestamps
// against a reference point to detect what changed on a PR/issue since
// the engine's last work session, and bracketing each session with
// machine-readable "Started"/"Completed" comments that flip the PR's
// draft state. Grounded on the prior internal/controller/comments.go
// (postIssueComment/postPRComment/appendSignature's "best-effort,
// signature-tagged comment" idiom) and internal/controller/issues.go's
// issue/comment fetching, generalized from gh-CLI-direct calls to
// internal/provider.Provider so the same detector works against any
// provider.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andymwolf/solveengine/internal/provider"
	"github.com/andymwolf/solveengine/internal/workspace"
)

// Markers are the machine-readable prefixes spec.md 4.6/6 requires on
// work-session bracketing comments. Any comment beginning with either
// marker is the engine's own and is excluded from feedback counts on
// the next iteration.
const (
	MarkerStarted   = "🤖 AI Work Session Started"
	MarkerCompleted = "🤖 AI Work Session Completed"
)

// Snapshot is what C6 emits once per iteration (spec.md 4.1's
// FeedbackSnapshot: newPrComments[], newIssueComments[], mergeState,
// uncommittedChanges[], workStartTime).
type Snapshot struct {
	NewPRComments      []provider.Comment
	NewIssueComments   []provider.Comment
	MergeState         provider.MergeState
	UncommittedChanges []string
	WorkStartTime      time.Time
}

// Empty reports whether the snapshot carries no feedback at all - the
// condition spec.md 4.6 says terminates the watch loop when paired with
// a merged PR.
func (s Snapshot) Empty() bool {
	return len(s.NewPRComments) == 0 && len(s.NewIssueComments) == 0 && len(s.UncommittedChanges) == 0
}

// Detector computes reference timestamps and feedback snapshots for one
// engine invocation. It owns the monotonic-reference-timestamp
// invariant (spec.md 5: "the reference timestamp is monotonically
// non-decreasing across ticks within the same engine") across calls to
// Capture.
type Detector struct {
	Provider provider.Provider

	lastRef time.Time
}

// isOwnComment reports whether body is one of the engine's own
// bracketing comments, per spec.md 4.6's exclusion rule.
func isOwnComment(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, MarkerStarted) || strings.HasPrefix(trimmed, MarkerCompleted)
}

// referenceTimestamp computes max(issue.UpdatedAt, lastIssueComment.CreatedAt,
// lastPrComment.CreatedAt) per spec.md 4.6. Commit timestamps are not
// included: provider.Provider exposes no commit-listing operation (every
// concrete Provider wraps the issue/PR/comment surface only), so the
// "or commit" half of the "lastPrCommentOrCommit" phrase degrades to
// comments alone - see DESIGN.md for this call.
func referenceTimestamp(issue provider.Issue, prComments []provider.Comment) time.Time {
	ref := issue.UpdatedAt
	for _, c := range issue.Comments {
		if isOwnComment(c.Body) {
			continue
		}
		if c.CreatedAt.After(ref) {
			ref = c.CreatedAt
		}
	}
	for _, c := range prComments {
		if isOwnComment(c.Body) {
			continue
		}
		if c.CreatedAt.After(ref) {
			ref = c.CreatedAt
		}
	}
	return ref
}

// StartSession posts the "Started" bracketing comment, flips the PR to
// draft, and returns the reference timestamp for this session - captured
// after the comment is posted (so it never counts as feedback) and
// before the agent is spawned (spec.md 5's ordering guarantee).
func (d *Detector) StartSession(ctx context.Context, owner, repo string, issueNumber, prNumber int) (time.Time, error) {
	body := fmt.Sprintf("%s\n\n%s", MarkerStarted, time.Now().UTC().Format(time.RFC3339))
	if err := d.Provider.AddComment(owner, repo, provider.TargetPR, prNumber, body); err != nil {
		return time.Time{}, fmt.Errorf("feedback: post work-started comment: %w", err)
	}
	if err := d.Provider.SetDraft(owner, repo, prNumber, true); err != nil {
		return time.Time{}, fmt.Errorf("feedback: set PR draft: %w", err)
	}

	issue, err := d.Provider.GetIssue(owner, repo, issueNumber)
	if err != nil {
		return time.Time{}, fmt.Errorf("feedback: fetch issue for reference timestamp: %w", err)
	}
	prComments, err := d.Provider.ListComments(owner, repo, provider.TargetPR, prNumber, time.Time{})
	if err != nil {
		return time.Time{}, fmt.Errorf("feedback: list PR comments for reference timestamp: %w", err)
	}

	ref := referenceTimestamp(issue, prComments)
	if ref.Before(d.lastRef) {
		ref = d.lastRef
	}
	d.lastRef = ref
	return ref, nil
}

// LastReference returns the most recent server-derived reference
// timestamp StartSession computed, for callers (C7's poll pre-check)
// that need a monotonic comparison point between sessions without
// falling back to local wall-clock time (spec.md 5: the reference
// timestamp must never be derived from the caller's own clock).
func (d *Detector) LastReference() time.Time {
	return d.lastRef
}

// CompleteSession posts the "Completed" bracketing comment and flips the
// PR back to ready-for-review (spec.md 4.6's success-path close).
func (d *Detector) CompleteSession(ctx context.Context, owner, repo string, prNumber int) error {
	body := fmt.Sprintf("%s\n\n%s", MarkerCompleted, time.Now().UTC().Format(time.RFC3339))
	if err := d.Provider.AddComment(owner, repo, provider.TargetPR, prNumber, body); err != nil {
		return fmt.Errorf("feedback: post work-completed comment: %w", err)
	}
	if err := d.Provider.SetDraft(owner, repo, prNumber, false); err != nil {
		return fmt.Errorf("feedback: clear PR draft: %w", err)
	}
	return nil
}

// Capture builds a Snapshot by comparing server-side state against ref,
// per spec.md 4.6's counting rules, and checking the workspace for
// uncommitted changes.
func (d *Detector) Capture(ctx context.Context, owner, repo string, issueNumber, prNumber int, ref time.Time, ws *workspace.Workspace) (Snapshot, error) {
	pr, err := d.Provider.GetPullRequest(owner, repo, prNumber)
	if err != nil {
		return Snapshot{}, fmt.Errorf("feedback: fetch pull request: %w", err)
	}

	prComments, err := d.Provider.ListComments(owner, repo, provider.TargetPR, prNumber, ref)
	if err != nil {
		return Snapshot{}, fmt.Errorf("feedback: list PR comments: %w", err)
	}
	issue, err := d.Provider.GetIssue(owner, repo, issueNumber)
	if err != nil {
		return Snapshot{}, fmt.Errorf("feedback: fetch issue: %w", err)
	}

	snapshot := Snapshot{
		MergeState:    pr.MergeState,
		WorkStartTime: ref,
	}
	for _, c := range prComments {
		if isOwnComment(c.Body) || !c.CreatedAt.After(ref) {
			continue
		}
		snapshot.NewPRComments = append(snapshot.NewPRComments, c)
	}
	for _, c := range issue.Comments {
		if isOwnComment(c.Body) || !c.CreatedAt.After(ref) {
			continue
		}
		snapshot.NewIssueComments = append(snapshot.NewIssueComments, c)
	}

	if ws != nil {
		changes, err := ws.UncommittedChanges(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("feedback: check uncommitted changes: %w", err)
		}
		snapshot.UncommittedChanges = changes
	}

	return snapshot, nil
}
