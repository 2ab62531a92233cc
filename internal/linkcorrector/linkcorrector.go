// Package linkcorrector implements C8 (experimental): an independent
// periodic task that watches a PR's body for the closing-keyword
// reference to its tracked issue and repairs it if an agent edit
// removes it, preventing the documented failure mode where GitHub's
// automatic issue closure silently breaks. Grounded on the prior
// internal/controller/comments.go's "read current body, compute a new
// body, write it back" idiom (the same shape `updateIssuePlan` uses for
// the issue body's plan-marker section), moved from issue-body plan
// markers to PR-body closing-keyword references and from a one-shot
// update to a periodic read-then-write-if-drifted tick.
package linkcorrector

import (
	"context"
	"fmt"
	"time"

	"github.com/andymwolf/solveengine/internal/provider"
)

const defaultInterval = 5 * time.Second

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Info(message string)
	Warning(message string)
}

// Corrector runs C8's read-test-repair tick against one PR for the
// lifetime of the solve engine, independently of the agent and the
// watch loop (spec.md 5: "it never cancels or blocks the agent").
type Corrector struct {
	Provider provider.Provider
	Logger   Logger

	Owner, Repo       string
	PRNumber          int
	IssueNumber       int
	HeadOwner         string // owner of the repo the PR's head branch lives in
	Interval          time.Duration

	lastBody    string
	corrections int
}

// Corrections returns how many times this corrector has repaired the
// PR body since it started.
func (c *Corrector) Corrections() int {
	return c.corrections
}

func (c *Corrector) interval() time.Duration {
	if c.Interval <= 0 {
		return defaultInterval
	}
	return c.Interval
}

// Run ticks until ctx is cancelled. Each tick is spec.md 4.8's three
// steps: read the PR body, test for a valid closing-keyword reference
// if the body changed since last tick, and repair it if invalid.
func (c *Corrector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.tick(ctx); err != nil && c.Logger != nil {
				c.Logger.Warning(fmt.Sprintf("linkcorrector: tick failed: %v", err))
			}
		}
	}
}

func (c *Corrector) tick(ctx context.Context) error {
	pr, err := c.Provider.GetPullRequest(c.Owner, c.Repo, c.PRNumber)
	if err != nil {
		return fmt.Errorf("fetch pull request: %w", err)
	}

	if pr.Body == c.lastBody {
		return nil
	}
	c.lastBody = pr.Body

	if provider.HasValidReference(pr.Body, c.IssueNumber, c.HeadOwner, c.Owner, c.Repo) {
		return nil
	}

	ref := provider.ExpectedRef(c.IssueNumber, c.HeadOwner, c.Owner, c.Repo)
	newBody := pr.Body + fmt.Sprintf("\n\n---\n\nResolves %s", ref)

	if err := c.Provider.UpdatePRBody(c.Owner, c.Repo, c.PRNumber, newBody); err != nil {
		return fmt.Errorf("update pull request body: %w", err)
	}
	c.lastBody = newBody
	c.corrections++
	if c.Logger != nil {
		c.Logger.Info(fmt.Sprintf("linkcorrector: repaired missing closing reference on PR #%d (correction %d)", c.PRNumber, c.corrections))
	}
	return nil
}
