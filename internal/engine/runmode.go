package engine

import (
	"fmt"

	"github.com/andymwolf/solveengine/internal/provider"
)

// Target is the engine's resolved view of the positional URL argument: a
// RunMode plus the owner/repo/issue/PR numbers needed to drive every
// subsequent module. Grounded on spec.md 4.1's RunMode derivation: the
// parsed URL's Kind plus, for a PR target, the issue number recovered from
// its body's closing-keyword reference.
type Target struct {
	Mode        provider.RunMode
	Owner       string
	Repo        string
	IssueNumber int
	PRNumber    int // 0 until a PR exists or is being continued
}

// deriveTarget classifies a parsed URL into a RunMode and resolves the
// issue number a PR target implies. An issue URL always starts
// IssueStart: auto-continuing onto an existing PR (IssueAutoContinue)
// requires discovering a PR authored by the current identity on a branch
// referencing this issue, which provider.Provider has no search operation
// for (see internal/summary.FindPR's identical narrowing) - so
// IssueAutoContinue is only reachable when the caller already knows the
// PR number (e.g. a resumed local run), via withKnownPR.
func deriveTarget(target provider.TargetUrl, autoContinue bool) (Target, error) {
	switch target.Kind {
	case provider.KindIssue:
		if !target.HasNumericTarget() {
			return Target{}, fmt.Errorf("engine: issue url has no numeric target")
		}
		return Target{
			Mode:        provider.IssueStart,
			Owner:       target.Owner,
			Repo:        target.Repo,
			IssueNumber: target.Number,
		}, nil

	case provider.KindPull:
		if !target.HasNumericTarget() {
			return Target{}, fmt.Errorf("engine: pull request url has no numeric target")
		}
		return Target{
			Mode:     provider.PrContinue,
			Owner:    target.Owner,
			Repo:     target.Repo,
			PRNumber: target.Number,
		}, nil

	default:
		return Target{}, fmt.Errorf("engine: url does not point at an issue or pull request (kind %q)", target.Kind)
	}
}

// resolveIssueFromPR recovers the issue number a PrContinue target is
// working against, per spec.md 4.1: the first valid closing-keyword
// reference in the PR body.
func resolveIssueFromPR(pr provider.PullRequest) (int, error) {
	refs := provider.FindClosingReferences(pr.Body)
	if len(refs) == 0 {
		return 0, fmt.Errorf("engine: pull request #%d body has no closing-keyword reference to an issue", pr.Number)
	}
	return refs[0].IssueNum, nil
}

// withKnownPR fills in t.PRNumber for an IssueStart target the caller
// already knows continues a specific PR (spec.md 4.1's IssueAutoContinue),
// switching its Mode accordingly.
func withKnownPR(t Target, prNumber int) Target {
	if prNumber <= 0 {
		return t
	}
	t.Mode = provider.IssueAutoContinue
	t.PRNumber = prNumber
	return t
}
