// Package workspace owns the lifecycle of the local clone the agent works
// in: temp-directory creation, fork arbitration, cloning, default-branch
// detection, and branch checkout. It generalises the prior
// controller.go cloneRepository/initializeWorkspace (a single hardcoded
// clone into a fixed workDir) into the fork-aware, resumable lifecycle
// spec.md 4.3 requires.
package workspace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andymwolf/solveengine/internal/provider"
	"github.com/andymwolf/solveengine/internal/subprocess"
)

// Workspace tracks the on-disk state owned by C3.
type Workspace struct {
	TempDir       string
	RepoToClone   string // owner/repo actually cloned (may be a fork)
	Upstream      string // owner/repo of the base repo, non-empty iff IsFork
	PRForkRemote  string // remote name pointing at a third party's fork, when continuing their PR in fork mode
	DefaultBranch string
	WorkBranch    string
	IsFork        bool

	owner, repo string
}

// SetupTempDir chooses a unique directory. In resume mode it derives a
// deterministic prefix from sessionID so a later invocation can find the
// same directory again; otherwise the suffix is a fresh random uuid.
func SetupTempDir(sessionID string) (string, error) {
	suffix := sessionID
	if suffix == "" {
		suffix = uuid.NewString()
	}
	dir := filepath.Join(os.TempDir(), "solve-"+suffix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace: create temp dir: %w", err)
	}
	return dir, nil
}

// SetupRepository decides whether the engine clones the base repository
// directly or a fork of it, per spec.md 4.3. When useFork is set and the
// current identity has no fork yet, one is created and the engine waits
// with bounded backoff for it to become clonable (fork creation is
// eventually consistent on most hosting platforms).
func SetupRepository(ctx context.Context, p provider.Provider, owner, repo string, useFork bool, prHeadOwner string) (*Workspace, error) {
	ws := &Workspace{owner: owner, repo: repo}

	if !useFork {
		ws.RepoToClone = owner + "/" + repo
		if prHeadOwner != "" && !strings.EqualFold(prHeadOwner, owner) {
			// Continuing someone else's cross-fork PR without fork mode: the
			// engine still needs a remote to fetch their branch from.
			ws.PRForkRemote = "contributor"
		}
		return ws, nil
	}

	identity, err := p.CheckAuthentication()
	if err != nil {
		return nil, fmt.Errorf("workspace: check authentication: %w", err)
	}

	forkOwner := identity
	if strings.EqualFold(prHeadOwner, identity) {
		// Already forked as part of an earlier session continuing this PR.
		forkOwner = identity
	} else {
		createdOwner, err := p.ForkRepository(owner, repo)
		if err != nil {
			return nil, fmt.Errorf("workspace: fork repository: %w", err)
		}
		forkOwner = createdOwner
	}

	if err := waitForForkConsistency(ctx, p, forkOwner, repo); err != nil {
		return nil, err
	}

	ws.RepoToClone = forkOwner + "/" + repo
	ws.Upstream = owner + "/" + repo
	ws.IsFork = true

	if prHeadOwner != "" && !strings.EqualFold(prHeadOwner, forkOwner) {
		ws.PRForkRemote = "contributor"
	}
	return ws, nil
}

// waitForForkConsistency polls GetCloneURL with exponential backoff until
// the fork is addressable, or gives up after the backoff schedule ends.
func waitForForkConsistency(ctx context.Context, p provider.Provider, owner, repo string) error {
	backoff := 2 * time.Second
	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := p.GetCloneURL(owner, repo, false); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("workspace: fork %s/%s not consistent after %d attempts: %w", owner, repo, maxAttempts, lastErr)
}

// Clone clones RepoToClone into TempDir via the host CLI's git, so
// credential handling is inherited rather than re-implemented here. It
// never merges stderr into stdout in a way that would hide a non-zero
// exit, matching spec 4.3's "never use 2>&1 in a way that masks exit codes".
func (w *Workspace) Clone(ctx context.Context, p provider.Provider) error {
	owner, repo := splitOwnerRepo(w.RepoToClone)
	url, err := p.GetCloneURL(owner, repo, false)
	if err != nil {
		return fmt.Errorf("workspace: resolve clone url: %w", err)
	}

	result, err := subprocess.Run(ctx, subprocess.Command{
		Argv:    []string{"git", "clone", url, w.TempDir},
		Stdin:   subprocess.StdinIgnore,
		Capture: true,
		Mirror:  true,
	})
	if err != nil {
		return fmt.Errorf("workspace: spawn git clone: %w", err)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		return fmt.Errorf("workspace: git clone failed: %s", subprocess.SanitizeForUpload(result.Stderr))
	}

	if w.IsFork {
		upstreamOwner, upstreamRepo := splitOwnerRepo(w.Upstream)
		upstreamURL, err := p.GetCloneURL(upstreamOwner, upstreamRepo, false)
		if err != nil {
			return fmt.Errorf("workspace: resolve upstream url: %w", err)
		}
		if _, _, err := w.git(ctx, "remote", "add", "upstream", upstreamURL); err != nil {
			return fmt.Errorf("workspace: add upstream remote: %w", err)
		}
	}

	return nil
}

// SyncUpstream fetches the upstream default branch into the fork's remote
// tracking refs so the agent can rebase against it.
func (w *Workspace) SyncUpstream(ctx context.Context) error {
	if !w.IsFork {
		return nil
	}
	if _, _, err := w.git(ctx, "fetch", "upstream", w.DefaultBranch); err != nil {
		return fmt.Errorf("workspace: sync upstream: %w", err)
	}
	return nil
}

// DetectDefaultBranch reads origin's HEAD symbolic ref. It fails loud on
// an empty result, since that signals an empty repository or an unusual
// remote configuration the engine cannot safely proceed past.
func (w *Workspace) DetectDefaultBranch(ctx context.Context) error {
	stdout, _, err := w.git(ctx, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err != nil || strings.TrimSpace(stdout) == "" {
		return fmt.Errorf("workspace: detect default branch: repository appears empty or has no default branch")
	}
	branch := strings.TrimPrefix(strings.TrimSpace(stdout), "refs/remotes/origin/")
	if branch == "" {
		return fmt.Errorf("workspace: detect default branch: could not parse %q", stdout)
	}
	w.DefaultBranch = branch
	return nil
}

// VerifyCleanTree requires `git status --porcelain` to be empty
// immediately after clone; a dirty tree at this point means something
// other than the engine already touched the workspace.
func (w *Workspace) VerifyCleanTree(ctx context.Context) error {
	stdout, _, err := w.git(ctx, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("workspace: verify clean tree: %w", err)
	}
	if strings.TrimSpace(stdout) != "" {
		return fmt.Errorf("workspace: working tree is not clean after clone:\n%s", stdout)
	}
	return nil
}

// UncommittedChanges returns the non-empty porcelain status lines, for
// C6's feedback snapshot. An empty slice means the tree is clean.
func (w *Workspace) UncommittedChanges(ctx context.Context) ([]string, error) {
	stdout, _, err := w.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("workspace: status: %w", err)
	}
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// BranchSuffix generates the cryptographically random 8-hex-digit suffix
// spec.md 4.3's branch name policy requires, independent of collisions
// across parallel attempts.
func BranchSuffix() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("workspace: generate branch suffix: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CheckoutOrCreateBranch implements spec 4.3's checkoutOrCreateBranch: in
// IssueStart mode it creates issue-<N>-<8-hex>; in a *Continue mode it
// checks out the PR's existing head ref, from the fork remote when the
// PR's head lives in a different repository than the one just cloned.
func (w *Workspace) CheckoutOrCreateBranch(ctx context.Context, mode provider.RunMode, issueNumber int, prBranch string, fromForkRemote bool) error {
	var want string
	switch mode {
	case provider.IssueStart:
		suffix, err := BranchSuffix()
		if err != nil {
			return err
		}
		want = fmt.Sprintf("issue-%d-%s", issueNumber, suffix)
		if _, _, err := w.git(ctx, "checkout", "-b", want); err != nil {
			return fmt.Errorf("workspace: create branch %s: %w", want, err)
		}
	default:
		want = prBranch
		if fromForkRemote && w.PRForkRemote != "" {
			if _, _, err := w.git(ctx, "fetch", w.PRForkRemote, want); err != nil {
				return fmt.Errorf("workspace: fetch %s from %s: %w", want, w.PRForkRemote, err)
			}
			if _, _, err := w.git(ctx, "checkout", "-b", want, w.PRForkRemote+"/"+want); err != nil {
				return fmt.Errorf("workspace: checkout %s from %s: %w", want, w.PRForkRemote, err)
			}
		} else {
			if _, _, err := w.git(ctx, "checkout", want); err != nil {
				return fmt.Errorf("workspace: checkout %s: %w", want, err)
			}
		}
	}

	current, _, err := w.git(ctx, "branch", "--show-current")
	if err != nil {
		return fmt.Errorf("workspace: read current branch: %w", err)
	}
	current = strings.TrimSpace(current)
	if current != want {
		return fmt.Errorf("workspace: branch mismatch after checkout: got %q, want %q", current, want)
	}
	w.WorkBranch = want
	return nil
}

// CommitAll stages every change in the working tree and commits it with
// message, used by C4's bootstrap commit and by C9's AGENT.md-removal
// commit.
func (w *Workspace) CommitAll(ctx context.Context, message string) error {
	if _, _, err := w.git(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("workspace: stage changes: %w", err)
	}
	if _, _, err := w.git(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("workspace: commit: %w", err)
	}
	return nil
}

// ErrPermissionDenied is returned by Push when the remote rejects the
// push with a permission error, the signal C4 step 3 uses to suggest
// fork mode to the operator.
var ErrPermissionDenied = fmt.Errorf("workspace: permission denied pushing branch")

// Push pushes WorkBranch to origin with upstream tracking. forceRetry
// permits a single force-push retry per spec 4.4 step 4.
func (w *Workspace) Push(ctx context.Context, forceRetry bool) error {
	_, stderr, err := w.git(ctx, "push", "-u", "origin", w.WorkBranch)
	if err == nil {
		return nil
	}
	if strings.Contains(stderr, "Permission denied") || strings.Contains(stderr, "403") {
		return ErrPermissionDenied
	}
	if !forceRetry {
		return fmt.Errorf("workspace: push %s: %w", w.WorkBranch, err)
	}
	if _, _, retryErr := w.git(ctx, "push", "--force-with-lease", "-u", "origin", w.WorkBranch); retryErr != nil {
		return fmt.Errorf("workspace: push %s (after force retry): %w", w.WorkBranch, retryErr)
	}
	return nil
}

// HeadCommitSHA returns the local HEAD's full commit SHA, used to verify
// against the platform's view of the branch after push.
func (w *Workspace) HeadCommitSHA(ctx context.Context) (string, error) {
	stdout, _, err := w.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("workspace: head commit sha: %w", err)
	}
	return strings.TrimSpace(stdout), nil
}

func (w *Workspace) git(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	result, err := subprocess.Run(ctx, subprocess.Command{
		Argv:    append([]string{"git", "-C", w.TempDir}, args...),
		Stdin:   subprocess.StdinIgnore,
		Capture: true,
	})
	if err != nil {
		return "", "", err
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		return string(result.Stdout), string(result.Stderr), fmt.Errorf("git %s: exit %v: %s", strings.Join(args, " "), result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}
	return string(result.Stdout), string(result.Stderr), nil
}

func splitOwnerRepo(full string) (owner, repo string) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 {
		return full, ""
	}
	return parts[0], parts[1]
}
