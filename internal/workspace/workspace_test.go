package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/andymwolf/solveengine/internal/provider"
)

func TestBranchSuffix_UniqueAndHex(t *testing.T) {
	a, err := BranchSuffix()
	if err != nil {
		t.Fatalf("BranchSuffix() error = %v", err)
	}
	b, err := BranchSuffix()
	if err != nil {
		t.Fatalf("BranchSuffix() error = %v", err)
	}
	if len(a) != 8 || len(b) != 8 {
		t.Errorf("BranchSuffix() lengths = %d, %d, want 8", len(a), len(b))
	}
	if a == b {
		t.Error("BranchSuffix() produced identical suffixes twice in a row")
	}
}

func TestSetupTempDir_Unique(t *testing.T) {
	a, err := SetupTempDir("")
	if err != nil {
		t.Fatalf("SetupTempDir() error = %v", err)
	}
	defer os.RemoveAll(a)
	b, err := SetupTempDir("")
	if err != nil {
		t.Fatalf("SetupTempDir() error = %v", err)
	}
	defer os.RemoveAll(b)
	if a == b {
		t.Errorf("SetupTempDir() returned the same dir twice: %s", a)
	}
}

func TestSetupTempDir_ResumeDeterministic(t *testing.T) {
	a, err := SetupTempDir("abc123")
	if err != nil {
		t.Fatalf("SetupTempDir() error = %v", err)
	}
	defer os.RemoveAll(a)
	b, err := SetupTempDir("abc123")
	if err != nil {
		t.Fatalf("SetupTempDir() error = %v", err)
	}
	if a != b {
		t.Errorf("SetupTempDir() with same sessionID returned different dirs: %s vs %s", a, b)
	}
}

func TestSetupRepository_NoFork(t *testing.T) {
	ws, err := SetupRepository(context.Background(), nil, "acme", "widgets", false, "")
	if err != nil {
		t.Fatalf("SetupRepository() error = %v", err)
	}
	if ws.RepoToClone != "acme/widgets" {
		t.Errorf("RepoToClone = %q, want acme/widgets", ws.RepoToClone)
	}
	if ws.IsFork {
		t.Error("IsFork = true, want false")
	}
	if ws.Upstream != "" {
		t.Errorf("Upstream = %q, want empty", ws.Upstream)
	}
}

// fakeProvider implements just enough of provider.Provider for fork-mode
// setup tests.
type fakeProvider struct {
	identity string
	forkErr  error
}

func (f *fakeProvider) Name() string                                  { return "fake" }
func (f *fakeProvider) ParseURL(string) (provider.TargetUrl, error)   { return provider.TargetUrl{}, nil }
func (f *fakeProvider) GetIssue(string, string, int) (provider.Issue, error) {
	return provider.Issue{}, nil
}
func (f *fakeProvider) GetPullRequest(string, string, int) (provider.PullRequest, error) {
	return provider.PullRequest{}, nil
}
func (f *fakeProvider) CreatePullRequest(provider.CreatePullRequestParams) (provider.PullRequest, error) {
	return provider.PullRequest{}, nil
}
func (f *fakeProvider) AddComment(string, string, provider.CommentTarget, int, string) error {
	return nil
}
func (f *fakeProvider) ListComments(string, string, provider.CommentTarget, int, time.Time) ([]provider.Comment, error) {
	return nil, nil
}
func (f *fakeProvider) ForkRepository(owner, repo string) (string, error) {
	if f.forkErr != nil {
		return "", f.forkErr
	}
	return f.identity, nil
}
func (f *fakeProvider) GetCloneURL(owner, repo string, useSSH bool) (string, error) {
	return "https://fake.dev/" + owner + "/" + repo + ".git", nil
}
func (f *fakeProvider) DetectRepositoryVisibility(string, string) (bool, error) { return false, nil }
func (f *fakeProvider) ListIssues(string, string, provider.ListIssuesParams) ([]provider.Issue, error) {
	return nil, nil
}
func (f *fakeProvider) CheckAuthentication() (string, error) { return f.identity, nil }
func (f *fakeProvider) CheckWritePermission(string, string, bool) (bool, error) { return true, nil }
func (f *fakeProvider) SetDraft(string, string, int, bool) error               { return nil }
func (f *fakeProvider) UpdatePRBody(string, string, int, string) error         { return nil }
func (f *fakeProvider) UploadPaste(string, string) (string, error)             { return "", nil }

var _ provider.Provider = (*fakeProvider)(nil)

func TestSetupRepository_Fork(t *testing.T) {
	p := &fakeProvider{identity: "devbot"}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ws, err := SetupRepository(ctx, p, "acme", "widgets", true, "")
	if err != nil {
		t.Fatalf("SetupRepository() error = %v", err)
	}
	if ws.RepoToClone != "devbot/widgets" {
		t.Errorf("RepoToClone = %q, want devbot/widgets", ws.RepoToClone)
	}
	if !ws.IsFork {
		t.Error("IsFork = false, want true")
	}
	if ws.Upstream != "acme/widgets" {
		t.Errorf("Upstream = %q, want acme/widgets", ws.Upstream)
	}
}

// requireGit skips the test if git is not on PATH - CI images without
// git would otherwise fail these integration-style tests outright.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available on PATH")
	}
}

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestVerifyCleanTree(t *testing.T) {
	requireGit(t)
	dir := initGitRepo(t)
	ws := &Workspace{TempDir: dir}

	if err := ws.VerifyCleanTree(context.Background()); err != nil {
		t.Fatalf("VerifyCleanTree() on fresh repo error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ws.VerifyCleanTree(context.Background()); err == nil {
		t.Error("VerifyCleanTree() on dirty repo error = nil, want error")
	}
}

func TestUncommittedChanges(t *testing.T) {
	requireGit(t)
	dir := initGitRepo(t)
	ws := &Workspace{TempDir: dir}

	changes, err := ws.UncommittedChanges(context.Background())
	if err != nil {
		t.Fatalf("UncommittedChanges() error = %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("UncommittedChanges() on fresh repo = %v, want empty", changes)
	}

	if err := os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	changes, err = ws.UncommittedChanges(context.Background())
	if err != nil {
		t.Fatalf("UncommittedChanges() error = %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("UncommittedChanges() = %v, want 1 entry", changes)
	}
}

func TestCheckoutOrCreateBranch_IssueStart(t *testing.T) {
	requireGit(t)
	dir := initGitRepo(t)
	ws := &Workspace{TempDir: dir}

	if err := ws.CheckoutOrCreateBranch(context.Background(), provider.IssueStart, 42, "", false); err != nil {
		t.Fatalf("CheckoutOrCreateBranch() error = %v", err)
	}
	if ws.WorkBranch == "" {
		t.Fatal("WorkBranch not set")
	}
	wantPrefix := "issue-42-"
	if len(ws.WorkBranch) != len(wantPrefix)+8 {
		t.Errorf("WorkBranch = %q, want prefix %q + 8 hex chars", ws.WorkBranch, wantPrefix)
	}
}
