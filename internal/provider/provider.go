// Package provider abstracts the code-hosting platform (GitHub, SourceCraft)
// behind a single interface. The solve engine never reaches beneath this
// abstraction for platform specifics, with one narrow exception: building the
// closing-keyword reference string, which depends only on whether the head
// and base repository owners match (see ClosingReference).
package provider

import "time"

// Kind classifies the target of a parsed URL.
type Kind string

const (
	KindIssue Kind = "issue"
	KindPull  Kind = "pull"
	KindRepo  Kind = "repo"
	KindOwner Kind = "owner"
	KindOther Kind = "other"
)

// TargetUrl is the parsed form of the user-supplied URL.
type TargetUrl struct {
	Provider   string // "github", "sourcecraft"
	Kind       Kind
	Owner      string
	Repo       string
	Number     int    // valid when Slug == ""
	Slug       string // valid when the platform addresses this target by slug
	Normalized string
}

// HasNumericTarget reports whether Number identifies the target (as opposed
// to Slug).
func (t TargetUrl) HasNumericTarget() bool {
	return t.Slug == "" && t.Number > 0
}

// RunMode is derived once per invocation from the parsed URL and the state
// of the platform.
type RunMode string

const (
	// IssueStart: URL points to an issue, no existing PR identified yet.
	IssueStart RunMode = "issue_start"
	// IssueAutoContinue: URL points to an issue, a PR authored by the
	// current identity on a branch referencing that issue exists and is
	// chosen to continue.
	IssueAutoContinue RunMode = "issue_auto_continue"
	// PrContinue: URL points to a PR; the linked issue is inferred from
	// the PR body via the closing-keyword grammar.
	PrContinue RunMode = "pr_continue"
)

// MergeState mirrors the platform's merge-state classification for a PR.
type MergeState string

const (
	MergeClean   MergeState = "CLEAN"
	MergeBehind  MergeState = "BEHIND"
	MergeBlocked MergeState = "BLOCKED"
	MergeDirty   MergeState = "DIRTY"
	MergeUnknown MergeState = "UNKNOWN"
)

// PRState mirrors the platform's lifecycle state for a pull request.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// PullRequest is a shallow, refresh-on-read mirror of the platform-side PR.
type PullRequest struct {
	Number     int
	URL        string
	Branch     string
	IsDraft    bool
	State      PRState
	MergeState MergeState
	HeadOwner  string // owner of the repository the head branch lives in
	BaseOwner  string
	BaseRepo   string
	Body       string
	Merged     bool
}

// SameRepo reports whether the PR's head and base share the same owner -
// the sole fact this package lets callers reach for when composing a
// closing-keyword reference themselves.
func (pr PullRequest) SameRepo() bool {
	return pr.HeadOwner == pr.BaseOwner
}

// Comment is a single issue or PR comment.
type Comment struct {
	ID        string
	Author    string
	Body      string
	CreatedAt time.Time
	// IsReviewComment distinguishes a PR review comment from a general PR
	// issue-style comment; both count toward C6's "new PR comments" tally.
	IsReviewComment bool
}

// Issue is the platform-side issue entity.
type Issue struct {
	Number    int
	URL       string
	Title     string
	Body      string
	UpdatedAt time.Time
	Comments  []Comment
}

// CreatePullRequestParams describes a PR creation request.
type CreatePullRequestParams struct {
	Owner string
	Repo  string
	Head  string // "branch" or "owner:branch" for cross-fork
	Base  string
	Title string
	Body  string
	Draft bool
}

// CommentTarget identifies whether a comment is posted to an issue or a PR.
type CommentTarget string

const (
	TargetIssue CommentTarget = "issue"
	TargetPR    CommentTarget = "pr"
)

// ListIssuesParams filters a listIssues call.
type ListIssuesParams struct {
	State  string
	Labels []string
	Limit  int
}

// Provider is the uniform operation set over a code-hosting platform.
type Provider interface {
	// Name identifies the provider, e.g. "github".
	Name() string

	// ParseURL parses a target URL according to this provider's grammar.
	ParseURL(raw string) (TargetUrl, error)

	GetIssue(owner, repo string, number int) (Issue, error)
	GetPullRequest(owner, repo string, number int) (PullRequest, error)
	CreatePullRequest(params CreatePullRequestParams) (PullRequest, error)
	AddComment(owner, repo string, target CommentTarget, number int, body string) error
	ListComments(owner, repo string, target CommentTarget, number int, since time.Time) ([]Comment, error)
	ForkRepository(owner, repo string) (forkOwner string, err error)
	GetCloneURL(owner, repo string, useSSH bool) (string, error)
	DetectRepositoryVisibility(owner, repo string) (isPrivate bool, err error)
	ListIssues(owner, repo string, params ListIssuesParams) ([]Issue, error)
	CheckAuthentication() (identity string, err error)
	CheckWritePermission(owner, repo string, useFork bool) (bool, error)

	// SetDraft flips a PR's draft/ready-for-review status.
	SetDraft(owner, repo string, number int, draft bool) error
	// UpdatePRBody overwrites a PR's body (used by C8's link corrector and
	// by AGENT.md-removal bookkeeping in C9).
	UpdatePRBody(owner, repo string, number int, body string) error
	// UploadPaste uploads arbitrary text to a platform paste/gist facility,
	// returning a URL, for C9's log-attachment decision tree.
	UploadPaste(filename, content string) (url string, err error)
}
