// Package github implements the provider.Provider interface over GitHub,
// using the `gh` CLI as the transport so that authentication is delegated
// entirely to the CLI's own credential store (spec.md's non-goal:
// "mediating authentication").
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/andymwolf/solveengine/internal/provider"
)

func init() {
	provider.Register("github.com", func() provider.Provider { return New() })
}

// Client implements provider.Provider by shelling out to the `gh` CLI.
type Client struct {
	runner commandRunner
}

// Option configures a Client.
type Option func(*Client)

// New builds a Client that delegates auth to the `gh` CLI.
func New(opts ...Option) *Client {
	c := &Client{runner: execRunner{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "github" }

// commandRunner abstracts subprocess execution for testability.
type commandRunner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// gh runs a `gh` subcommand, inheriting the caller's environment and
// therefore whatever `gh auth login` session is already active.
func (c *Client) gh(ctx context.Context, dir string, args ...string) ([]byte, error) {
	env := os.Environ()
	stdout, stderr, err := c.runner.Run(ctx, dir, env, "gh", args...)
	if err != nil {
		return nil, fmt.Errorf("gh %s: %w (stderr: %s)", strings.Join(args, " "), err, strings.TrimSpace(string(stderr)))
	}
	return stdout, nil
}

func repoFlag(owner, repo string) string { return fmt.Sprintf("%s/%s", owner, repo) }

type issueJSON struct {
	Number    int       `json:"number"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
	Comments  []struct {
		ID        string    `json:"id"`
		Author    struct{ Login string `json:"login"` } `json:"author"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"comments"`
}

func (c *Client) GetIssue(owner, repo string, number int) (provider.Issue, error) {
	ctx := context.Background()
	out, err := c.gh(ctx, "", "issue", "view", strconv.Itoa(number),
		"--repo", repoFlag(owner, repo),
		"--json", "number,url,title,body,updatedAt,comments")
	if err != nil {
		return provider.Issue{}, err
	}
	var raw issueJSON
	if err := json.Unmarshal(out, &raw); err != nil {
		return provider.Issue{}, fmt.Errorf("decode issue json: %w", err)
	}
	issue := provider.Issue{
		Number:    raw.Number,
		URL:       raw.URL,
		Title:     raw.Title,
		Body:      raw.Body,
		UpdatedAt: raw.UpdatedAt,
	}
	for _, rc := range raw.Comments {
		issue.Comments = append(issue.Comments, provider.Comment{
			ID:        rc.ID,
			Author:    rc.Author.Login,
			Body:      rc.Body,
			CreatedAt: rc.CreatedAt,
		})
	}
	return issue, nil
}

type prJSON struct {
	Number     int    `json:"number"`
	URL        string `json:"url"`
	HeadRefName string `json:"headRefName"`
	IsDraft    bool   `json:"isDraft"`
	State      string `json:"state"`
	Body       string `json:"body"`
	Mergeable  string `json:"mergeable"`
	MergeStateStatus string `json:"mergeStateStatus"`
	HeadRepositoryOwner struct{ Login string `json:"login"` } `json:"headRepositoryOwner"`
	BaseRepository struct {
		Owner struct{ Login string `json:"login"` } `json:"owner"`
		Name  string `json:"name"`
	} `json:"baseRepository"`
	Merged bool `json:"merged"`
}

func mergeStateFromGH(mergeable, status string) provider.MergeState {
	if strings.EqualFold(mergeable, "CONFLICTING") {
		return provider.MergeDirty
	}
	switch strings.ToUpper(status) {
	case "CLEAN":
		return provider.MergeClean
	case "BEHIND":
		return provider.MergeBehind
	case "BLOCKED":
		return provider.MergeBlocked
	case "DIRTY":
		return provider.MergeDirty
	default:
		return provider.MergeUnknown
	}
}

func (c *Client) GetPullRequest(owner, repo string, number int) (provider.PullRequest, error) {
	ctx := context.Background()
	out, err := c.gh(ctx, "", "pr", "view", strconv.Itoa(number),
		"--repo", repoFlag(owner, repo),
		"--json", "number,url,headRefName,isDraft,state,body,mergeable,mergeStateStatus,headRepositoryOwner,baseRepository,merged")
	if err != nil {
		return provider.PullRequest{}, err
	}
	var raw prJSON
	if err := json.Unmarshal(out, &raw); err != nil {
		return provider.PullRequest{}, fmt.Errorf("decode pr json: %w", err)
	}
	state := provider.PRStateOpen
	switch strings.ToUpper(raw.State) {
	case "CLOSED":
		state = provider.PRStateClosed
	case "MERGED":
		state = provider.PRStateMerged
	}
	if raw.Merged {
		state = provider.PRStateMerged
	}
	return provider.PullRequest{
		Number:     raw.Number,
		URL:        raw.URL,
		Branch:     raw.HeadRefName,
		IsDraft:    raw.IsDraft,
		State:      state,
		MergeState: mergeStateFromGH(raw.Mergeable, raw.MergeStateStatus),
		HeadOwner:  raw.HeadRepositoryOwner.Login,
		BaseOwner:  raw.BaseRepository.Owner.Login,
		BaseRepo:   raw.BaseRepository.Name,
		Body:       raw.Body,
		Merged:     raw.Merged,
	}, nil
}

func (c *Client) CreatePullRequest(params provider.CreatePullRequestParams) (provider.PullRequest, error) {
	ctx := context.Background()
	args := []string{"pr", "create",
		"--repo", repoFlag(params.Owner, params.Repo),
		"--head", params.Head,
		"--base", params.Base,
		"--title", params.Title,
		"--body", params.Body,
	}
	if params.Draft {
		args = append(args, "--draft")
	}
	out, err := c.gh(ctx, "", args...)
	if err != nil {
		return provider.PullRequest{}, err
	}
	number, url := parsePRCreateOutput(string(out))
	if number == 0 {
		return provider.PullRequest{}, fmt.Errorf("could not parse PR number from gh pr create output: %s", string(out))
	}
	return c.GetPullRequest(params.Owner, params.Repo, number)
}

// parsePRCreateOutput extracts the PR number and URL from `gh pr create`'s
// stdout, which prints the new PR's URL as its last non-empty line.
func parsePRCreateOutput(output string) (number int, url string) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return 0, ""
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	if !strings.Contains(last, "/pull/") {
		return 0, ""
	}
	idx := strings.LastIndex(last, "/pull/")
	numStr := strings.TrimSuffix(last[idx+len("/pull/"):], "/")
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, last
	}
	return n, last
}

func (c *Client) AddComment(owner, repo string, target provider.CommentTarget, number int, body string) error {
	ctx := context.Background()
	sub := "issue"
	if target == provider.TargetPR {
		sub = "pr"
	}
	_, err := c.gh(ctx, "", sub, "comment", strconv.Itoa(number), "--repo", repoFlag(owner, repo), "--body", body)
	return err
}

type commentJSON struct {
	ID        string    `json:"id"`
	Author    struct{ Login string `json:"login"` } `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Client) ListComments(owner, repo string, target provider.CommentTarget, number int, since time.Time) ([]provider.Comment, error) {
	ctx := context.Background()
	sub := "issue"
	field := "comments"
	if target == provider.TargetPR {
		sub = "pr"
	}
	out, err := c.gh(ctx, "", sub, "view", strconv.Itoa(number), "--repo", repoFlag(owner, repo), "--json", field)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Comments []commentJSON `json:"comments"`
	}
	if err := json.Unmarshal(out, &wrapper); err != nil {
		return nil, fmt.Errorf("decode comments json: %w", err)
	}
	var result []provider.Comment
	for _, rc := range wrapper.Comments {
		if !rc.CreatedAt.After(since) {
			continue
		}
		result = append(result, provider.Comment{
			ID:              rc.ID,
			Author:          rc.Author.Login,
			Body:            rc.Body,
			CreatedAt:       rc.CreatedAt,
			IsReviewComment: target == provider.TargetPR,
		})
	}
	return result, nil
}

func (c *Client) ForkRepository(owner, repo string) (string, error) {
	ctx := context.Background()
	identity, err := c.CheckAuthentication()
	if err != nil {
		return "", err
	}
	_, err = c.gh(ctx, "", "repo", "fork", repoFlag(owner, repo), "--remote=false")
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return "", fmt.Errorf("fork %s/%s: %w", owner, repo, err)
	}
	return identity, nil
}

func (c *Client) GetCloneURL(owner, repo string, useSSH bool) (string, error) {
	if useSSH {
		return fmt.Sprintf("git@github.com:%s/%s.git", owner, repo), nil
	}
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo), nil
}

func (c *Client) DetectRepositoryVisibility(owner, repo string) (bool, error) {
	ctx := context.Background()
	out, err := c.gh(ctx, "", "repo", "view", repoFlag(owner, repo), "--json", "isPrivate")
	if err != nil {
		return false, err
	}
	var wrapper struct {
		IsPrivate bool `json:"isPrivate"`
	}
	if err := json.Unmarshal(out, &wrapper); err != nil {
		return false, fmt.Errorf("decode repo visibility json: %w", err)
	}
	return wrapper.IsPrivate, nil
}

func (c *Client) ListIssues(owner, repo string, params provider.ListIssuesParams) ([]provider.Issue, error) {
	ctx := context.Background()
	args := []string{"issue", "list", "--repo", repoFlag(owner, repo), "--json", "number,url,title,body,updatedAt"}
	if params.State != "" {
		args = append(args, "--state", params.State)
	}
	if len(params.Labels) > 0 {
		args = append(args, "--label", strings.Join(params.Labels, ","))
	}
	if params.Limit > 0 {
		args = append(args, "--limit", strconv.Itoa(params.Limit))
	}
	out, err := c.gh(ctx, "", args...)
	if err != nil {
		return nil, err
	}
	var raw []issueJSON
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decode issue list json: %w", err)
	}
	issues := make([]provider.Issue, 0, len(raw))
	for _, ri := range raw {
		issues = append(issues, provider.Issue{
			Number:    ri.Number,
			URL:       ri.URL,
			Title:     ri.Title,
			Body:      ri.Body,
			UpdatedAt: ri.UpdatedAt,
		})
	}
	return issues, nil
}

func (c *Client) CheckAuthentication() (string, error) {
	ctx := context.Background()
	out, err := c.gh(ctx, "", "api", "user", "--jq", ".login")
	if err != nil {
		return "", fmt.Errorf("not authenticated with gh: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Client) CheckWritePermission(owner, repo string, useFork bool) (bool, error) {
	if useFork {
		return true, nil
	}
	ctx := context.Background()
	identity, err := c.CheckAuthentication()
	if err != nil {
		return false, err
	}
	out, err := c.gh(ctx, "", "api", fmt.Sprintf("repos/%s/%s/collaborators/%s/permission", owner, repo, identity), "--jq", ".permission")
	if err != nil {
		return false, nil
	}
	perm := strings.TrimSpace(string(out))
	return perm == "admin" || perm == "write" || perm == "maintain", nil
}

// SetDraft flips a PR between draft and ready-for-review. `gh` has no
// direct "convert to draft" subcommand; `gh pr ready --undo` is the
// documented way to reverse a ready-for-review transition.
func (c *Client) SetDraft(owner, repo string, number int, draft bool) error {
	ctx := context.Background()
	args := []string{"pr", "ready", strconv.Itoa(number), "--repo", repoFlag(owner, repo)}
	if draft {
		args = append(args, "--undo")
	}
	_, err := c.gh(ctx, "", args...)
	return err
}

// UpdatePRBody writes body via a temp file, avoiding command-length and
// shell-escaping pitfalls for large or special-character-laden bodies
// (spec 4.8 explicitly calls for a body-file upload for this reason).
func (c *Client) UpdatePRBody(owner, repo string, number int, body string) error {
	ctx := context.Background()
	f, err := os.CreateTemp("", "pr-body-*.md")
	if err != nil {
		return fmt.Errorf("create temp body file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return fmt.Errorf("write temp body file: %w", err)
	}
	f.Close()

	_, err = c.gh(ctx, "", "pr", "edit", strconv.Itoa(number), "--repo", repoFlag(owner, repo), "--body-file", f.Name())
	return err
}

func (c *Client) UploadPaste(filename, content string) (string, error) {
	ctx := context.Background()
	f, err := os.CreateTemp("", "paste-*-"+filename)
	if err != nil {
		return "", fmt.Errorf("create temp paste file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp paste file: %w", err)
	}
	f.Close()

	out, err := c.gh(ctx, "", "gist", "create", f.Name(), "--public=false")
	if err != nil {
		return "", fmt.Errorf("gh gist create: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

var _ provider.Provider = (*Client)(nil)
