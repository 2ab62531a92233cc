// Package sourcecraft implements provider.Provider for the SourceCraft
// code-hosting platform, the second concrete variant spec.md 4.1 requires
// alongside GitHub. Unlike GitHub, SourceCraft has no blessed CLI with its
// own credential store, so this variant talks to its REST API directly
// over net/http, authenticating with a bearer token read from
// SOURCECRAFT_TOKEN - still "delegated" auth in spirit (the engine never
// prompts for or stores the credential itself).
package sourcecraft

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andymwolf/solveengine/internal/provider"
)

func init() {
	provider.Register("sourcecraft.dev", func() provider.Provider { return New() })
}

const defaultBaseURL = "https://sourcecraft.dev/api/v1"

// Client implements provider.Provider over SourceCraft's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (tests point this at an httptest server).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithToken overrides the bearer token instead of reading SOURCECRAFT_TOKEN.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New builds a Client. The token is read from SOURCECRAFT_TOKEN unless
// WithToken overrides it.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      os.Getenv("SOURCECRAFT_TOKEN"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "sourcecraft" }

func (c *Client) request(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

var urlPattern = regexp.MustCompile(`^https?://([^/\s]+)/([A-Za-z0-9._-]+)(?:/([A-Za-z0-9._-]+)(?:/(issues|pull|pullrequests)/([A-Za-z0-9_-]+))?)?/?$`)

// ParseURL follows the same grammar as the GitHub variant (spec 4.1: "same
// across providers in intent, different in detail") - SourceCraft's own
// detail is simply a different hostname.
func (c *Client) ParseURL(raw string) (provider.TargetUrl, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed != raw {
		return provider.TargetUrl{}, fmt.Errorf("invalid url: leading/trailing whitespace")
	}
	normalized := trimmed
	if strings.HasPrefix(normalized, "http://") {
		normalized = "https://" + strings.TrimPrefix(normalized, "http://")
	}
	normalized = strings.TrimRight(normalized, "/")

	parsed, err := url.Parse(normalized)
	if err != nil || !strings.Contains(parsed.Host, "sourcecraft") {
		return provider.TargetUrl{}, fmt.Errorf("not a sourcecraft url: %s", raw)
	}

	m := urlPattern.FindStringSubmatch(normalized + "/")
	if m == nil {
		return provider.TargetUrl{}, fmt.Errorf("url does not match sourcecraft grammar: %s", raw)
	}

	target := provider.TargetUrl{Provider: "sourcecraft", Owner: m[2], Repo: m[3], Normalized: normalized}
	switch {
	case m[4] != "":
		if m[4] == "issues" {
			target.Kind = provider.KindIssue
		} else {
			target.Kind = provider.KindPull
		}
		if n, err := strconv.Atoi(m[5]); err == nil {
			target.Number = n
		} else {
			target.Slug = m[5]
		}
	case m[3] != "":
		target.Kind = provider.KindRepo
	default:
		target.Kind = provider.KindOwner
	}
	return target, nil
}

type scIssue struct {
	Number    int                 `json:"number"`
	URL       string              `json:"url"`
	Title     string              `json:"title"`
	Body      string              `json:"body"`
	UpdatedAt time.Time           `json:"updated_at"`
	Comments  []scComment         `json:"comments"`
}

type scComment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Client) GetIssue(owner, repo string, number int) (provider.Issue, error) {
	var raw scIssue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
	if err := c.request(http.MethodGet, path, nil, &raw); err != nil {
		return provider.Issue{}, err
	}
	issue := provider.Issue{Number: raw.Number, URL: raw.URL, Title: raw.Title, Body: raw.Body, UpdatedAt: raw.UpdatedAt}
	for _, rc := range raw.Comments {
		issue.Comments = append(issue.Comments, provider.Comment{ID: rc.ID, Author: rc.Author, Body: rc.Body, CreatedAt: rc.CreatedAt})
	}
	return issue, nil
}

type scPullRequest struct {
	Number      int    `json:"number"`
	URL         string `json:"url"`
	HeadBranch  string `json:"head_branch"`
	Draft       bool   `json:"draft"`
	State       string `json:"state"`
	Body        string `json:"body"`
	MergeState  string `json:"merge_state"`
	HeadOwner   string `json:"head_owner"`
	BaseOwner   string `json:"base_owner"`
	BaseRepo    string `json:"base_repo"`
	Merged      bool   `json:"merged"`
}

func mergeStateFromSC(s string) provider.MergeState {
	switch strings.ToUpper(s) {
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
	var raw scPullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	if err := c.request(http.MethodGet, path, nil, &raw); err != nil {
		return provider.PullRequest{}, err
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
		Number: raw.Number, URL: raw.URL, Branch: raw.HeadBranch, IsDraft: raw.Draft,
		State: state, MergeState: mergeStateFromSC(raw.MergeState),
		HeadOwner: raw.HeadOwner, BaseOwner: raw.BaseOwner, BaseRepo: raw.BaseRepo,
		Body: raw.Body, Merged: raw.Merged,
	}, nil
}

func (c *Client) CreatePullRequest(params provider.CreatePullRequestParams) (provider.PullRequest, error) {
	body := map[string]interface{}{
		"head": params.Head, "base": params.Base, "title": params.Title,
		"body": params.Body, "draft": params.Draft,
	}
	var raw scPullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls", params.Owner, params.Repo)
	if err := c.request(http.MethodPost, path, body, &raw); err != nil {
		return provider.PullRequest{}, err
	}
	return c.GetPullRequest(params.Owner, params.Repo, raw.Number)
}

func (c *Client) AddComment(owner, repo string, target provider.CommentTarget, number int, body string) error {
	kind := "issues"
	if target == provider.TargetPR {
		kind = "pulls"
	}
	path := fmt.Sprintf("/repos/%s/%s/%s/%d/comments", owner, repo, kind, number)
	return c.request(http.MethodPost, path, map[string]string{"body": body}, nil)
}

func (c *Client) ListComments(owner, repo string, target provider.CommentTarget, number int, since time.Time) ([]provider.Comment, error) {
	kind := "issues"
	if target == provider.TargetPR {
		kind = "pulls"
	}
	var raw []scComment
	path := fmt.Sprintf("/repos/%s/%s/%s/%d/comments", owner, repo, kind, number)
	if err := c.request(http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	var result []provider.Comment
	for _, rc := range raw {
		if !rc.CreatedAt.After(since) {
			continue
		}
		result = append(result, provider.Comment{
			ID: rc.ID, Author: rc.Author, Body: rc.Body, CreatedAt: rc.CreatedAt,
			IsReviewComment: target == provider.TargetPR,
		})
	}
	return result, nil
}

func (c *Client) ForkRepository(owner, repo string) (string, error) {
	var raw struct {
		Owner string `json:"owner"`
	}
	path := fmt.Sprintf("/repos/%s/%s/forks", owner, repo)
	if err := c.request(http.MethodPost, path, nil, &raw); err != nil {
		return "", err
	}
	return raw.Owner, nil
}

func (c *Client) GetCloneURL(owner, repo string, useSSH bool) (string, error) {
	if useSSH {
		return fmt.Sprintf("git@sourcecraft.dev:%s/%s.git", owner, repo), nil
	}
	return fmt.Sprintf("https://sourcecraft.dev/%s/%s.git", owner, repo), nil
}

func (c *Client) DetectRepositoryVisibility(owner, repo string) (bool, error) {
	var raw struct {
		Private bool `json:"private"`
	}
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	if err := c.request(http.MethodGet, path, nil, &raw); err != nil {
		return false, err
	}
	return raw.Private, nil
}

func (c *Client) ListIssues(owner, repo string, params provider.ListIssuesParams) ([]provider.Issue, error) {
	q := url.Values{}
	if params.State != "" {
		q.Set("state", params.State)
	}
	if len(params.Labels) > 0 {
		q.Set("labels", strings.Join(params.Labels, ","))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	var raw []scIssue
	path := fmt.Sprintf("/repos/%s/%s/issues?%s", owner, repo, q.Encode())
	if err := c.request(http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	issues := make([]provider.Issue, 0, len(raw))
	for _, ri := range raw {
		issues = append(issues, provider.Issue{Number: ri.Number, URL: ri.URL, Title: ri.Title, Body: ri.Body, UpdatedAt: ri.UpdatedAt})
	}
	return issues, nil
}

func (c *Client) CheckAuthentication() (string, error) {
	var raw struct {
		Login string `json:"login"`
	}
	if err := c.request(http.MethodGet, "/user", nil, &raw); err != nil {
		return "", fmt.Errorf("not authenticated with sourcecraft: %w", err)
	}
	return raw.Login, nil
}

func (c *Client) CheckWritePermission(owner, repo string, useFork bool) (bool, error) {
	if useFork {
		return true, nil
	}
	var raw struct {
		Permission string `json:"permission"`
	}
	identity, err := c.CheckAuthentication()
	if err != nil {
		return false, err
	}
	path := fmt.Sprintf("/repos/%s/%s/collaborators/%s/permission", owner, repo, identity)
	if err := c.request(http.MethodGet, path, nil, &raw); err != nil {
		return false, nil
	}
	return raw.Permission == "admin" || raw.Permission == "write", nil
}

func (c *Client) SetDraft(owner, repo string, number int, draft bool) error {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	return c.request(http.MethodPatch, path, map[string]bool{"draft": draft}, nil)
}

func (c *Client) UpdatePRBody(owner, repo string, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	return c.request(http.MethodPatch, path, map[string]string{"body": body}, nil)
}

func (c *Client) UploadPaste(filename, content string) (string, error) {
	var raw struct {
		URL string `json:"url"`
	}
	body := map[string]string{"filename": filename, "content": content}
	if err := c.request(http.MethodPost, "/pastes", body, &raw); err != nil {
		return "", err
	}
	return raw.URL, nil
}

var _ provider.Provider = (*Client)(nil)
