// Package engine is the solve run's top-level orchestrator: it resolves
// the target URL to a provider and run mode (C1), sets up the workspace
// (C3), bootstraps a draft PR (C4), runs the agent driver (C5), detects
// feedback (C6), optionally loops on it (C7), optionally arms the link
// corrector (C8), and closes with a summary comment (C9). Grounded on the prior
// internal/controller/controller.go Run method - the same
// "set up signal handling, log the session header, run phase functions in
// sequence wrapped in fmt.Errorf, loop until a termination condition,
// clean up" shape - narrowed from the prior multi-task VM-provisioned
// session to a single-issue/single-PR local invocation with no Docker
// container boundary.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/andymwolf/solveengine/internal/agentdriver"
	"github.com/andymwolf/solveengine/internal/bootstrap"
	"github.com/andymwolf/solveengine/internal/config"
	"github.com/andymwolf/solveengine/internal/feedback"
	"github.com/andymwolf/solveengine/internal/linkcorrector"
	"github.com/andymwolf/solveengine/internal/obslog"
	"github.com/andymwolf/solveengine/internal/prompt"
	"github.com/andymwolf/solveengine/internal/provider"
	"github.com/andymwolf/solveengine/internal/summary"
	"github.com/andymwolf/solveengine/internal/watch"
	"github.com/andymwolf/solveengine/internal/workspace"
)

// Engine ties the C1-C9 modules together for one invocation of the solve
// command.
type Engine struct {
	Config *config.Config
	Logger obslog.Logger

	// SessionID identifies this run across the log file name, the
	// workspace temp directory, and the feedback bracketing comments.
	SessionID string
}

// New builds an Engine. sessionID is generated if empty.
func New(cfg *config.Config, logger obslog.Logger, sessionID string) *Engine {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Engine{Config: cfg, Logger: logger, SessionID: sessionID}
}

// Run executes one solve invocation end to end. It returns a non-nil
// error only for spec.md 7's fatal classes (Environmental, Operator,
// Unexpected); Agent-policy and Logical classes are handled internally
// (logged, summarized, or repaired) without failing the run.
func (e *Engine) Run(ctx context.Context, targetURL string) error {
	ctx, cancel := setupSignalHandler(ctx, e.Logger)
	defer cancel()

	if err := e.Config.Validate(); err != nil {
		return fmt.Errorf("engine: invalid configuration: %w", err)
	}

	p, parsed, err := provider.ForURL(targetURL)
	if err != nil {
		return fmt.Errorf("engine: %s is not a recognised issue or pull request url: %w", targetURL, err)
	}
	e.Logger.Info(fmt.Sprintf("resolved %s as a %s provider target (%s)", targetURL, p.Name(), parsed.Kind))

	t, err := deriveTarget(parsed, e.Config.AutoContinue)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if t.Mode == provider.PrContinue {
		pr, err := p.GetPullRequest(t.Owner, t.Repo, t.PRNumber)
		if err != nil {
			return fmt.Errorf("engine: fetch pull request #%d: %w", t.PRNumber, err)
		}
		issueNum, err := resolveIssueFromPR(pr)
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		t.IssueNumber = issueNum
	}

	ws, err := e.setupWorkspace(ctx, p, t)
	if err != nil {
		return fmt.Errorf("engine: workspace setup: %w", err)
	}

	detector := &feedback.Detector{Provider: p}

	if t.Mode == provider.IssueStart && e.Config.AutoPullRequestCreation {
		result, err := bootstrap.CreateDraftPR(ctx, p, ws, t.Owner, t.Repo, t.IssueNumber, e.Logger)
		if err != nil {
			return fmt.Errorf("engine: bootstrap draft pull request: %w", err)
		}
		t.PRNumber = result.PR.Number
		if !result.LinkVerified {
			e.Logger.Warning(fmt.Sprintf("pull request #%d created without a confirmed closing reference; expected %q", t.PRNumber, result.ExpectedLinkBody))
		}
	}

	if e.Config.PullRequestIssueLinkAutoCorrection && t.PRNumber > 0 {
		go e.runLinkCorrector(ctx, p, t)
	}

	systemPrompt, err := prompt.LoadSystemPrompt(e.Config.SystemPromptURL, 0)
	if err != nil {
		return fmt.Errorf("engine: load system prompt: %w", err)
	}
	projectPrompt, err := prompt.LoadProjectPrompt(ws.TempDir)
	if err != nil {
		return fmt.Errorf("engine: load project prompt: %w", err)
	}

	issue, err := p.GetIssue(t.Owner, t.Repo, t.IssueNumber)
	if err != nil {
		return fmt.Errorf("engine: fetch issue #%d: %w", t.IssueNumber, err)
	}

	initialPrompt := buildInitialPrompt(systemPrompt, projectPrompt, issue.Title, issue.Body, issue.URL)

	if e.Config.DryRun {
		fmt.Println(initialPrompt)
		return nil
	}

	driver := e.newDriver(ctx)

	if t.PRNumber > 0 {
		if _, err := detector.StartSession(ctx, t.Owner, t.Repo, t.IssueNumber, t.PRNumber); err != nil {
			e.Logger.Warning(fmt.Sprintf("failed to post work-started bracketing comment: %v", err))
		}
	}

	startedAt := time.Now()
	runResult, runErr := driver.Run(ctx, agentdriver.RunParams{
		Argv:            buildAgentArgv(e.Config.Model, e.Config.Resume),
		Dir:             ws.TempDir,
		Env:             os.Environ(),
		Prompt:          initialPrompt,
		ResumeSessionID: e.Config.Resume,
		LogDir:          e.Config.LogDir,
	})
	duration := time.Since(startedAt)

	if runErr != nil {
		return e.finishFailed(ctx, p, ws, t, detector, duration, runErr)
	}

	if err := e.finishSession(ctx, p, ws, t, detector, runResult, duration); err != nil {
		return fmt.Errorf("engine: finalize session: %w", err)
	}

	if e.Config.Watch && t.PRNumber > 0 {
		return e.watchLoop(ctx, p, ws, t, detector)
	}

	return nil
}

// setupWorkspace runs C3's sequence: temp dir, repository/fork selection,
// clone, default-branch detection, clean-tree verification, and branch
// checkout.
func (e *Engine) setupWorkspace(ctx context.Context, p provider.Provider, t Target) (*workspace.Workspace, error) {
	dir, err := workspace.SetupTempDir(e.SessionID)
	if err != nil {
		return nil, err
	}

	prHeadOwner := ""
	prBranch := ""
	if t.PRNumber > 0 {
		pr, err := p.GetPullRequest(t.Owner, t.Repo, t.PRNumber)
		if err != nil {
			return nil, fmt.Errorf("fetch pull request #%d: %w", t.PRNumber, err)
		}
		prHeadOwner = pr.HeadOwner
		prBranch = pr.Branch
	}

	ws, err := workspace.SetupRepository(ctx, p, t.Owner, t.Repo, e.Config.Fork, prHeadOwner)
	if err != nil {
		return nil, err
	}
	ws.TempDir = dir

	if err := ws.Clone(ctx, p); err != nil {
		return nil, err
	}

	if e.Config.BaseBranch != "" {
		ws.DefaultBranch = e.Config.BaseBranch
	} else if err := ws.DetectDefaultBranch(ctx); err != nil {
		return nil, err
	}

	if err := ws.VerifyCleanTree(ctx); err != nil {
		return nil, err
	}

	if err := ws.SyncUpstream(ctx); err != nil {
		return nil, err
	}

	fromForkRemote := ws.PRForkRemote != ""
	if err := ws.CheckoutOrCreateBranch(ctx, t.Mode, t.IssueNumber, prBranch, fromForkRemote); err != nil {
		return nil, err
	}

	return ws, nil
}

func (e *Engine) newDriver(ctx context.Context) *agentdriver.Driver {
	driver := agentdriver.NewDriver(e.Logger)
	if e.Config.PricingOverrideSecretPath != "" {
		fetcher := obslog.NewSecretFetcher(ctx, e.Logger)
		defer fetcher.Close()
		if err := driver.Pricing.LoadOverride(ctx, fetcher, e.Config.PricingOverrideSecretPath); err != nil {
			e.Logger.Warning(fmt.Sprintf("failed to load pricing override, using built-in table: %v", err))
		}
	}
	return driver
}

func (e *Engine) runLinkCorrector(ctx context.Context, p provider.Provider, t Target) {
	headOwner := t.Owner
	if pr, err := p.GetPullRequest(t.Owner, t.Repo, t.PRNumber); err == nil {
		headOwner = pr.HeadOwner
	}
	corrector := &linkcorrector.Corrector{
		Provider:    p,
		Logger:      e.Logger,
		Owner:       t.Owner,
		Repo:        t.Repo,
		PRNumber:    t.PRNumber,
		IssueNumber: t.IssueNumber,
		HeadOwner:   headOwner,
	}
	if err := corrector.Run(ctx); err != nil {
		e.Logger.Warning(fmt.Sprintf("linkcorrector: stopped: %v", err))
	}
}

// finishSession handles the successful-run closing sequence: complete the
// feedback bracketing comment, remove AGENT.md, push, and post the
// summary.
func (e *Engine) finishSession(ctx context.Context, p provider.Provider, ws *workspace.Workspace, t Target, detector *feedback.Detector, result *agentdriver.RunResult, duration time.Duration) error {
	failureReason := ""
	if result.LimitReached {
		failureReason = fmt.Sprintf("rate limit reached, resets at %s", result.LimitResetAt)
	}
	s := summary.Compose(result, duration, failureReason)

	if t.PRNumber == 0 {
		e.Logger.Info("session ended with no pull request known; summary not posted (" + s.Render() + ")")
		return nil
	}

	if err := summary.RemoveAgentMDFile(ctx, ws, result.LimitReached); err != nil {
		e.Logger.Warning(fmt.Sprintf("failed to remove AGENT.md: %v", err))
	}
	if err := ws.Push(ctx, false); err != nil {
		e.Logger.Warning(fmt.Sprintf("failed to push final state: %v", err))
	}

	if err := detector.CompleteSession(ctx, t.Owner, t.Repo, t.PRNumber); err != nil {
		e.Logger.Warning(fmt.Sprintf("failed to post work-completed bracketing comment: %v", err))
	}

	var logContent []byte
	if e.Config.AttachLogs && result.LogPath != "" {
		if data, err := os.ReadFile(result.LogPath); err == nil {
			logContent = data
		}
	}
	if err := summary.PostSummary(p, t.Owner, t.Repo, t.PRNumber, s, logContent, e.Config.AttachLogs); err != nil {
		return err
	}
	return nil
}

// finishFailed handles an agent-driver error per spec.md 7's taxonomy:
// ErrForbidden is an Environmental failure (fatal, surfaced immediately);
// anything else is reported in the summary comment when a PR is known,
// then propagated so the process exits 1.
func (e *Engine) finishFailed(ctx context.Context, p provider.Provider, ws *workspace.Workspace, t Target, detector *feedback.Detector, duration time.Duration, runErr error) error {
	if runErr == agentdriver.ErrForbidden {
		return fmt.Errorf("engine: agent is not authenticated; run the agent CLI's login flow and retry: %w", runErr)
	}

	if t.PRNumber > 0 {
		s := summary.Compose(&agentdriver.RunResult{Parsed: &agentdriver.ParseResult{}}, duration, runErr.Error())
		if err := summary.PostSummary(p, t.Owner, t.Repo, t.PRNumber, s, nil, false); err != nil {
			e.Logger.Warning(fmt.Sprintf("failed to post failure summary: %v", err))
		}
		if err := detector.CompleteSession(ctx, t.Owner, t.Repo, t.PRNumber); err != nil {
			e.Logger.Warning(fmt.Sprintf("failed to post work-completed bracketing comment: %v", err))
		}
	}
	return fmt.Errorf("engine: agent session failed: %w", runErr)
}

// watchLoop runs C7 after the initial session ends, per spec.md 4.7.
func (e *Engine) watchLoop(ctx context.Context, p provider.Provider, ws *workspace.Workspace, t Target, detector *feedback.Detector) error {
	loop := &watch.Loop{
		Config: watch.Config{
			Mode:          watch.ModeOrdinary,
			Interval:      e.Config.WatchInterval,
			MaxIterations: e.Config.AutoRestartMaxIterations,
		},
		Logger: e.Logger,
	}

	poll := func(ctx context.Context) (watch.PollResult, error) {
		pr, err := p.GetPullRequest(t.Owner, t.Repo, t.PRNumber)
		if err != nil {
			return watch.PollResult{}, err
		}
		if pr.Merged {
			return watch.PollResult{Merged: true}, nil
		}
		snap, err := detector.Capture(ctx, t.Owner, t.Repo, t.IssueNumber, t.PRNumber, detector.LastReference(), ws)
		if err != nil {
			return watch.PollResult{}, err
		}
		return watch.PollResult{FeedbackEmpty: snap.Empty()}, nil
	}

	run := func(ctx context.Context, previousSessionID string) (string, error) {
		systemPrompt, err := prompt.LoadSystemPrompt(e.Config.SystemPromptURL, 0)
		if err != nil {
			return "", err
		}
		ref, err := detector.StartSession(ctx, t.Owner, t.Repo, t.IssueNumber, t.PRNumber)
		if err != nil {
			return "", err
		}
		snap, err := detector.Capture(ctx, t.Owner, t.Repo, t.IssueNumber, t.PRNumber, ref, ws)
		if err != nil {
			return "", err
		}

		resumeID := previousSessionID
		if !e.Config.ResumeOnAutoRestart {
			resumeID = ""
		}

		driver := e.newDriver(ctx)
		result, err := driver.Run(ctx, agentdriver.RunParams{
			Argv:            buildAgentArgv(e.Config.Model, resumeID),
			Dir:             ws.TempDir,
			Env:             os.Environ(),
			Prompt:          buildResumePrompt(systemPrompt, renderFeedback(snap)),
			ResumeSessionID: resumeID,
			LogDir:          e.Config.LogDir,
		})
		if err != nil {
			return "", err
		}

		if err := e.finishSession(ctx, p, ws, t, detector, result, 0); err != nil {
			e.Logger.Warning(fmt.Sprintf("watch: failed to finalize restart session: %v", err))
		}
		return result.SessionID, nil
	}

	reason, err := loop.Run(ctx, poll, run, nil)
	if err != nil {
		return fmt.Errorf("engine: watch loop: %w", err)
	}
	e.Logger.Info(fmt.Sprintf("watch loop stopped: %s", reason))
	return nil
}

// renderFeedback turns a feedback.Snapshot into the prose a resume prompt
// describes, per spec.md 4.5's "minimal, feedback-only" resume content.
func renderFeedback(s feedback.Snapshot) string {
	if s.Empty() {
		return "No new comments or uncommitted changes since the last session."
	}
	out := fmt.Sprintf("%d new PR comment(s), %d new issue comment(s)", len(s.NewPRComments), len(s.NewIssueComments))
	if len(s.UncommittedChanges) > 0 {
		out += fmt.Sprintf(", %d uncommitted change(s) left in the workspace", len(s.UncommittedChanges))
	}
	return out
}
