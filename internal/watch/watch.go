// Package watch implements C7: a single-threaded, cooperative polling
// loop that decides, once per tick, whether to stay idle, stop, or
// trigger another agent session. Grounded on the prior
// internal/controller/phase_loop.go - the same "for { check terminal
// conditions; check global stop conditions; run one unit of work; log
// the transition }" shape, narrowed from an iterate-judge-advance phase
// machine down to spec.md 4.7's small tick state machine (Idle →
// Polling → {Stop, Run} → Running → Idle).
package watch

import (
	"context"
	"fmt"
	"time"
)

// State names the position in the tick state machine, for logging.
type State string

const (
	StateIdle     State = "Idle"
	StatePolling  State = "Polling"
	StateRunning  State = "Running"
)

// StopReason names why the loop ended, or StopNone while it continues.
type StopReason string

const (
	StopNone          StopReason = ""
	StopMerged        StopReason = "Stop:Merged"
	StopCommitted     StopReason = "Stop:Committed"
	StopMaxIterations StopReason = "Stop:MaxIterations"
)

// Mode distinguishes spec.md 4.7's two watch flavors.
type Mode int

const (
	// ModeOrdinary is the permanent `--watch` loop: sleeps Interval
	// between ticks, has no iteration ceiling, never stops on a clean
	// workspace (only on merge).
	ModeOrdinary Mode = iota
	// ModeTemporary is the auto-restart loop entered because the
	// previous agent session left uncommitted changes: sleeps 0 between
	// ticks and stops once the workspace is clean, the PR is merged, or
	// MaxIterations is reached.
	ModeTemporary
)

// Config configures one Loop.Run call.
type Config struct {
	Mode Mode
	// Interval is the sleep between ticks in ModeOrdinary. Spec default
	// is 60s; the zero value is treated as that default.
	Interval time.Duration
	// MaxIterations bounds ModeTemporary's restart count. Spec default
	// is 3; the zero value is treated as that default.
	MaxIterations int
}

const (
	defaultInterval      = 60 * time.Second
	defaultMaxIterations = 3
)

func (c Config) interval() time.Duration {
	if c.Interval <= 0 {
		return defaultInterval
	}
	return c.Interval
}

func (c Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return defaultMaxIterations
	}
	return c.MaxIterations
}

// PollResult is what the caller's PollFunc reports back each tick.
type PollResult struct {
	// Merged reports the platform's current merged state for the PR.
	Merged bool
	// WorkspaceClean reports whether `git status --porcelain` is empty.
	// Only consulted in ModeTemporary.
	WorkspaceClean bool
	// FeedbackEmpty reports whether the feedback snapshot captured this
	// tick carries no new comments and no uncommitted changes.
	FeedbackEmpty bool
}

// PollFunc gathers the platform- and workspace-side state needed to
// decide this tick's transition (spec.md 4.6's feedback.Capture plus a
// merge-state and clean-tree check).
type PollFunc func(ctx context.Context) (PollResult, error)

// RunFunc runs one agent session, given the previous session id (empty
// on the first run), and returns the new session id for the next tick.
type RunFunc func(ctx context.Context, previousSessionID string) (sessionID string, err error)

// NotifyRestartFunc is called once per ModeTemporary restart so a human
// observer can follow along on the PR (spec.md 4.7: "Watch-mode restart
// posts an explanatory comment ... citing the restart counter and the
// cap").
type NotifyRestartFunc func(iteration, maxIterations int) error

// Logger is the minimal subset of obslog.Logger the loop needs, kept
// narrow so tests don't need a full logger implementation.
type Logger interface {
	Info(message string)
	Warning(message string)
}

// Loop runs the C7 state machine until a stop condition is reached.
type Loop struct {
	Config Config
	Logger Logger
}

// Run executes ticks until a Stop* condition is reached or ctx is
// cancelled. poll and run must not be nil; notifyRestart may be nil (no
// restart comments posted).
func (l *Loop) Run(ctx context.Context, poll PollFunc, run RunFunc, notifyRestart NotifyRestartFunc) (StopReason, error) {
	iteration := 0
	previousSessionID := ""
	first := true

	for {
		select {
		case <-ctx.Done():
			return StopNone, ctx.Err()
		default:
		}

		l.logInfo(fmt.Sprintf("watch: tick entering %s", StatePolling))
		result, err := poll(ctx)
		if err != nil {
			return StopNone, fmt.Errorf("watch: poll: %w", err)
		}

		if result.Merged {
			l.logInfo("watch: PR merged, stopping")
			return StopMerged, nil
		}

		if l.Config.Mode == ModeTemporary {
			if result.WorkspaceClean {
				l.logInfo("watch: workspace clean, stopping temporary watch")
				return StopCommitted, nil
			}
			if iteration >= l.Config.maxIterations() {
				l.logWarning(fmt.Sprintf("watch: reached max iterations (%d), stopping temporary watch", l.Config.maxIterations()))
				return StopMaxIterations, nil
			}
		}

		shouldRun := !result.FeedbackEmpty || (first && l.Config.Mode == ModeTemporary)
		if !shouldRun {
			if l.Config.Mode == ModeTemporary {
				// Temporary watch never idles indefinitely: no signal and
				// not the first tick means the workspace was already
				// clean, which result.Merged/WorkspaceClean above would
				// have caught. Treat this as done defensively.
				return StopCommitted, nil
			}
			l.logInfo(fmt.Sprintf("watch: no feedback, sleeping %s", l.Config.interval()))
			if err := sleepCtx(ctx, l.Config.interval()); err != nil {
				return StopNone, err
			}
			continue
		}

		if l.Config.Mode == ModeTemporary {
			iteration++
			if notifyRestart != nil {
				if err := notifyRestart(iteration, l.Config.maxIterations()); err != nil {
					l.logWarning(fmt.Sprintf("watch: failed to post restart comment: %v", err))
				}
			}
		}

		l.logInfo(fmt.Sprintf("watch: tick entering %s", StateRunning))
		sessionID, err := run(ctx, previousSessionID)
		if err != nil {
			return StopNone, fmt.Errorf("watch: agent session: %w", err)
		}
		previousSessionID = sessionID
		first = false

		l.logInfo(fmt.Sprintf("watch: tick returning to %s", StateIdle))
		if l.Config.Mode == ModeOrdinary {
			if err := sleepCtx(ctx, l.Config.interval()); err != nil {
				return StopNone, err
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (l *Loop) logInfo(msg string) {
	if l.Logger != nil {
		l.Logger.Info(msg)
	}
}

func (l *Loop) logWarning(msg string) {
	if l.Logger != nil {
		l.Logger.Warning(msg)
	}
}
