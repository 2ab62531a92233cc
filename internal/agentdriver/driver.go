// Package agentdriver runs the coding agent CLI as a subprocess, parses
// its NDJSON stream-json output incrementally, and aggregates token
// usage/cost per spec.md 4.5. It generalises the prior
// internal/agent package (the claudecode/codex Adapter implementations
// and the Session/IterationResult shapes in internal/agent/interface.go)
// away from the Docker-container invocation path - the solve engine
// spawns the agent CLI directly on the host via internal/subprocess,
// never inside a container.
package agentdriver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/andymwolf/solveengine/internal/events"
	"github.com/andymwolf/solveengine/internal/obslog"
	"github.com/andymwolf/solveengine/internal/subprocess"
)

// RunParams describes one invocation of the agent CLI.
type RunParams struct {
	// Argv is the full command line, e.g. ["claude", "-p", "--output-format",
	// "stream-json", "--verbose"]. The prompt itself is always delivered on
	// stdin, never appended to Argv, so it never appears in a process list.
	Argv []string
	Dir  string
	Env  []string

	Prompt string

	// ResumeSessionID, when set, is appended as the adapter-appropriate
	// resume flag by the caller building Argv; the driver only needs it to
	// know whether this run continues an existing session for logging.
	ResumeSessionID string

	// Iteration numbers this run within a watch loop (1-indexed); zero
	// means "not tracked" and is recorded as-is on each structured event.
	Iteration int

	// LogDir is where the raw NDJSON transcript is written. The file
	// starts as a uuid-named placeholder and is renamed to
	// "<sessionId>.log" the moment a session id appears in the stream
	// (spec.md 4.5).
	LogDir string
}

// RunResult is everything the caller (internal/engine, by way of
// internal/feedback's work-session bracketing) needs after one run.
type RunResult struct {
	SessionID     string
	Parsed        *ParseResult
	ExitCode      *int
	CostUSD       float64
	UnknownModels []string
	LogPath       string
	EventsPath    string
	Retries       int
	LimitReached  bool
	LimitResetAt  string
}

// Driver owns the pricing table and backoff policy shared across runs.
type Driver struct {
	Pricing *PricingTable
	Logger  obslog.Logger

	// BackoffBase/BackoffFactor/MaxRetries implement spec.md 4.5's
	// overloaded-response retry policy: base 5s, factor 2, up to 3
	// retries.
	BackoffBase   time.Duration
	BackoffFactor float64
	MaxRetries    int
}

// NewDriver returns a Driver configured with spec.md 4.5's default
// backoff policy and the built-in pricing table.
func NewDriver(logger obslog.Logger) *Driver {
	return &Driver{
		Pricing:       NewPricingTable(),
		Logger:        logger,
		BackoffBase:   5 * time.Second,
		BackoffFactor: 2,
		MaxRetries:    3,
	}
}

// ErrForbidden is returned when the agent CLI reports the caller is not
// authenticated ("forbidden" / "Please run /login"); spec.md 4.5 treats
// this as fatal, never retried.
var ErrForbidden = fmt.Errorf("agentdriver: not authenticated (run /login)")

// Run invokes the agent CLI once, retrying on an overloaded response per
// the configured backoff policy. A rate-limit-reached response is not
// retried: RunResult.LimitReached is set and the caller decides whether
// to stop the watch loop (spec.md 4.5's "limit reached" sentinel feeds
// into C7's state machine).
func (d *Driver) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	wait := d.BackoffBase
	var lastErr error

	for attempt := 0; attempt <= d.MaxRetries; attempt++ {
		result, err := d.runOnce(ctx, params)
		if err != nil {
			return nil, err
		}
		if result.Parsed.Forbidden {
			return nil, ErrForbidden
		}
		if result.Parsed.LimitReached {
			result.LimitReached = true
			result.LimitResetAt = result.Parsed.LimitResetAt
			return result, nil
		}
		if !result.Parsed.Overloaded {
			result.Retries = attempt
			return result, nil
		}

		lastErr = fmt.Errorf("agentdriver: agent reported overloaded")
		if attempt == d.MaxRetries {
			break
		}
		if d.Logger != nil {
			d.Logger.Warning(fmt.Sprintf("agent overloaded, retrying in %s (attempt %d/%d)", wait, attempt+1, d.MaxRetries))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * d.BackoffFactor)
	}
	return nil, fmt.Errorf("agentdriver: exhausted retries after overloaded responses: %w", lastErr)
}

// runOnce performs a single subprocess invocation and incremental parse,
// with no retry logic of its own.
func (d *Driver) runOnce(ctx context.Context, params RunParams) (*RunResult, error) {
	if params.LogDir == "" {
		return nil, fmt.Errorf("agentdriver: LogDir is required")
	}
	if err := os.MkdirAll(params.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("agentdriver: create log dir: %w", err)
	}

	placeholderID := uuid.NewString()
	logPath := filepath.Join(params.LogDir, placeholderID+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("agentdriver: create log file: %w", err)
	}
	defer func() { logFile.Close() }()

	eventsDir := filepath.Join(params.LogDir, placeholderID+"-events")
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		return nil, fmt.Errorf("agentdriver: create events dir: %w", err)
	}
	eventSink, err := events.NewFileSink(eventsDir)
	if err != nil {
		return nil, fmt.Errorf("agentdriver: open events sink: %w", err)
	}
	defer func() { eventSink.Close() }()

	adapter := ""
	if len(params.Argv) > 0 {
		adapter = filepath.Base(params.Argv[0])
	}

	handle, err := subprocess.Start(ctx, subprocess.Command{
		Argv:       params.Argv,
		Dir:        params.Dir,
		Env:        params.Env,
		Stdin:      subprocess.StdinLiteral,
		StdinBytes: []byte(params.Prompt),
		Capture:    false,
	})
	if err != nil {
		return nil, fmt.Errorf("agentdriver: start agent process: %w", err)
	}

	parsed := &ParseResult{TokensByModel: map[string]*TokenUsage{}}
	renamed := false
	seenEvents := 0

	for chunk := range handle.Chunks() {
		logFile.Write(chunk.Data)
		logFile.Write([]byte("\n"))

		if chunk.Stream != subprocess.StreamStdout {
			continue
		}

		ParseLine(chunk.Data, parsed)

		if len(parsed.Events) > seenEvents {
			newEvents := parsed.Events[seenEvents:]
			seenEvents = len(parsed.Events)
			converted := ToAgentEvents(newEvents, EventConvertParams{
				SessionID: parsed.SessionID,
				Iteration: params.Iteration,
				Adapter:   adapter,
			})
			if err := eventSink.Write(converted); err != nil && d.Logger != nil {
				d.Logger.Warning(fmt.Sprintf("agentdriver: write structured event log: %v", err))
			}
		}

		if !renamed && parsed.SessionID != "" {
			if err := logFile.Close(); err == nil {
				finalPath := filepath.Join(params.LogDir, parsed.SessionID+".log")
				if renameErr := os.Rename(logPath, finalPath); renameErr == nil {
					logPath = finalPath
				}
				if reopened, reopenErr := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644); reopenErr == nil {
					logFile = reopened
				}
			}

			finalEventsDir := filepath.Join(params.LogDir, parsed.SessionID+"-events")
			if renameErr := os.Rename(eventsDir, finalEventsDir); renameErr == nil {
				eventsDir = finalEventsDir
			}

			renamed = true
		}
	}

	res := handle.Wait()

	cost, unknownModels := d.Pricing.TotalCostUSD(parsed.TokensByModel)
	if len(unknownModels) > 0 && d.Logger != nil {
		d.Logger.Warning(fmt.Sprintf("unrecognized model id(s) contributed zero cost to this session's total: %v", unknownModels))
	}

	return &RunResult{
		SessionID:     parsed.SessionID,
		Parsed:        parsed,
		ExitCode:      res.ExitCode,
		CostUSD:       cost,
		UnknownModels: unknownModels,
		LogPath:       logPath,
		EventsPath:    filepath.Join(eventsDir, events.DefaultFilename),
	}, nil
}
