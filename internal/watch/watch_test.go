package watch

import (
	"context"
	"errors"
	"testing"
)

func TestLoop_Run_StopsOnMerged(t *testing.T) {
	l := &Loop{Config: Config{Mode: ModeOrdinary}}
	poll := func(ctx context.Context) (PollResult, error) {
		return PollResult{Merged: true}, nil
	}
	run := func(ctx context.Context, prev string) (string, error) {
		t.Fatal("run should not be called when already merged")
		return "", nil
	}
	reason, err := l.Run(context.Background(), poll, run, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reason != StopMerged {
		t.Errorf("reason = %q, want %q", reason, StopMerged)
	}
}

func TestLoop_Run_TemporaryStopsOnCleanWorkspace(t *testing.T) {
	l := &Loop{Config: Config{Mode: ModeTemporary}}
	poll := func(ctx context.Context) (PollResult, error) {
		return PollResult{WorkspaceClean: true}, nil
	}
	run := func(ctx context.Context, prev string) (string, error) {
		t.Fatal("run should not be called when workspace is already clean")
		return "", nil
	}
	reason, err := l.Run(context.Background(), poll, run, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reason != StopCommitted {
		t.Errorf("reason = %q, want %q", reason, StopCommitted)
	}
}

func TestLoop_Run_TemporaryStopsOnMaxIterations(t *testing.T) {
	l := &Loop{Config: Config{Mode: ModeTemporary, MaxIterations: 2}}
	calls := 0
	poll := func(ctx context.Context) (PollResult, error) {
		calls++
		return PollResult{FeedbackEmpty: false}, nil
	}
	run := func(ctx context.Context, prev string) (string, error) {
		return "sess-" + prev, nil
	}
	reason, err := l.Run(context.Background(), poll, run, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reason != StopMaxIterations {
		t.Errorf("reason = %q, want %q", reason, StopMaxIterations)
	}
	if calls != 2 {
		t.Errorf("poll called %d times, want 2 (iteration counter checked before running)", calls)
	}
}

func TestLoop_Run_RunsOnFirstTickOfTemporaryWatchEvenWithNoFeedback(t *testing.T) {
	l := &Loop{Config: Config{Mode: ModeTemporary, MaxIterations: 1}}
	ran := false
	poll := func(ctx context.Context) (PollResult, error) {
		return PollResult{FeedbackEmpty: true}, nil
	}
	run := func(ctx context.Context, prev string) (string, error) {
		ran = true
		return "sess-1", nil
	}
	_, err := l.Run(context.Background(), poll, run, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !ran {
		t.Errorf("expected agent run to be triggered on first tick of temporary watch despite empty feedback")
	}
}

func TestLoop_Run_NotifyRestartCalledOnEachTemporaryRun(t *testing.T) {
	l := &Loop{Config: Config{Mode: ModeTemporary, MaxIterations: 2}}
	var notified []int
	poll := func(ctx context.Context) (PollResult, error) {
		return PollResult{FeedbackEmpty: false}, nil
	}
	run := func(ctx context.Context, prev string) (string, error) {
		return "sess", nil
	}
	notify := func(iteration, max int) error {
		notified = append(notified, iteration)
		return nil
	}
	_, err := l.Run(context.Background(), poll, run, notify)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(notified) != 2 || notified[0] != 1 || notified[1] != 2 {
		t.Errorf("notified = %v, want [1 2]", notified)
	}
}

func TestLoop_Run_PropagatesPollError(t *testing.T) {
	l := &Loop{Config: Config{Mode: ModeOrdinary}}
	wantErr := errors.New("boom")
	poll := func(ctx context.Context) (PollResult, error) {
		return PollResult{}, wantErr
	}
	run := func(ctx context.Context, prev string) (string, error) { return "", nil }
	_, err := l.Run(context.Background(), poll, run, nil)
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestLoop_Run_PropagatesRunError(t *testing.T) {
	l := &Loop{Config: Config{Mode: ModeOrdinary}}
	wantErr := errors.New("agent blew up")
	poll := func(ctx context.Context) (PollResult, error) {
		return PollResult{FeedbackEmpty: false}, nil
	}
	run := func(ctx context.Context, prev string) (string, error) { return "", wantErr }
	_, err := l.Run(context.Background(), poll, run, nil)
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestLoop_Run_SessionIDThreadsAcrossTicks(t *testing.T) {
	l := &Loop{Config: Config{Mode: ModeTemporary, MaxIterations: 2}}
	var seen []string
	poll := func(ctx context.Context) (PollResult, error) {
		return PollResult{FeedbackEmpty: false}, nil
	}
	run := func(ctx context.Context, prev string) (string, error) {
		seen = append(seen, prev)
		return "next-" + prev, nil
	}
	_, err := l.Run(context.Background(), poll, run, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(seen) != 2 || seen[0] != "" || seen[1] != "next-" {
		t.Errorf("seen = %v, want [\"\" \"next-\"]", seen)
	}
}
