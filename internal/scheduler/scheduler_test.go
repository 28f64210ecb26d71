package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

type scriptedRunner struct {
	script  []func() weather.CycleResult
	calls   int32
	active  int32
	overlap int32
	done    func()
}

func (r *scriptedRunner) RunCycle(context.Context) weather.CycleResult {
	if atomic.AddInt32(&r.active, 1) > 1 {
		atomic.StoreInt32(&r.overlap, 1)
	}
	defer atomic.AddInt32(&r.active, -1)

	n := int(atomic.AddInt32(&r.calls, 1))
	if n == len(r.script) && r.done != nil {
		defer r.done()
	}
	if n <= len(r.script) {
		return r.script[n-1]()
	}
	return weather.CycleResult{Outcome: weather.OutcomeCurrent}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSurvivesFailuresAndPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &scriptedRunner{
		script: []func() weather.CycleResult{
			func() weather.CycleResult {
				return weather.CycleResult{Outcome: weather.OutcomeFailed, Err: weather.ErrProvider}
			},
			func() weather.CycleResult { panic("nil map write") },
			func() weather.CycleResult { return weather.CycleResult{Outcome: weather.OutcomeWritten, Written: 3} },
		},
		done: cancel,
	}

	s, err := New(runner, time.Millisecond, "", quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	if got := atomic.LoadInt32(&runner.calls); got < 3 {
		t.Fatalf("expected at least 3 cycles, got %d", got)
	}
	if atomic.LoadInt32(&runner.overlap) != 0 {
		t.Fatal("cycles overlapped")
	}
}

func TestRunSleepsIntervalAfterEveryCycle(t *testing.T) {
	runner := &scriptedRunner{}
	s, err := New(runner, 65*time.Minute, "", quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sleeps []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 3 {
			return context.Canceled
		}
		return nil
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if runner.calls != 3 {
		t.Fatalf("expected 3 cycles, got %d", runner.calls)
	}
	for i, d := range sleeps {
		if d != 65*time.Minute {
			t.Fatalf("sleep %d: expected 65m, got %s", i, d)
		}
	}
}

func TestRunOnceRecoversPanic(t *testing.T) {
	runner := &scriptedRunner{script: []func() weather.CycleResult{
		func() weather.CycleResult { panic(errors.New("index out of range")) },
	}}
	s, err := New(runner, time.Minute, "", quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := s.RunOnce(context.Background())
	if !res.Failed() || res.Err == nil {
		t.Fatalf("expected failed result, got %+v", res)
	}
}

func TestNewRejectsInvalidCron(t *testing.T) {
	if _, err := New(&scriptedRunner{}, time.Minute, "every now and then", quietLogger()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNewAcceptsCron(t *testing.T) {
	s, err := New(&scriptedRunner{}, time.Minute, "5 * * * *", quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCronModeRunsCyclesThroughRunOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &scriptedRunner{
		script: []func() weather.CycleResult{
			func() weather.CycleResult { panic("boom") },
			func() weather.CycleResult { return weather.CycleResult{Outcome: weather.OutcomeWritten, Written: 1} },
		},
		done: cancel,
	}

	s, err := New(runner, time.Minute, "* * * * * *", quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cron scheduler did not run two cycles")
	}

	if got := atomic.LoadInt32(&runner.calls); got < 2 {
		t.Fatalf("expected at least 2 cycles, got %d", got)
	}
	if atomic.LoadInt32(&runner.overlap) != 0 {
		t.Fatal("cycles overlapped")
	}
}
