package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LJTian/NewsPulse/internal/pipeline"
)

type countingRunner struct {
	mu    sync.Mutex
	calls map[string]int
	busy  atomic.Bool
}

func (r *countingRunner) Run(ctx context.Context, source, query string) (*pipeline.Result, error) {
	if r.busy.Load() {
		return nil, pipeline.ErrRunInProgress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[source]++
	return &pipeline.Result{Source: source}, nil
}

func TestNewRejectsInvalidCronSpec(t *testing.T) {
	if _, err := New(&countingRunner{}, Job{Source: "guardian", CronSpec: "not a cron"}); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

func TestNewRegistersOneEntryPerJob(t *testing.T) {
	s, err := New(&countingRunner{},
		Job{Source: "guardian", CronSpec: "*/30 * * * *"},
		Job{Source: "reddit", CronSpec: "@hourly"},
	)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Fatalf("expected 2 cron entries, got %d", got)
	}
}

func TestRunOnceTriggersEverySource(t *testing.T) {
	r := &countingRunner{}
	s, err := New(r,
		Job{Source: "guardian", CronSpec: "@hourly"},
		Job{Source: "reddit", CronSpec: "@hourly"},
	)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.RunOnce()

	if r.calls["guardian"] != 1 || r.calls["reddit"] != 1 {
		t.Fatalf("unexpected calls: %v", r.calls)
	}
}

func TestRunSourceDropsTriggerWhileBusy(t *testing.T) {
	r := &countingRunner{}
	r.busy.Store(true)
	s, _ := New(r, Job{Source: "guardian", CronSpec: "@hourly"})

	s.runSource("guardian")
	if r.calls["guardian"] != 0 {
		t.Fatalf("busy source should not be run, got %v", r.calls)
	}
}

func TestStartStop(t *testing.T) {
	s, _ := New(&countingRunner{}, Job{Source: "guardian", CronSpec: "@hourly"})
	s.Start()
	s.Stop()
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingRunner) Run(ctx context.Context, source, query string) (*pipeline.Result, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	return &pipeline.Result{Source: source}, nil
}

func TestStopWaitsForStartupRun(t *testing.T) {
	r := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s, err := New(r, Job{Source: "guardian", CronSpec: "@hourly"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.delay = time.Millisecond
	s.Start()

	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("startup run did not fire")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("Stop returned while the startup run was still in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(r.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not return after the startup run finished")
	}
}

func TestStopBeforeStartupRunSkipsIt(t *testing.T) {
	r := &countingRunner{}
	s, _ := New(r, Job{Source: "guardian", CronSpec: "@hourly"})
	s.delay = time.Hour
	s.Start()
	s.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls["guardian"] != 0 {
		t.Fatalf("startup run should not fire after Stop, got %v", r.calls)
	}
}
