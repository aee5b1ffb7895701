package scenario

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type funcRunner func(ctx context.Context, name string) Outcome

func (f funcRunner) Run(ctx context.Context, name string) Outcome { return f(ctx, name) }

func TestRunAllPreservesGivenOrder(t *testing.T) {
	delays := map[string]time.Duration{
		"extraction": 30 * time.Millisecond,
		"roleplay":   15 * time.Millisecond,
		"encoding":   0,
	}
	runner := funcRunner(func(_ context.Context, name string) Outcome {
		time.Sleep(delays[name])
		return Outcome{ScenarioName: name, Status: StatusPassed}
	})
	got := RunAll(context.Background(), runner, CanonicalOrder(), 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got))
	}
	for i, name := range CanonicalOrder() {
		if got[i].ScenarioName != name {
			t.Fatalf("outcome %d is %s, want %s", i, got[i].ScenarioName, name)
		}
	}
}

func TestRunAllBoundsParallelism(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	runner := funcRunner(func(_ context.Context, name string) Outcome {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return Outcome{ScenarioName: name, Status: StatusPassed}
	})
	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("job-%d", i)
	}
	got := RunAll(context.Background(), runner, names, 2)
	if len(got) != len(names) {
		t.Fatalf("expected %d outcomes, got %d", len(names), len(got))
	}
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent runs, saw %d", peak)
	}
}

func TestRunAllErroredScenarioDoesNotCancelOthers(t *testing.T) {
	runner := funcRunner(func(_ context.Context, name string) Outcome {
		if name == "roleplay" {
			return Outcome{ScenarioName: name, Status: StatusErrored, Diagnostics: "scenario timed out after 1ms"}
		}
		time.Sleep(5 * time.Millisecond)
		return Outcome{ScenarioName: name, Status: StatusPassed}
	})
	got := RunAll(context.Background(), runner, CanonicalOrder(), 2)
	if got[1].Status != StatusErrored {
		t.Fatalf("expected roleplay errored, got %s", got[1].Status)
	}
	if got[0].Status != StatusPassed || got[2].Status != StatusPassed {
		t.Fatalf("siblings must finish despite an errored scenario: %v", got)
	}
}

func TestRunAllNoNames(t *testing.T) {
	runner := funcRunner(func(_ context.Context, name string) Outcome {
		t.Fatalf("runner should not be invoked")
		return Outcome{}
	})
	got := RunAll(context.Background(), runner, nil, 4)
	if len(got) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(got))
	}
}
