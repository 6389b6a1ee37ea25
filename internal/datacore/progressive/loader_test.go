package progressive

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestRunToleratesFailingStep(t *testing.T) {
	var logged []string
	var fractions []float64
	var ran []int
	loader := &Loader{
		OnProgress: func(p Progress) { fractions = append(fractions, p.Fraction) },
		Logf:       func(format string, args ...any) { logged = append(logged, fmt.Sprintf(format, args...)) },
	}

	result := loader.Run(context.Background(), []Step{
		{Name: "bookings", Fetch: func(context.Context) (any, error) { ran = append(ran, 0); return "r0", nil }},
		{Name: "customers", Fetch: func(context.Context) (any, error) { ran = append(ran, 1); return nil, errors.New("boom") }},
		{Name: "activity", Fetch: func(context.Context) (any, error) { ran = append(ran, 2); return "r2", nil }},
	})

	values := result.Values()
	if len(values) != 3 || values[0] != "r0" || values[1] != nil || values[2] != "r2" {
		t.Fatalf("values = %v, want [r0 <nil> r2]", values)
	}
	if len(ran) != 3 {
		t.Fatalf("steps run = %v, want all three", ran)
	}
	if failed := result.Failed(); len(failed) != 1 || failed[0] != 1 {
		t.Fatalf("failed = %v, want [1]", failed)
	}
	if len(logged) != 1 {
		t.Fatalf("log lines = %d, want %d", len(logged), 1)
	}

	want := []float64{1.0 / 3.0, 2.0 / 3.0, 1}
	if len(fractions) != len(want) {
		t.Fatalf("fractions = %v, want %v", fractions, want)
	}
	for i := range want {
		if fractions[i] != want[i] {
			t.Fatalf("fraction[%d] = %v, want %v", i, fractions[i], want[i])
		}
		if i > 0 && fractions[i] <= fractions[i-1] {
			t.Fatalf("fractions not strictly increasing: %v", fractions)
		}
	}
}

func TestRunIsSequential(t *testing.T) {
	var active atomic.Int32
	step := func(context.Context) (any, error) {
		if active.Add(1) != 1 {
			t.Error("steps overlapped")
		}
		defer active.Add(-1)
		return nil, nil
	}
	loader := &Loader{}
	loader.Run(context.Background(), []Step{{Fetch: step}, {Fetch: step}, {Fetch: step}})
}

func TestRunPublishesPartialResults(t *testing.T) {
	var snapshots []Progress
	loader := &Loader{OnProgress: func(p Progress) { snapshots = append(snapshots, p) }}

	loader.Run(context.Background(), []Step{
		{Name: "first", Fetch: func(context.Context) (any, error) { return 1, nil }},
		{Name: "second", Fetch: func(context.Context) (any, error) { return 2, nil }},
	})

	if len(snapshots) != 2 {
		t.Fatalf("snapshots = %d, want %d", len(snapshots), 2)
	}
	first := snapshots[0]
	if first.CurrentStep != "first" || first.Completed != 1 || first.Total != 2 {
		t.Fatalf("first snapshot = %+v", first)
	}
	if got := first.Values(); got[0] != 1 || got[1] != nil {
		t.Fatalf("first partial values = %v, want [1 <nil>]", got)
	}
	if got := snapshots[1].Values(); got[0] != 1 || got[1] != 2 {
		t.Fatalf("final partial values = %v, want [1 2]", got)
	}
}

func TestRunRecoversPanicsAndMissingFetch(t *testing.T) {
	loader := &Loader{Logf: func(string, ...any) {}}
	result := loader.Run(context.Background(), []Step{
		{Name: "panics", Fetch: func(context.Context) (any, error) { panic("bad") }},
		{Name: "missing"},
		{Name: "ok", Fetch: func(context.Context) (any, error) { return "done", nil }},
	})
	if failed := result.Failed(); len(failed) != 2 {
		t.Fatalf("failed = %v, want two failures", failed)
	}
	if got := result.Values()[2]; got != "done" {
		t.Fatalf("last value = %v, want %q", got, "done")
	}
}

func TestRunWithNoSteps(t *testing.T) {
	var last Progress
	calls := 0
	loader := &Loader{OnProgress: func(p Progress) { last = p; calls++ }}
	result := loader.Run(context.Background(), nil)
	if len(result.Outcomes) != 0 {
		t.Fatalf("outcomes = %d, want 0", len(result.Outcomes))
	}
	if calls != 1 || last.Fraction != 1 {
		t.Fatalf("progress = %+v after %d calls, want fraction 1 once", last, calls)
	}
}
