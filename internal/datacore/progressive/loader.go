// Package progressive runs an ordered list of independent fetches one at a
// time, publishing partial results as each step settles.
package progressive

import (
	"context"
	"fmt"
	"log"
)

// Step is one fetch in a progressive load.
type Step struct {
	// Name is the label shown while the step runs.
	Name  string
	Fetch func(ctx context.Context) (any, error)
}

// Outcome is the settled result of one step.
type Outcome struct {
	Value any
	Err   error
}

// OK reports whether the step succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Progress is published after every settled step.
type Progress struct {
	// Outcomes holds settled steps; unsettled steps are zero.
	Outcomes []Outcome
	// Completed counts settled steps, successful or not.
	Completed int
	Total     int
	// Current is the index of the step that just settled.
	Current     int
	CurrentStep string
	// Fraction is Completed/Total and reaches 1 only when the last step
	// has settled.
	Fraction float64
}

// Values returns the settled values with nil in failed or unsettled slots.
func (p Progress) Values() []any {
	return values(p.Outcomes)
}

// Result is the final state of a progressive load.
type Result struct {
	Outcomes []Outcome
}

// Values returns one value per step, nil where the step failed.
func (r Result) Values() []any {
	return values(r.Outcomes)
}

// Failed returns the indexes of failed steps.
func (r Result) Failed() []int {
	var failed []int
	for i, outcome := range r.Outcomes {
		if !outcome.OK() {
			failed = append(failed, i)
		}
	}
	return failed
}

// Loader runs steps sequentially.
type Loader struct {
	// OnProgress receives a snapshot after every settled step.
	OnProgress func(Progress)
	// Logf reports step failures; nil uses log.Printf.
	Logf func(format string, args ...any)
}

// Run executes steps in order, never in parallel. A failing step is recorded
// and logged and the sequence continues with the next step.
func (l *Loader) Run(ctx context.Context, steps []Step) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	total := len(steps)
	outcomes := make([]Outcome, total)
	if total == 0 {
		l.publish(Progress{Fraction: 1})
		return Result{Outcomes: outcomes}
	}

	for i, step := range steps {
		outcome := runStep(ctx, step)
		if outcome.Err != nil {
			l.logf("progressive step %d (%s) failed: %v", i, step.Name, outcome.Err)
		}
		outcomes[i] = outcome

		l.publish(Progress{
			Outcomes:    append([]Outcome(nil), outcomes...),
			Completed:   i + 1,
			Total:       total,
			Current:     i,
			CurrentStep: step.Name,
			Fraction:    float64(i+1) / float64(total),
		})
	}
	return Result{Outcomes: outcomes}
}

func runStep(ctx context.Context, step Step) (outcome Outcome) {
	if step.Fetch == nil {
		return Outcome{Err: fmt.Errorf("step %q has no fetch function", step.Name)}
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = Outcome{Err: fmt.Errorf("step %q panicked: %v", step.Name, recovered)}
		}
	}()
	value, err := step.Fetch(ctx)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Value: value}
}

func (l *Loader) publish(p Progress) {
	if l != nil && l.OnProgress != nil {
		l.OnProgress(p)
	}
}

func (l *Loader) logf(format string, args ...any) {
	if l != nil && l.Logf != nil {
		l.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func values(outcomes []Outcome) []any {
	out := make([]any, len(outcomes))
	for i, outcome := range outcomes {
		if outcome.OK() {
			out[i] = outcome.Value
		}
	}
	return out
}
