package pipeline

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

// State is a step of the run state machine.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateCurating    State = "curating"
	StateDelivering  State = "delivering"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Transition is reported for every state change of a run.
type Transition struct {
	RunID string
	From  State
	To    State
	Stage newsletter.Stage
	Err   error
}

type Observer interface {
	Observe(ctx context.Context, t Transition)
}

type ObserverFunc func(ctx context.Context, t Transition)

func (f ObserverFunc) Observe(ctx context.Context, t Transition) {
	f(ctx, t)
}

// LogObserver writes transitions to the structured log.
type LogObserver struct{}

func (LogObserver) Observe(_ context.Context, t Transition) {
	attrs := []any{"run_id", t.RunID, "from", t.From, "to", t.To}
	switch {
	case t.To == StateFailed:
		attrs = append(attrs, "stage", t.Stage, "kind", newsletter.Kind(t.Err), "error", t.Err)
		slog.Error("Pipeline run failed", attrs...)
	case t.To == StateSucceeded:
		slog.Info("Pipeline run succeeded", attrs...)
	default:
		slog.Info("Pipeline state changed", attrs...)
	}
}

type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, t Transition) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, t)
		}
	}
}
