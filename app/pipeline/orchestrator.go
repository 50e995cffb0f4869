// Package pipeline sequences discovery, curation and delivery into one
// newsletter run.
package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

// DateLayout formats the newsletter date shown in subjects and headers.
const DateLayout = "Monday, January 2, 2006"

type Discoverer interface {
	Run(ctx context.Context) (newsletter.DiscoveredBatch, error)
}

type Curator interface {
	Run(ctx context.Context, batch newsletter.DiscoveredBatch) (newsletter.CuratedBatch, error)
}

type Deliverer interface {
	Request(items newsletter.CuratedBatch, date, recipient string, broadcast *bool) newsletter.DeliveryRequest
	Run(ctx context.Context, req newsletter.DeliveryRequest) (*newsletter.Receipt, error)
}

// Options are the per-run overrides.
type Options struct {
	Recipient string
	Broadcast *bool
	RunID     string
	Observer  Observer
}

type Orchestrator struct {
	discoverer Discoverer
	curator    Curator
	deliverer  Deliverer
	observer   Observer
	now        func() time.Time
}

func NewOrchestrator(discoverer Discoverer, curator Curator, deliverer Deliverer) *Orchestrator {
	return &Orchestrator{
		discoverer: discoverer,
		curator:    curator,
		deliverer:  deliverer,
		observer:   LogObserver{},
		now:        time.Now,
	}
}

// run tracks the state of a single invocation.
type run struct {
	id       string
	state    State
	observer Observer
}

func (r *run) move(ctx context.Context, to State, stage newsletter.Stage, err error) {
	t := Transition{RunID: r.id, From: r.state, To: to, Stage: stage, Err: err}
	r.state = to
	r.observer.Observe(ctx, t)
}

// Run executes the three stages in order. It never returns an error:
// failures are reported in the result together with the failing stage.
func (o *Orchestrator) Run(ctx context.Context, opts Options) newsletter.Result {
	r := &run{
		id:       opts.RunID,
		state:    StateIdle,
		observer: multiObserver{o.observer, opts.Observer},
	}
	date := o.now().Format(DateLayout)

	r.move(ctx, StateDiscovering, newsletter.StageDiscovery, nil)
	discovered, err := o.discoverer.Run(ctx)
	if err == nil {
		err = newsletter.ValidateDiscovered(discovered)
	}
	if err != nil {
		return o.fail(ctx, r, newsletter.StageDiscovery, err)
	}

	r.move(ctx, StateCurating, newsletter.StageCuration, nil)
	curated, err := o.curator.Run(ctx, slices.Clone(discovered))
	if err == nil {
		err = newsletter.ValidateCurated(curated)
	}
	if err != nil {
		return o.fail(ctx, r, newsletter.StageCuration, err)
	}

	r.move(ctx, StateDelivering, newsletter.StageDelivery, nil)
	req := o.deliverer.Request(slices.Clone(curated), date, opts.Recipient, opts.Broadcast)
	receipt, err := o.deliverer.Run(ctx, req)
	if err != nil {
		return o.fail(ctx, r, newsletter.StageDelivery, err)
	}

	r.move(ctx, StateSucceeded, "", nil)
	return newsletter.Result{
		Success:   true,
		Output:    receipt,
		RunID:     opts.RunID,
		Timestamp: o.now(),
	}
}

func (o *Orchestrator) fail(ctx context.Context, r *run, current newsletter.Stage, err error) newsletter.Result {
	stage, ok := newsletter.StageOf(err)
	if !ok {
		stage = current
		err = newsletter.NewStageError(current, err)
	}

	r.move(ctx, StateFailed, stage, err)
	return newsletter.Result{
		Success:   false,
		Error:     err.Error(),
		Stage:     stage,
		RunID:     r.id,
		Timestamp: o.now(),
	}
}
