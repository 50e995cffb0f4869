package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

var ErrRunInProgress = errors.New("a newsletter run is already in progress")

// Trigger labels where a run came from.
type Trigger string

const (
	TriggerCron     Trigger = "cron"
	TriggerManual   Trigger = "manual"
	TriggerDirect   Trigger = "direct"
	TriggerSchedule Trigger = "schedule"
)

// RunStore persists run records. Failures are logged, never fatal.
type RunStore interface {
	CreateRun(ctx context.Context, run newsletter.Run) error
	UpdateRunState(ctx context.Context, id, state string) error
	FinishRun(ctx context.Context, run newsletter.Run) error
}

type Executor interface {
	Run(ctx context.Context, opts Options) newsletter.Result
}

// Runner allows one pipeline run at a time and records each run.
type Runner struct {
	executor Executor
	store    RunStore
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	current string

	newID func() string
	now   func() time.Time
}

// NewRunner wraps executor. store may be nil; a zero timeout disables the bound.
func NewRunner(executor Executor, store RunStore, timeout time.Duration) *Runner {
	return &Runner{
		executor: executor,
		store:    store,
		timeout:  timeout,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Running returns the id of the active run, if any.
func (r *Runner) Running() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.running
}

func (r *Runner) acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.current = id
	return true
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.current = ""
	r.mu.Unlock()
}

// Run executes one pipeline run unless another is active, in which
// case it returns ErrRunInProgress without side effects.
func (r *Runner) Run(ctx context.Context, trigger Trigger, opts Options) (newsletter.Result, error) {
	id := r.newID()
	if !r.acquire(id) {
		active, _ := r.Running()
		slog.Warn("Rejected overlapping run", "trigger", trigger, "active_run", active)
		return newsletter.Result{}, ErrRunInProgress
	}
	defer r.release()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	record := newsletter.Run{
		ID:        id,
		Trigger:   string(trigger),
		State:     string(StateIdle),
		Broadcast: opts.Broadcast != nil && *opts.Broadcast,
		Recipient: opts.Recipient,
		StartedAt: r.now(),
	}
	r.persist(ctx, "create", func(ctx context.Context) error { return r.store.CreateRun(ctx, record) })

	slog.Info("Starting newsletter run", "run_id", id, "trigger", trigger)

	opts.RunID = id
	opts.Observer = multiObserver{opts.Observer, ObserverFunc(func(ctx context.Context, t Transition) {
		if t.To.Terminal() {
			return
		}
		r.persist(ctx, "update", func(ctx context.Context) error {
			return r.store.UpdateRunState(ctx, id, string(t.To))
		})
	})}

	result := r.executor.Run(ctx, opts)
	result.RunID = id

	finished := r.now()
	record.FinishedAt = &finished
	record.State = string(StateFailed)
	record.Stage = result.Stage
	record.Error = result.Error
	if result.Success {
		record.State = string(StateSucceeded)
	}
	if out := result.Output; out != nil {
		record.Broadcast = out.Broadcast
		record.Recipient = out.Recipient
		record.ItemCount = out.ItemCount
		record.MessageID = out.MessageID
	}
	r.persist(ctx, "finish", func(ctx context.Context) error { return r.store.FinishRun(ctx, record) })

	slog.Info("Finished newsletter run",
		"run_id", id,
		"success", result.Success,
		"duration", finished.Sub(record.StartedAt).Round(time.Millisecond))

	return result, nil
}

func (r *Runner) persist(ctx context.Context, op string, fn func(context.Context) error) {
	if r.store == nil {
		return
	}
	// Recording must survive a run that hit its deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Warn("Failed to record run", "operation", op, "error", err)
	}
}
