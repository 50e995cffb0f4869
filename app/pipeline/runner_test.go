package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

type fakeExecutor struct {
	result  newsletter.Result
	started chan struct{}
	release chan struct{}
	opts    Options
}

func (e *fakeExecutor) Run(ctx context.Context, opts Options) newsletter.Result {
	e.opts = opts
	if opts.Observer != nil {
		opts.Observer.Observe(ctx, Transition{RunID: opts.RunID, From: StateIdle, To: StateDiscovering})
	}
	if e.started != nil {
		close(e.started)
	}
	if e.release != nil {
		<-e.release
	}
	return e.result
}

type fakeStore struct {
	mu       sync.Mutex
	created  []newsletter.Run
	states   []string
	finished []newsletter.Run
	err      error
}

func (s *fakeStore) CreateRun(ctx context.Context, run newsletter.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, run)
	return s.err
}

func (s *fakeStore) UpdateRunState(ctx context.Context, id, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
	return s.err
}

func (s *fakeStore) FinishRun(ctx context.Context, run newsletter.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, run)
	return s.err
}

func newTestRunner(exec Executor, store RunStore) *Runner {
	r := NewRunner(exec, store, 0)
	r.newID = func() string { return "run-1" }
	return r
}

func TestRunnerRecordsSuccess(t *testing.T) {
	exec := &fakeExecutor{result: newsletter.Result{
		Success: true,
		Output: &newsletter.Receipt{
			Success:   true,
			MessageID: "msg_1",
			Recipient: "a@b.com",
			ItemCount: 10,
		},
	}}
	store := &fakeStore{}
	r := newTestRunner(exec, store)

	result, err := r.Run(context.Background(), TriggerManual, Options{Recipient: "a@b.com"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "run-1", exec.opts.RunID)

	require.Len(t, store.created, 1)
	assert.Equal(t, "manual", store.created[0].Trigger)
	assert.Equal(t, []string{"discovering"}, store.states)
	require.Len(t, store.finished, 1)
	assert.Equal(t, "succeeded", store.finished[0].State)
	assert.Equal(t, "msg_1", store.finished[0].MessageID)
	assert.Equal(t, 10, store.finished[0].ItemCount)
	assert.NotNil(t, store.finished[0].FinishedAt)

	_, running := r.Running()
	assert.False(t, running)
}

func TestRunnerRecordsFailure(t *testing.T) {
	exec := &fakeExecutor{result: newsletter.Result{
		Error: "curation stage failed",
		Stage: newsletter.StageCuration,
	}}
	store := &fakeStore{}
	r := newTestRunner(exec, store)

	result, err := r.Run(context.Background(), TriggerCron, Options{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, store.finished, 1)
	assert.Equal(t, "failed", store.finished[0].State)
	assert.Equal(t, newsletter.StageCuration, store.finished[0].Stage)
}

func TestRunnerRejectsOverlappingRuns(t *testing.T) {
	exec := &fakeExecutor{
		result:  newsletter.Result{Success: true},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := newTestRunner(exec, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), TriggerSchedule, Options{})
		done <- err
	}()
	<-exec.started

	id, running := r.Running()
	assert.True(t, running)
	assert.Equal(t, "run-1", id)

	_, err := r.Run(context.Background(), TriggerManual, Options{})
	assert.True(t, errors.Is(err, ErrRunInProgress))

	close(exec.release)
	require.NoError(t, <-done)

	_, running = r.Running()
	assert.False(t, running)
}

func TestRunnerStoreFailuresIgnored(t *testing.T) {
	exec := &fakeExecutor{result: newsletter.Result{Success: true}}
	store := &fakeStore{err: errors.New("disk full")}
	r := newTestRunner(exec, store)

	result, err := r.Run(context.Background(), TriggerDirect, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRunnerAppliesTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	exec := executorFunc(func(ctx context.Context, opts Options) newsletter.Result {
		deadline, hasDeadline = ctx.Deadline()
		return newsletter.Result{Success: true}
	})
	r := NewRunner(exec, nil, time.Minute)

	_, err := r.Run(context.Background(), TriggerManual, Options{})
	require.NoError(t, err)

	assert.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

type executorFunc func(ctx context.Context, opts Options) newsletter.Result

func (f executorFunc) Run(ctx context.Context, opts Options) newsletter.Result {
	return f(ctx, opts)
}
