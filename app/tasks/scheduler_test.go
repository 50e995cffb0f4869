package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
	"github.com/lysyi3m/ai-newsletter/app/pipeline"
)

type mockRunner struct {
	mu       sync.Mutex
	triggers []pipeline.Trigger
	result   newsletter.Result
	err      error
}

func (m *mockRunner) Run(ctx context.Context, trigger pipeline.Trigger, opts pipeline.Options) (newsletter.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, trigger)
	return m.result, m.err
}

type mockSender struct {
	mu       sync.Mutex
	failures int
	sent     []string
	docs     []newsletter.Document
	done     chan struct{}
}

func (m *mockSender) SendSingle(ctx context.Context, doc newsletter.Document, recipient string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return "", errors.New("provider unavailable")
	}
	m.sent = append(m.sent, recipient)
	m.docs = append(m.docs, doc)
	if m.done != nil {
		close(m.done)
	}
	return "msg_1", nil
}

type mockSources struct {
	loads int
	err   error
}

func (m *mockSources) Run() error {
	m.loads++
	return m.err
}

func (m *mockSources) Count() int { return 8 }

func newTestScheduler(config Config, runner NewsletterRunner, welcome WelcomeSender) *Scheduler {
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	return NewScheduler(config, runner, nil, welcome, newsletter.NewRenderer("AI News Daily"))
}

func TestSchedulerDueRun(t *testing.T) {
	config := Config{ScheduleEnabled: true, ScheduleHour: 8, ScheduleMinute: 0}
	day := func(h, m int) time.Time { return time.Date(2026, 10, 16, h, m, 0, 0, time.UTC) }

	s := newTestScheduler(config, &mockRunner{}, nil)

	assert.False(t, s.dueRun(day(7, 59)))
	assert.True(t, s.dueRun(day(8, 0)))
	assert.False(t, s.dueRun(day(8, 1)), "fires once per day")
	assert.False(t, s.dueRun(day(23, 59)))
	assert.True(t, s.dueRun(day(8, 0).AddDate(0, 0, 1)))
}

func TestSchedulerDueRunDisabled(t *testing.T) {
	s := newTestScheduler(Config{ScheduleEnabled: false, ScheduleHour: 8}, &mockRunner{}, nil)

	assert.False(t, s.dueRun(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)))
}

func TestSchedulerSkipsElapsedSlotOnStartup(t *testing.T) {
	config := Config{ScheduleEnabled: true, ScheduleHour: 8, ScheduleMinute: 30}

	s := newTestScheduler(config, &mockRunner{}, nil)
	s.skipElapsedSlot(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	assert.False(t, s.dueRun(time.Date(2026, 10, 16, 9, 0, 30, 0, time.UTC)))

	s = newTestScheduler(config, &mockRunner{}, nil)
	s.skipElapsedSlot(time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC))
	assert.True(t, s.dueRun(time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)))
}

func TestSchedulerEnqueueWelcome(t *testing.T) {
	sender := &mockSender{done: make(chan struct{})}
	s := newTestScheduler(Config{ScheduleEnabled: true, ScheduleHour: 8, Timezone: "UTC"}, &mockRunner{}, sender)
	s.Start()
	defer s.Stop()

	require.NoError(t, s.EnqueueWelcome("reader@example.com"))

	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("welcome email was not sent")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, []string{"reader@example.com"}, sender.sent)
	assert.Equal(t, "🤖 Welcome to AI News Daily!", sender.docs[0].Subject)
	assert.Contains(t, sender.docs[0].HTML, "08:00 UTC")
}

func TestSchedulerRetriesWelcome(t *testing.T) {
	sender := &mockSender{failures: 1, done: make(chan struct{})}
	s := newTestScheduler(Config{}, &mockRunner{}, sender)
	s.Start()
	defer s.Stop()

	require.NoError(t, s.EnqueueWelcome("reader@example.com"))

	select {
	case <-sender.done:
	case <-time.After(5 * time.Second):
		t.Fatal("welcome email was not retried")
	}
}

func TestSchedulerEnqueueWelcomeNotConfigured(t *testing.T) {
	s := newTestScheduler(Config{}, &mockRunner{}, nil)

	assert.Error(t, s.EnqueueWelcome("reader@example.com"))
}

func TestSchedulerEnqueueAfterStop(t *testing.T) {
	s := newTestScheduler(Config{}, &mockRunner{}, nil)
	s.Start()
	s.Stop()

	err := s.EnqueueTask(NewRunNewsletterTask(pipeline.TriggerManual, &mockRunner{}))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSchedulerEnqueuesDailyRun(t *testing.T) {
	runner := &mockRunner{result: newsletter.Result{Success: true, RunID: "run-1"}}
	sources := &mockSources{}
	s := NewScheduler(Config{ScheduleEnabled: true, ScheduleHour: 8}, runner, sources, nil, nil)
	s.now = func() time.Time { return time.Date(2026, 10, 16, 8, 0, 5, 0, time.UTC) }

	s.enqueueTasks()
	s.enqueueTasks()

	require.Len(t, s.taskQueue, 2)
	assert.Equal(t, TaskTypeSyncSources, (<-s.taskQueue).GetType())
	assert.Equal(t, TaskTypeRunNewsletter, (<-s.taskQueue).GetType())
}

func TestRunNewsletterTask(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		runner := &mockRunner{result: newsletter.Result{Success: true, RunID: "run-1"}}
		task := NewRunNewsletterTask(pipeline.TriggerSchedule, runner)

		require.NoError(t, task.Execute(context.Background()))
		assert.Equal(t, []pipeline.Trigger{pipeline.TriggerSchedule}, runner.triggers)
		assert.False(t, task.CanRetry())
		assert.Zero(t, task.GetTimeout())
	})

	t.Run("run in progress", func(t *testing.T) {
		runner := &mockRunner{err: pipeline.ErrRunInProgress}
		task := NewRunNewsletterTask(pipeline.TriggerSchedule, runner)

		assert.NoError(t, task.Execute(context.Background()))
	})

	t.Run("failed run", func(t *testing.T) {
		runner := &mockRunner{result: newsletter.Result{RunID: "run-1", Stage: newsletter.StageCuration, Error: "bad batch"}}
		task := NewRunNewsletterTask(pipeline.TriggerSchedule, runner)

		err := task.Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "curation")
		assert.Contains(t, err.Error(), "bad batch")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		runner := &mockRunner{}
		task := NewRunNewsletterTask(pipeline.TriggerSchedule, runner)

		assert.Error(t, task.Execute(ctx))
		assert.Empty(t, runner.triggers)
	})
}

type blockingRunner struct {
	started  chan struct{}
	release  chan struct{}
	ctxErr   error
	finished chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, trigger pipeline.Trigger, opts pipeline.Options) (newsletter.Result, error) {
	close(b.started)
	<-b.release
	b.ctxErr = ctx.Err()
	close(b.finished)
	return newsletter.Result{Success: true, RunID: "run-1"}, nil
}

func TestSchedulerStopLetsRunFinish(t *testing.T) {
	runner := &blockingRunner{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	s := newTestScheduler(Config{}, runner, nil)
	s.Start()
	require.NoError(t, s.EnqueueTask(NewRunNewsletterTask(pipeline.TriggerSchedule, runner)))

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
	<-runner.finished
	assert.NoError(t, runner.ctxErr, "shutdown must not cancel a run in flight")
}

func TestSyncSourcesTask(t *testing.T) {
	sources := &mockSources{}
	require.NoError(t, NewSyncSourcesTask(sources).Execute(context.Background()))
	assert.Equal(t, 1, sources.loads)

	sources.err = errors.New("bad yaml")
	assert.Error(t, NewSyncSourcesTask(sources).Execute(context.Background()))
}

func TestTaskRetryAccounting(t *testing.T) {
	task := NewTask(TaskTypeSendWelcome, "reader@example.com")

	assert.Equal(t, DefaultTimeout, task.GetTimeout())
	for i := 0; i < DefaultMaxRetries; i++ {
		assert.True(t, task.CanRetry())
		task.IncrementRetryCount()
	}
	assert.False(t, task.CanRetry())
	assert.Equal(t, "reader@example.com", task.GetSubject())
}
