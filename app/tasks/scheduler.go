package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
	"github.com/lysyi3m/ai-newsletter/app/pipeline"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Config struct {
	Interval        time.Duration
	WorkerCount     int
	ScheduleEnabled bool
	ScheduleHour    int
	ScheduleMinute  int
	Timezone        string
}

type Scheduler struct {
	config   Config
	runner   NewsletterRunner
	sources  SourceLoader
	welcome  WelcomeSender
	renderer *newsletter.Renderer

	lastScheduled string
	now           func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

// NewScheduler builds the worker pool. sources and welcome may be nil.
func NewScheduler(config Config, runner NewsletterRunner, sources SourceLoader,
	welcome WelcomeSender, renderer *newsletter.Renderer) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}

	return &Scheduler{
		config:    config,
		runner:    runner,
		sources:   sources,
		welcome:   welcome,
		renderer:  renderer,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.enqueueStartupTasks()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()

	slog.Info("Scheduler started",
		"workers", s.config.WorkerCount,
		"schedule_enabled", s.config.ScheduleEnabled,
		"schedule_time", s.scheduleTime())
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return errors.New("task queue is full")
	}
}

// EnqueueWelcome queues the welcome email for a new subscriber.
func (s *Scheduler) EnqueueWelcome(email string) error {
	if s.welcome == nil || s.renderer == nil {
		return errors.New("welcome emails are not configured")
	}

	doc := s.renderer.Welcome(s.scheduleTime())
	return s.EnqueueTask(NewSendWelcomeTask(email, doc, s.welcome))
}

func (s *Scheduler) scheduleTime() string {
	if !s.config.ScheduleEnabled {
		return ""
	}
	clock := fmt.Sprintf("%02d:%02d", s.config.ScheduleHour, s.config.ScheduleMinute)
	if s.config.Timezone != "" {
		clock += " " + s.config.Timezone
	}
	return clock
}

func (s *Scheduler) enqueueStartupTasks() {
	// A restart after today's slot must not send a second issue.
	s.skipElapsedSlot(s.now())

	if s.sources == nil {
		return
	}
	if err := s.EnqueueTask(NewSyncSourcesTask(s.sources)); err != nil {
		slog.Warn("Failed to enqueue SyncSourcesTask", "error", err)
	}
}

func (s *Scheduler) enqueueTasks() {
	if !s.dueRun(s.now()) {
		return
	}

	slog.Info("Daily newsletter run is due", "schedule_time", s.scheduleTime())

	if s.sources != nil {
		if err := s.EnqueueTask(NewSyncSourcesTask(s.sources)); err != nil {
			slog.Warn("Failed to enqueue SyncSourcesTask", "error", err)
		}
	}
	if err := s.EnqueueTask(NewRunNewsletterTask(pipeline.TriggerSchedule, s.runner)); err != nil {
		slog.Error("Failed to enqueue RunNewsletterTask", "error", err)
	}
}

func (s *Scheduler) slot(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(),
		s.config.ScheduleHour, s.config.ScheduleMinute, 0, 0, now.Location())
}

func (s *Scheduler) skipElapsedSlot(now time.Time) {
	if s.config.ScheduleEnabled && !now.Before(s.slot(now)) {
		s.lastScheduled = now.Format(time.DateOnly)
	}
}

// dueRun reports whether today's slot has passed and has not fired yet.
func (s *Scheduler) dueRun(now time.Time) bool {
	if !s.config.ScheduleEnabled || s.runner == nil {
		return false
	}

	day := now.Format(time.DateOnly)
	if s.lastScheduled == day || now.Before(s.slot(now)) {
		return false
	}

	s.lastScheduled = day
	return true
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout := task.GetTimeout(); timeout > 0 {
		taskCtx, cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		taskCtx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-time.After(retryDelay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
