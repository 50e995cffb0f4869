package tasks

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/ai-newsletter/app/pipeline"
)

// RunNewsletterTask runs the pipeline once. It is never retried: a
// retry after a partial delivery could send the newsletter twice. Once
// started, a run outlives scheduler shutdown; RUN_TIMEOUT bounds it.
type RunNewsletterTask struct {
	Task
	trigger pipeline.Trigger
	runner  NewsletterRunner
}

func NewRunNewsletterTask(trigger pipeline.Trigger, runner NewsletterRunner) *RunNewsletterTask {
	task := NewTask(TaskTypeRunNewsletter, string(trigger))
	task.MaxRetries = 0
	task.Timeout = 0

	return &RunNewsletterTask{
		Task:    task,
		trigger: trigger,
		runner:  runner,
	}
}

func (t *RunNewsletterTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.runner.Run(context.WithoutCancel(ctx), t.trigger, pipeline.Options{})
	if errors.Is(err, pipeline.ErrRunInProgress) {
		slog.Warn("Newsletter run skipped, another run is active", "trigger", t.trigger)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to run newsletter")
	}
	if !result.Success {
		return errors.Newf("newsletter run %s failed at %s: %s", result.RunID, result.Stage, result.Error)
	}

	slog.Info("Task completed",
		"type", "RunNewsletter",
		"run_id", result.RunID,
		"duration", t.GetDuration())

	return nil
}
