package tasks

import (
	"context"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
	"github.com/lysyi3m/ai-newsletter/app/pipeline"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run the daily newsletter and background
// jobs such as welcome emails.
// Example usage:
//
//	scheduler := NewScheduler(config, runner, sources, welcome)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueWelcome("reader@example.com")
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueWelcome(email string) error
}

// NewsletterRunner starts one pipeline run.
type NewsletterRunner interface {
	Run(ctx context.Context, trigger pipeline.Trigger, opts pipeline.Options) (newsletter.Result, error)
}

// SourceLoader reloads the discovery sources from disk.
type SourceLoader interface {
	Run() error
	Count() int
}

// WelcomeSender delivers one welcome email.
type WelcomeSender interface {
	SendSingle(ctx context.Context, doc newsletter.Document, recipient string) (string, error)
}
