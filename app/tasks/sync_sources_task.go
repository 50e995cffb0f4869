package tasks

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// SyncSourcesTask reloads the source directory so edits apply without a restart.
type SyncSourcesTask struct {
	Task
	sources SourceLoader
}

func NewSyncSourcesTask(sources SourceLoader) *SyncSourcesTask {
	return &SyncSourcesTask{
		Task:    NewTask(TaskTypeSyncSources, "sources"),
		sources: sources,
	}
}

func (t *SyncSourcesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.sources.Run(); err != nil {
		return errors.Wrap(err, "failed to reload sources")
	}

	slog.Info("Task completed",
		"type", "SyncSources",
		"sources", t.sources.Count(),
		"duration", t.GetDuration())

	return nil
}
