package database

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

var runColumns = []string{
	"id", "trigger_name", "state", "stage", "error", "broadcast",
	"recipient", "item_count", "message_id", "started_at", "finished_at",
}

// RunRepository handles database operations for pipeline runs
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) CreateRun(ctx context.Context, run newsletter.Run) error {
	_, err := sq.Insert("runs").
		Columns(runColumns...).
		Values(
			run.ID, run.Trigger, run.State, string(run.Stage), run.Error, run.Broadcast,
			run.Recipient, run.ItemCount, run.MessageID, formatTime(run.StartedAt), nullableTime(run.FinishedAt),
		).
		RunWith(r.db.DB).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to create run %s", run.ID)
	}
	return nil
}

func (r *RunRepository) UpdateRunState(ctx context.Context, id, state string) error {
	_, err := sq.Update("runs").
		Set("state", state).
		Where(sq.Eq{"id": id}).
		RunWith(r.db.DB).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to update run %s", id)
	}
	return nil
}

// FinishRun stores the terminal state of a run.
func (r *RunRepository) FinishRun(ctx context.Context, run newsletter.Run) error {
	res, err := sq.Update("runs").
		SetMap(map[string]any{
			"state":       run.State,
			"stage":       string(run.Stage),
			"error":       run.Error,
			"broadcast":   run.Broadcast,
			"recipient":   run.Recipient,
			"item_count":  run.ItemCount,
			"message_id":  run.MessageID,
			"finished_at": nullableTime(run.FinishedAt),
		}).
		Where(sq.Eq{"id": run.ID}).
		RunWith(r.db.DB).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to finish run %s", run.ID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get affected rows")
	}
	if n == 0 {
		return errors.Newf("run %s not found", run.ID)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*newsletter.Run, error) {
	query, args, err := sq.Select(runColumns...).
		From("runs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build run query")
	}

	run, err := scanRun(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get run %s", id)
	}
	return run, nil
}

// RecentRuns returns the latest runs, newest first.
func (r *RunRepository) RecentRuns(ctx context.Context, limit int) ([]newsletter.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query, args, err := sq.Select(runColumns...).
		From("runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build runs query")
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	var runs []newsletter.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate runs")
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*newsletter.Run, error) {
	var (
		run        newsletter.Run
		stage      string
		startedAt  string
		finishedAt sql.NullString
	)

	err := row.Scan(
		&run.ID, &run.Trigger, &run.State, &stage, &run.Error, &run.Broadcast,
		&run.Recipient, &run.ItemCount, &run.MessageID, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Stage = newsletter.Stage(stage)
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, errors.Wrapf(err, "invalid started_at for run %s", run.ID)
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid finished_at for run %s", run.ID)
		}
		run.FinishedAt = &t
	}

	return &run, nil
}
