package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/semmidev/pgsentry/internal/domain"
)

const notifyTimeout = 30 * time.Second

type Executor interface {
	Execute(ctx context.Context, target domain.BackupTarget) error
}

type Notifier interface {
	Notify(ctx context.Context, summary domain.BatchSummary) error
}

type Recorder interface {
	BackupSucceeded(database string, took time.Duration, at time.Time)
	BackupFailed(database, stage string, took time.Duration)
	BatchFinished(ok bool)
}

// Batch runs one backup per enumerated database. A failing database does
// not stop the others; all failures are returned together.
type Batch struct {
	enumerator domain.Enumerator
	backup     Executor
	notifier   Notifier
	recorder   Recorder
	logger     Logger
	now        func() time.Time
}

// NewBatch wires a batch runner. notifier and recorder may be nil.
func NewBatch(
	enumerator domain.Enumerator,
	backup Executor,
	notifier Notifier,
	recorder Recorder,
	logger Logger,
) *Batch {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Batch{
		enumerator: enumerator,
		backup:     backup,
		notifier:   notifier,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

func (uc *Batch) Execute(ctx context.Context) error {
	summary := domain.BatchSummary{
		Started: uc.now(),
		Failed:  map[string]error{},
	}

	targets, err := uc.enumerator.ListTargets(ctx)
	if err != nil {
		uc.logger.Errorf("Failed to list databases: %v", err)
		summary.Err = err
		uc.finish(ctx, summary)
		return fmt.Errorf("list databases: %w", err)
	}

	uc.logger.Infof("Backing up %d database(s)", len(targets))

	var errs error
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			uc.logger.Warnf("Batch interrupted before %s: %v", target.Name, err)
			errs = multierr.Append(errs, err)
			break
		}

		start := time.Now()
		err := uc.backup.Execute(ctx, target)
		took := time.Since(start)

		if err != nil {
			uc.logger.Errorf("[%s] Backup failed: %v", target.Name, err)
			summary.Failed[target.Name] = err
			uc.recorder.BackupFailed(target.Name, failedStage(err), took)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", target.Name, err))
			continue
		}

		summary.Succeeded = append(summary.Succeeded, target.Name)
		uc.recorder.BackupSucceeded(target.Name, took, uc.now())
	}

	uc.finish(ctx, summary)
	return errs
}

func (uc *Batch) finish(ctx context.Context, summary domain.BatchSummary) {
	summary.Duration = uc.now().Sub(summary.Started)
	uc.recorder.BatchFinished(summary.OK())

	uc.logger.Infof("Batch finished in %s: %d of %d succeeded",
		summary.Duration.Round(time.Second), len(summary.Succeeded), summary.Total())

	if uc.notifier == nil {
		return
	}

	// Notify even when the batch was interrupted by shutdown.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := uc.notifier.Notify(notifyCtx, summary); err != nil {
		uc.logger.Warnf("Failed to send notification: %v", err)
	}
}

type nopRecorder struct{}

func (nopRecorder) BackupSucceeded(string, time.Duration, time.Time) {}
func (nopRecorder) BackupFailed(string, string, time.Duration)       {}
func (nopRecorder) BatchFinished(bool)                               {}
