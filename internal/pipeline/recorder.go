package pipeline

import (
	"context"

	"go.uber.org/zap"
)

// Stage names recorded in the run log.
const (
	StageAcquire = "acquire"
	StageRepair  = "repair"
	StageSweep   = "sweep"
)

// Run outcomes recorded in the run log.
const (
	RunOK      = "ok"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// RunRecorder logs stage invocations. Implementations must be safe for
// concurrent use.
type RunRecorder interface {
	CreateRun(ctx context.Context, stage, entity string) (string, error)
	CompleteRun(ctx context.Context, id, status, summary string) error
}

// startRun opens a run log entry and returns the function that closes it.
// Recording failures are logged and never affect the stage.
func startRun(ctx context.Context, rec RunRecorder, stage, entity string) func(status, summary string) {
	if rec == nil {
		return func(string, string) {}
	}
	log := zap.L().With(zap.String("stage", stage), zap.String("ticker", entity))
	id, err := rec.CreateRun(ctx, stage, entity)
	if err != nil {
		log.Warn("pipeline: failed to record run start", zap.Error(err))
		return func(string, string) {}
	}
	return func(status, summary string) {
		// The stage context may already be cancelled; the record still lands.
		if err := rec.CompleteRun(context.WithoutCancel(ctx), id, status, summary); err != nil {
			log.Warn("pipeline: failed to record run completion", zap.String("run_id", id), zap.Error(err))
		}
	}
}
