package pipeline

import (
	"context"
	"log/slog"

	"github.com/aretw0/conductor/pkg/domain"
)

// LoggingHooks returns lifecycle hooks that log every run and stage.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			logger.Info("Run started", "run_id", e.RunID, "pipeline", e.Pipeline, "input", e.Input)
		},
		OnRunEnd: func(ctx context.Context, e *domain.RunEvent) {
			if e.Err != nil {
				logger.Error("Run failed",
					"run_id", e.RunID,
					"pipeline", e.Pipeline,
					"input", e.Input,
					"kind", domain.KindOf(e.Err),
					"duration", e.Duration,
					"err", e.Err,
				)
				return
			}
			logger.Info("Run finished", "run_id", e.RunID, "pipeline", e.Pipeline, "duration", e.Duration)
		},
		OnStageStart: func(ctx context.Context, e *domain.StageEvent) {
			logger.Debug("Stage started", "run_id", e.RunID, "stage", e.Stage, "index", e.Index)
		},
		OnStageEnd: func(ctx context.Context, e *domain.StageEvent) {
			logger.Debug("Stage finished", "run_id", e.RunID, "stage", e.Stage, "duration", e.Duration, "err", e.Err)
		},
	}
}
