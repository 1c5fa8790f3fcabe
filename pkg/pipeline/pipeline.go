package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
)

// Pipeline is an ordered list of stages assembled at startup.
type Pipeline struct {
	Name   string
	Stages []Stage
}

// StageError reports which stage aborted a run.
type StageError struct {
	Stage string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RunOption configures a single run.
type RunOption func(*runConfig)

type runConfig struct {
	id    string
	input int
	hooks domain.LifecycleHooks
}

// WithRunID tags lifecycle events with the run identifier.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.id = id
	}
}

// WithInput records the triggering input on lifecycle events.
func WithInput(n int) RunOption {
	return func(c *runConfig) {
		c.input = n
	}
}

// WithHooks registers lifecycle callbacks for the run.
func WithHooks(h domain.LifecycleHooks) RunOption {
	return func(c *runConfig) {
		c.hooks = c.hooks.Chain(h)
	}
}

// Run executes the stages strictly in order. Each output becomes the next
// input and run is shared by every stage. The first failing stage has its
// OnFailure called before the error is returned wrapped in a *StageError.
// There is no retry.
func (p *Pipeline) Run(ctx context.Context, seed any, run *domain.Context, opts ...RunOption) (any, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if run == nil {
		run = domain.NewContext()
	}

	start := time.Now()
	base := func(t domain.EventType) domain.EventBase {
		return domain.EventBase{Timestamp: time.Now(), Type: t, RunID: cfg.id, Pipeline: p.Name}
	}
	if cfg.hooks.OnRunStart != nil {
		cfg.hooks.OnRunStart(ctx, &domain.RunEvent{EventBase: base(domain.EventRunStart), Input: cfg.input})
	}

	out, err := p.runStages(ctx, seed, run, &cfg, base)

	if cfg.hooks.OnRunEnd != nil {
		cfg.hooks.OnRunEnd(ctx, &domain.RunEvent{
			EventBase: base(domain.EventRunEnd),
			Input:     cfg.input,
			Duration:  time.Since(start),
			Err:       err,
		})
	}
	return out, err
}

func (p *Pipeline) runStages(ctx context.Context, input any, run *domain.Context, cfg *runConfig, base func(domain.EventType) domain.EventBase) (any, error) {
	for i, stage := range p.Stages {
		if cfg.hooks.OnStageStart != nil {
			cfg.hooks.OnStageStart(ctx, &domain.StageEvent{EventBase: base(domain.EventStageStart), Stage: stage.Name(), Index: i})
		}

		stageStart := time.Now()
		out, err := stage.Execute(ctx, input, run)
		if err != nil {
			stage.OnFailure(ctx, run, err)
		}

		if cfg.hooks.OnStageEnd != nil {
			cfg.hooks.OnStageEnd(ctx, &domain.StageEvent{
				EventBase: base(domain.EventStageEnd),
				Stage:     stage.Name(),
				Index:     i,
				Duration:  time.Since(stageStart),
				Err:       err,
			})
		}
		if err != nil {
			return nil, &StageError{Stage: stage.Name(), Index: i, Err: err}
		}
		input = out
	}
	return input, nil
}
