package steps

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
)

// SetOutputsConfig configures SetOutputsStep.
type SetOutputsConfig struct {
	Lines []int `mapstructure:"Output List" desc:"Comma delimited output numbers."`
	On    bool  `mapstructure:"On" desc:"Drive the outputs on (true) or off (false)."`
}

func defaultSetOutputsConfig() SetOutputsConfig {
	return SetOutputsConfig{Lines: []int{6, 8}}
}

// SetOutputsStep drives a list of outputs to one level in a single batch.
type SetOutputsStep struct {
	cfg     SetOutputsConfig
	outputs ports.OutputController
}

// NewSetOutputsStep is the SetOutputsStep constructor.
func NewSetOutputsStep(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	cfg := defaultSetOutputsConfig()
	if err := pipeline.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if deps.Outputs == nil {
		return nil, fmt.Errorf("%s requires an output controller", ClassSetOutputs)
	}
	return &SetOutputsStep{cfg: cfg, outputs: deps.Outputs}, nil
}

func (s *SetOutputsStep) Name() string { return ClassSetOutputs }

func (s *SetOutputsStep) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	if err := s.outputs.SetOutputs(ctx, slices.Clone(s.cfg.Lines), s.cfg.On); err != nil {
		return nil, fmt.Errorf("set outputs %v: %w", s.cfg.Lines, err)
	}
	return input, nil
}

func (s *SetOutputsStep) OnFailure(ctx context.Context, run *domain.Context, err error) {}

func (s *SetOutputsStep) DeclaredParameters() []pipeline.Param {
	return pipeline.ParamsOf(defaultSetOutputsConfig())
}
