package steps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
)

// StartSessionConfig configures StartSessionStep.
type StartSessionConfig struct {
	LotKey    string `mapstructure:"Lot Field Key" desc:"Job field holding the lot. Default is LOT."`
	ExpiryKey string `mapstructure:"Expiry Field Key" desc:"Job field holding the expiry. Default is EXPIRY."`
}

func defaultStartSessionConfig() StartSessionConfig {
	return StartSessionConfig{LotKey: "LOT", ExpiryKey: "EXPIRY"}
}

// StartSessionStep registers the lot of the current job under the input that
// triggered the run (IO_PORT), carrying the run context along.
type StartSessionStep struct {
	cfg      StartSessionConfig
	sessions pipeline.SessionRegistry
	logger   *slog.Logger
}

// NewStartSessionStep is the StartSessionStep constructor.
func NewStartSessionStep(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	cfg := defaultStartSessionConfig()
	if err := pipeline.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("%s requires a session registry", ClassStartSession)
	}
	return &StartSessionStep{cfg: cfg, sessions: deps.Sessions, logger: deps.Logger}, nil
}

func (s *StartSessionStep) Name() string { return ClassStartSession }

func (s *StartSessionStep) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	fields, err := requireJobFields(run)
	if err != nil {
		return nil, err
	}
	lot, ok := fields[s.cfg.LotKey]
	if !ok {
		return nil, domain.Errorf(domain.KindNoJobFields, "no job field with the key %s", s.cfg.LotKey)
	}
	expiry, ok := fields[s.cfg.ExpiryKey]
	if !ok {
		return nil, domain.Errorf(domain.KindNoJobFields, "no job field with the key %s", s.cfg.ExpiryKey)
	}
	if run.IOPort == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "the context carries no %s", domain.KeyIOPort)
	}

	if _, err := s.sessions.StartSession(ctx, lot, expiry, run.IOPort, run); err != nil {
		return nil, err
	}
	s.logger.Info("Session started", "lot", lot, "expiry", expiry, "origin_input", run.IOPort)
	return input, nil
}

func (s *StartSessionStep) OnFailure(ctx context.Context, run *domain.Context, err error) {}

func (s *StartSessionStep) DeclaredParameters() []pipeline.Param {
	return pipeline.ParamsOf(defaultStartSessionConfig())
}

// GetSessionStep continues the session started by the related input of the
// triggering input: it merges the session context into the run and records
// the triggering input under INPUT_NUMBER. The seed must be the input number.
type GetSessionStep struct {
	sessions pipeline.SessionRegistry
	inputs   ports.InputMapSource
}

// NewGetSessionStep is the GetSessionStep constructor.
func NewGetSessionStep(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	if err := pipeline.DecodeParams(params, &struct{}{}); err != nil {
		return nil, err
	}
	if deps.Sessions == nil || deps.Inputs == nil {
		return nil, fmt.Errorf("%s requires a session registry and input maps", ClassGetSession)
	}
	return &GetSessionStep{sessions: deps.Sessions, inputs: deps.Inputs}, nil
}

func (s *GetSessionStep) Name() string { return ClassGetSession }

func (s *GetSessionStep) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	n, err := inputNumber(input)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateInput(n); err != nil {
		return nil, err
	}
	im, err := s.inputs.InputMap(ctx, n)
	if err != nil {
		return nil, err
	}
	if im.RelatedSessionInput == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "input %d has no related session input", n)
	}

	sess, err := s.sessions.GetSession(im.RelatedSessionInput)
	if err != nil {
		return nil, err
	}
	run.Merge(sess.Context)
	run.InputNumber = n
	if im.RuleData != "" {
		run.Set(RuleDataKey, im.RuleData)
	}
	return input, nil
}

func (s *GetSessionStep) OnFailure(ctx context.Context, run *domain.Context, err error) {}

func (s *GetSessionStep) DeclaredParameters() []pipeline.Param { return nil }
