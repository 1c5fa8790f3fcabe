package steps

import (
	"context"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
)

// SerialIdentifierConfig configures GetSerialIdentifierStep.
type SerialIdentifierConfig struct {
	Field string `mapstructure:"Serial Identifier Field" desc:"The job field holding the GTIN or serial portion of the label."`
}

func defaultSerialIdentifierConfig() SerialIdentifierConfig {
	return SerialIdentifierConfig{Field: "GTIN"}
}

// GetSerialIdentifierStep copies the job field naming the serial pool into
// SERIAL_IDENTIFIER.
type GetSerialIdentifierStep struct {
	cfg SerialIdentifierConfig
}

// NewGetSerialIdentifierStep is the GetSerialIdentifierStep constructor.
func NewGetSerialIdentifierStep(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	cfg := defaultSerialIdentifierConfig()
	if err := pipeline.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	return &GetSerialIdentifierStep{cfg: cfg}, nil
}

func (s *GetSerialIdentifierStep) Name() string { return ClassSerialIdentifier }

func (s *GetSerialIdentifierStep) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	fields, err := requireJobFields(run)
	if err != nil {
		return nil, err
	}
	id := fields[s.cfg.Field]
	if id == "" {
		return nil, domain.Errorf(domain.KindNoJobFields, "no job field with the key %s", s.cfg.Field)
	}
	run.SerialIdentifier = id
	return input, nil
}

func (s *GetSerialIdentifierStep) OnFailure(ctx context.Context, run *domain.Context, err error) {}

func (s *GetSerialIdentifierStep) DeclaredParameters() []pipeline.Param {
	return pipeline.ParamsOf(defaultSerialIdentifierConfig())
}
