package steps

import (
	"context"
	"strings"

	"github.com/aretw0/conductor/pkg/codec"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
)

// MatchStringConfig configures MatchStringCommandStep.
type MatchStringConfig struct {
	Keys []string `mapstructure:"Match String Keys" desc:"Job fields sent to the scanner as a wildcard match string, in barcode order."`
}

func defaultMatchStringConfig() MatchStringConfig {
	return MatchStringConfig{Keys: []string{"EXPIRY", "LOT"}}
}

// MatchStringCommandStep builds the *field1*field2* match string from the job
// fields and stores its hex encoding under MATCH_STRING.
type MatchStringCommandStep struct {
	cfg MatchStringConfig
}

// NewMatchStringCommandStep is the MatchStringCommandStep constructor.
func NewMatchStringCommandStep(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	cfg := defaultMatchStringConfig()
	if err := pipeline.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	for i, k := range cfg.Keys {
		cfg.Keys[i] = strings.TrimSpace(k)
	}
	return &MatchStringCommandStep{cfg: cfg}, nil
}

// MatchString joins the configured fields as *a*b*. Missing fields are empty.
func (s *MatchStringCommandStep) MatchString(fields map[string]string) string {
	var b strings.Builder
	for _, k := range s.cfg.Keys {
		b.WriteByte('*')
		b.WriteString(strings.TrimSpace(fields[k]))
	}
	b.WriteByte('*')
	return b.String()
}

func (s *MatchStringCommandStep) Name() string { return ClassMatchString }

func (s *MatchStringCommandStep) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	fields, err := requireJobFields(run)
	if err != nil {
		return nil, err
	}
	encoded, err := codec.EncodeMatchCommand(s.MatchString(fields))
	if err != nil {
		return nil, err
	}
	run.MatchString = encoded
	return input, nil
}

func (s *MatchStringCommandStep) OnFailure(ctx context.Context, run *domain.Context, err error) {}

func (s *MatchStringCommandStep) DeclaredParameters() []pipeline.Param {
	return pipeline.ParamsOf(defaultMatchStringConfig())
}
