package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Host    string        `mapstructure:"Host" desc:"Device host name"`
	Port    int           `mapstructure:"Port" desc:"Device TCP port"`
	Timeout time.Duration `mapstructure:"Timeout"`
	Keys    []string      `mapstructure:"Match String Keys"`
	Outputs []int         `mapstructure:"Output List"`
	On      bool          `mapstructure:"On"`
}

func defaultSample() sampleConfig {
	return sampleConfig{
		Host:    "printer",
		Port:    777,
		Timeout: 5 * time.Second,
		Keys:    []string{"EXPIRY", "LOT"},
		Outputs: []int{6, 8},
	}
}

type sampleStage struct {
	cfg sampleConfig
}

func (s *sampleStage) Name() string { return "SampleStep" }
func (s *sampleStage) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	return input, nil
}
func (s *sampleStage) OnFailure(ctx context.Context, run *domain.Context, err error) {}
func (s *sampleStage) DeclaredParameters() []pipeline.Param {
	return pipeline.ParamsOf(defaultSample())
}

func newSample(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	cfg := defaultSample()
	if err := pipeline.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	return &sampleStage{cfg: cfg}, nil
}

func TestDecodeParams_DefaultsAndOverrides(t *testing.T) {
	cfg := defaultSample()
	err := pipeline.DecodeParams(map[string]string{
		"Port":              "2001",
		"Timeout":           "250ms",
		"Match String Keys": "LOT",
		"Output List":       "3, 4,5",
		"On":                "True",
	}, &cfg)
	require.NoError(t, err)

	assert.Equal(t, "printer", cfg.Host, "unset parameters keep their default")
	assert.Equal(t, 2001, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"LOT"}, cfg.Keys)
	assert.Equal(t, []int{3, 4, 5}, cfg.Outputs)
	assert.True(t, cfg.On)
}

func TestDecodeParams_Rejects(t *testing.T) {
	cfg := defaultSample()
	assert.Error(t, pipeline.DecodeParams(map[string]string{"Prot": "1"}, &cfg), "unknown names are rejected")
	assert.Error(t, pipeline.DecodeParams(map[string]string{"Output List": "6,x"}, &cfg))
	assert.Error(t, pipeline.DecodeParams(map[string]string{"Port": "seven"}, &cfg))
}

func TestParamsOf(t *testing.T) {
	params := pipeline.ParamsOf(defaultSample())
	require.Len(t, params, 6)
	assert.Equal(t, pipeline.Param{Name: "Host", Type: "string", Default: "printer", Description: "Device host name"}, params[0])
	assert.Equal(t, "int", params[1].Type)
	assert.Equal(t, "duration", params[2].Type)
	assert.Equal(t, "5s", params[2].Default)
	assert.Equal(t, "EXPIRY,LOT", params[3].Default)
	assert.Equal(t, "6,8", params[4].Default)
	assert.Equal(t, "false", params[5].Default)
}

func TestFactory_Build(t *testing.T) {
	f := pipeline.NewFactory()
	f.Register("SampleStep", newSample)
	assert.Equal(t, []string{"SampleStep"}, f.Classes())

	p, err := f.Build(pipeline.Definition{
		Name: "init",
		Stages: []pipeline.StageConfig{
			{Class: "SampleStep"},
			{Class: "SampleStep", Params: map[string]string{"Port": "23"}},
		},
	}, pipeline.Deps{})
	require.NoError(t, err)
	require.Len(t, p.Stages, 2)
	assert.Equal(t, 777, p.Stages[0].(*sampleStage).cfg.Port)
	assert.Equal(t, 23, p.Stages[1].(*sampleStage).cfg.Port)

	_, err = f.Build(pipeline.Definition{Name: "bad", Stages: []pipeline.StageConfig{{Class: "Nope"}}}, pipeline.Deps{})
	assert.ErrorContains(t, err, "stage class not found: Nope")

	_, err = f.BuildAll([]pipeline.Definition{{Name: "x"}, {Name: "x"}}, pipeline.Deps{})
	assert.ErrorContains(t, err, "duplicate pipeline")
}
