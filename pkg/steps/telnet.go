package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
)

// DeviceConfig holds the parameters shared by stages that talk to a device.
type DeviceConfig struct {
	Host            string        `mapstructure:"Host" desc:"The IP address or host name of the device."`
	Port            int           `mapstructure:"Port" desc:"The TCP port of the device."`
	Timeout         time.Duration `mapstructure:"Timeout" desc:"Bounds the whole exchange."`
	ErrorOutputPort int           `mapstructure:"Error Output Port" desc:"Output raised when the device fails. 0 disables it."`
	ErrorOutOn      bool          `mapstructure:"Error Out On" desc:"Level the error output is driven to."`
}

// TelnetConfig configures TelnetStep.
type TelnetConfig struct {
	DeviceConfig `mapstructure:",squash"`
	ReadUntil    string `mapstructure:"Read Until" desc:"When set, read the reply up to this text and pass it on."`
}

func defaultTelnetConfig() TelnetConfig {
	return TelnetConfig{
		DeviceConfig: DeviceConfig{
			Host:       "scanner.local",
			Port:       23,
			Timeout:    5 * time.Second,
			ErrorOutOn: true,
		},
	}
}

// TelnetStep writes its input to a device. With Read Until set it returns
// the reply, otherwise it passes the input on.
type TelnetStep struct {
	cfg     TelnetConfig
	channel ports.LineChannel
	failure errorOutput
}

// NewTelnetStep is the TelnetStep constructor.
func NewTelnetStep(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	cfg := defaultTelnetConfig()
	if err := pipeline.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if deps.Channel == nil {
		return nil, fmt.Errorf("%s requires a line channel", ClassTelnet)
	}
	return &TelnetStep{
		cfg:     cfg,
		channel: deps.Channel,
		failure: newErrorOutput(cfg.DeviceConfig, deps),
	}, nil
}

func newErrorOutput(cfg DeviceConfig, deps pipeline.Deps) errorOutput {
	return errorOutput{
		outputs: deps.Outputs,
		line:    cfg.ErrorOutputPort,
		on:      cfg.ErrorOutOn,
		logger:  deps.Logger,
	}
}

func (s *TelnetStep) Name() string { return ClassTelnet }

func (s *TelnetStep) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	payload, err := payloadBytes(input)
	if err != nil {
		return nil, err
	}
	reply, err := s.channel.Exchange(ctx, ports.Request{
		Host:       s.cfg.Host,
		Port:       s.cfg.Port,
		Timeout:    s.cfg.Timeout,
		Payload:    payload,
		Terminator: []byte(s.cfg.ReadUntil),
	})
	if err != nil {
		return nil, err
	}
	if s.cfg.ReadUntil != "" {
		return string(reply), nil
	}
	return input, nil
}

func (s *TelnetStep) OnFailure(ctx context.Context, run *domain.Context, err error) {
	s.failure.signal(ctx, ClassTelnet, err)
}

func (s *TelnetStep) DeclaredParameters() []pipeline.Param {
	return pipeline.ParamsOf(defaultTelnetConfig())
}
