package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/conductor/pkg/codec"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
)

func defaultJobFieldsConfig() DeviceConfig {
	return DeviceConfig{
		Host:            "printer",
		Port:            777,
		Timeout:         5 * time.Second,
		ErrorOutputPort: 2,
		ErrorOutOn:      true,
	}
}

// JobFieldsStep asks the printer for the fields of its current job and
// records them together with the printer address and the triggering input.
// The seed of the run must be the input number.
type JobFieldsStep struct {
	cfg     DeviceConfig
	channel ports.LineChannel
	failure errorOutput
	logger  *slog.Logger
}

// NewJobFieldsStep is the JobFieldsStep constructor.
func NewJobFieldsStep(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	cfg := defaultJobFieldsConfig()
	if err := pipeline.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if deps.Channel == nil {
		return nil, fmt.Errorf("%s requires a line channel", ClassJobFields)
	}
	return &JobFieldsStep{
		cfg:     cfg,
		channel: deps.Channel,
		failure: newErrorOutput(cfg, deps),
		logger:  deps.Logger,
	}, nil
}

func (s *JobFieldsStep) Name() string { return ClassJobFields }

func (s *JobFieldsStep) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	n, err := inputNumber(input)
	if err != nil {
		return nil, err
	}

	reply, err := s.channel.Exchange(ctx, ports.Request{
		Host:       s.cfg.Host,
		Port:       s.cfg.Port,
		Timeout:    s.cfg.Timeout,
		Payload:    []byte(codec.JobQueryCommand),
		Terminator: []byte(codec.Terminator),
	})
	if err != nil {
		return nil, err
	}
	if !strings.Contains(string(reply), codec.JobReplyMarker) {
		return nil, &domain.Error{
			Kind: domain.KindPrinter,
			Msg:  "the printer did not return the expected JDL reply",
			Host: s.cfg.Host,
			Port: s.cfg.Port,
		}
	}

	fields := codec.ParsePipeFields(string(reply))
	s.logger.Debug("Job fields retrieved", "host", s.cfg.Host, "fields", fields)

	run.JobFields = fields
	run.PrinterHost = s.cfg.Host
	run.PrinterPort = s.cfg.Port
	run.IOPort = n
	return input, nil
}

func (s *JobFieldsStep) OnFailure(ctx context.Context, run *domain.Context, err error) {
	s.failure.signal(ctx, ClassJobFields, err)
}

func (s *JobFieldsStep) DeclaredParameters() []pipeline.Param {
	return pipeline.ParamsOf(defaultJobFieldsConfig())
}
