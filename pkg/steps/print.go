package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/conductor/pkg/codec"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
)

// PrintLabelConfig configures PrintLabelStep. An empty Host or a zero Port
// falls back to the printer recorded in the run context.
type PrintLabelConfig struct {
	DeviceConfig   `mapstructure:",squash"`
	SerialField    string `mapstructure:"Serial Number Field" desc:"Label field that receives the serial number."`
	PrinterCommand string `mapstructure:"Printer Command" desc:"Command template; {field} and {number} are replaced and backticks become carriage returns."`
	UseDefaultPool bool   `mapstructure:"Use Default Pool" desc:"Fall back to the default pool when the serial identifier has none."`
	DefaultPool    string `mapstructure:"Default Pool" desc:"Pool used by the fallback."`
}

func defaultPrintLabelConfig() PrintLabelConfig {
	return PrintLabelConfig{
		DeviceConfig: DeviceConfig{
			Timeout:         5 * time.Second,
			ErrorOutputPort: 3,
			ErrorOutOn:      true,
		},
		SerialField:    "SERIAL_NUMBER",
		PrinterCommand: codec.DefaultPrintCommand,
		UseDefaultPool: true,
		DefaultPool:    "DEFAULT",
	}
}

// Printer address used when neither the parameters nor the context name one.
const (
	DefaultPrinterHost = "printer"
	DefaultPrinterPort = 777
)

// PrintLabelStep reserves one serial number for the SERIAL_IDENTIFIER pool,
// sends it to the printer and waits for the ACK. It returns the number.
type PrintLabelStep struct {
	cfg     PrintLabelConfig
	channel ports.LineChannel
	serials ports.SerialAllocator
	failure errorOutput
	logger  *slog.Logger
}

// NewPrintLabelStep is the PrintLabelStep constructor.
func NewPrintLabelStep(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	cfg := defaultPrintLabelConfig()
	if err := pipeline.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if deps.Channel == nil || deps.Serials == nil {
		return nil, fmt.Errorf("%s requires a line channel and a serial allocator", ClassPrintLabel)
	}
	return &PrintLabelStep{
		cfg:     cfg,
		channel: deps.Channel,
		serials: deps.Serials,
		failure: newErrorOutput(cfg.DeviceConfig, deps),
		logger:  deps.Logger,
	}, nil
}

func (s *PrintLabelStep) Name() string { return ClassPrintLabel }

func (s *PrintLabelStep) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	if _, err := requireJobFields(run); err != nil {
		return nil, domain.Errorf(domain.KindNoJobFields, "there are no job fields in the context; the session was not started or was reset")
	}
	if run.SerialIdentifier == "" {
		return nil, domain.Errorf(domain.KindNoJobFields, "no %s in the context", domain.KeySerialIdentifier)
	}

	number, err := s.serialNumber(ctx, run.SerialIdentifier)
	if err != nil {
		return nil, err
	}
	cmd, err := codec.ToASCII(codec.FormatPrintCommand(s.cfg.PrinterCommand, s.cfg.SerialField, number))
	if err != nil {
		return nil, err
	}

	host, port := s.printer(run)
	reply, err := s.channel.Exchange(ctx, ports.Request{
		Host:       host,
		Port:       port,
		Timeout:    s.cfg.Timeout,
		Payload:    cmd,
		Terminator: []byte(codec.Terminator),
	})
	if err != nil {
		return nil, err
	}
	if !strings.Contains(string(reply), codec.PrintAckMarker) {
		return nil, &domain.Error{
			Kind: domain.KindPrinter,
			Msg:  "the printer did not return the expected ACK reply",
			Host: host,
			Port: port,
		}
	}

	s.logger.Info("Label sent", "host", host, "serial_number", number, "pool", run.SerialIdentifier)
	return number, nil
}

func (s *PrintLabelStep) serialNumber(ctx context.Context, pool string) (string, error) {
	numbers, err := s.serials.Lookup(ctx, pool, 1)
	if errors.Is(err, domain.ErrPoolNotFound) && s.cfg.UseDefaultPool && pool != s.cfg.DefaultPool {
		s.logger.Warn("Serial pool not found, using default", "pool", pool, "default", s.cfg.DefaultPool)
		numbers, err = s.serials.Lookup(ctx, s.cfg.DefaultPool, 1)
	}
	if err != nil {
		return "", err
	}
	if len(numbers) == 0 {
		return "", domain.Errorf(domain.KindPoolExhausted, "serial pool %s returned no numbers", pool)
	}
	return numbers[0], nil
}

func (s *PrintLabelStep) printer(run *domain.Context) (string, int) {
	host, port := s.cfg.Host, s.cfg.Port
	if host == "" {
		host = run.PrinterHost
	}
	if port == 0 {
		port = run.PrinterPort
	}
	if host == "" {
		host = DefaultPrinterHost
	}
	if port == 0 {
		port = DefaultPrinterPort
	}
	return host, port
}

func (s *PrintLabelStep) OnFailure(ctx context.Context, run *domain.Context, err error) {
	s.failure.signal(ctx, ClassPrintLabel, err)
}

func (s *PrintLabelStep) DeclaredParameters() []pipeline.Param {
	return pipeline.ParamsOf(defaultPrintLabelConfig())
}
