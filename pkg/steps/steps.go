package steps

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
)

// Stage class names as used in pipeline definitions.
const (
	ClassTelnet           = "TelnetStep"
	ClassJobFields        = "JobFieldsStep"
	ClassSerialIdentifier = "GetSerialIdentifierStep"
	ClassMatchString      = "MatchStringCommandStep"
	ClassTemplate         = "TemplateStep"
	ClassStartSession     = "StartSessionStep"
	ClassGetSession       = "GetSessionStep"
	ClassPrintLabel       = "PrintLabelStep"
	ClassSetOutputs       = "SetOutputsStep"
)

// RuleDataKey is the Extra key holding the input map rule data of the run.
const RuleDataKey = "rule_data"

// Register adds every stage class to f.
func Register(f *pipeline.Factory) {
	f.Register(ClassTelnet, NewTelnetStep)
	f.Register(ClassJobFields, NewJobFieldsStep)
	f.Register(ClassSerialIdentifier, NewGetSerialIdentifierStep)
	f.Register(ClassMatchString, NewMatchStringCommandStep)
	f.Register(ClassTemplate, NewTemplateStep)
	f.Register(ClassStartSession, NewStartSessionStep)
	f.Register(ClassGetSession, NewGetSessionStep)
	f.Register(ClassPrintLabel, NewPrintLabelStep)
	f.Register(ClassSetOutputs, NewSetOutputsStep)
}

// NewFactory returns a factory with every stage class registered.
func NewFactory() *pipeline.Factory {
	f := pipeline.NewFactory()
	Register(f)
	return f
}

// errorOutput raises a designated output line when a device stage fails.
type errorOutput struct {
	outputs ports.OutputController
	line    int
	on      bool
	logger  *slog.Logger
}

func (e errorOutput) signal(ctx context.Context, stage string, cause error) {
	if e.outputs == nil || e.line <= 0 {
		return
	}
	// The run may already be cancelled; the lamp must still be set.
	ctx = context.WithoutCancel(ctx)
	if err := e.outputs.SetOutput(ctx, e.line, e.on); err != nil {
		e.logger.Error("Failed to set error output", "stage", stage, "line", e.line, "err", err)
		return
	}
	e.logger.Warn("Error output set",
		"stage", stage,
		"line", e.line,
		"on", e.on,
		"blink", domain.BlinkCode(cause),
		"cause", cause,
	)
}

// inputNumber reads the triggering input from a pipeline seed.
func inputNumber(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil {
			return i, nil
		}
	}
	return 0, domain.Errorf(domain.KindInvalidInput, "expected an input number, got %v", v)
}

// payloadBytes converts a stage input into bytes to write to a device.
func payloadBytes(v any) ([]byte, error) {
	switch p := v.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	}
	return nil, domain.Errorf(domain.KindEncoding, "expected text to send, got %T", v)
}

func requireJobFields(run *domain.Context) (map[string]string, error) {
	if len(run.JobFields) == 0 {
		return nil, domain.Errorf(domain.KindNoJobFields, "there are no job fields in the context; check the printer connection and the job field parameters")
	}
	return run.JobFields, nil
}
