package steps

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/conductor/pkg/codec"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
)

// DefaultScannerTemplate restricts the scanner to matches and loads the match
// string of the run.
var DefaultScannerTemplate = codec.ScannerMatchOnlyCommand + codec.ScannerMatchStringCommand("{{.MatchString}}")

// TemplateConfig configures TemplateStep.
type TemplateConfig struct {
	Template string `mapstructure:"Template" desc:"text/template rendered against the run context."`
}

func defaultTemplateConfig() TemplateConfig {
	return TemplateConfig{Template: DefaultScannerTemplate}
}

// TemplateStep renders a command from the run context and returns it as
// ASCII bytes, ready for a TelnetStep.
type TemplateStep struct {
	cfg  TemplateConfig
	tmpl *template.Template
}

// NewTemplateStep is the TemplateStep constructor.
func NewTemplateStep(params map[string]string, deps pipeline.Deps) (pipeline.Stage, error) {
	cfg := defaultTemplateConfig()
	if err := pipeline.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	tmpl, err := template.New(ClassTemplate).Option("missingkey=error").Parse(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	return &TemplateStep{cfg: cfg, tmpl: tmpl}, nil
}

func (s *TemplateStep) Name() string { return ClassTemplate }

func (s *TemplateStep) Execute(ctx context.Context, input any, run *domain.Context) (any, error) {
	var b strings.Builder
	if err := s.tmpl.Execute(&b, run); err != nil {
		return nil, domain.Wrap(domain.KindEncoding, err, "render template")
	}
	return codec.ToASCII(b.String())
}

func (s *TemplateStep) OnFailure(ctx context.Context, run *domain.Context, err error) {}

func (s *TemplateStep) DeclaredParameters() []pipeline.Param {
	return pipeline.ParamsOf(defaultTemplateConfig())
}
