package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// SessionRegistry is the part of the session registry stages use.
type SessionRegistry interface {
	StartSession(ctx context.Context, lot, expiry string, origin int, run *domain.Context) (*domain.Session, error)
	GetSession(origin int) (*domain.Session, error)
}

// Deps carries the collaborators handed to stage constructors. Any of them may
// be nil when the configured stages do not need it.
type Deps struct {
	Sessions SessionRegistry
	Channel  ports.LineChannel
	Outputs  ports.OutputController
	Serials  ports.SerialAllocator
	Inputs   ports.InputMapSource
	Logger   *slog.Logger
}

// Constructor builds a stage from its configured parameters.
type Constructor func(params map[string]string, deps Deps) (Stage, error)

// StageConfig is one configured stage of a pipeline definition.
type StageConfig struct {
	Class  string            `yaml:"class" json:"class" mapstructure:"class"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty" mapstructure:"params"`
}

// Definition is a named pipeline as written in configuration.
type Definition struct {
	Name   string        `yaml:"name" json:"name" mapstructure:"name"`
	Stages []StageConfig `yaml:"stages" json:"stages" mapstructure:"stages"`
}

// Factory maps stage class names to constructors.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		constructors: make(map[string]Constructor),
	}
}

// Register adds a stage class.
// If a class with the same name exists, it is overwritten.
func (f *Factory) Register(class string, fn Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[class] = fn
}

// Classes returns the registered class names, sorted.
func (f *Factory) Classes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// New builds one stage.
func (f *Factory) New(class string, params map[string]string, deps Deps) (Stage, error) {
	f.mu.RLock()
	fn, ok := f.constructors[class]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("stage class not found: %s", class)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return fn(params, deps)
}

// Build assembles a pipeline from its definition.
func (f *Factory) Build(def Definition, deps Deps) (*Pipeline, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("pipeline name is required")
	}
	p := &Pipeline{Name: def.Name, Stages: make([]Stage, 0, len(def.Stages))}
	for i, sc := range def.Stages {
		stage, err := f.New(sc.Class, sc.Params, deps)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s stage %d: %w", def.Name, i, err)
		}
		p.Stages = append(p.Stages, stage)
	}
	return p, nil
}

// BuildAll assembles every definition, keyed by name.
func (f *Factory) BuildAll(defs []Definition, deps Deps) (map[string]*Pipeline, error) {
	out := make(map[string]*Pipeline, len(defs))
	for _, def := range defs {
		if _, dup := out[def.Name]; dup {
			return nil, fmt.Errorf("duplicate pipeline %s", def.Name)
		}
		p, err := f.Build(def, deps)
		if err != nil {
			return nil, err
		}
		out[def.Name] = p
	}
	return out, nil
}
