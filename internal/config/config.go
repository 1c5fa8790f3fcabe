// Package config loads the conductor configuration: built-in defaults,
// overlaid by a YAML (or JSON) file, overlaid by CONDUCTOR_* environment
// variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/steps"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONDUCTOR_"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
)

// Board drivers.
const (
	BoardMemory = "memory"
	BoardNumato = "numato"
	BoardNATS   = "nats"
)

// Config is the whole conductor configuration.
type Config struct {
	LogLevel  string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" json:"log_format" env:"LOG_FORMAT"`
	// Listen is the HTTP API address.
	Listen string `yaml:"listen" json:"listen" env:"LISTEN"`

	Store    StoreConfig    `yaml:"store" json:"store" envPrefix:"STORE_"`
	Board    BoardConfig    `yaml:"board" json:"board" envPrefix:"BOARD_"`
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch" envPrefix:"DISPATCH_"`
	Redis    RedisConfig    `yaml:"redis" json:"redis" envPrefix:"REDIS_"`
	Serials  SerialsConfig  `yaml:"serials" json:"serials" envPrefix:"SERIALS_"`

	Pipelines []pipeline.Definition `yaml:"pipelines" json:"pipelines"`
	Inputs    []domain.InputMap     `yaml:"inputs" json:"inputs"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`
	// Path is the database file for the sqlite and bolt drivers.
	Path string `yaml:"path" json:"path" env:"PATH"`
	// TTL expires redis records; 0 keeps them forever.
	TTL time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
}

// BoardConfig selects the I/O board.
type BoardConfig struct {
	Driver       string        `yaml:"driver" json:"driver" env:"DRIVER"`
	Device       string        `yaml:"device" json:"device" env:"DEVICE"`
	BaudRate     int           `yaml:"baud_rate" json:"baud_rate" env:"BAUD_RATE"`
	OutputBase   int           `yaml:"output_base" json:"output_base" env:"OUTPUT_BASE"`
	NATSURL      string        `yaml:"nats_url" json:"nats_url" env:"NATS_URL"`
	Subject      string        `yaml:"subject" json:"subject" env:"SUBJECT"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" env:"POLL_INTERVAL"`
}

// DispatchConfig tunes the input dispatcher.
type DispatchConfig struct {
	// Workers is the pool size; 0 runs pipelines inline.
	Workers   int `yaml:"workers" json:"workers" env:"WORKERS"`
	QueueSize int `yaml:"queue_size" json:"queue_size" env:"QUEUE_SIZE"`
	History   int `yaml:"history" json:"history" env:"HISTORY"`
	// DistributedLock serialises runs of one input across replicas through redis.
	DistributedLock bool          `yaml:"distributed_lock" json:"distributed_lock" env:"DISTRIBUTED_LOCK"`
	LockTTL         time.Duration `yaml:"lock_ttl" json:"lock_ttl" env:"LOCK_TTL"`
}

// RedisConfig is shared by every redis-backed component.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr" env:"ADDR"`
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" json:"db" env:"DB"`
	Prefix   string `yaml:"prefix" json:"prefix" env:"PREFIX"`
}

// SerialsConfig configures the serial-number pools.
type SerialsConfig struct {
	Driver string             `yaml:"driver" json:"driver" env:"DRIVER"`
	Pools  []domain.PoolRange `yaml:"pools" json:"pools"`
}

// Default returns the configuration of a standalone line: in-memory state,
// a simulated board and the two standard pipelines, with input 2 starting
// sessions and input 4 printing labels for them.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Listen:    ":8080",
		Store:     StoreConfig{Driver: StoreMemory, Path: "conductor.db"},
		Board: BoardConfig{
			Driver:       BoardMemory,
			BaudRate:     19200,
			Subject:      "conductor.io",
			PollInterval: 100 * time.Millisecond,
		},
		Dispatch: DispatchConfig{
			Workers:   4,
			QueueSize: 64,
			History:   256,
			LockTTL:   30 * time.Second,
		},
		Redis: RedisConfig{Addr: "localhost:6379", Prefix: "conductor:"},
		Serials: SerialsConfig{
			Driver: StoreMemory,
			Pools:  []domain.PoolRange{{Name: "DEFAULT", Start: 1}},
		},
		Pipelines: []pipeline.Definition{
			{
				Name: "init",
				Stages: []pipeline.StageConfig{
					{Class: steps.ClassJobFields},
					{Class: steps.ClassSerialIdentifier},
					{Class: steps.ClassMatchString},
					{Class: steps.ClassTemplate},
					{Class: steps.ClassTelnet},
					{Class: steps.ClassStartSession},
					{Class: steps.ClassSetOutputs},
				},
			},
			{
				Name: "print",
				Stages: []pipeline.StageConfig{
					{Class: steps.ClassGetSession},
					{Class: steps.ClassPrintLabel},
				},
			},
		},
		Inputs: []domain.InputMap{
			{Input: 2, Pipeline: "init"},
			{Input: 4, Pipeline: "print", RelatedSessionInput: 2},
		},
	}
}

// Load builds the configuration from the defaults, the file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Write saves the configuration as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the drivers and the cross references between inputs and
// pipelines. Stage classes and parameters are checked when the pipelines
// are built.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreMemory, StoreRedis:
	case StoreSQLite, StoreBolt:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store %s needs a path", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Board.Driver {
	case BoardMemory, BoardNATS:
	case BoardNumato:
		if c.Board.Device == "" {
			errs = append(errs, errors.New("numato board needs a device"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown board driver %q", c.Board.Driver))
	}

	switch c.Serials.Driver {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown serials driver %q", c.Serials.Driver))
	}

	if c.Dispatch.Workers < 0 {
		errs = append(errs, errors.New("dispatch workers cannot be negative"))
	}

	if _, err := ParseLogFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}

	pipelines := make(map[string]bool, len(c.Pipelines))
	for _, p := range c.Pipelines {
		if p.Name == "" {
			errs = append(errs, errors.New("pipeline without a name"))
			continue
		}
		if pipelines[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate pipeline %q", p.Name))
		}
		pipelines[p.Name] = true
		if len(p.Stages) == 0 {
			errs = append(errs, fmt.Errorf("pipeline %q has no stages", p.Name))
		}
	}

	seen := make(map[int]bool, len(c.Inputs))
	for _, im := range c.Inputs {
		if err := domain.ValidateInput(im.Input); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[im.Input] {
			errs = append(errs, fmt.Errorf("input %d is mapped twice", im.Input))
		}
		seen[im.Input] = true
		if !pipelines[im.Pipeline] {
			errs = append(errs, fmt.Errorf("input %d maps to unknown pipeline %q", im.Input, im.Pipeline))
		}
		if im.RelatedSessionInput != 0 {
			if err := domain.ValidateInput(im.RelatedSessionInput); err != nil {
				errs = append(errs, fmt.Errorf("input %d: related session input: %w", im.Input, err))
			}
		}
	}

	pools := make(map[string]bool, len(c.Serials.Pools))
	for _, p := range c.Serials.Pools {
		if p.Name == "" {
			errs = append(errs, errors.New("serial pool without a name"))
		}
		if pools[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate serial pool %q", p.Name))
		}
		pools[p.Name] = true
		if p.End > 0 && p.End < p.Start {
			errs = append(errs, fmt.Errorf("serial pool %q ends before it starts", p.Name))
		}
	}

	return errors.Join(errs...)
}

// InputMaps indexes the input bindings by input number.
func (c *Config) InputMaps() ports.StaticInputMaps {
	out := make(ports.StaticInputMaps, len(c.Inputs))
	for _, im := range c.Inputs {
		out[im.Input] = im
	}
	return out
}

// ParseLogFormat normalises the log format name.
func ParseLogFormat(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return "text", nil
	case "json":
		return "json", nil
	}
	return "", fmt.Errorf("unknown log format %q", s)
}
