package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/conductor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	maps := cfg.InputMaps()
	assert.Equal(t, "init", maps[2].Pipeline)
	assert.Equal(t, "print", maps[4].Pipeline)
	assert.Equal(t, 2, maps[4].RelatedSessionInput)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
store:
  driver: sqlite
  path: /var/lib/conductor/sessions.db
dispatch:
  workers: 0
  lock_ttl: 10s
serials:
  pools:
    - name: "00012345678905"
      start: 1000
      end: 1999
      width: 4
pipelines:
  - name: blink
    stages:
      - class: SetOutputsStep
        params:
          Output List: "5"
          On: "true"
inputs:
  - input: 1
    pipeline: blink
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, config.StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, 0, cfg.Dispatch.Workers)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.LockTTL)
	assert.Equal(t, 64, cfg.Dispatch.QueueSize, "unset keys keep their defaults")
	require.Len(t, cfg.Pipelines, 1, "a configured list replaces the default one")
	assert.Equal(t, "5", cfg.Pipelines[0].Stages[0].Params["Output List"])
	require.Len(t, cfg.Serials.Pools, 1)
	assert.Equal(t, int64(1999), cfg.Serials.Pools[0].End)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen": ":9000", "board": {"driver": "memory"}}`), 0o644))

	t.Setenv("CONDUCTOR_LISTEN", ":9100")
	t.Setenv("CONDUCTOR_BOARD_DRIVER", "nats")
	t.Setenv("CONDUCTOR_BOARD_NATS_URL", "nats://broker:4222")
	t.Setenv("CONDUCTOR_DISPATCH_WORKERS", "8")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Listen)
	assert.Equal(t, config.BoardNATS, cfg.Board.Driver)
	assert.Equal(t, "nats://broker:4222", cfg.Board.NATSURL)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
}

func TestValidate_Rejects(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "postgres"
	cfg.Board.Driver = config.BoardNumato
	cfg.Inputs = append(cfg.Inputs,
		cfg.Inputs[0],
		cfg.Inputs[0],
	)
	cfg.Inputs[2].Input = 17
	cfg.Inputs[3].Input = 9
	cfg.Inputs[3].Pipeline = "missing"
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown store driver "postgres"`,
		"numato board needs a device",
		"input 17",
		`input 9 maps to unknown pipeline "missing"`,
		`unknown log format "xml"`,
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidate_DuplicateInput(t *testing.T) {
	cfg := config.Default()
	cfg.Inputs = append(cfg.Inputs, cfg.Inputs[0])
	assert.ErrorContains(t, cfg.Validate(), "input 2 is mapped twice")
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	require.NoError(t, config.Default().Write(path))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Pipelines, cfg.Pipelines)
	assert.Equal(t, 100*time.Millisecond, cfg.Board.PollInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
