package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/conductor/internal/config"
	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/adapters/bolt"
	httpAdapter "github.com/aretw0/conductor/pkg/adapters/http"
	mcpAdapter "github.com/aretw0/conductor/pkg/adapters/mcp"
	"github.com/aretw0/conductor/pkg/adapters/memory"
	natsAdapter "github.com/aretw0/conductor/pkg/adapters/nats"
	"github.com/aretw0/conductor/pkg/adapters/numato"
	redisAdapter "github.com/aretw0/conductor/pkg/adapters/redis"
	"github.com/aretw0/conductor/pkg/adapters/sqlite"
	"github.com/aretw0/conductor/pkg/adapters/telnet"
	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/metrics"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/session"
	"github.com/aretw0/conductor/pkg/steps"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

// DefaultStopTimeout bounds how long Close waits for in-flight runs.
const DefaultStopTimeout = 10 * time.Second

// Board is an I/O board: inputs are read from it and outputs driven on it.
type Board interface {
	ports.InputReader
	ports.OutputController
}

// Conductor wires the session registry, the pipelines, the dispatcher and
// the input monitor from a configuration and owns their lifecycle.
type Conductor struct {
	Config     *config.Config
	Registry   *session.Registry
	Dispatcher *dispatch.Dispatcher
	Monitor    *dispatch.Monitor
	Pipelines  map[string]*pipeline.Pipeline
	Metrics    *metrics.Collectors

	gatherer prometheus.Gatherer
	board    Board
	channel  ports.LineChannel
	store    ports.SessionStore
	redis    *backend.Client
	closers  []func() error
	logger   *slog.Logger
}

// Option overrides a component normally built from configuration.
type Option func(*Conductor)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conductor) {
		c.logger = logger
	}
}

// WithBoard uses board instead of the configured one.
func WithBoard(board Board) Option {
	return func(c *Conductor) {
		c.board = board
	}
}

// WithChannel uses ch to reach the devices instead of telnet.
func WithChannel(ch ports.LineChannel) Option {
	return func(c *Conductor) {
		c.channel = ch
	}
}

// WithStore uses store instead of the configured one.
func WithStore(store ports.SessionStore) Option {
	return func(c *Conductor) {
		c.store = store
	}
}

// New builds every component described by cfg and restores the sessions
// that were running when the process last stopped.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Conductor, error) {
	c := &Conductor{
		Config: cfg,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.build(ctx); err != nil {
		_ = c.closeResources()
		return nil, err
	}
	return c, nil
}

func (c *Conductor) build(ctx context.Context) error {
	cfg := c.Config

	if c.store == nil {
		store, closeStore, err := OpenStore(cfg)
		if err != nil {
			return err
		}
		c.store = store
		c.closers = append(c.closers, closeStore)
	}
	c.Registry = session.NewRegistry(c.store, session.WithLogger(c.logger))
	if _, err := c.Registry.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore sessions: %w", err)
	}

	if c.channel == nil {
		c.channel = telnet.New(telnet.WithLogger(c.logger))
	}
	if c.board == nil {
		board, err := c.openBoard()
		if err != nil {
			return err
		}
		c.board = board
	}
	serials, err := c.openSerials()
	if err != nil {
		return err
	}

	inputs := cfg.InputMaps()
	c.Pipelines, err = steps.NewFactory().BuildAll(cfg.Pipelines, pipeline.Deps{
		Sessions: c.Registry,
		Channel:  c.channel,
		Outputs:  c.board,
		Serials:  serials,
		Inputs:   inputs,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build pipelines: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.gatherer = reg
	c.Metrics = metrics.New(reg, func() int { return len(c.Registry.Active()) })

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(c.logger),
		dispatch.WithMetrics(c.Metrics),
		dispatch.WithHooks(pipeline.LoggingHooks(c.logger)),
		dispatch.WithHistory(cfg.Dispatch.History),
	}
	if cfg.Dispatch.Workers > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithWorkers(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, reg))
	}
	if cfg.Dispatch.DistributedLock {
		locker := redisAdapter.NewLocker(c.redisClient(), cfg.Redis.Prefix)
		dispatchOpts = append(dispatchOpts, dispatch.WithLocker(locker, cfg.Dispatch.LockTTL))
	}
	c.Dispatcher = dispatch.New(inputs, c.Pipelines, dispatchOpts...)

	c.Monitor = dispatch.NewMonitor(c.Dispatcher, c.board,
		dispatch.WithMonitorLogger(c.logger),
		dispatch.WithPollInterval(cfg.Board.PollInterval),
	)
	return nil
}

func (c *Conductor) redisClient() *backend.Client {
	if c.redis == nil {
		c.redis = backend.NewClient(&backend.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		c.closers = append(c.closers, c.redis.Close)
	}
	return c.redis
}

// OpenStore opens the session store selected by cfg. The returned function
// releases it.
func OpenStore(cfg *config.Config) (ports.SessionStore, func() error, error) {
	switch cfg.Store.Driver {
	case config.StoreRedis:
		store := redisAdapter.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisAdapter.WithPrefix(cfg.Redis.Prefix),
			redisAdapter.WithTTL(cfg.Store.TTL),
		)
		return store, store.Close, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoreBolt:
		store, err := bolt.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoreMemory, "":
		return memory.NewStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func (c *Conductor) openBoard() (Board, error) {
	cfg := c.Config.Board
	switch cfg.Driver {
	case config.BoardNumato:
		board, err := numato.Open(cfg.Device, cfg.BaudRate,
			numato.WithLogger(c.logger),
			numato.WithOutputBase(cfg.OutputBase),
		)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, board.Close)
		return board, nil
	case config.BoardNATS:
		board, err := natsAdapter.Connect(cfg.NATSURL,
			natsAdapter.WithLogger(c.logger),
			natsAdapter.WithPrefix(cfg.Subject),
		)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, board.Close)
		return board, nil
	default:
		return memory.NewBoard(), nil
	}
}

func (c *Conductor) openSerials() (ports.SerialAllocator, error) {
	cfg := c.Config.Serials
	switch cfg.Driver {
	case config.StoreRedis:
		return redisAdapter.NewSerialPools(c.redisClient(), c.Config.Redis.Prefix, cfg.Pools...), nil
	case config.StoreMemory, "":
		return memory.NewSerialPools(cfg.Pools...), nil
	}
	return nil, fmt.Errorf("unknown serials driver %q", cfg.Driver)
}

// Board returns the I/O board in use.
func (c *Conductor) Board() Board {
	return c.board
}

// Gatherer returns the registry holding the conductor metrics.
func (c *Conductor) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// Handler returns the HTTP operations API.
func (c *Conductor) Handler() http.Handler {
	return httpAdapter.NewHandler(c.Registry, c.Dispatcher,
		httpAdapter.WithLogger(c.logger),
		httpAdapter.WithMetrics(c.gatherer),
		httpAdapter.WithVersion(Version),
	)
}

// MCPServer returns the MCP tool server.
func (c *Conductor) MCPServer() *mcpAdapter.Server {
	return mcpAdapter.NewServer(c.Registry, c.Dispatcher, Version, mcpAdapter.WithLogger(c.logger))
}

// Start launches the dispatcher workers.
func (c *Conductor) Start(ctx context.Context) error {
	return c.Dispatcher.Start(ctx)
}

// Run starts the dispatcher and watches the board until ctx is done.
func (c *Conductor) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	c.logger.Info("Conductor running",
		"pipelines", len(c.Pipelines),
		"inputs", len(c.Config.Inputs),
		"active_sessions", len(c.Registry.Active()),
	)
	return c.Monitor.Run(ctx)
}

// Close drains in-flight runs and releases every opened resource.
func (c *Conductor) Close() error {
	var errs []error
	if c.Dispatcher != nil {
		if err := c.Dispatcher.Stop(DefaultStopTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Conductor) closeResources() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
