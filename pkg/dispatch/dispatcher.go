package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/metrics"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/worker"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// job is one accepted dispatch waiting for a worker.
type job struct {
	runID    string
	input    int
	pipeline *pipeline.Pipeline
}

// Dispatcher resolves triggered inputs to pipelines and runs them, inline or
// on a bounded worker pool.
type Dispatcher struct {
	inputs    ports.InputMapSource
	pipelines map[string]*pipeline.Pipeline

	cache sync.Map // int -> domain.InputMap

	mu       sync.Mutex
	inflight map[int]string // input -> run ID

	tracker *Tracker
	pool    *worker.Pool[job]

	locker  ports.DistributedLocker
	lockTTL time.Duration

	hooks   domain.LifecycleHooks
	metrics *metrics.Collectors
	logger  *slog.Logger
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger configures a logger for the Dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithWorkers runs pipelines on a pool of workers fed by a queue of
// queueSize. Without it, Dispatch runs the pipeline on the calling goroutine.
// Pool metrics are registered with reg when it is not nil.
func WithWorkers(workers, queueSize int, reg prometheus.Registerer) Option {
	return func(d *Dispatcher) {
		var opts []worker.Option[job]
		if reg != nil {
			opts = append(opts, worker.WithMetrics[job](reg, "conductor_dispatch_pool"))
		}
		d.pool = worker.NewPool(workers, queueSize, d.process, opts...)
	}
}

// WithLocker serialises runs of one input across replicas.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.locker = locker
		d.lockTTL = ttl
	}
}

// WithHooks adds lifecycle hooks to every run.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(d *Dispatcher) {
		d.hooks = d.hooks.Chain(h)
	}
}

// WithMetrics records dispatch outcomes and run metrics.
func WithMetrics(c *metrics.Collectors) Option {
	return func(d *Dispatcher) {
		d.metrics = c
		d.hooks = d.hooks.Chain(c.Hooks())
	}
}

// WithHistory sets how many runs are kept for inspection.
func WithHistory(n int) Option {
	return func(d *Dispatcher) {
		d.tracker = NewTracker(n)
	}
}

// New creates a Dispatcher over the given input maps and pipelines.
func New(inputs ports.InputMapSource, pipelines map[string]*pipeline.Pipeline, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		inputs:    inputs,
		pipelines: pipelines,
		inflight:  make(map[int]string),
		tracker:   NewTracker(DefaultHistory),
		lockTTL:   30 * time.Second,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the worker pool, if any.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.pool == nil {
		return nil
	}
	return d.pool.Start(ctx)
}

// Stop drains the worker pool, waiting up to timeout.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	if d.pool == nil {
		return nil
	}
	return d.pool.Stop(timeout)
}

// Dispatch runs the pipeline mapped to input n.
//
// The returned run is QUEUED when a worker pool is configured; otherwise it
// has already finished and the pipeline error, if any, is returned with it.
// Configuration errors, a busy input or a full queue reject the dispatch
// before any run is created.
func (d *Dispatcher) Dispatch(ctx context.Context, n int) (*domain.Run, error) {
	id := uuid.NewString()
	p, err := d.resolve(ctx, n)
	if err == nil {
		err = d.reserve(n, id)
	}
	if err != nil {
		d.rejected(n, err)
		return nil, err
	}

	run := &domain.Run{
		ID:       id,
		Input:    n,
		Pipeline: p.Name,
		Status:   domain.RunQueued,
		Queued:   time.Now().UTC(),
	}
	d.tracker.Add(run)

	j := job{runID: run.ID, input: n, pipeline: p}
	if d.pool == nil {
		d.recordDispatch(n, nil)
		err := d.process(ctx, j)
		final, ok := d.tracker.Get(run.ID)
		if !ok {
			// Evicted by dispatches that ran while this one did.
			final = *run
			settle(&final, err)
		}
		return &final, err
	}

	if err := d.pool.Submit(j); err != nil {
		d.release(n)
		if errors.Is(err, worker.ErrQueueFull) {
			err = domain.Wrap(domain.KindQueueFull, err, fmt.Sprintf("input %d rejected", n))
		}
		d.tracker.Update(run.ID, func(r *domain.Run) {
			r.Status = domain.RunFailed
			r.Error = err.Error()
			r.ErrorKind = domain.KindOf(err)
			r.Ended = time.Now().UTC()
		})
		d.rejected(n, err)
		return nil, err
	}
	d.recordDispatch(n, nil)
	return run, nil
}

// InputMap resolves the binding of an input, caching it for the lifetime of
// the dispatcher.
func (d *Dispatcher) InputMap(ctx context.Context, n int) (domain.InputMap, error) {
	if err := domain.ValidateInput(n); err != nil {
		return domain.InputMap{}, err
	}
	if v, ok := d.cache.Load(n); ok {
		return v.(domain.InputMap), nil
	}
	im, err := d.inputs.InputMap(ctx, n)
	if err != nil {
		return domain.InputMap{}, err
	}
	d.cache.Store(n, im)
	return im, nil
}

// Run returns the tracked run with the given ID.
func (d *Dispatcher) Run(id string) (domain.Run, bool) {
	return d.tracker.Get(id)
}

// Runs returns the tracked runs, newest first.
func (d *Dispatcher) Runs() []domain.Run {
	return d.tracker.List()
}

// Busy reports whether input n has a run in flight.
func (d *Dispatcher) Busy(n int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[n]
	return ok
}

func (d *Dispatcher) resolve(ctx context.Context, n int) (*pipeline.Pipeline, error) {
	im, err := d.InputMap(ctx, n)
	if err != nil {
		return nil, err
	}
	p, ok := d.pipelines[im.Pipeline]
	if !ok {
		return nil, domain.Errorf(domain.KindNoInputMap, "input %d maps to unknown pipeline %q", n, im.Pipeline)
	}
	return p, nil
}

func (d *Dispatcher) reserve(n int, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if other, ok := d.inflight[n]; ok {
		return domain.Errorf(domain.KindInputBusy, "input %d already has run %s in flight", n, other)
	}
	d.inflight[n] = id
	return nil
}

func (d *Dispatcher) release(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, n)
}

// process executes one accepted run. It is the worker pool processor.
func (d *Dispatcher) process(ctx context.Context, j job) error {
	defer d.release(j.input)

	// A started run always runs to completion.
	ctx = context.WithoutCancel(ctx)

	if d.locker != nil {
		unlock, err := d.locker.Lock(ctx, "input:"+strconv.Itoa(j.input), d.lockTTL)
		if err != nil {
			err = fmt.Errorf("failed to acquire distributed lock: %w", err)
			d.finish(j.runID, err)
			return err
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				d.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"input", j.input,
					"err", err,
				)
			}
		}()
	}

	d.tracker.Update(j.runID, func(r *domain.Run) {
		r.Status = domain.RunRunning
		r.Started = time.Now().UTC()
	})

	stageTracking := domain.LifecycleHooks{
		OnStageStart: func(_ context.Context, e *domain.StageEvent) {
			d.tracker.Update(j.runID, func(r *domain.Run) { r.Stage = e.Stage })
		},
	}
	_, err := j.pipeline.Run(ctx, j.input, domain.NewContext(),
		pipeline.WithRunID(j.runID),
		pipeline.WithInput(j.input),
		pipeline.WithHooks(stageTracking.Chain(d.hooks)),
	)
	d.finish(j.runID, err)
	return err
}

func (d *Dispatcher) finish(id string, err error) {
	d.tracker.Update(id, func(r *domain.Run) { settle(r, err) })
}

// settle records the outcome of a run that has stopped executing.
func settle(r *domain.Run, err error) {
	r.Ended = time.Now().UTC()
	if err != nil {
		r.Status = domain.RunFailed
		r.Error = err.Error()
		r.ErrorKind = domain.KindOf(err)
		return
	}
	r.Status = domain.RunFinished
}

func (d *Dispatcher) rejected(n int, err error) {
	d.recordDispatch(n, err)
	if domain.IsConfiguration(err) {
		d.logger.Warn("Input not dispatched", "input", n, "err", err)
		return
	}
	d.logger.Info("Input rejected", "input", n, "kind", domain.KindOf(err), "err", err)
}

func (d *Dispatcher) recordDispatch(n int, err error) {
	if d.metrics != nil {
		d.metrics.Dispatched(strconv.Itoa(n), err)
	}
}
