package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart   EventType = "run_start"
	EventRunEnd     EventType = "run_end"
	EventStageStart EventType = "stage_start"
	EventStageEnd   EventType = "stage_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Pipeline  string    `json:"pipeline"`
}

// RunEvent marks the start or end of a pipeline run.
type RunEvent struct {
	EventBase
	Input    int           `json:"input,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// StageEvent marks the start or end of one stage.
type StageEvent struct {
	EventBase
	Stage    string        `json:"stage"`
	Index    int           `json:"index"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for pipeline observability.
type LifecycleHooks struct {
	OnRunStart   func(context.Context, *RunEvent)
	OnRunEnd     func(context.Context, *RunEvent)
	OnStageStart func(context.Context, *StageEvent)
	OnStageEnd   func(context.Context, *StageEvent)
}

// Chain returns hooks that call h first and then next.
func (h LifecycleHooks) Chain(next LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRunStart:   chain(h.OnRunStart, next.OnRunStart),
		OnRunEnd:     chain(h.OnRunEnd, next.OnRunEnd),
		OnStageStart: chain(h.OnStageStart, next.OnStageStart),
		OnStageEnd:   chain(h.OnStageEnd, next.OnStageEnd),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
