package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func TestCollectors_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg, func() int { return 2 })
	hooks := c.Hooks()
	ctx := context.Background()

	base := domain.EventBase{Pipeline: "print"}
	hooks.OnStageEnd(ctx, &domain.StageEvent{EventBase: base, Stage: "PrintLabelStep", Duration: 10 * time.Millisecond})
	hooks.OnRunEnd(ctx, &domain.RunEvent{EventBase: base, Duration: 20 * time.Millisecond})
	hooks.OnRunEnd(ctx, &domain.RunEvent{EventBase: base, Err: errors.New("boom")})

	c.Dispatched("4", nil)
	c.Dispatched("9", domain.Errorf(domain.KindNoInputMap, "no map"))

	families := gather(t, reg)

	runs := families["conductor_pipeline_runs_total"]
	require.NotNil(t, runs)
	assert.Len(t, runs.GetMetric(), 2)

	active := families["conductor_active_sessions"]
	require.NotNil(t, active)
	assert.Equal(t, float64(2), active.GetMetric()[0].GetGauge().GetValue())

	dispatches := families["conductor_dispatches_total"]
	require.NotNil(t, dispatches)
	results := map[string]float64{}
	for _, m := range dispatches.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "result" {
				results[l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"accepted": 1, "no_input_map": 1}, results)

	assert.NotNil(t, families["conductor_stage_duration_seconds"])
}
