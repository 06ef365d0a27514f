package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/bandit-router/router"
	"github.com/inference-sim/bandit-router/router/workload"
)

func smallSimulation(algo string) simOptions {
	cfg := router.DefaultConfig()
	cfg.Policy.Algorithm = algo
	env := workload.DefaultConfig()
	env.Arms = 3
	env.Keys = 50
	env.Dim = cfg.Features.Dim
	return simOptions{Router: cfg, Env: env, Requests: 200, Concurrency: 4, TraceK: 2}
}

func TestRunSimulation_AllAlgorithms(t *testing.T) {
	for _, name := range router.ValidAlgorithmNames() {
		t.Run(name, func(t *testing.T) {
			// GIVEN a small synthetic workload
			opts := smallSimulation(name)

			// WHEN the simulation runs to completion
			res, err := runSimulation(context.Background(), opts)
			require.NoError(t, err)

			// THEN every decision is made, rewarded, and accounted for
			assert.Equal(t, name, res.Algorithm)
			assert.Equal(t, int64(200), res.Decisions)
			assert.Equal(t, int64(200), res.RewardsIngested)
			assert.Zero(t, res.RewardsExpired)
			assert.GreaterOrEqual(t, res.TrueRegret, 0.0)
			assert.Equal(t, 200, res.Trace.TotalDecisions)
			assert.Equal(t, 200, res.Trace.RewardCount)

			var pulls, observations int64
			for _, a := range res.Arms {
				pulls += a.Pulls
				observations += a.Observations
			}
			assert.Equal(t, int64(200), pulls)
			assert.Equal(t, int64(200), observations)
		})
	}
}

func TestRunSimulation_FaultsAndFlaps(t *testing.T) {
	// GIVEN a feature store that often fails and arms that flap
	opts := smallSimulation("linucb")
	opts.Env.FaultRate = 0.3
	opts.Env.FlapRate = 0.2
	opts.Router.Features.FetchTimeout = 2 * time.Millisecond

	res, err := runSimulation(context.Background(), opts)
	require.NoError(t, err)

	// THEN routing continues on the neutral context with at least one healthy arm
	assert.Equal(t, int64(200), res.Decisions)
	assert.Zero(t, res.NoCandidates)
	assert.Positive(t, res.Trace.DegradedCount)
	assert.Positive(t, res.HealthFlaps)
}

func TestRunSimulation_InvalidOptions(t *testing.T) {
	opts := smallSimulation("ucb1")
	opts.Concurrency = 0
	_, err := runSimulation(context.Background(), opts)
	assert.Error(t, err)
}

func TestGatherMetrics_SumsRouterFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bandit_router_test_total"}, []string{"arm"})
	other := prometheus.NewGauge(prometheus.GaugeOpts{Name: "unrelated"})
	reg.MustRegister(c, other)
	c.WithLabelValues("a").Add(2)
	c.WithLabelValues("b").Add(3)
	other.Set(9)

	got := gatherMetrics(reg)

	assert.Equal(t, map[string]float64{"bandit_router_test_total": 5}, got)
}

func TestWriteResult_SortsArms(t *testing.T) {
	res := &simResult{Algorithm: "ucb1", Arms: []armResult{{ArmID: "b"}, {ArmID: "a"}}}
	var buf bytes.Buffer

	require.NoError(t, writeResult(&buf, res))

	var decoded simResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "a", decoded.Arms[0].ArmID)
	assert.Contains(t, buf.String(), `"mean_true_regret"`)
}
