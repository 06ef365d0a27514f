package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/bandit-router/router"
	_ "github.com/inference-sim/bandit-router/router/bandit"
	"github.com/inference-sim/bandit-router/router/metrics"
	"github.com/inference-sim/bandit-router/router/trace"
	"github.com/inference-sim/bandit-router/router/workload"
)

var (
	algorithm      string        // Bandit family override
	numRequests    int           // Number of decisions to make
	concurrency    int           // Parallel decision workers
	seed           int64         // Seed for the policy and the synthetic environment
	numArms        int           // Synthetic arms when the config lists none
	numKeys        int           // Size of the request key space
	faultRate      float64       // Probability a context lookup fails
	flapRate       float64       // Probability each request toggles an arm's health
	rewardDelay    time.Duration // Delay between a decision and its reward
	rewardNoise    float64       // Reward noise stddev
	counterfactual int           // Counterfactual candidates per traced decision
)

// simOptions is everything runSimulation needs; the command fills it from flags.
type simOptions struct {
	Router      router.Config
	Env         workload.Config
	Requests    int
	Concurrency int
	RewardDelay time.Duration
	TraceK      int
}

// simResult is printed as JSON at the end of a simulation.
type simResult struct {
	Algorithm       string              `json:"algorithm"`
	Decisions       int64               `json:"decisions"`
	RewardsIngested int64               `json:"rewards_ingested"`
	RewardsExpired  int64               `json:"rewards_expired"`
	NoCandidates    int64               `json:"no_candidates"`
	HealthFlaps     int64               `json:"health_flaps"`
	TrueRegret      float64             `json:"true_regret"`
	MeanTrueRegret  float64             `json:"mean_true_regret"`
	Trace           *trace.TraceSummary `json:"trace"`
	Arms            []armResult         `json:"arms"`
	Metrics         map[string]float64  `json:"metrics,omitempty"`
}

type armResult struct {
	ArmID        string  `json:"arm_id"`
	Pulls        int64   `json:"pulls"`
	Observations int64   `json:"observations"`
	MeanReward   float64 `json:"mean_reward"`
	Resets       int64   `json:"resets,omitempty"`
}

type pendingReward struct {
	decisionID string
	reward     float64
	due        time.Time
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive the router with a synthetic workload and report regret",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if cmd.Flags().Changed("algorithm") {
			cfg.Policy.Algorithm = algorithm
		}
		if cmd.Flags().Changed("seed") {
			cfg.Policy.Seed = seed
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid config: %v", err)
		}

		env := workload.Config{
			Arms:        numArms,
			Dim:         cfg.Features.Dim,
			Keys:        numKeys,
			Seed:        cfg.Policy.Seed,
			NoiseStdDev: rewardNoise,
			FaultRate:   faultRate,
			FlapRate:    flapRate,
		}
		for _, a := range cfg.Arms {
			env.ArmIDs = append(env.ArmIDs, a.ID)
		}

		metrics.Register(prometheus.DefaultRegisterer)
		res, err := runSimulation(cmd.Context(), simOptions{
			Router:      *cfg,
			Env:         env,
			Requests:    numRequests,
			Concurrency: concurrency,
			RewardDelay: rewardDelay,
			TraceK:      counterfactual,
		})
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		res.Metrics = gatherMetrics(prometheus.DefaultGatherer)
		if err := writeResult(cmd.OutOrStdout(), res); err != nil {
			logrus.Fatalf("Writing result: %v", err)
		}
	},
}

// runSimulation makes opts.Requests decisions with opts.Concurrency workers,
// feeding each decision's reward back after opts.RewardDelay.
func runSimulation(ctx context.Context, opts simOptions) (*simResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Requests < 0 || opts.Concurrency < 1 {
		return nil, fmt.Errorf("requests must be >= 0 and concurrency >= 1, got %d and %d", opts.Requests, opts.Concurrency)
	}

	env := workload.NewEnvironment(opts.Env)
	arms := opts.Router.Arms
	if len(arms) == 0 {
		arms = env.Arms()
	}
	reg, err := router.NewRegistry(arms...)
	if err != nil {
		return nil, err
	}
	dt := trace.NewDecisionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions, CounterfactualK: opts.TraceK})
	r, err := router.New(opts.Router, reg, env.FeatureStore(), router.WithTrace(dt))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	res := &simResult{Algorithm: opts.Router.Policy.Algorithm}
	var (
		decisions, ingested, expired, noCandidates, flaps atomic.Int64
		regretMu                                          sync.Mutex
	)

	rewards := make(chan pendingReward, opts.Concurrency*64)
	g, gctx := errgroup.WithContext(ctx)
	var producers sync.WaitGroup
	var next atomic.Int64

	for w := 0; w < opts.Concurrency; w++ {
		producers.Add(1)
		g.Go(func() error {
			defer producers.Done()
			for next.Add(1) <= int64(opts.Requests) {
				if env.Flap(reg) != "" {
					flaps.Add(1)
				}
				key := env.NextKey()
				d, err := r.Decide(gctx, key)
				if errors.Is(err, router.ErrNoCandidates) {
					noCandidates.Add(1)
					continue
				}
				if err != nil {
					return err
				}
				decisions.Add(1)

				candidates := make([]router.Arm, len(d.Scores))
				for i, s := range d.Scores {
					candidates[i] = router.Arm{ID: s.ArmID}
				}
				_, best := env.BestArm(key, candidates)
				regretMu.Lock()
				res.TrueRegret += best - env.ExpectedReward(d.ArmID, key)
				regretMu.Unlock()

				pr := pendingReward{decisionID: d.ID, reward: env.Reward(d.ArmID, key), due: time.Now().Add(opts.RewardDelay)}
				select {
				case rewards <- pr:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		producers.Wait()
		close(rewards)
		return nil
	})
	g.Go(func() error {
		for pr := range rewards {
			if wait := time.Until(pr.due); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-t.C:
				case <-gctx.Done():
					t.Stop()
					return gctx.Err()
				}
			}
			err := r.IngestReward(gctx, pr.decisionID, pr.reward)
			switch {
			case err == nil:
				ingested.Add(1)
			case errors.Is(err, router.ErrUnknownDecision):
				expired.Add(1)
			default:
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := r.Flush(ctx); err != nil {
		return nil, err
	}

	res.Decisions = decisions.Load()
	res.RewardsIngested = ingested.Load()
	res.RewardsExpired = expired.Load()
	res.NoCandidates = noCandidates.Load()
	res.HealthFlaps = flaps.Load()
	if res.Decisions > 0 {
		res.MeanTrueRegret = res.TrueRegret / float64(res.Decisions)
	}
	res.Trace = trace.Summarize(dt)
	for _, a := range reg.List() {
		st := r.Engine().Snapshot(a.ID)
		res.Arms = append(res.Arms, armResult{
			ArmID:        st.ArmID,
			Pulls:        st.Pulls,
			Observations: st.Observations,
			MeanReward:   st.MeanReward,
			Resets:       st.Resets,
		})
	}
	logrus.Infof("simulate: %d decisions, %d rewards, mean true regret %.4f",
		res.Decisions, res.RewardsIngested, res.MeanTrueRegret)
	return res, nil
}

// gatherMetrics flattens the router's counters and gauges into name -> sum over labels.
func gatherMetrics(g prometheus.Gatherer) map[string]float64 {
	families, err := g.Gather()
	if err != nil {
		logrus.Warnf("simulate: gathering metrics: %v", err)
		return nil
	}
	out := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, "bandit_router_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[name] += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[name] += m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[name+"_count"] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func writeResult(w io.Writer, res *simResult) error {
	sort.Slice(res.Arms, func(i, j int) bool { return res.Arms[i].ArmID < res.Arms[j].ArmID })
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func init() {
	simulateCmd.Flags().StringVar(&algorithm, "algorithm", "linucb", "Bandit family (ucb1, linucb, thompson, lints)")
	simulateCmd.Flags().IntVar(&numRequests, "requests", 10000, "Number of routing decisions")
	simulateCmd.Flags().IntVar(&concurrency, "concurrency", 8, "Parallel decision workers")
	simulateCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the policy and the synthetic environment")
	simulateCmd.Flags().IntVar(&numArms, "arms", 5, "Synthetic arms (ignored when the config lists arms)")
	simulateCmd.Flags().IntVar(&numKeys, "keys", 1000, "Size of the request key space")
	simulateCmd.Flags().Float64Var(&faultRate, "fault-rate", 0, "Probability a context lookup fails or stalls")
	simulateCmd.Flags().Float64Var(&flapRate, "flap-rate", 0, "Probability each request toggles an arm between healthy and degraded")
	simulateCmd.Flags().DurationVar(&rewardDelay, "reward-delay", 0, "Delay between a decision and its reward")
	simulateCmd.Flags().Float64Var(&rewardNoise, "reward-noise", 0.1, "Stddev of the reward noise")
	simulateCmd.Flags().IntVar(&counterfactual, "counterfactual-k", 3, "Counterfactual candidates recorded per decision")

	rootCmd.AddCommand(simulateCmd)
}
