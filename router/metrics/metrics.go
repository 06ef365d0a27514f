// Package metrics exposes Prometheus collectors for the bandit router.
// Collectors are package-level and safe to record into before Register is
// called; Register only makes them visible to a registry.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "bandit_router"

	ArmLabel         = "arm"
	ExplorationLabel = "exploration"
	CodeLabel        = "code"
	HealthLabel      = "health"
)

var (
	decisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Count of routing decisions by selected arm and exploration flag.",
		},
		[]string{ArmLabel, ExplorationLabel},
	)
	decisionErrCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_errors_total",
			Help:      "Count of failed routing decisions by error code.",
		},
		[]string{CodeLabel},
	)
	contextDegradedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_degraded_total",
			Help:      "Count of decisions made with the neutral fallback context.",
		},
	)
	decisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Latency of Decide, including the context fetch.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
	rewardCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_total",
			Help:      "Count of rewards folded into policy state by arm.",
		},
		[]string{ArmLabel},
	)
	rewardErrCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_errors_total",
			Help:      "Count of rejected rewards by error code.",
		},
		[]string{CodeLabel},
	)
	armPulls = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arm_pulls",
			Help:      "Number of times each arm has been selected.",
		},
		[]string{ArmLabel},
	)
	numericResetCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "numeric_resets_total",
			Help:      "Count of arm states reset to the prior after degenerating.",
		},
		[]string{ArmLabel},
	)
	armHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arms",
			Help:      "Number of registered arms by health state.",
		},
		[]string{HealthLabel},
	)
	pendingRewards = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_rewards",
			Help:      "Reward events accepted but not yet applied.",
		},
	)
)

var registerMetrics sync.Once

// Register all metrics with reg. Only the first call has an effect.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(decisionCounter)
		reg.MustRegister(decisionErrCounter)
		reg.MustRegister(contextDegradedCounter)
		reg.MustRegister(decisionDuration)
		reg.MustRegister(rewardCounter)
		reg.MustRegister(rewardErrCounter)
		reg.MustRegister(armPulls)
		reg.MustRegister(numericResetCounter)
		reg.MustRegister(armHealth)
		reg.MustRegister(pendingRewards)
	})
}

// RecordDecision records a successful decision for armID.
func RecordDecision(armID string, exploration bool, elapsed time.Duration) {
	decisionCounter.WithLabelValues(armID, strconv.FormatBool(exploration)).Inc()
	decisionDuration.Observe(elapsed.Seconds())
}

// RecordDecisionError records a failed decision.
func RecordDecisionError(code string) {
	decisionErrCounter.WithLabelValues(code).Inc()
}

// RecordContextDegraded records a decision that fell back to the neutral context.
func RecordContextDegraded() {
	contextDegradedCounter.Inc()
}

// RecordReward records a reward applied to armID.
func RecordReward(armID string) {
	rewardCounter.WithLabelValues(armID).Inc()
}

// RecordRewardError records a rejected reward.
func RecordRewardError(code string) {
	rewardErrCounter.WithLabelValues(code).Inc()
}

// RecordArmPulls sets the pull count for armID.
func RecordArmPulls(armID string, pulls int64) {
	armPulls.WithLabelValues(armID).Set(float64(pulls))
}

// RecordNumericReset records an arm state reset.
func RecordNumericReset(armID string) {
	numericResetCounter.WithLabelValues(armID).Inc()
}

// RecordArmHealth sets the number of arms in the given health state.
func RecordArmHealth(health string, count int) {
	armHealth.WithLabelValues(health).Set(float64(count))
}

// AddPendingRewards adjusts the pending reward gauge by delta.
func AddPendingRewards(delta int) {
	pendingRewards.Add(float64(delta))
}

// DecisionCount returns the decision counter for armID, for tests and the CLI.
func DecisionCount(armID string, exploration bool) prometheus.Counter {
	return decisionCounter.WithLabelValues(armID, strconv.FormatBool(exploration))
}

// ContextDegradedCount returns the degraded-context counter.
func ContextDegradedCount() prometheus.Counter {
	return contextDegradedCounter
}

// DecisionErrorCount returns the decision error counter for code.
func DecisionErrorCount(code string) prometheus.Counter {
	return decisionErrCounter.WithLabelValues(code)
}

// RewardErrorCount returns the reward error counter for code.
func RewardErrorCount(code string) prometheus.Counter {
	return rewardErrCounter.WithLabelValues(code)
}

// ArmHealthGauge returns the arms gauge for health.
func ArmHealthGauge(health string) prometheus.Gauge {
	return armHealth.WithLabelValues(health)
}

// PendingRewards returns the pending reward gauge.
func PendingRewards() prometheus.Gauge {
	return pendingRewards
}
