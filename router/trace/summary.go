package trace

// TraceSummary aggregates statistics from a DecisionTrace.
type TraceSummary struct {
	TotalDecisions     int            `json:"total_decisions"`
	ExplorationCount   int            `json:"exploration_count"`
	ExplorationRate    float64        `json:"exploration_rate"`
	DegradedCount      int            `json:"context_degraded_count"`
	RewardCount        int            `json:"reward_count"`
	MeanReward         float64        `json:"mean_reward"`
	MeanRegret         float64        `json:"mean_estimate_regret"`
	MaxRegret          float64        `json:"max_estimate_regret"`
	UniqueTargets      int            `json:"unique_targets"`
	TargetDistribution map[string]int `json:"target_distribution"` // arm ID → count of decisions
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{
		TargetDistribution: make(map[string]int),
	}
	if dt == nil {
		return summary
	}

	decisions := dt.Decisions()
	rewards := dt.Rewards()

	summary.TotalDecisions = len(decisions)
	if len(decisions) > 0 {
		totalRegret := 0.0
		for _, d := range decisions {
			summary.TargetDistribution[d.ArmID]++
			if d.Exploration {
				summary.ExplorationCount++
			}
			if d.ContextDegraded {
				summary.DegradedCount++
			}
			totalRegret += d.Regret
			if d.Regret > summary.MaxRegret {
				summary.MaxRegret = d.Regret
			}
		}
		summary.MeanRegret = totalRegret / float64(len(decisions))
		summary.ExplorationRate = float64(summary.ExplorationCount) / float64(len(decisions))
	}

	summary.RewardCount = len(rewards)
	if len(rewards) > 0 {
		total := 0.0
		for _, r := range rewards {
			total += r.Reward
		}
		summary.MeanReward = total / float64(len(rewards))
	}

	summary.UniqueTargets = len(summary.TargetDistribution)

	return summary
}
