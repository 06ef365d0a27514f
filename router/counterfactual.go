package router

import (
	"sort"

	"github.com/inference-sim/bandit-router/router/trace"
)

// computeCounterfactual ranks candidate arms by point estimate and computes
// regret: how much expected reward the best alternative promised over the
// chosen arm. Exploration decisions are the ones that pay positive regret.
//
// Cold-start arms carry the prior mean as their estimate.
// Returns top-k candidates sorted by estimate descending and regret (>= 0).
func computeCounterfactual(chosenID string, scores []ArmScore, k int) ([]trace.CandidateScore, float64) {
	if k <= 0 || len(scores) == 0 {
		return nil, 0
	}

	all := append([]ArmScore(nil), scores...)
	var chosenEstimate float64
	chosenFound := false
	for _, s := range all {
		if s.ArmID == chosenID {
			chosenEstimate = s.Estimate
			chosenFound = true
		}
	}
	// Chosen ID missing from the vector should not happen.
	if !chosenFound {
		return nil, 0
	}

	// Sort by estimate descending; tie-break by arm ID ascending for determinism
	sort.Slice(all, func(i, j int) bool {
		if all[i].Estimate != all[j].Estimate {
			return all[i].Estimate > all[j].Estimate
		}
		return all[i].ArmID < all[j].ArmID
	})

	n := min(k, len(all))
	result := make([]trace.CandidateScore, n)
	for i := 0; i < n; i++ {
		result[i] = trace.CandidateScore{
			ArmID:       all[i].ArmID,
			Score:       all[i].Score,
			Estimate:    all[i].Estimate,
			Uncertainty: all[i].Uncertainty,
			Pulls:       all[i].Pulls,
		}
	}

	regret := all[0].Estimate - chosenEstimate
	if regret < 0 || !isFinite(regret) {
		regret = 0
	}
	return result, regret
}

// scoreMap flattens a score vector into arm ID → score.
func scoreMap(scores []ArmScore) map[string]float64 {
	m := make(map[string]float64, len(scores))
	for _, s := range scores {
		m[s.ArmID] = s.Score
	}
	return m
}
