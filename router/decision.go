package router

import "time"

// ArmScore is one entry of the per-arm score vector captured at selection time.
type ArmScore struct {
	ArmID       string
	Score       float64 // value compared during selection
	Estimate    float64 // point estimate of expected reward
	Uncertainty float64 // confidence width; posterior stddev for sampling families
	Pulls       int64   // selections before this decision
	ColdStart   bool    // arm had never been selected
}

// Decision is the immutable record of one routing choice.
type Decision struct {
	ID              string
	ArmID           string
	Target          string
	RequestKey      string
	Context         Context
	Scores          []ArmScore // sorted by ArmID
	Exploration     bool       // chosen for uncertainty rather than maximal estimate
	ContextDegraded bool       // neutral context substituted for the fetched one
	Reason          string     // human-readable explanation
	Timestamp       time.Time
}

// Score returns the recorded score for armID.
func (d *Decision) Score(armID string) (ArmScore, bool) {
	for _, s := range d.Scores {
		if s.ArmID == armID {
			return s, true
		}
	}
	return ArmScore{}, false
}

// RewardEvent is an outcome signal correlated to a past decision. It is
// consumed exactly once by the ingestion queue.
type RewardEvent struct {
	DecisionID string
	ArmID      string
	Context    Context
	Reward     float64
	ObservedAt time.Time
}
