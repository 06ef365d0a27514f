package trace

import "sync"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures all routing decisions and applied rewards.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level           TraceLevel
	CounterfactualK int // number of counterfactual candidates per decision
}

// DecisionTrace collects decision and reward records. Safe for concurrent use.
type DecisionTrace struct {
	Config TraceConfig

	mu        sync.Mutex
	decisions []DecisionRecord
	rewards   []RewardRecord
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(config TraceConfig) *DecisionTrace {
	return &DecisionTrace{
		Config:    config,
		decisions: make([]DecisionRecord, 0),
		rewards:   make([]RewardRecord, 0),
	}
}

// Enabled reports whether records should be collected.
func (dt *DecisionTrace) Enabled() bool {
	return dt != nil && dt.Config.Level == TraceLevelDecisions
}

// RecordDecision appends a decision record.
func (dt *DecisionTrace) RecordDecision(record DecisionRecord) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.decisions = append(dt.decisions, record)
}

// RecordReward appends a reward record.
func (dt *DecisionTrace) RecordReward(record RewardRecord) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.rewards = append(dt.rewards, record)
}

// Decisions returns a copy of the decision records in recording order.
func (dt *DecisionTrace) Decisions() []DecisionRecord {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	return append([]DecisionRecord(nil), dt.decisions...)
}

// Rewards returns a copy of the reward records in recording order.
func (dt *DecisionTrace) Rewards() []RewardRecord {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	return append([]RewardRecord(nil), dt.rewards...)
}
