// Package router provides the contextual-bandit routing core: it picks one of
// several candidate downstream handlers ("arms") per request and learns from
// delayed reward signals.
//
// # Reading Guide
//
// Start with these files:
//   - service.go: Router.Decide and Router.IngestReward, the two caller-facing operations
//   - engine.go: the Policy Engine (per-arm sharded state, scoring, selection)
//   - ingest.go: the reward ingestion queue that folds rewards into the engine
//
// # Architecture
//
// The router package defines interfaces and bridge types; bandit families live in
// sub-packages:
//   - router/bandit/: UCB1, LinUCB, Gaussian Thompson sampling, linear Thompson sampling
//   - router/featurestore/: in-memory and TTL-cached FeatureStore implementations
//   - router/metrics/: Prometheus collectors
//   - router/trace/: decision trace recording and summaries
//   - router/workload/: seeded synthetic environment used by the simulate command
//
// router/bandit registers its constructor via init() by setting the package-level
// factory variable NewAlgorithmFunc, the same way sub-packages plug into a core that
// must not import them.
//
// # Key Interfaces
//
//   - ArmSource: healthy-arm listing and health transitions (Registry implements it)
//   - FeatureStore: context lookup by request key, bounded by the caller's deadline
//   - Algorithm / ArmModel: a bandit family and its immutable per-arm statistics
package router
