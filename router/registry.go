package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/bandit-router/router/metrics"
)

// HealthState is the availability of an arm as seen by the registry owner.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthExcluded HealthState = "excluded"
)

var validHealthStates = map[HealthState]bool{
	HealthHealthy:  true,
	HealthDegraded: true,
	HealthExcluded: true,
}

// IsValidHealthState returns true if s is a recognized health state.
func IsValidHealthState(s string) bool { return validHealthStates[HealthState(s)] }

// Arm is a candidate routing target.
type Arm struct {
	ID           string      `yaml:"id"`
	Target       string      `yaml:"target"` // opaque routing address
	Health       HealthState `yaml:"health"`
	CapacityHint int         `yaml:"capacity_hint"`
	CostWeight   float64     `yaml:"cost_weight"`
}

// ArmSource is the arm-availability capability consumed by Router.
// ListHealthy must return a consistent snapshot: no duplicates and no
// partially-updated arm.
type ArmSource interface {
	ListHealthy() []Arm
	MarkHealth(armID string, state HealthState) error
}

// Registry is an in-memory ArmSource. Health transitions are visible to the
// next ListHealthy call; snapshots already handed out are never mutated.
type Registry struct {
	mu   sync.RWMutex
	arms map[string]Arm
}

var _ ArmSource = &Registry{}

// NewRegistry creates a Registry holding arms. Arms with an empty health state
// start healthy. Returns an error on empty or duplicate ids.
func NewRegistry(arms ...Arm) (*Registry, error) {
	r := &Registry{arms: make(map[string]Arm, len(arms))}
	for _, a := range arms {
		if _, dup := r.arms[a.ID]; dup {
			return nil, fmt.Errorf("duplicate arm id %q", a.ID)
		}
		if err := r.Upsert(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Upsert inserts or replaces an arm.
func (r *Registry) Upsert(a Arm) error {
	if a.ID == "" {
		return fmt.Errorf("arm id must not be empty")
	}
	if a.Health == "" {
		a.Health = HealthHealthy
	}
	if !validHealthStates[a.Health] {
		return fmt.Errorf("arm %q: %w %q", a.ID, ErrInvalidHealth, a.Health)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arms[a.ID] = a
	r.publishHealth()
	return nil
}

// Remove deletes an arm. Returns false if it was not present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.arms[id]; !ok {
		return false
	}
	delete(r.arms, id)
	r.publishHealth()
	return true
}

// Get returns a copy of the arm with the given id.
func (r *Registry) Get(id string) (Arm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.arms[id]
	return a, ok
}

// MarkHealth implements ArmSource.
func (r *Registry) MarkHealth(armID string, state HealthState) error {
	if !validHealthStates[state] {
		return fmt.Errorf("%w %q", ErrInvalidHealth, state)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.arms[armID]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownArm, armID)
	}
	if a.Health != state {
		logrus.Debugf("registry: arm %s %s -> %s", armID, a.Health, state)
	}
	a.Health = state
	r.arms[armID] = a
	r.publishHealth()
	return nil
}

// ListHealthy implements ArmSource. Only HealthHealthy arms are candidates;
// degraded arms are reported by List but never routed to.
func (r *Registry) ListHealthy() []Arm {
	return r.list(func(a Arm) bool { return a.Health == HealthHealthy })
}

// List returns every arm regardless of health, sorted by id.
func (r *Registry) List() []Arm {
	return r.list(func(Arm) bool { return true })
}

// HealthCounts returns the number of arms per health state.
func (r *Registry) HealthCounts() map[HealthState]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.healthCountsLocked()
}

func (r *Registry) healthCountsLocked() map[HealthState]int {
	counts := make(map[HealthState]int, len(validHealthStates))
	for _, a := range r.arms {
		counts[a.Health]++
	}
	return counts
}

// publishHealth exports per-state arm counts. Caller holds r.mu.
func (r *Registry) publishHealth() {
	counts := r.healthCountsLocked()
	for state := range validHealthStates {
		metrics.RecordArmHealth(string(state), counts[state])
	}
}

func (r *Registry) list(keep func(Arm) bool) []Arm {
	r.mu.RLock()
	out := make([]Arm, 0, len(r.arms))
	for _, a := range r.arms {
		if keep(a) {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
