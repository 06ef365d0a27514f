package router

import (
	"hash/fnv"
	"math/rand"
	"sync"
)

// SubsystemArm returns the RNG subsystem name for an arm's sampling stream.
func SubsystemArm(armID string) string {
	return "arm/" + armID
}

// PartitionedRNG provides deterministic, isolated RNG streams per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName). Two engines built
// with the same seed draw identical per-arm sequences, regardless of the order
// in which arms first appear.
//
// ForSubsystem is safe for concurrent use; the returned *rand.Rand is not and
// must be guarded by its owner.
type PartitionedRNG struct {
	seed int64

	mu         sync.Mutex
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a master seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same name always returns the same *rand.Rand instance. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.seed ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the master seed.
func (p *PartitionedRNG) Seed() int64 {
	return p.seed
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
