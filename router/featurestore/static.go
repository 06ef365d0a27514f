// Package featurestore provides router.FeatureStore implementations: an
// in-memory Static store for tests and simulation, and a read-through Cached
// decorator for slow backends.
package featurestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inference-sim/bandit-router/router"
)

// Static serves contexts from an in-memory map. An optional latency is applied
// to every lookup; lookups return early with ErrContextUnavailable once ctx is done.
type Static struct {
	mu       sync.RWMutex
	features map[string][]float64
	latency  time.Duration
}

var _ router.FeatureStore = &Static{}

// NewStatic creates a Static store that waits latency before answering.
func NewStatic(latency time.Duration) *Static {
	return &Static{features: make(map[string][]float64), latency: latency}
}

// Put stores a copy of features under key.
func (s *Static) Put(key string, features []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[key] = append([]float64(nil), features...)
}

// Delete removes key.
func (s *Static) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.features, key)
}

// Len returns the number of stored keys.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features)
}

// FetchContext implements router.FeatureStore.
func (s *Static) FetchContext(ctx context.Context, requestKey string) (router.Context, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return router.Context{}, fmt.Errorf("%w: %v", router.ErrContextUnavailable, ctx.Err())
		}
	} else if err := ctx.Err(); err != nil {
		return router.Context{}, fmt.Errorf("%w: %v", router.ErrContextUnavailable, err)
	}

	s.mu.RLock()
	f, ok := s.features[requestKey]
	s.mu.RUnlock()
	if !ok {
		return router.Context{}, fmt.Errorf("%w: no features for key %q", router.ErrContextUnavailable, requestKey)
	}
	return router.NewContext(requestKey, f), nil
}
