package router

import (
	"context"
	"math"
)

// Context is the feature vector describing a request at decision time.
// Treat it as immutable: NewContext and Clone copy the feature slice.
type Context struct {
	Key      string    // request key used for lookup and reward correlation
	Features []float64 // ordered, fixed dimension per Router
}

// NewContext creates a Context holding a copy of features.
func NewContext(key string, features []float64) Context {
	return Context{Key: key, Features: append([]float64(nil), features...)}
}

// NeutralContext returns the all-zero context of the given dimension,
// substituted when the feature store cannot answer in time.
func NeutralContext(key string, dim int) Context {
	return Context{Key: key, Features: make([]float64, dim)}
}

// Clone returns a deep copy.
func (c Context) Clone() Context {
	return NewContext(c.Key, c.Features)
}

// Dim returns the number of features.
func (c Context) Dim() int { return len(c.Features) }

// IsFinite reports whether every feature is a finite number.
func (c Context) IsFinite() bool {
	for _, f := range c.Features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// FeatureStore looks up the context for a request key. Implementations must
// return an error wrapping ErrContextUnavailable on miss, and should return
// promptly once ctx is done. The timeout budget travels in ctx.
type FeatureStore interface {
	FetchContext(ctx context.Context, requestKey string) (Context, error)
}

// FeatureStoreFunc adapts a function to the FeatureStore interface.
type FeatureStoreFunc func(ctx context.Context, requestKey string) (Context, error)

// FetchContext implements FeatureStore.
func (f FeatureStoreFunc) FetchContext(ctx context.Context, requestKey string) (Context, error) {
	return f(ctx, requestKey)
}
