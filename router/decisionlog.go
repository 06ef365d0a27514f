package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// decisionEntry is either a live decision awaiting its reward or, once
// resolved, a tombstone kept only to reject duplicate rewards.
type decisionEntry struct {
	decision  *Decision // nil once resolved
	armID     string
	timestamp time.Time
}

func (e *decisionEntry) resolved() bool { return e.decision == nil }

type logShard struct {
	mu    sync.Mutex // makes claim's read-check-write atomic
	cache *ttlcache.Cache[string, *decisionEntry]
}

// decisionLog records decisions for reward correlation. It is sharded by
// xxhash(decision id); each shard is a TTL cache bounded by retention and
// capacity, so the log never grows without bound. Expiry is also checked
// explicitly against the injected clock, which decides the retention window
// semantics; the TTL cache only reclaims memory.
type decisionLog struct {
	retention time.Duration
	clock     clock.PassiveClock
	shards    []*logShard
}

func newDecisionLog(shards, capacity int, retention time.Duration, clk clock.PassiveClock) *decisionLog {
	if shards < 1 {
		panic(fmt.Sprintf("newDecisionLog: shards must be >= 1, got %d", shards))
	}
	perShard := uint64(0)
	if capacity > 0 {
		perShard = uint64((capacity + shards - 1) / shards)
	}
	l := &decisionLog{retention: retention, clock: clk, shards: make([]*logShard, shards)}
	for i := range l.shards {
		opts := []ttlcache.Option[string, *decisionEntry]{
			ttlcache.WithTTL[string, *decisionEntry](retention),
			ttlcache.WithDisableTouchOnHit[string, *decisionEntry](),
		}
		if perShard > 0 {
			opts = append(opts, ttlcache.WithCapacity[string, *decisionEntry](perShard))
		}
		cache := ttlcache.New(opts...)
		cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *decisionEntry]) {
			if reason == ttlcache.EvictionReasonCapacityReached && !item.Value().resolved() {
				logrus.Debugf("decision log: evicted unresolved decision %s (capacity)", item.Key())
			}
		})
		l.shards[i] = &logShard{cache: cache}
	}
	return l
}

func (l *decisionLog) shardFor(id string) *logShard {
	return l.shards[xxhash.Sum64String(id)%uint64(len(l.shards))]
}

// start launches the expiry janitors.
func (l *decisionLog) start() {
	for _, s := range l.shards {
		go s.cache.Start()
	}
}

// stop halts the expiry janitors.
func (l *decisionLog) stop() {
	for _, s := range l.shards {
		s.cache.Stop()
	}
}

func (l *decisionLog) put(d *Decision) {
	s := l.shardFor(d.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(d.ID, &decisionEntry{decision: d, armID: d.ArmID, timestamp: d.Timestamp}, ttlcache.DefaultTTL)
}

func (l *decisionLog) expired(e *decisionEntry) bool {
	return l.clock.Since(e.timestamp) > l.retention
}

// get returns a live (unresolved, unexpired) decision.
func (l *decisionLog) get(id string) (*Decision, bool) {
	item := l.shardFor(id).cache.Get(id)
	if item == nil {
		return nil, false
	}
	e := item.Value()
	if e.resolved() || l.expired(e) {
		return nil, false
	}
	return e.decision, true
}

// claim atomically marks a decision resolved and returns it. Unknown or
// expired ids fail with ErrUnknownDecision (expired entries are dropped);
// already-resolved ids fail with ErrDuplicateReward.
func (l *decisionLog) claim(id string) (*Decision, error) {
	s := l.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(id)
	if item == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownDecision, id)
	}
	e := item.Value()
	if l.expired(e) {
		s.cache.Delete(id)
		logrus.Debugf("decision log: dropped expired decision %s (age %v)", id, l.clock.Since(e.timestamp))
		return nil, fmt.Errorf("%w %q: outside retention window %v", ErrUnknownDecision, id, l.retention)
	}
	if e.resolved() {
		return nil, fmt.Errorf("%w for decision %q", ErrDuplicateReward, id)
	}

	// Keep a tombstone until the original retention deadline.
	remaining := l.retention - l.clock.Since(e.timestamp)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	s.cache.Set(id, &decisionEntry{armID: e.armID, timestamp: e.timestamp}, remaining)
	return e.decision, nil
}

// release reverts a claim whose reward could not be enqueued.
func (l *decisionLog) release(d *Decision) {
	l.put(d)
}

// len returns the number of live entries and tombstones across shards.
func (l *decisionLog) len() int {
	n := 0
	for _, s := range l.shards {
		n += s.cache.Len()
	}
	return n
}
