package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/bandit-router/router/metrics"
)

var errQueueClosed = errors.New("reward queue closed")

// flushPollInterval is how often Flush re-checks the pending count.
const flushPollInterval = time.Millisecond

// ingestQueue folds reward events into the engine. Events are routed by
// xxhash(arm id) to a fixed worker, so rewards for one arm are applied in
// arrival order by a single goroutine while different arms proceed in parallel.
type ingestQueue struct {
	engine    *Engine
	onApplied func(RewardEvent)

	mu      sync.RWMutex // guards closed against sends on closed channels
	closed  bool
	workers []chan RewardEvent
	wg      sync.WaitGroup

	pending atomic.Int64
}

func newIngestQueue(engine *Engine, workers, queueSize int, onApplied func(RewardEvent)) *ingestQueue {
	if workers < 1 {
		workers = 1
	}
	q := &ingestQueue{
		engine:    engine,
		onApplied: onApplied,
		workers:   make([]chan RewardEvent, workers),
	}
	for i := range q.workers {
		ch := make(chan RewardEvent, queueSize)
		q.workers[i] = ch
		q.wg.Add(1)
		go q.run(ch)
	}
	return q
}

func (q *ingestQueue) run(ch <-chan RewardEvent) {
	defer q.wg.Done()
	for ev := range ch {
		q.apply(ev)
		q.pending.Add(-1)
		metrics.AddPendingRewards(-1)
	}
}

func (q *ingestQueue) apply(ev RewardEvent) {
	if err := q.engine.Update(ev.ArmID, ev.Context.Features, ev.Reward); err != nil {
		// Inputs are validated before enqueue; reaching this is a defect.
		logrus.Errorf("ingest: reward for decision %s dropped: %v", ev.DecisionID, err)
		return
	}
	metrics.RecordReward(ev.ArmID)
	if q.onApplied != nil {
		q.onApplied(ev)
	}
}

// enqueue hands ev to its arm's worker, blocking while the worker's buffer is
// full until ctx is done.
func (q *ingestQueue) enqueue(ctx context.Context, ev RewardEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errQueueClosed
	}
	ch := q.workers[xxhash.Sum64String(ev.ArmID)%uint64(len(q.workers))]
	q.pending.Add(1)
	metrics.AddPendingRewards(1)
	select {
	case ch <- ev:
		return nil
	case <-ctx.Done():
		q.pending.Add(-1)
		metrics.AddPendingRewards(-1)
		return ctx.Err()
	}
}

// flush blocks until every accepted event has been applied or ctx is done.
func (q *ingestQueue) flush(ctx context.Context) error {
	if q.pending.Load() == 0 {
		return nil
	}
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if q.pending.Load() == 0 {
				return nil
			}
		}
	}
}

// close stops accepting events, applies what is buffered and waits for the workers.
func (q *ingestQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, ch := range q.workers {
		close(ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
