/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package engine executes a PhysicalPlan: scatter/gather with bounded
// parallelism, combiner application, and final Result materialization
// (§4.3). Grounded on storage/scan.go's t.iterateShards parallel-scan pattern
// (one goroutine per shard funneling into a shared channel), generalized from
// a single-process shard loop to cross-node RPC fan-out with an explicit
// concurrency bound via golang.org/x/sync/errgroup, plus the deterministic
// sort (ascending shard ID, then submission order) spec §4.3/§5 require
// before the item limit truncates the stream — applied with
// github.com/carli2/hybridsort rather than a hand-rolled comparator loop.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/carli2/hybridsort"
	"golang.org/x/sync/errgroup"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/shardmap"
	"github.com/chronoshard/qcoord/internal/trace"
)

// ErrTimeout surfaces when the global per-query deadline expires (§4.3, §7).
var ErrTimeout = errors.New("query timeout")

const maxRetries = 3 // §7: transport/membership errors retry up to N=3

// ShardCaller dispatches one shard's local plan and returns its result
// elements. Implementations live in internal/router (same-process) or an RPC
// client (cross-node); tests use a fake. elements are either a codec.Result
// per shard (vector/tuple readers) or an aggregate.Value (aggregate
// shards) depending on the physical plan shape — callers type-switch.
type ShardCaller interface {
	CallShard(ctx context.Context, shard shardmap.ShardID, localPlan plan.Physical) (any, error)
}

// RetriableError is implemented by shard-call errors the Engine may retry
// with a fresh ShardMap snapshot (NodeUnavailable, ShardRecovering, §7).
type RetriableError interface {
	error
	Retriable() bool
}

// Options mirrors the subset of QueryOptions (§6.5) the Engine consumes.
type Options struct {
	QueryTimeout time.Duration
	Parallelism  int
	ItemLimit    int
}

// element is one gathered result item, tagged with its origin for the
// deterministic ordering pass.
type element struct {
	shard     shardmap.ShardID
	submitIdx int
	value     any
}

// Engine executes physical plans.
type Engine struct {
	Caller ShardCaller
	SM     *shardmap.Map
}

// New returns an Engine dispatching shard calls through caller against sm.
func New(caller ShardCaller, sm *shardmap.Map) *Engine {
	return &Engine{Caller: caller, SM: sm}
}

// Execute runs phys to completion, honoring opts.QueryTimeout, and returns the
// gathered, ordered, limit-truncated elements (the Router/ResultCodec layer
// turns these into the final wire Result).
func (e *Engine) Execute(ctx context.Context, phys plan.Physical) ([]any, error) {
	tr := trace.Current()
	if tr != nil {
		tr.Begin("engine.execute", "query")
		defer tr.End("engine.execute", "query")
	}

	switch p := phys.(type) {
	case plan.DistributeConcat:
		return e.distributeConcat(ctx, p)
	case plan.CombineShards:
		elems, err := e.distributeConcat(ctx, p.Child)
		if err != nil {
			return nil, err
		}
		combined, err := e.combine(p.Comb, elems)
		if err != nil {
			return nil, err
		}
		return []any{combined}, nil
	default:
		return nil, errors.New("engine: unsupported physical plan")
	}
}

func (e *Engine) distributeConcat(ctx context.Context, dc plan.DistributeConcat) ([]any, error) {
	if dc.Parallelism <= 0 {
		dc.Parallelism = 16
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithCancel(ctx)
	defer cancel()
	// global deadline handled by the caller wrapping ctx with a timeout; the
	// Engine only needs to translate ctx.Err() == DeadlineExceeded into
	// ErrTimeout (§4.3 rule 5).

	byShard := groupByShard(dc.Methods)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dc.Parallelism)

	results := make([]element, 0, len(dc.Methods))
	mu := newResultMu()
	var limitReached atomic.Bool

	submitIdx := 0
	for shard, methods := range byShard {
		shard, methods := shard, methods
		idx := submitIdx
		submitIdx++
		g.Go(func() error {
			val, err := e.callShardWithRetry(gctx, shard, dc.LocalPlan(methods[0]))
			if err != nil {
				return err
			}
			if mu.append(&results, element{shard: shard, submitIdx: idx, value: val}, dc.ItemLimit) {
				// §4.3 rule 4: stop accepting elements once L have been
				// emitted; cancel outstanding shard requests rather than
				// waiting for every dispatched call to finish.
				limitReached.Store(true)
				cancel()
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		switch {
		case limitReached.Load() && errors.Is(err, context.Canceled):
			// the only failures are our own early-exit cancellation above
		case ctx.Err() == context.DeadlineExceeded:
			return nil, ErrTimeout
		default:
			return nil, err
		}
	}

	ordered := orderElements(results)
	if dc.ItemLimit > 0 && len(ordered) > dc.ItemLimit {
		ordered = ordered[:dc.ItemLimit]
	}

	out := make([]any, len(ordered))
	for i, el := range ordered {
		out[i] = el.value
	}
	return out, nil
}

// callShardWithRetry dispatches one shard request, retrying with a fresh
// ShardMap snapshot up to maxRetries times if the error is retriable (§4.3
// rule 6, §7).
func (e *Engine) callShardWithRetry(ctx context.Context, shard shardmap.ShardID, localPlan plan.Physical) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		val, err := e.Caller.CallShard(ctx, shard, localPlan)
		if err == nil {
			return val, nil
		}
		lastErr = err
		var retriable RetriableError
		if errors.As(err, &retriable) && retriable.Retriable() && attempt < maxRetries {
			continue // re-route via the latest ShardMap snapshot on the next CallShard
		}
		return nil, err
	}
	return nil, lastErr
}

func groupByShard(methods []plan.PartitionScanMethod) map[shardmap.ShardID][]plan.PartitionScanMethod {
	out := make(map[shardmap.ShardID][]plan.PartitionScanMethod)
	for _, m := range methods {
		out[m.Shard()] = append(out[m.Shard()], m)
	}
	return out
}

// orderElements sorts gathered elements ascending shard ID, then submission
// order within a shard, via github.com/carli2/hybridsort rather than a
// hand-rolled sort.Slice comparator.
func orderElements(elems []element) []element {
	hybridsort.Sort(sort.Interface(byShardThenSubmit(elems)))
	return elems
}

type byShardThenSubmit []element

func (b byShardThenSubmit) Len() int { return len(b) }
func (b byShardThenSubmit) Less(i, j int) bool {
	if b[i].shard != b[j].shard {
		return b[i].shard < b[j].shard
	}
	return b[i].submitIdx < b[j].submitIdx
}
func (b byShardThenSubmit) Swap(i, j int) { b[i], b[j] = b[j], b[i] }

// combine applies a cross-shard Combiner across shard partials (§4.3
// "Combine"). Every combiner, associative+commutative or not, folds the
// partials left to right in the shard-ID order orderElements has already
// produced, starting from the first partial; Zero is returned only when there
// are no partials. comb is resolved once by the planner via Validator.ResolveCombiner
// (§4.1) — the Engine never re-derives combine semantics from a function name.
func (e *Engine) combine(comb aggregate.Combiner, elems []any) (aggregate.Value, error) {
	values := make([]aggregate.Value, 0, len(elems))
	for _, el := range elems {
		v, ok := el.(aggregate.Value)
		if !ok {
			return aggregate.Value{}, errors.New("engine: combine expects aggregate.Value elements")
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return comb.Zero(), nil
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc = comb.Combine(acc, v)
	}
	return acc, nil
}

// resultMu is a channel-based mutex (grounded on the teacher's channel-first
// concurrency style) guarding concurrent appends to the gathered results
// slice from the errgroup's worker goroutines.
type resultMu struct{ ch chan struct{} }

func newResultMu() *resultMu {
	m := &resultMu{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

// append adds el to dst and reports whether dst has now reached limit (0 or
// negative limit means unbounded).
func (m *resultMu) append(dst *[]element, el element, limit int) (full bool) {
	<-m.ch
	*dst = append(*dst, el)
	full = limit > 0 && len(*dst) >= limit
	m.ch <- struct{}{}
	return full
}
