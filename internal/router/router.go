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

// Package router implements the single message-handling entity per dataset
// (§4.5): it dispatches incoming commands, keeps the current ShardMap,
// enforces per-query timeouts, and emits responses. Grounded on
// scm/network.go's HttpServer request/response closure-passing style,
// generalized into a serial mailbox loop, the "actor-style router" spec §9
// calls for: an owning task consuming a bounded channel, with shared state
// (the ShardMap) living inside the router's own goroutine so mutations are
// linearizable with respect to query dispatch.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/codec"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/engine"
	"github.com/chronoshard/qcoord/internal/exec"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/planner"
	"github.com/chronoshard/qcoord/internal/shardexec"
	"github.com/chronoshard/qcoord/internal/shardmap"
	"github.com/chronoshard/qcoord/internal/store"
	"github.com/chronoshard/qcoord/internal/trace"
	"github.com/chronoshard/qcoord/internal/validator"
)

// State is one of the four router lifecycle states (§4.5).
type State int32

const (
	Initializing State = iota // no dataset installed and no snapshot received yet; queries fail with ClusterNotReady
	Ready
	Draining // accepts no new queries; in-flight allowed to complete
	Stopped
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Ready:
		return "Ready"
	case Draining:
		return "Draining"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// ErrClusterNotReady is returned while the router is Initializing.
var ErrClusterNotReady = errors.New("router: cluster not ready")

// ErrDraining is returned for new queries submitted while Draining or after
// Stopped.
var ErrDraining = errors.New("router: not accepting new queries")

// nextQueryID is the process-wide QueryId counter (§3, §9: "acceptable
// because it is only a correlation tag").
var nextQueryID int64

// NextQueryID returns the next process-local monotonically increasing
// QueryId.
func NextQueryID() int64 {
	return atomic.AddInt64(&nextQueryID, 1)
}

// QueryOptions mirrors the client-settable subset of §6.5.
type QueryOptions struct {
	QueryTimeout           time.Duration
	Parallelism            int
	ItemLimit              int
	RequireAllShards       bool
	TestQuerySerialization bool
}

// DefaultQueryOptions matches the §6.5 defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		QueryTimeout: 30 * time.Second,
		Parallelism:  16,
		ItemLimit:    1000,
	}
}

// Request is the sealed set of messages a Router mailbox accepts (§4.5,
// §6.3).
type Request interface {
	isRequest()
}

// LogicalPlanQuery enters the Validator->Planner->Engine pipeline.
type LogicalPlanQuery struct {
	Ref     dataset.Ref
	Plan    plan.Logical
	Options QueryOptions
}

func (LogicalPlanQuery) isRequest() {}

// ExecPlanQuery skips validation and runs an already-compiled physical plan.
type ExecPlanQuery struct {
	Ref   dataset.Ref
	Phys  plan.Physical
	Shape planner.ResultShape
	Limit int
}

func (ExecPlanQuery) isRequest() {}

// SingleShardQuery is the shard-side entry point: validate again, run the
// aggregator, reply with the partial Aggregate.
type SingleShardQuery struct {
	Ref  dataset.Ref
	Args shardexec.Request
}

func (SingleShardQuery) isRequest() {}

// LocalReadQuery is the shard-side entry point for the non-aggregate plan
// shapes planner rules 1-2 produce (StreamLastTuple, LocalVectorReader, §4.2):
// read raw chunks and pack them into a codec.Result directly, without an
// Aggregator in the loop.
type LocalReadQuery struct {
	Ref  dataset.Ref
	Phys plan.Physical
}

func (LocalReadQuery) isRequest() {}

// GetIndexNames is a metadata introspection request, truncated at Limit.
type GetIndexNames struct {
	Ref   dataset.Ref
	Limit int
}

func (GetIndexNames) isRequest() {}

// GetIndexValues is a metadata introspection request for one index.
type GetIndexValues struct {
	Ref   dataset.Ref
	Index string
	Limit int
}

func (GetIndexValues) isRequest() {}

// CurrentShardSnapshot replaces the ShardMap if its revision is newer.
type CurrentShardSnapshot struct {
	Snapshot shardmap.Snapshot
}

func (CurrentShardSnapshot) isRequest() {}

// ShardEvent applies one ownership/health transition to the ShardMap.
type ShardEvent struct {
	Event shardmap.Event
}

func (ShardEvent) isRequest() {}

// Reply is the sealed set of messages a Router can emit (§6.3).
type Reply interface {
	isReply()
}

// QueryResult carries the originating QueryId and the result payload.
// ResultCodec is applied exactly once, at the top of a scatter/gather (§4.6
// data flow): a LogicalPlanQuery/ExecPlanQuery reply's Result is a
// codec.Result; a SingleShardQuery reply's Result is the raw, un-encoded
// aggregate.Value partial the shard folded — the coordinator-side Engine
// combines/concatenates those partials before the one ResultCodec pass.
type QueryResult struct {
	QueryID int64
	Result  any
}

func (QueryResult) isReply() {}

// QueryError carries the originating QueryId (or the documented sentinel 0
// for errors that precede QueryId assignment) and the failure cause.
type QueryError struct {
	QueryID int64
	Cause   error
}

func (QueryError) isReply() {}

func (e QueryError) Error() string { return fmt.Sprintf("query %d: %v", e.QueryID, e.Cause) }

// BadQuery surfaces a planner-level rejection (§7).
type BadQuery struct{ Reason string }

func (BadQuery) isReply()      {}
func (e BadQuery) Error() string { return "BadQuery: " + e.Reason }

// BadArgument surfaces a validator-level rejection (§7).
type BadArgument struct{ Reason string }

func (BadArgument) isReply()      {}
func (e BadArgument) Error() string { return "BadArgument: " + e.Reason }

// WrongNumberOfArgs surfaces a validator arity mismatch (§7).
type WrongNumberOfArgs struct{ Given, Expected int }

func (WrongNumberOfArgs) isReply() {}
func (e WrongNumberOfArgs) Error() string {
	return fmt.Sprintf("WrongNumberOfArgs: given %d, expected %d", e.Given, e.Expected)
}

// IndexNamesResult is the GetIndexNames reply payload. Truncated reports
// whether Limit cut off the full list (a supplemented detail beyond spec.md's
// bare truncated-list contract, see SPEC_FULL.md §4).
type IndexNamesResult struct {
	Names     []store.IndexName
	Truncated bool
}

func (IndexNamesResult) isReply() {}

// IndexValuesResult is the GetIndexValues reply payload.
type IndexValuesResult struct {
	Values    []string
	Truncated bool
}

func (IndexValuesResult) isReply() {}

// Ack replies to internal messages (CurrentShardSnapshot, ShardEvent) that
// have no client-facing result shape.
type Ack struct{}

func (Ack) isReply() {}

type envelope struct {
	ctx   context.Context
	req   Request
	reply chan Reply
}

// Router is the single serial message handler for one dataset.
type Router struct {
	Ref       dataset.Ref
	Validator *validator.Validator
	Engine    *engine.Engine
	ShardExec *shardexec.Executor
	Store     store.ColumnStore
	ShardMap  *shardmap.Map
	Pool      *exec.Pool
	TraceDir  string // empty disables trace archival

	dataset atomic.Pointer[dataset.Dataset]
	state   atomic.Int32
	mailbox chan envelope
}

// New returns a Router for ref, Initializing until SetDataset is called.
func New(ref dataset.Ref, v *validator.Validator, eng *engine.Engine, se *shardexec.Executor, s store.ColumnStore, sm *shardmap.Map, pool *exec.Pool) *Router {
	r := &Router{
		Ref:       ref,
		Validator: v,
		Engine:    eng,
		ShardExec: se,
		Store:     s,
		ShardMap:  sm,
		Pool:      pool,
		mailbox:   make(chan envelope, 64),
	}
	r.state.Store(int32(Initializing))
	return r
}

// SetDataset installs the validated Dataset definition and transitions
// Initializing -> Ready, whether or not the ShardMap holds any shard yet.
// Safe to call from any goroutine.
func (r *Router) SetDataset(d *dataset.Dataset) {
	r.dataset.Store(d)
	r.state.CompareAndSwap(int32(Initializing), int32(Ready))
}

// State returns the router's current lifecycle state.
func (r *Router) State() State { return State(r.state.Load()) }

// Drain transitions Ready -> Draining: no new queries are accepted, but
// in-flight work completes normally.
func (r *Router) Drain() { r.state.CompareAndSwap(int32(Ready), int32(Draining)) }

// Stop transitions to Stopped and closes the mailbox once drained by the
// caller (Run returns after the mailbox closes).
func (r *Router) Stop() {
	r.state.Store(int32(Stopped))
	close(r.mailbox)
}

// Run processes the mailbox in arrival order until Stop closes it. Messages
// are processed one at a time on this goroutine — the router is never
// suspended (§5): anything that may block (Engine.Execute, ShardExecutor
// work) is handed to Pool and replies asynchronously via its own goroutine.
func (r *Router) Run() {
	for env := range r.mailbox {
		r.handle(env)
	}
}

// Send enqueues req and blocks for its reply or ctx cancellation. This is the
// synchronous convenience wrapper most callers (cmd/qcli, tests) want; the
// mailbox itself is the actor's real entry point.
func (r *Router) Send(ctx context.Context, req Request) (Reply, error) {
	env := envelope{ctx: ctx, req: req, reply: make(chan Reply, 1)}
	select {
	case r.mailbox <- env:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case reply := <-env.reply:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Router) handle(env envelope) {
	switch req := env.req.(type) {
	case LogicalPlanQuery:
		r.handleLogicalPlanQuery(env.ctx, req, env.reply)
	case ExecPlanQuery:
		r.handleExecPlanQuery(env.ctx, req, env.reply)
	case SingleShardQuery:
		r.handleSingleShardQuery(env.ctx, req, env.reply)
	case LocalReadQuery:
		r.handleLocalReadQuery(env.ctx, req, env.reply)
	case GetIndexNames:
		r.handleGetIndexNames(req, env.reply)
	case GetIndexValues:
		r.handleGetIndexValues(req, env.reply)
	case CurrentShardSnapshot:
		r.ShardMap.ApplySnapshot(req.Snapshot)
		r.state.CompareAndSwap(int32(Initializing), int32(Ready))
		env.reply <- Ack{}
	case ShardEvent:
		r.ShardMap.Apply(req.Event)
		env.reply <- Ack{}
	default:
		env.reply <- QueryError{Cause: fmt.Errorf("router: unrecognized request %T", req)}
	}
}

func (r *Router) acceptingQueries() error {
	switch r.State() {
	case Initializing:
		return ErrClusterNotReady
	case Ready:
		return nil
	default:
		return ErrDraining
	}
}

func (r *Router) handleLogicalPlanQuery(ctx context.Context, req LogicalPlanQuery, reply chan Reply) {
	if err := r.acceptingQueries(); err != nil {
		reply <- QueryError{Cause: err}
		return
	}
	ds := r.dataset.Load()
	opts := req.Options
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = DefaultQueryOptions().QueryTimeout
	}
	if opts.Parallelism == 0 {
		opts.Parallelism = DefaultQueryOptions().Parallelism
	}

	// Validation and planning are synchronous and cheap; they run on this,
	// the router goroutine (§5). Only Engine.Execute is dispatched to Pool.
	phys, shape, err := planner.Compile(r.Validator, ds, r.ShardMap, req.Plan,
		validator.Options{RequireAllShards: opts.RequireAllShards},
		planner.Options{Parallelism: opts.Parallelism, ItemLimit: opts.ItemLimit})
	if err != nil {
		reply <- wireError(err)
		return
	}

	qid := NextQueryID()
	r.executeAsync(ctx, qid, phys, shape, opts.QueryTimeout, reply)
}

func (r *Router) handleExecPlanQuery(ctx context.Context, req ExecPlanQuery, reply chan Reply) {
	if err := r.acceptingQueries(); err != nil {
		reply <- QueryError{Cause: err}
		return
	}
	qid := NextQueryID()
	timeout := DefaultQueryOptions().QueryTimeout
	r.executeAsync(ctx, qid, req.Phys, req.Shape, timeout, reply)
}

// executeAsync runs phys on Pool, binding a fresh Trace for the duration and
// translating the gathered elements into the final wire Result via shape.
func (r *Router) executeAsync(ctx context.Context, qid int64, phys plan.Physical, shape planner.ResultShape, timeout time.Duration, reply chan Reply) {
	tr := trace.New()
	qctx, cancel := context.WithTimeout(ctx, timeout)
	trace.Go(func() {
		defer cancel()
		trace.With(tr, func() {
			defer r.archiveTrace(tr)
			defer tr.Close()
			err := r.Pool.Submit(qctx, func(runCtx context.Context) {
				elems, err := r.Engine.Execute(runCtx, phys)
				if err != nil {
					if errors.Is(err, engine.ErrTimeout) || runCtx.Err() == context.DeadlineExceeded {
						reply <- QueryError{QueryID: qid, Cause: engine.ErrTimeout}
						return
					}
					reply <- QueryError{QueryID: qid, Cause: err}
					return
				}
				reply <- QueryResult{QueryID: qid, Result: encodeElements(shape, elems, phys)}
			})
			if err != nil {
				reply <- QueryError{QueryID: qid, Cause: err}
			}
		})
	})
}

// encodeElements turns Engine.Execute's gathered elements into the final wire
// Result, per the ResultShape the planner computed (§4.6).
func encodeElements(shape planner.ResultShape, elems []any, phys plan.Physical) codec.Result {
	if !shape.IsAggregate {
		results := make([]codec.Result, 0, len(elems))
		for _, el := range elems {
			if res, ok := el.(codec.Result); ok {
				results = append(results, res)
			}
		}
		return codec.Concat(results)
	}

	if _, isCombined := phys.(plan.CombineShards); isCombined && len(elems) == 1 {
		if v, ok := elems[0].(aggregate.Value); ok {
			return codec.Encode(shape.Class, shape.Cardinality, shape.Wide, v)
		}
	}

	values := make([]aggregate.Value, 0, len(elems))
	for _, el := range elems {
		if v, ok := el.(aggregate.Value); ok {
			values = append(values, v)
		}
	}
	merged := aggregate.ConcatValues(values)
	cardinality := shape.Cardinality
	if cardinality == 1 && len(values) > 1 {
		cardinality = -1 // concatenating several shards' scalars makes this a vector, not a scalar
	}
	return codec.Encode(shape.Class, cardinality, shape.Wide, merged)
}

func (r *Router) handleSingleShardQuery(ctx context.Context, req SingleShardQuery, reply chan Reply) {
	if r.State() == Stopped {
		reply <- QueryError{Cause: ErrDraining}
		return
	}
	qid := NextQueryID()
	tr := trace.New()
	qctx, cancel := context.WithCancel(ctx)
	trace.Go(func() {
		defer cancel()
		trace.With(tr, func() {
			defer tr.Close()
			err := r.Pool.Submit(qctx, func(runCtx context.Context) {
				v, err := r.ShardExec.Execute(runCtx, r.ShardMap, req.Args)
				if err != nil {
					reply <- QueryError{QueryID: qid, Cause: err}
					return
				}
				reply <- QueryResult{QueryID: qid, Result: v}
			})
			if err != nil {
				reply <- QueryError{QueryID: qid, Cause: err}
			}
		})
	})
}

// handleLocalReadQuery mirrors handleSingleShardQuery's async-dispatch shape
// (§4.5, §5: the router itself is never suspended), but runs ShardExec's raw
// chunk reader instead of its Aggregator fold.
func (r *Router) handleLocalReadQuery(ctx context.Context, req LocalReadQuery, reply chan Reply) {
	if r.State() == Stopped {
		reply <- QueryError{Cause: ErrDraining}
		return
	}
	qid := NextQueryID()
	ds := r.dataset.Load()
	tr := trace.New()
	qctx, cancel := context.WithCancel(ctx)
	trace.Go(func() {
		defer cancel()
		trace.With(tr, func() {
			defer tr.Close()
			err := r.Pool.Submit(qctx, func(runCtx context.Context) {
				res, err := r.ShardExec.LocalRead(runCtx, ds, req.Phys)
				if err != nil {
					reply <- QueryError{QueryID: qid, Cause: err}
					return
				}
				reply <- QueryResult{QueryID: qid, Result: res}
			})
			if err != nil {
				reply <- QueryError{QueryID: qid, Cause: err}
			}
		})
	})
}

func (r *Router) handleGetIndexNames(req GetIndexNames, reply chan Reply) {
	names, err := r.Store.IndexNames(req.Ref)
	if err != nil {
		reply <- QueryError{Cause: err}
		return
	}
	truncated := req.Limit > 0 && len(names) > req.Limit
	if truncated {
		names = names[:req.Limit]
	}
	reply <- IndexNamesResult{Names: names, Truncated: truncated}
}

// handleGetIndexValues serves from the first Active shard it finds in
// ShardMap order — a documented probe, not a load-balanced fan-out (§9 open
// question; kept as-is per DESIGN.md).
func (r *Router) handleGetIndexValues(req GetIndexValues, reply chan Reply) {
	var shard shardmap.ShardID
	found := false
	for _, s := range r.ShardMap.ActiveShards() {
		shard, found = s, true
		break
	}
	if !found {
		reply <- QueryError{Cause: errors.New("no active shard to serve index values")}
		return
	}
	values, err := r.Store.IndexValues(req.Ref, int(shard), req.Index)
	if err != nil {
		reply <- QueryError{Cause: err}
		return
	}
	truncated := req.Limit > 0 && len(values) > req.Limit
	if truncated {
		values = values[:req.Limit]
	}
	reply <- IndexValuesResult{Values: values, Truncated: truncated}
}

func (r *Router) archiveTrace(tr *trace.Trace) {
	if r.TraceDir == "" {
		return
	}
	if err := trace.Archive(r.TraceDir, tr); err != nil {
		// Archival failure never alters the client response (§4.7); only
		// the shape of that policy matters here, so there is nothing to log
		// to without a logger wired into Router yet.
		_ = err
	}
}

// wireError maps a validator/planner error into its §6.3 reply shape.
func wireError(err error) Reply {
	var verr *validator.Error
	if errors.As(err, &verr) {
		switch verr.Kind {
		case validator.WrongArity:
			return WrongNumberOfArgs{Given: verr.Given, Expected: verr.Expected}
		case validator.UnknownColumn, validator.NoTimestampColumn:
			return BadArgument{Reason: verr.Message}
		case validator.ShardNotActive:
			return QueryError{Cause: err}
		default:
			return BadArgument{Reason: verr.Message}
		}
	}
	var perr *planner.Error
	if errors.As(err, &perr) {
		return BadQuery{Reason: perr.Message}
	}
	return QueryError{Cause: err}
}
