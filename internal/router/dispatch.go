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

package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/codec"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/shardexec"
	"github.com/chronoshard/qcoord/internal/shardmap"
)

// ErrUnsupportedPhysicalPlan is returned for physical plan shapes no local
// path recognizes. AggregateShard (ReduceEach/ReducePartitions) and
// StreamLastTuple/LocalVectorReader (PartitionsInstant/PartitionsRange) are
// both fully served by this dispatcher; anything else is a planner bug, not
// a deployment gap.
var ErrUnsupportedPhysicalPlan = errors.New("router: unsupported physical plan shape")

// LocalCaller implements engine.ShardCaller by dispatching SingleShardQuery
// messages to Self's own mailbox — the reference wiring for a single-node
// deployment (or tests), where this node is both the query coordinator and
// every shard's owner. A real multi-node deployment replaces LocalCaller with
// an RPC client reaching the node the ShardMap names for each shard; that
// transport is explicitly out of scope (§1).
type LocalCaller struct {
	Self    *Router
	Dataset *dataset.Dataset
}

// CallShard implements engine.ShardCaller, routing AggregateShard plans
// through SingleShardQuery (the Aggregator fold, §4.4) and StreamLastTuple/
// LocalVectorReader plans through LocalReadQuery (the raw chunk reader, §4.2
// rules 1-2) — both shard-side entry points the Router already dispatches to
// its execution pool (§4.5).
func (c *LocalCaller) CallShard(ctx context.Context, shard shardmap.ShardID, localPlan plan.Physical) (any, error) {
	switch localPlan.(type) {
	case plan.AggregateShard:
		return c.callAggregateShard(ctx, localPlan.(plan.AggregateShard))
	case plan.StreamLastTuple, plan.LocalVectorReader:
		return c.callLocalRead(ctx, localPlan)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPhysicalPlan, localPlan)
	}
}

func (c *LocalCaller) callAggregateShard(ctx context.Context, agg plan.AggregateShard) (any, error) {
	req := shardexec.Request{
		Dataset:    c.Dataset,
		ColID:      agg.ColID,
		AggFunc:    agg.AggFunc,
		AggArgs:    agg.AggArgs,
		PartMethod: agg.PartMethod,
		ChunkScan:  agg.ChunkScan,
	}
	reply, err := c.Self.Send(ctx, SingleShardQuery{Ref: c.Dataset.Ref, Args: req})
	if err != nil {
		return nil, err
	}
	switch r := reply.(type) {
	case QueryResult:
		v, ok := r.Result.(aggregate.Value)
		if !ok {
			return nil, fmt.Errorf("router: unexpected SingleShardQuery result type %T", r.Result)
		}
		return v, nil
	case QueryError:
		return nil, r.Cause
	default:
		return nil, fmt.Errorf("router: unexpected reply %T", reply)
	}
}

func (c *LocalCaller) callLocalRead(ctx context.Context, localPlan plan.Physical) (any, error) {
	reply, err := c.Self.Send(ctx, LocalReadQuery{Ref: c.Dataset.Ref, Phys: localPlan})
	if err != nil {
		return nil, err
	}
	switch r := reply.(type) {
	case QueryResult:
		res, ok := r.Result.(codec.Result)
		if !ok {
			return nil, fmt.Errorf("router: unexpected LocalReadQuery result type %T", r.Result)
		}
		return res, nil
	case QueryError:
		return nil, r.Cause
	default:
		return nil, fmt.Errorf("router: unexpected reply %T", reply)
	}
}
