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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/codec"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/engine"
	"github.com/chronoshard/qcoord/internal/exec"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/shardexec"
	"github.com/chronoshard/qcoord/internal/shardmap"
	"github.com/chronoshard/qcoord/internal/store"
	"github.com/chronoshard/qcoord/internal/validator"
)

func testDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Ref:             dataset.Ref{Name: "metrics"},
		Columns:         []dataset.Column{{Name: "t", Type: dataset.Timestamp, ID: 0}, {Name: "value", Type: dataset.Double, ID: 1}},
		TimestampColumn: "t",
	}
}

func fourShardMap() *shardmap.Map {
	sm := shardmap.New()
	for i, k := range []string{"p0", "p1", "p2", "p3"} {
		sm.IndexKey(k, shardmap.ShardID(i))
		sm.Assign(1, shardmap.ShardID(i), shardmap.NodeAddress("node"), shardmap.Active)
	}
	return sm
}

// newTestRouter wires a Router whose Engine dispatches back into the same
// Router via LocalCaller, the single-node loop described in dispatch.go.
func newTestRouter(t *testing.T, ds *dataset.Dataset, sm *shardmap.Map, fake *store.Fake) *Router {
	t.Helper()
	v := validator.New(aggregate.NewRegistry())
	se := shardexec.New(fake, v)
	pool := exec.NewPool(4)

	r := New(ds.Ref, v, nil, se, fake, sm, pool)
	caller := &LocalCaller{Self: r, Dataset: ds}
	r.Engine = engine.New(caller, sm)
	r.SetDataset(ds)
	go r.Run()
	t.Cleanup(r.Stop)
	return r
}

func TestRouterInitializingRejectsQueries(t *testing.T) {
	sm := fourShardMap()
	fake := store.NewFake()
	v := validator.New(aggregate.NewRegistry())
	se := shardexec.New(fake, v)
	pool := exec.NewPool(4)
	r := New(dataset.Ref{Name: "metrics"}, v, nil, se, fake, sm, pool)
	r.Engine = engine.New(&LocalCaller{Self: r, Dataset: testDataset()}, sm)
	go r.Run()
	t.Cleanup(r.Stop)

	require.Equal(t, Initializing, r.State())

	reply, err := r.Send(context.Background(), LogicalPlanQuery{
		Plan: plan.ReduceEach{
			AggFunc: "sum",
			Child: plan.PartitionsRange{
				PartQuery: plan.PartQuery{AllPartitions: true},
				DataQuery: plan.DataQuery{AllChunks: true},
				Columns:   []string{"value"},
			},
		},
	})
	require.NoError(t, err)
	qerr, ok := reply.(QueryError)
	require.True(t, ok)
	require.ErrorIs(t, qerr.Cause, ErrClusterNotReady)
}

func TestRouterLogicalPlanQueryReducePartitionsOfReduceEach(t *testing.T) {
	ds := testDataset()
	sm := fourShardMap()
	fake := store.NewFake()
	fake.Seed(ds.Ref, "p0", 0, []float64{1, 2, 3}, []int64{1000, 1500, 2000})
	fake.Seed(ds.Ref, "p1", 1, []float64{4, 5}, []int64{1000, 1500})
	fake.Seed(ds.Ref, "p2", 2, nil, nil)
	fake.Seed(ds.Ref, "p3", 3, nil, nil)

	r := newTestRouter(t, ds, sm, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := r.Send(ctx, LogicalPlanQuery{
		Ref: ds.Ref,
		Plan: plan.ReducePartitions{
			CombFunc: "sum",
			Child: plan.ReduceEach{
				AggFunc: "sum",
				Child: plan.PartitionsRange{
					PartQuery: plan.PartQuery{AllPartitions: true},
					DataQuery: plan.DataQuery{AllChunks: true},
					Columns:   []string{"value"},
				},
			},
		},
	})
	require.NoError(t, err)
	res, ok := reply.(QueryResult)
	require.True(t, ok)
	tuple, ok := res.Result.(codec.TupleResult)
	require.True(t, ok)
	require.Equal(t, float64(15), tuple.Tuple["result"])
}

func TestRouterLogicalPlanQueryPartitionsInstant(t *testing.T) {
	// §8 scenario 2: "Instant query on one shard: dataset with 1 active
	// shard, 3 partitions, column value:double. PartitionsInstant(AllPartitions,
	// [value]) -> VectorResult with one column, three rows, values equal to
	// the last sample of each partition in partition-key order." This repo's
	// fourShardMap spreads partitions across shards instead of one; the
	// contract under test is the same: one row per partition, each row the
	// partition's most recent sample, assembled without going through any
	// Aggregator.
	ds := testDataset()
	sm := fourShardMap()
	fake := store.NewFake()
	fake.Seed(ds.Ref, "p0", 0, []float64{1, 2, 3}, []int64{1000, 1500, 2000})
	fake.Seed(ds.Ref, "p1", 1, []float64{4, 5}, []int64{1000, 1500})
	fake.Seed(ds.Ref, "p2", 2, []float64{9}, []int64{1000})
	fake.Seed(ds.Ref, "p3", 3, []float64{7, 8}, []int64{1000, 1500})

	r := newTestRouter(t, ds, sm, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := r.Send(ctx, LogicalPlanQuery{
		Ref: ds.Ref,
		Plan: plan.PartitionsInstant{
			PartQuery: plan.PartQuery{AllPartitions: true},
			Columns:   []string{"value"},
		},
	})
	require.NoError(t, err)
	res, ok := reply.(QueryResult)
	require.True(t, ok)
	vec, ok := res.Result.(codec.VectorResult)
	require.True(t, ok)
	values, ok := vec.Vectors["value"].([]float64)
	require.True(t, ok)
	require.Equal(t, []float64{3, 5, 9, 8}, values)
}

func TestRouterLogicalPlanQueryPartitionsRange(t *testing.T) {
	ds := testDataset()
	sm := fourShardMap()
	fake := store.NewFake()
	fake.Seed(ds.Ref, "p0", 0, []float64{1, 2, 3}, []int64{1000, 1500, 2000})
	fake.Seed(ds.Ref, "p1", 1, []float64{4, 5}, []int64{1000, 1500})
	fake.Seed(ds.Ref, "p2", 2, nil, nil)
	fake.Seed(ds.Ref, "p3", 3, nil, nil)

	r := newTestRouter(t, ds, sm, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := r.Send(ctx, LogicalPlanQuery{
		Ref: ds.Ref,
		Plan: plan.PartitionsRange{
			PartQuery: plan.PartQuery{AllPartitions: true},
			DataQuery: plan.DataQuery{AllChunks: true},
			Columns:   []string{"value"},
		},
	})
	require.NoError(t, err)
	res, ok := reply.(QueryResult)
	require.True(t, ok)
	vec, ok := res.Result.(codec.VectorResult)
	require.True(t, ok)
	values, ok := vec.Vectors["value"].([]float64)
	require.True(t, ok)
	require.Equal(t, []float64{1, 2, 3, 4, 5}, values)
}

func TestRouterLogicalPlanQueryWrongArityFailsBeforeScatter(t *testing.T) {
	ds := testDataset()
	sm := fourShardMap()
	fake := store.NewFake()
	r := newTestRouter(t, ds, sm, fake)

	reply, err := r.Send(context.Background(), LogicalPlanQuery{
		Ref: ds.Ref,
		Plan: plan.ReduceEach{
			AggFunc: "sum",
			AggArgs: []string{"extra"},
			Child: plan.PartitionsRange{
				PartQuery: plan.PartQuery{AllPartitions: true},
				DataQuery: plan.DataQuery{AllChunks: true},
				Columns:   []string{"value"},
			},
		},
	})
	require.NoError(t, err)
	_, ok := reply.(WrongNumberOfArgs)
	require.True(t, ok)
}

func TestRouterLogicalPlanQueryUnknownColumn(t *testing.T) {
	ds := testDataset()
	sm := fourShardMap()
	fake := store.NewFake()
	r := newTestRouter(t, ds, sm, fake)

	reply, err := r.Send(context.Background(), LogicalPlanQuery{
		Ref: ds.Ref,
		Plan: plan.ReduceEach{
			AggFunc: "sum",
			Child: plan.PartitionsRange{
				PartQuery: plan.PartQuery{AllPartitions: true},
				DataQuery: plan.DataQuery{AllChunks: true},
				Columns:   []string{"nonexistent"},
			},
		},
	})
	require.NoError(t, err)
	_, ok := reply.(BadArgument)
	require.True(t, ok)
}

func TestRouterGetIndexNamesTruncates(t *testing.T) {
	ds := testDataset()
	sm := fourShardMap()
	fake := store.NewFake()
	fake.SeedIndexNames(ds.Ref, []store.IndexName{
		{Name: "region", Cardinality: 4},
		{Name: "host", Cardinality: 100},
		{Name: "pod", Cardinality: 1000},
	})
	r := newTestRouter(t, ds, sm, fake)

	reply, err := r.Send(context.Background(), GetIndexNames{Ref: ds.Ref, Limit: 2})
	require.NoError(t, err)
	res, ok := reply.(IndexNamesResult)
	require.True(t, ok)
	require.True(t, res.Truncated)
	require.Len(t, res.Names, 2)
}

func TestRouterShardEventAppliesToShardMap(t *testing.T) {
	ds := testDataset()
	sm := fourShardMap()
	fake := store.NewFake()
	r := newTestRouter(t, ds, sm, fake)

	reply, err := r.Send(context.Background(), ShardEvent{
		Event: shardmap.Event{Revision: 2, Shard: 0, Owner: "node-b", Status: shardmap.Recovering},
	})
	require.NoError(t, err)
	require.IsType(t, Ack{}, reply)
	_, status, ok := sm.Status(0)
	require.True(t, ok)
	require.Equal(t, shardmap.Recovering, status)
}

func TestRouterDrainRejectsNewQueries(t *testing.T) {
	ds := testDataset()
	sm := fourShardMap()
	fake := store.NewFake()
	r := newTestRouter(t, ds, sm, fake)
	r.Drain()

	reply, err := r.Send(context.Background(), LogicalPlanQuery{
		Ref: ds.Ref,
		Plan: plan.ReduceEach{
			AggFunc: "sum",
			Child: plan.PartitionsRange{
				PartQuery: plan.PartQuery{AllPartitions: true},
				DataQuery: plan.DataQuery{AllChunks: true},
				Columns:   []string{"value"},
			},
		},
	})
	require.NoError(t, err)
	qerr, ok := reply.(QueryError)
	require.True(t, ok)
	require.ErrorIs(t, qerr.Cause, ErrDraining)
}
