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

// Package shardexec implements the shard-owning node's SingleShardQuery
// handling (§4.4): re-validate, open a chunk scan against the column store,
// fold rows through the aggregator, emit a partial. Grounded on
// storage/scan.go's channel-based fold loop (one goroutine streams chunks, the
// caller ranges over the channel until close or error), generalized from a
// single scheme reducer to the Aggregator capability set.
package shardexec

import (
	"context"
	"fmt"
	"sort"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/codec"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/shardmap"
	"github.com/chronoshard/qcoord/internal/store"
	"github.com/chronoshard/qcoord/internal/trace"
	"github.com/chronoshard/qcoord/internal/validator"
)

// Error mirrors the shard-side subset of §7's taxonomy that ShardExecutor can
// itself produce (validation failures and InternalError); transport-level
// errors like NodeUnavailable/ShardRecovering are the Engine's concern.
type Error struct {
	Retriable bool
	Message   string
}

func (e *Error) Error() string { return e.Message }

// Executor runs SingleShardQuery requests against a local ColumnStore.
type Executor struct {
	Store     store.ColumnStore
	Validator *validator.Validator
}

// New returns an Executor bound to a column store and a validator — the
// remote side must not trust the caller's validation, since the dataset
// version may differ (§4.4), so every Executor revalidates independently.
func New(s store.ColumnStore, v *validator.Validator) *Executor {
	return &Executor{Store: s, Validator: v}
}

// Request is one SingleShardQuery.
type Request struct {
	Dataset    *dataset.Dataset
	ColID      int
	AggFunc    string
	AggArgs    []string
	PartMethod plan.PartitionScanMethod
	ChunkScan  plan.ChunkScanMethod
	ItemLimit  int
}

// Execute runs req to completion or cancellation, returning the partial
// Aggregate value. End conditions (§4.4): the aggregator signals done, the
// scan is exhausted, the item limit is reached, or ctx is cancelled —
// partial aggregates on cancellation are discarded (a zero Value and
// ctx.Err() are returned).
func (e *Executor) Execute(ctx context.Context, sm *shardmap.Map, req Request) (aggregate.Value, error) {
	tr := trace.Current()
	if tr != nil {
		tr.Begin("shardexec.execute", "shard")
		defer tr.End("shardexec.execute", "shard")
	}

	shard := req.PartMethod.Shard()
	if !sm.IsActive(shard) {
		_, status, _ := sm.Status(shard)
		return aggregate.Value{}, &Error{Retriable: status == shardmap.Recovering, Message: fmt.Sprintf("shard %d not active: %s", shard, status)}
	}

	var col dataset.Column
	found := false
	for _, c := range req.Dataset.Columns {
		if c.ID == req.ColID {
			col, found = c, true
			break
		}
	}
	if !found {
		return aggregate.Value{}, &Error{Message: fmt.Sprintf("unknown column id %d", req.ColID)}
	}

	agg, err := e.Validator.ResolveAggregator(req.AggFunc, col, req.AggArgs, req.Dataset, req.ChunkScan)
	if err != nil {
		return aggregate.Value{}, &Error{Message: err.Error()}
	}
	agg.Init()

	chunks, errs := e.Store.ScanChunks(ctx, req.Dataset, req.PartMethod, req.ChunkScan, []int{req.ColID})

	rowsSeen := 0
	for {
		select {
		case <-ctx.Done():
			return aggregate.Value{}, ctx.Err() // partial discarded on cancellation
		default:
		}
		select {
		case <-ctx.Done():
			return aggregate.Value{}, ctx.Err() // partial discarded on cancellation
		case chunk, ok := <-chunks:
			if !ok {
				return agg.Finalize(), nil // scan exhausted
			}
			rowsSeen += len(chunk.Chunk.Values)
			done := agg.FoldChunk(chunk.Chunk)
			if done {
				return agg.Finalize(), nil
			}
			if req.ItemLimit > 0 && rowsSeen >= req.ItemLimit {
				return agg.Finalize(), nil
			}
		case err, ok := <-errs:
			if ok && err != nil {
				return aggregate.Value{}, &Error{Retriable: false, Message: err.Error()}
			}
		}
	}
}

// LocalRead runs the non-aggregate per-shard plan shapes the planner's rules
// 1-2 produce (StreamLastTuple, LocalVectorReader, §4.2): it reads raw chunks
// off the column store and packs them into a codec.Result directly, without
// folding through an Aggregator. This is the counterpart to Execute for the
// PartitionsInstant/PartitionsRange plan family.
func (e *Executor) LocalRead(ctx context.Context, ds *dataset.Dataset, phys plan.Physical) (codec.Result, error) {
	tr := trace.Current()
	if tr != nil {
		tr.Begin("shardexec.localread", "shard")
		defer tr.End("shardexec.localread", "shard")
	}

	switch p := phys.(type) {
	case plan.StreamLastTuple:
		return e.readPartitions(ctx, ds, p.PartMethod, plan.ChunkScanMethod{Kind: plan.MostRecent}, p.ColIDs)
	case plan.LocalVectorReader:
		return e.readPartitions(ctx, ds, p.PartMethod, p.ChunkScan, p.ColIDs)
	default:
		return nil, &Error{Message: fmt.Sprintf("shardexec: unsupported local read plan %T", phys)}
	}
}

// readPartitions drains a chunk scan for colIDs and groups the resulting
// values by partition, ascending partition-key order (§8 scenario 2: "values
// equal to the last sample of each partition in partition-key order"),
// returning them as one VectorResult whose columns are named from ds.
func (e *Executor) readPartitions(ctx context.Context, ds *dataset.Dataset, part plan.PartitionScanMethod, scan plan.ChunkScanMethod, colIDs []int) (codec.Result, error) {
	cols := make([]dataset.Column, 0, len(colIDs))
	for _, id := range colIDs {
		c, ok := ds.ColumnByID(id)
		if !ok {
			return nil, &Error{Message: fmt.Sprintf("unknown column id %d", id)}
		}
		cols = append(cols, c)
	}

	chunks, errs := e.Store.ScanChunks(ctx, ds, part, scan, colIDs)

	byPartition := make(map[string]map[int][]float64)
	var order []string
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err() // partial discarded on cancellation
		default:
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err() // partial discarded on cancellation
		case cs, ok := <-chunks:
			if !ok {
				return e.buildVectorResult(cols, byPartition, order), nil // scan exhausted
			}
			partCols, ok := byPartition[cs.Partition]
			if !ok {
				partCols = make(map[int][]float64)
				byPartition[cs.Partition] = partCols
				order = append(order, cs.Partition)
			}
			partCols[cs.ColID] = append(partCols[cs.ColID], cs.Chunk.Values...)
		case err, ok := <-errs:
			if ok && err != nil {
				return nil, &Error{Retriable: false, Message: err.Error()}
			}
		}
	}
}

func (e *Executor) buildVectorResult(cols []dataset.Column, byPartition map[string]map[int][]float64, order []string) codec.Result {
	sort.Strings(order)
	schema := make([]codec.ColumnSchema, len(cols))
	vectors := make(map[string]any, len(cols))
	for i, col := range cols {
		schema[i] = codec.ColumnSchema{Name: col.Name, Type: col.Type}
		series := make([]float64, 0, len(order))
		for _, key := range order {
			series = append(series, byPartition[key][col.ID]...)
		}
		vectors[col.Name] = series
	}
	return codec.VectorResult{Schema: schema, Vectors: vectors}
}
