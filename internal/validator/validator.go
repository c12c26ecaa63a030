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

package validator

import (
	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/shardmap"
)

// Options configures validate_part_query.
type Options struct {
	RequireAllShards bool
}

// Validator resolves column/function names and partition predicates against
// a Dataset and the live ShardMap. It holds no request-scoped state: every
// method is pure given its arguments, so one Validator instance is shared
// across all queries for a registry of aggregate functions.
type Validator struct {
	Functions *aggregate.Registry
}

// New returns a Validator backed by the given function registry.
func New(functions *aggregate.Registry) *Validator {
	return &Validator{Functions: functions}
}

// ResolveColumns resolves column names to their Column definitions, in order.
func (v *Validator) ResolveColumns(ds *dataset.Dataset, names []string) ([]dataset.Column, error) {
	cols := make([]dataset.Column, 0, len(names))
	for _, name := range names {
		c, ok := ds.ColumnByName(name)
		if !ok {
			return nil, errUnknownColumn(name)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// ResolveAggregator resolves a function name to a bound Aggregator, checking
// arity and (for time-based functions) the dataset's timestamp column.
func (v *Validator) ResolveAggregator(name string, col dataset.Column, args []string, ds *dataset.Dataset, chunkScan plan.ChunkScanMethod) (aggregate.Aggregator, error) {
	factory, arity, ok := v.Functions.LookupAggregator(name)
	if !ok {
		return nil, errNoSuchFunction(name)
	}
	if len(args) != arity {
		return nil, errWrongArity(len(args), arity)
	}
	if (chunkScan.Kind == plan.TimeRange || chunkScan.Kind == plan.MostRecent) && !ds.HasTimestamp() {
		return nil, errNoTimestampColumn()
	}
	agg, err := factory(col, args)
	if err != nil {
		return nil, errBadArgument(err.Error())
	}
	return agg, nil
}

// ResolveCombiner resolves a combiner function name, bound to the aggregator
// it will combine.
func (v *Validator) ResolveCombiner(name string, agg aggregate.Aggregator, args []string) (aggregate.Combiner, error) {
	factory, arity, ok := v.Functions.LookupCombiner(name)
	if !ok {
		return nil, errNoSuchFunction(name)
	}
	if len(args) != arity {
		return nil, errWrongArity(len(args), arity)
	}
	comb, err := factory(agg, args)
	if err != nil {
		return nil, errBadArgument(err.Error())
	}
	return comb, nil
}

// ValidateDataQuery turns a DataQuery into a ChunkScanMethod. Time-based scans
// require a timestamp column; if missing, this fails with NoTimestampColumn.
func (v *Validator) ValidateDataQuery(ds *dataset.Dataset, dq plan.DataQuery) (plan.ChunkScanMethod, error) {
	switch {
	case dq.AllChunks:
		return plan.ChunkScanMethod{Kind: plan.AllChunks}, nil
	case dq.MostRecent:
		if !ds.HasTimestamp() {
			return plan.ChunkScanMethod{}, errNoTimestampColumn()
		}
		return plan.ChunkScanMethod{Kind: plan.MostRecent}, nil
	case dq.HasRange:
		if !ds.HasTimestamp() {
			return plan.ChunkScanMethod{}, errNoTimestampColumn()
		}
		if dq.StartMs > dq.EndMs {
			return plan.ChunkScanMethod{}, errBadArgument("time range start must be <= end")
		}
		return plan.ChunkScanMethod{Kind: plan.TimeRange, StartMs: dq.StartMs, EndMs: dq.EndMs}, nil
	case dq.HasRowKey:
		if dq.RowStart > dq.RowEnd {
			return plan.ChunkScanMethod{}, errBadArgument("row key range start must be <= end")
		}
		return plan.ChunkScanMethod{Kind: plan.RowKeyRange, RowStart: dq.RowStart, RowEnd: dq.RowEnd}, nil
	default:
		return plan.ChunkScanMethod{}, errBadArgument("empty data query")
	}
}

// ValidatePartQuery resolves partition keys to shards via the shard map. A
// partition whose owning shard is not Active is omitted from the result
// unless opts.RequireAllShards, in which case the call fails with
// ShardNotActive(shard).
func (v *Validator) ValidatePartQuery(sm *shardmap.Map, pq plan.PartQuery, opts Options) ([]plan.PartitionScanMethod, error) {
	if !pq.AllPartitions && len(pq.Keys) == 0 {
		return nil, errBadArgument("partition query names no partitions")
	}

	if pq.AllPartitions {
		var out []plan.PartitionScanMethod
		for _, shard := range sm.ActiveShards() {
			out = append(out, plan.FilteredPartition{ShardID: shard, Predicate: "*"})
		}
		return out, nil
	}

	// group explicit keys by owning shard
	byShard := make(map[shardmap.ShardID][]string)
	order := make([]shardmap.ShardID, 0)
	for _, key := range pq.Keys {
		shard, found := sm.ShardForKey(key)
		if !found {
			return nil, errBadArgument("no shard owns partition key " + key)
		}
		owner, status, known := sm.Status(shard)
		_ = owner
		if !known || status != shardmap.Active {
			if opts.RequireAllShards {
				return nil, errShardNotActive(shard)
			}
			continue
		}
		if _, ok := byShard[shard]; !ok {
			order = append(order, shard)
		}
		byShard[shard] = append(byShard[shard], key)
	}

	out := make([]plan.PartitionScanMethod, 0, len(order))
	for _, shard := range order {
		keys := byShard[shard]
		if len(keys) == 1 {
			out = append(out, plan.SinglePartition{ShardID: shard, Key: keys[0]})
		} else {
			out = append(out, plan.MultiPartition{ShardID: shard, Keys: keys})
		}
	}
	return out, nil
}
