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

// Package planner turns a validated LogicalPlan into a PhysicalPlan, by the
// five deterministic rules of spec §4.2. There is no cost model — rule
// selection is a type switch, the same rule-based posture as memcp's
// storage-format selection loop (storage/storage.go's proposeCompression
// retry loop: try representations in order until one fits, no cost
// comparison).
package planner

import (
	"fmt"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/shardmap"
	"github.com/chronoshard/qcoord/internal/validator"
)

// Error reports a plan that the compiler rejects.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func errUnsupportedPlan(p plan.Logical) *Error {
	return &Error{Message: fmt.Sprintf("UnsupportedPlan(%T)", p)}
}

func errBadQuery(msg string) *Error {
	return &Error{Message: msg}
}

// Options carries the resolved shard-scan parameters a DistributeConcat node
// needs beyond the plan tree itself.
type Options struct {
	Parallelism int
	ItemLimit   int
}

// ResultShape describes how Router/ResultCodec should interpret the elements
// Engine.Execute returns for a compiled plan (§4.6). Vector/tuple-reader plans
// (rules 1-2) leave this at its zero value: Engine's elements are already
// codec.Result values produced at the shard, merged by concatenation.
// Aggregate plans (rules 3-4) set IsAggregate, carrying the bound
// aggregator's result class/cardinality/width so the router can encode the
// gathered aggregate.Value elements with codec.Encode.
type ResultShape struct {
	IsAggregate bool
	Class       aggregate.ResultClass
	Cardinality int
	Wide        bool
}

// Compile applies the five planner rules to lp, resolving partition/column
// names via v against ds and sm.
func Compile(v *validator.Validator, ds *dataset.Dataset, sm *shardmap.Map, lp plan.Logical, vopts validator.Options, opts Options) (plan.Physical, ResultShape, error) {
	switch p := lp.(type) {
	case plan.PartitionsInstant:
		cols, err := v.ResolveColumns(ds, p.Columns)
		if err != nil {
			return nil, ResultShape{}, err
		}
		methods, err := v.ValidatePartQuery(sm, p.PartQuery, vopts)
		if err != nil {
			return nil, ResultShape{}, err
		}
		colIDs := colIDsOf(cols)
		return plan.DistributeConcat{
			Methods:     methods,
			Parallelism: opts.Parallelism,
			ItemLimit:   opts.ItemLimit,
			LocalPlan: func(m plan.PartitionScanMethod) plan.Physical {
				return plan.StreamLastTuple{ColIDs: colIDs, PartMethod: m}
			},
		}, ResultShape{}, nil

	case plan.PartitionsRange:
		cols, err := v.ResolveColumns(ds, p.Columns)
		if err != nil {
			return nil, ResultShape{}, err
		}
		chunkScan, err := v.ValidateDataQuery(ds, p.DataQuery)
		if err != nil {
			return nil, ResultShape{}, err
		}
		methods, err := v.ValidatePartQuery(sm, p.PartQuery, vopts)
		if err != nil {
			return nil, ResultShape{}, err
		}
		colIDs := colIDsOf(cols)
		return plan.DistributeConcat{
			Methods:     methods,
			Parallelism: opts.Parallelism,
			ItemLimit:   opts.ItemLimit,
			LocalPlan: func(m plan.PartitionScanMethod) plan.Physical {
				return plan.LocalVectorReader{ColIDs: colIDs, PartMethod: m, ChunkScan: chunkScan}
			},
		}, ResultShape{}, nil

	case plan.ReduceEach:
		inner, ok := p.Child.(plan.PartitionsRange)
		if !ok {
			return nil, ResultShape{}, errUnsupportedPlan(lp)
		}
		if len(inner.Columns) != 1 {
			return nil, ResultShape{}, errBadQuery(fmt.Sprintf("Only one column should be specified, but got %d", len(inner.Columns)))
		}
		cols, err := v.ResolveColumns(ds, inner.Columns)
		if err != nil {
			return nil, ResultShape{}, err
		}
		chunkScan, err := v.ValidateDataQuery(ds, inner.DataQuery)
		if err != nil {
			return nil, ResultShape{}, err
		}
		// Resolve the aggregator here so WrongArity/NoSuchFunction surface
		// synchronously, before any shard request is issued (spec §8 scenario
		// 6), and so its result shape is known for encoding; the bound
		// instance itself is re-created per shard by ShardExecutor, which
		// must not trust this validation (§4.4).
		agg, err := v.ResolveAggregator(p.AggFunc, cols[0], p.AggArgs, ds, chunkScan)
		if err != nil {
			return nil, ResultShape{}, err
		}
		methods, err := v.ValidatePartQuery(sm, inner.PartQuery, vopts)
		if err != nil {
			return nil, ResultShape{}, err
		}
		shape := ResultShape{IsAggregate: true, Class: agg.ResultClass(), Cardinality: agg.Cardinality(), Wide: agg.Wide()}
		return buildDistributeAggregate(cols[0].ID, p.AggFunc, p.AggArgs, methods, chunkScan, opts), shape, nil

	case plan.ReducePartitions:
		inner, ok := p.Child.(plan.ReduceEach)
		if !ok {
			return nil, ResultShape{}, errUnsupportedPlan(lp)
		}
		innerInner, ok := inner.Child.(plan.PartitionsRange)
		if !ok {
			return nil, ResultShape{}, errUnsupportedPlan(lp)
		}
		if len(innerInner.Columns) != 1 {
			return nil, ResultShape{}, errBadQuery(fmt.Sprintf("Only one column should be specified, but got %d", len(innerInner.Columns)))
		}
		cols, err := v.ResolveColumns(ds, innerInner.Columns)
		if err != nil {
			return nil, ResultShape{}, err
		}
		chunkScan, err := v.ValidateDataQuery(ds, innerInner.DataQuery)
		if err != nil {
			return nil, ResultShape{}, err
		}
		agg, err := v.ResolveAggregator(inner.AggFunc, cols[0], inner.AggArgs, ds, chunkScan)
		if err != nil {
			return nil, ResultShape{}, err
		}
		comb, err := v.ResolveCombiner(p.CombFunc, agg, p.CombArgs)
		if err != nil {
			return nil, ResultShape{}, err
		}
		methods, err := v.ValidatePartQuery(sm, innerInner.PartQuery, vopts)
		if err != nil {
			return nil, ResultShape{}, err
		}
		dc := buildDistributeAggregate(cols[0].ID, inner.AggFunc, inner.AggArgs, methods, chunkScan, opts).(plan.DistributeConcat)
		shape := ResultShape{IsAggregate: true, Class: agg.ResultClass(), Cardinality: agg.Cardinality(), Wide: agg.Wide()}
		return plan.CombineShards{CombFunc: p.CombFunc, CombArgs: p.CombArgs, Comb: comb, Child: dc}, shape, nil

	default:
		return nil, ResultShape{}, errUnsupportedPlan(lp)
	}
}

func buildDistributeAggregate(colID int, aggFunc string, aggArgs []string, methods []plan.PartitionScanMethod, chunkScan plan.ChunkScanMethod, opts Options) plan.Physical {
	return plan.DistributeConcat{
		Methods:     methods,
		Parallelism: opts.Parallelism,
		ItemLimit:   opts.ItemLimit,
		LocalPlan: func(m plan.PartitionScanMethod) plan.Physical {
			return plan.AggregateShard{ColID: colID, AggFunc: aggFunc, AggArgs: aggArgs, PartMethod: m, ChunkScan: chunkScan}
		},
	}
}

func colIDsOf(cols []dataset.Column) []int {
	ids := make([]int, len(cols))
	for i, c := range cols {
		ids[i] = c.ID
	}
	return ids
}
