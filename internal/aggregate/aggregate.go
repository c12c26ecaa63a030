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

// Package aggregate defines the Aggregator/Combiner capability-set interfaces
// (§3, §9) and the name->factory registry resolving function names to them.
// This generalizes memcp's multi-phase ColumnStorage fold contract
// (prepare/scan/proposeCompression/init/build/finish in storage/storage.go)
// into a simpler init/fold_chunk/finalize shape over aggregate state instead
// of column encodings.
package aggregate

import "github.com/chronoshard/qcoord/internal/dataset"

// ResultClass is the value kind an Aggregator or Combiner produces.
type ResultClass int

const (
	ClassInt ResultClass = iota
	ClassLong
	ClassDouble
	ClassHistogram
)

// Value is one emitted result value. Histogram aggregates carry parallel
// Counts/BucketMax slices instead of Doubles/Longs/Ints.
type Value struct {
	Ints      []int32
	Longs     []int64
	Doubles   []float64
	Counts    []int64
	BucketMax []float64
}

// Chunk is one columnar block of rows for one column of one partition — the
// unit ShardExecutor folds through an Aggregator. Values holds one decoded
// value per row in arrival order; Timestamps is parallel to Values when the
// dataset has a timestamp column, nil otherwise.
type Chunk struct {
	Values     []float64
	Timestamps []int64
}

// Aggregator is a stateful fold over chunks of one shard's data for one
// partition (or across partitions, depending on cardinality). It advertises
// its ResultClass, Cardinality (1 or N), and a Wide flag for integer
// aggregators that must emit 64-bit results.
type Aggregator interface {
	// Init resets the aggregator to its zero value.
	Init()
	// FoldChunk folds one chunk's rows into the running state. Returns true
	// if the aggregator has seen enough and further chunks are unnecessary
	// (e.g. TopK already full).
	FoldChunk(c Chunk) (done bool)
	// Finalize returns the accumulated result.
	Finalize() Value
	ResultClass() ResultClass
	Cardinality() int // 1 or N
	Wide() bool
}

// Combiner is a binary fold merging two Aggregate values into one.
// Associative+commutative combiners may be folded in any order; others must
// preserve shard order (ascending shard ID).
type Combiner interface {
	Zero() Value
	Combine(a, b Value) Value
	Associative() bool
	Commutative() bool
}

// ConcatValues merges several shards' partial Values into one, by
// concatenating their parallel slices in order. Used by the router for a bare
// ReduceEach (no ReducePartitions wrapper): the gathered per-shard partials
// are presented as one multi-valued result rather than combined into a
// single scalar, since no combiner was named.
func ConcatValues(values []Value) Value {
	var out Value
	for _, v := range values {
		out.Ints = append(out.Ints, v.Ints...)
		out.Longs = append(out.Longs, v.Longs...)
		out.Doubles = append(out.Doubles, v.Doubles...)
		out.Counts = append(out.Counts, v.Counts...)
		out.BucketMax = append(out.BucketMax, v.BucketMax...)
	}
	return out
}

// AggregatorFactory builds a fresh Aggregator bound to a specific column/dataset/args.
type AggregatorFactory func(col dataset.Column, args []string) (Aggregator, error)

// CombinerFactory builds a fresh Combiner bound to the aggregator it combines
// and its own args.
type CombinerFactory func(agg Aggregator, args []string) (Combiner, error)
