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

package plan

import "github.com/chronoshard/qcoord/internal/aggregate"

// Physical is the sealed PhysicalPlan sum type (§3).
type Physical interface {
	isPhysical()
}

// LocalPlanFactory builds the per-shard local plan or request message for one
// PartitionScanMethod, used by DistributeConcat.
type LocalPlanFactory func(PartitionScanMethod) Physical

// DistributeConcat is the scatter/gather node: fan out Methods (grouped by
// shard), bound concurrency by Parallelism, cap total emitted items at
// ItemLimit, and build each per-shard local plan via LocalPlanFactory.
type DistributeConcat struct {
	Methods     []PartitionScanMethod
	Parallelism int
	ItemLimit   int
	LocalPlan   LocalPlanFactory
}

func (DistributeConcat) isPhysical() {}

// LocalVectorReader reads a vector of values per partition across a chunk
// range, for the given column IDs.
type LocalVectorReader struct {
	ColIDs      []int
	PartMethod  PartitionScanMethod
	ChunkScan   ChunkScanMethod
}

func (LocalVectorReader) isPhysical() {}

// StreamLastTuple reads the single most-recent tuple per partition.
type StreamLastTuple struct {
	ColIDs     []int
	PartMethod PartitionScanMethod
}

func (StreamLastTuple) isPhysical() {}

// AggregateShard is the shard-executor path used by ReduceEach/ReducePartitions
// plans (planner rules 3-4): it folds rows through an aggregator instead of
// materializing a vector, and is executed via SingleShardQuery rather than a
// local reader.
type AggregateShard struct {
	ColID      int
	AggFunc    string
	AggArgs    []string
	PartMethod PartitionScanMethod
	ChunkScan  ChunkScanMethod
}

func (AggregateShard) isPhysical() {}

// CombineShards wraps an AggregateShard-producing DistributeConcat with a
// cross-shard combiner (planner rule 4): the Engine applies Comb across
// shard partials instead of concatenating them. Comb is resolved once, by the
// planner, via the same Validator.ResolveCombiner path the Validator itself
// uses — the Engine never re-derives combine semantics from the function
// name string.
type CombineShards struct {
	CombFunc string
	CombArgs []string
	Comb     aggregate.Combiner
	Child    DistributeConcat
}

func (CombineShards) isPhysical() {}
