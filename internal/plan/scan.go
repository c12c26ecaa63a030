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

import "github.com/chronoshard/qcoord/internal/shardmap"

// PartitionScanMethod pins exactly one shard ID — the scatter step has
// already resolved ownership via the ShardMap by the time this value exists.
type PartitionScanMethod interface {
	Shard() shardmap.ShardID
	isPartitionScanMethod()
}

// SinglePartition reads one partition key.
type SinglePartition struct {
	ShardID shardmap.ShardID
	Key     string
}

func (p SinglePartition) Shard() shardmap.ShardID { return p.ShardID }
func (SinglePartition) isPartitionScanMethod()     {}

// MultiPartition reads several partition keys known to share one shard.
type MultiPartition struct {
	ShardID shardmap.ShardID
	Keys    []string
}

func (p MultiPartition) Shard() shardmap.ShardID { return p.ShardID }
func (MultiPartition) isPartitionScanMethod()     {}

// FilteredPartition reads every partition on a shard matching a predicate.
// Predicate is opaque to the engine; the shard executor re-evaluates it
// against its local partition list.
type FilteredPartition struct {
	ShardID   shardmap.ShardID
	Predicate string
}

func (p FilteredPartition) Shard() shardmap.ShardID { return p.ShardID }
func (FilteredPartition) isPartitionScanMethod()     {}

// ChunkScanMethod selects the row/time window within a partition. Range
// bounds are inclusive; start <= end; an empty range yields zero rows, not an
// error.
type ChunkScanMethod struct {
	Kind     ChunkScanKind
	StartMs  int64
	EndMs    int64
	RowStart string
	RowEnd   string
}

// ChunkScanKind enumerates the ChunkScanMethod variants.
type ChunkScanKind int

const (
	AllChunks ChunkScanKind = iota
	MostRecent
	TimeRange
	RowKeyRange
)
