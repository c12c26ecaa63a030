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

// Package store defines the narrow interface to the column store (§1, §6.1):
// an external collaborator this repo never implements for real, only
// consumes. The real on-disk/in-memory store is out of scope; this interface
// is the seam ShardExecutor and the GetIndex* router handlers are coded
// against.
package store

import (
	"context"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/plan"
)

// ChunkSet is one columnar block of rows for one column of one partition —
// the unit of I/O (glossary).
type ChunkSet struct {
	Partition string
	ColID     int
	Chunk     aggregate.Chunk
}

// ColumnStore is the external collaborator consumed by ShardExecutor and the
// router's index-introspection handlers.
type ColumnStore interface {
	// ScanChunks opens a pull stream of ChunkSets for the given partition
	// scan / chunk scan / column selection (§6.1: one ChunkSet per colID per
	// partition), on this node's local shard. The executor must drain or
	// cancel ctx to release the stream; it never materializes more than one
	// chunk per partition at a time.
	ScanChunks(ctx context.Context, ds *dataset.Dataset, part plan.PartitionScanMethod, scan plan.ChunkScanMethod, colIDs []int) (<-chan ChunkSet, <-chan error)

	// ActiveShards lists the shard IDs this node currently hosts for ref.
	ActiveShards(ref dataset.Ref) ([]int, error)

	// IndexNames lists (name, cardinality) pairs for ref.
	IndexNames(ref dataset.Ref) ([]IndexName, error)

	// IndexValues lists values of index on shard for ref.
	IndexValues(ref dataset.Ref, shard int, index string) ([]string, error)
}

// IndexName is one entry of the GetIndexNames reply.
type IndexName struct {
	Name        string
	Cardinality int
}
