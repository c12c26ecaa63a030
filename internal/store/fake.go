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

package store

import (
	"context"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/plan"
)

// partitionData is one partition's rows for one dataset, as held by Fake.
type partitionData struct {
	key        string
	shard      int
	values     []float64
	timestamps []int64
}

// Fake is an in-memory ColumnStore used by tests to exercise ShardExecutor
// and Engine without a real column store backing them (§1 places the real
// store out of scope). It streams ChunkSets over a buffered channel the same
// way storage/scan.go streams scan results: one goroutine produces, the
// caller ranges over the channel until it closes or an error arrives.
type Fake struct {
	partitions map[string][]partitionData // datasetRef.String() -> partitions
	indexNames map[string][]IndexName
}

// NewFake returns an empty Fake store.
func NewFake() *Fake {
	return &Fake{partitions: make(map[string][]partitionData), indexNames: make(map[string][]IndexName)}
}

// Seed registers partition data for a dataset, for test setup.
func (f *Fake) Seed(ref dataset.Ref, partKey string, shard int, values []float64, timestamps []int64) {
	f.partitions[ref.String()] = append(f.partitions[ref.String()], partitionData{
		key: partKey, shard: shard, values: values, timestamps: timestamps,
	})
}

// SeedIndexNames registers index-name metadata for a dataset.
func (f *Fake) SeedIndexNames(ref dataset.Ref, names []IndexName) {
	f.indexNames[ref.String()] = names
}

// ScanChunks streams one ChunkSet per (matching partition, requested colID).
// Fake holds only a single value series per partition (it exists to exercise
// ShardExecutor/Engine, not to model a real multi-column store, §1), so every
// requested colID is served from that same series; a real column store would
// instead stream each column's own independently-compressed chunks.
func (f *Fake) ScanChunks(ctx context.Context, ds *dataset.Dataset, part plan.PartitionScanMethod, scan plan.ChunkScanMethod, colIDs []int) (<-chan ChunkSet, <-chan error) {
	out := make(chan ChunkSet, 4)
	errs := make(chan error, 1)

	shard := int(part.Shard())
	wantKeys := partitionKeysOf(part)
	if len(colIDs) == 0 {
		colIDs = []int{0}
	}

	go func() {
		defer close(out)
		defer close(errs)
		for _, p := range f.partitions[ds.Ref.String()] {
			if p.shard != shard {
				continue
			}
			if len(wantKeys) > 0 && !contains(wantKeys, p.key) {
				continue
			}
			values, timestamps := filterByChunkScan(p.values, p.timestamps, scan)
			for _, colID := range colIDs {
				select {
				case out <- ChunkSet{Partition: p.key, ColID: colID, Chunk: aggregate.Chunk{Values: values, Timestamps: timestamps}}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()
	return out, errs
}

func (f *Fake) ActiveShards(ref dataset.Ref) ([]int, error) {
	seen := map[int]bool{}
	var out []int
	for _, p := range f.partitions[ref.String()] {
		if !seen[p.shard] {
			seen[p.shard] = true
			out = append(out, p.shard)
		}
	}
	return out, nil
}

func (f *Fake) IndexNames(ref dataset.Ref) ([]IndexName, error) {
	return f.indexNames[ref.String()], nil
}

func (f *Fake) IndexValues(ref dataset.Ref, shard int, index string) ([]string, error) {
	var out []string
	for _, p := range f.partitions[ref.String()] {
		if p.shard == shard {
			out = append(out, p.key)
		}
	}
	return out, nil
}

func partitionKeysOf(m plan.PartitionScanMethod) []string {
	switch x := m.(type) {
	case plan.SinglePartition:
		return []string{x.Key}
	case plan.MultiPartition:
		return x.Keys
	default:
		return nil
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// filterByChunkScan applies the inclusive time window (or most-recent pick) a
// ChunkScanMethod describes. An empty range yields zero rows, not an error
// (spec §3). RowKeyRange is not filtered: every row is returned.
func filterByChunkScan(values []float64, timestamps []int64, scan plan.ChunkScanMethod) ([]float64, []int64) {
	switch scan.Kind {
	case plan.AllChunks:
		return values, timestamps
	case plan.MostRecent:
		if len(values) == 0 {
			return nil, nil
		}
		last := len(values) - 1
		return values[last:], timestampSlice(timestamps, last)
	case plan.TimeRange:
		var vs []float64
		var ts []int64
		for i, t := range timestamps {
			if t >= scan.StartMs && t <= scan.EndMs {
				vs = append(vs, values[i])
				ts = append(ts, t)
			}
		}
		return vs, ts
	default:
		return values, timestamps
	}
}

func timestampSlice(ts []int64, idx int) []int64 {
	if ts == nil {
		return nil
	}
	return ts[idx : idx+1]
}
