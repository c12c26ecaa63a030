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

// Package shardmap tracks, per dataset, which node owns each shard and its
// health state. The live table is a lock-free read-optimized map
// (github.com/launix-de/NonLockingReadMap) published by atomic swap, the way
// spec §9 and memcp's storage/partition.go pivot index both want reads to
// never block a writer; an ordered github.com/google/btree index resolves
// shard-key ranges without memcp's hand-rolled binary search.
package shardmap

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	nlrm "github.com/launix-de/NonLockingReadMap"
	"golang.org/x/exp/slices"
)

// ShardStatus is the health state of one shard's current assignment.
type ShardStatus int

const (
	Unassigned ShardStatus = iota
	Assigned
	Active
	Recovering
	Error
	Stopped
)

func (s ShardStatus) String() string {
	switch s {
	case Unassigned:
		return "Unassigned"
	case Assigned:
		return "Assigned"
	case Active:
		return "Active"
	case Recovering:
		return "Recovering"
	case Error:
		return "Error"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// NodeAddress identifies the node currently assigned to a shard.
type NodeAddress string

// ShardID identifies one shard of a dataset.
type ShardID uint32

// entry is the value type stored in the NonLockingReadMap; it must satisfy
// nlrm.KeyGetter[ShardID].
type entry struct {
	shard  ShardID
	owner  NodeAddress
	status ShardStatus
}

func (e *entry) ComputeSize() uint { return 32 }
func (e *entry) GetKey() ShardID   { return e.shard }

// Map is the authoritative dataset→(shard→owner,status) snapshot for one
// dataset. It is versioned by a monotonically increasing revision; stale
// updates (older revision) are discarded. Only the router thread mutates a
// Map; Engine takes a snapshot reference at dispatch time.
type Map struct {
	mu       sync.Mutex // guards revision + pivot index; the read map itself is lock-free
	revision uint64
	shards   nlrm.NonLockingReadMap[entry, ShardID]
	pivots   *btree.BTreeG[pivotItem] // ordered shard-key -> shard id, for range resolution
}

type pivotItem struct {
	key   string
	shard ShardID
}

func pivotLess(a, b pivotItem) bool { return a.key < b.key }

// New returns an empty Map at revision 0.
func New() *Map {
	return &Map{
		shards: nlrm.New[entry, ShardID](),
		pivots: btree.NewG(32, pivotLess),
	}
}

// Revision returns the current map revision.
func (m *Map) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// Assign sets (or replaces) the owner/status for shard, provided rev is not
// older than the map's current revision; several shards may be assigned at
// the same revision. Stale (older) updates are silently discarded, per the
// invariant that the map is versioned by a monotonically increasing
// revision.
func (m *Map) Assign(rev uint64, shard ShardID, owner NodeAddress, status ShardStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rev != 0 && rev < m.revision {
		return
	}
	if rev > m.revision {
		m.revision = rev
	}
	m.shards.Set(&entry{shard: shard, owner: owner, status: status})
}

// IndexKey associates a partition/row key with the shard that owns it, for
// range-based PartitionScanMethod resolution (RowKeyRange, MultiPartition).
func (m *Map) IndexKey(key string, shard ShardID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pivots.ReplaceOrInsert(pivotItem{key: key, shard: shard})
}

// ShardForKey returns the shard owning the largest indexed key <= key (pivot
// semantics matching memcp's shardDimension: a pivot is between two shards).
func (m *Map) ShardForKey(key string) (ShardID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found pivotItem
	ok := false
	m.pivots.DescendLessOrEqual(pivotItem{key: key}, func(item pivotItem) bool {
		found = item
		ok = true
		return false // stop after the first (largest <=) match
	})
	return found.shard, ok
}

// ShardsInRange returns every indexed shard whose key falls within [start,end]
// inclusive, ascending by key. An empty range yields no shards, not an error.
func (m *Map) ShardsInRange(start, end string) []ShardID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ShardID
	seen := make(map[ShardID]bool)
	m.pivots.AscendRange(pivotItem{key: start}, pivotItem{key: end + "\x00"}, func(item pivotItem) bool {
		if !seen[item.shard] {
			seen[item.shard] = true
			out = append(out, item.shard)
		}
		return true
	})
	return out
}

// Status returns the current status and owner of shard, if known.
func (m *Map) Status(shard ShardID) (NodeAddress, ShardStatus, bool) {
	e := m.shards.Get(shard)
	if e == nil {
		return "", Unassigned, false
	}
	return e.owner, e.status, true
}

// ActiveShards returns the set of shards this map considers queryable: those
// whose status is Active, ascending by ShardID so scatter/gather's
// deterministic dispatch order (§4.3: "ascending shard ID, then submission
// order within a shard") starts from a stable input.
func (m *Map) ActiveShards() []ShardID {
	all := m.shards.GetAll()
	out := make([]ShardID, 0, len(all))
	for _, e := range all {
		if e.status == Active {
			out = append(out, e.shard)
		}
	}
	slices.Sort(out)
	return out
}

// IsActive reports whether shard is currently Active.
func (m *Map) IsActive(shard ShardID) bool {
	e := m.shards.Get(shard)
	return e != nil && e.status == Active
}

func (m *Map) String() string {
	return fmt.Sprintf("ShardMap(rev=%d, shards=%d)", m.Revision(), len(m.shards.GetAll()))
}
