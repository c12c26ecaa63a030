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

package shardmap

// Event is a single shard ownership/health transition pushed by cluster
// membership (§6.2). Applying events is the only way the shard map mutates,
// other than a full CurrentShardSnapshot replace.
type Event struct {
	Revision uint64
	Shard    ShardID
	Owner    NodeAddress
	Status   ShardStatus
}

// Apply mutates m according to e. Stale events (Revision < m.Revision) are
// discarded by Assign itself.
func (m *Map) Apply(e Event) {
	m.Assign(e.Revision, e.Shard, e.Owner, e.Status)
}

// Snapshot is a full list of shard assignments delivered periodically by
// cluster membership (§6.2, CurrentShardSnapshot). A snapshot whose revision
// is not newer than the map's is a no-op.
type Snapshot struct {
	Revision uint64
	Entries  []SnapshotEntry
}

// SnapshotEntry is one row of a Snapshot.
type SnapshotEntry struct {
	Shard  ShardID
	Owner  NodeAddress
	Status ShardStatus
}

// ApplySnapshot writes every entry of s into m, provided s.Revision is newer
// than m's current revision. Shards already in m but absent from s are not
// removed; they keep their previous owner and status.
func (m *Map) ApplySnapshot(s Snapshot) {
	m.mu.Lock()
	if s.Revision <= m.revision && m.revision != 0 {
		m.mu.Unlock()
		return
	}
	m.revision = s.Revision
	m.mu.Unlock()
	for _, e := range s.Entries {
		m.shards.Set(&entry{shard: e.Shard, owner: e.Owner, status: e.Status})
	}
}
