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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssignAndActiveShards(t *testing.T) {
	m := New()
	m.Assign(1, 0, "node-a", Active)
	m.Assign(1, 1, "node-b", Recovering)
	m.Assign(1, 2, "node-c", Active)

	require.ElementsMatch(t, []ShardID{0, 2}, m.ActiveShards())
	require.True(t, m.IsActive(0))
	require.False(t, m.IsActive(1))
}

func TestStaleUpdateDiscarded(t *testing.T) {
	m := New()
	m.Assign(5, 0, "node-a", Active)
	m.Assign(3, 0, "node-b", Stopped) // stale revision, discarded

	owner, status, ok := m.Status(0)
	require.True(t, ok)
	require.Equal(t, NodeAddress("node-a"), owner)
	require.Equal(t, Active, status)
}

func TestShardEventStoppedBlocksFutureDispatch(t *testing.T) {
	m := New()
	m.Assign(1, 0, "node-a", Active)
	m.Apply(Event{Revision: 2, Shard: 0, Owner: "node-a", Status: Stopped})

	require.False(t, m.IsActive(0))
	require.NotContains(t, m.ActiveShards(), ShardID(0))
}

func TestKeyRangeResolution(t *testing.T) {
	m := New()
	m.IndexKey("a", 0)
	m.IndexKey("m", 1)
	m.IndexKey("z", 2)

	shard, ok := m.ShardForKey("n")
	require.True(t, ok)
	require.Equal(t, ShardID(1), shard)

	shards := m.ShardsInRange("a", "n")
	require.ElementsMatch(t, []ShardID{0, 1}, shards)
}
