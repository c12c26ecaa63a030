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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, 30, cfg.Query.QueryTimeoutSecs)
	require.Equal(t, 16, cfg.Query.Parallelism)
	require.Equal(t, 1000, cfg.Query.ItemLimit)
	require.False(t, cfg.Query.RequireAllShards)
	require.False(t, cfg.Query.TestQuerySerialization)
	require.Equal(t, "memory", cfg.Metastore.Kind)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"query": {"parallelism": 32, "itemLimit": 500},
		"metastore": {"kind": "s3", "config": {"bucket": "qcoord"}},
		"traceArchiveMaxSize": "1GB"
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 32, cfg.Query.Parallelism)
	require.Equal(t, 500, cfg.Query.ItemLimit)
	require.Equal(t, 30, cfg.Query.QueryTimeoutSecs) // untouched field keeps its default
	require.Equal(t, "s3", cfg.Metastore.Kind)

	bytes, err := cfg.TraceArchiveMaxBytes()
	require.NoError(t, err)
	require.Equal(t, int64(1024*1024*1024), bytes) // RAMInBytes treats GB as a binary gibibyte
}

func TestQueryTimeoutDuration(t *testing.T) {
	cfg := Default()
	require.Equal(t, float64(30), cfg.QueryTimeout().Seconds())
}
