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

// Package config loads the coordinator's startup configuration: the §6.5
// enumerated query defaults plus the wiring knobs (metastore backend, cluster
// seeds, trace archive directory) SPEC_FULL's ambient/domain stacks add.
// Grounded on storage/settings.go's "typed struct + package-level Settings
// value" shape, generalized from a global mutable var into an explicit value
// threaded through cmd/coordinator, and on its human-size-string fields,
// parsed here with github.com/docker/go-units instead of the teacher's bare
// uint (storage/settings.go's ShardSize is a raw row count; this coordinator
// has no column store of its own to size, so the size knob that remains,
// traceArchiveMaxBytes, genuinely needs byte-unit parsing).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/docker/go-units"
)

// Query mirrors the client-settable defaults of spec.md §6.5.
type Query struct {
	QueryTimeoutSecs             int  `json:"queryTimeoutSecs"`
	Parallelism                  int  `json:"parallelism"`
	ItemLimit                    int  `json:"itemLimit"`
	RequireAllShards             bool `json:"requireAllShards"`
	TestQuerySerialization       bool `json:"testQuerySerialization"`
	ClusterMembershipTimeoutSecs int  `json:"clusterMembershipTimeoutSecs"`
}

// Metastore selects and configures a metastore.Backend (SPEC_FULL §4).
type Metastore struct {
	Kind   string          `json:"kind"` // "memory", "s3", "ceph", "postgres"
	Config json.RawMessage `json:"config"`
}

// Cluster configures membership bootstrap (§6.2) and its hot-reload path
// (SPEC_FULL §4 seeds-file supplement).
type Cluster struct {
	SeedsPath      string `json:"seedsPath"`      // static seeds file, watched via fsnotify
	SeedsURL       string `json:"seedsURL"`       // GET {seedsURL} -> {"members": [...]}
	WatchSeedsFile bool   `json:"watchSeedsFile"`

	// EventStreamURL is the websocket endpoint delivering ShardEvent/
	// CurrentShardSnapshot pushes (§6.2); empty disables live shard-map
	// updates (a router then only ever sees the ShardMap it was built with).
	EventStreamURL string `json:"eventStreamURL"`
}

// Config is the coordinator's fully resolved startup configuration.
type Config struct {
	Query     Query     `json:"query"`
	Metastore Metastore `json:"metastore"`
	Cluster   Cluster   `json:"cluster"`

	// TraceArchiveDir is where completed query Traces are written (empty
	// disables archival). TraceArchiveMaxSize is a human string ("256MB")
	// parsed via go-units, the cold-storage retention budget.
	TraceArchiveDir     string `json:"traceArchiveDir"`
	TraceArchiveMaxSize string `json:"traceArchiveMaxSize"`

	// ListenAddr is the address cmd/coordinator's client-facing listener binds.
	ListenAddr string `json:"listenAddr"`
}

// Default returns a Config with every §6.5 default applied.
func Default() Config {
	return Config{
		Query: Query{
			QueryTimeoutSecs:             30,
			Parallelism:                  16,
			ItemLimit:                    1000,
			ClusterMembershipTimeoutSecs: 10,
		},
		Metastore:           Metastore{Kind: "memory"},
		TraceArchiveMaxSize: "256MB",
		ListenAddr:          ":7890",
	}
}

// Load reads and parses a JSON config file, filling unset fields from
// Default() the way storage/settings.go's SettingsT zero value already
// carries its own defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// QueryTimeout returns the configured query timeout as a time.Duration.
func (c Config) QueryTimeout() time.Duration {
	return time.Duration(c.Query.QueryTimeoutSecs) * time.Second
}

// ClusterMembershipTimeout returns how long cluster bootstrap waits for seeds
// before failing (§6.2).
func (c Config) ClusterMembershipTimeout() time.Duration {
	return time.Duration(c.Query.ClusterMembershipTimeoutSecs) * time.Second
}

// TraceArchiveMaxBytes parses TraceArchiveMaxSize ("256MB", "1GiB", ...) into
// a byte count via github.com/docker/go-units, the same human-size-string
// convention the teacher's config-adjacent fields elsewhere in the pack use.
func (c Config) TraceArchiveMaxBytes() (int64, error) {
	if c.TraceArchiveMaxSize == "" {
		return 0, nil
	}
	return units.RAMInBytes(c.TraceArchiveMaxSize)
}
