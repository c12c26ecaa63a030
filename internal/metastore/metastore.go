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

// Package metastore persists dataset definitions — the external collaborator
// spec.md §1 names but does not specify the shape of. It generalizes the
// teacher's storage/persistence.go PersistenceEngine/PersistenceFactory
// pair (schema.json + per-shard column/log files) down to the one artifact
// this coordinator actually owns: a dataset's Ref->schema mapping, not its
// column data. A pluggable, config-selected Backend replaces the teacher's
// BackendRegistry (storage/persistence-s3.go, persistence-ceph.go): an
// in-process map for tests and single-node demos, S3/Ceph/Postgres for real
// deployments sharing a metastore across coordinator nodes.
package metastore

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/chronoshard/qcoord/internal/dataset"
)

// ErrNotFound is returned by Backend.Load when ref has no stored definition.
var ErrNotFound = errors.New("metastore: dataset not found")

// Backend persists and retrieves dataset definitions. cmd/coordinator calls
// Save and Delete straight from its HTTP handlers; no Router sits in front of
// these calls to serialize them.
type Backend interface {
	Load(ref dataset.Ref) (*dataset.Dataset, error)
	Save(ref dataset.Ref, d *dataset.Dataset) error
	Delete(ref dataset.Ref) error
	List() ([]dataset.Ref, error)
}

// Factory builds a Backend from its raw JSON config block alone, registered
// at init time the way storage/persistence-ceph.go's BackendRegistry entries
// are (those also take a dbName; this one does not).
type Factory func(raw json.RawMessage) (Backend, error)

// BackendRegistry maps a config's `kind` field to the Factory that builds it.
// s3.go, postgres.go, and ceph.go each register their own entry via init().
var BackendRegistry = map[string]Factory{
	"memory": func(json.RawMessage) (Backend, error) { return NewMemory(), nil },
}

// Open resolves kind against BackendRegistry and builds a Backend from raw.
func Open(kind string, raw json.RawMessage) (Backend, error) {
	factory, ok := BackendRegistry[kind]
	if !ok {
		return nil, errors.New("metastore: unknown backend kind " + kind)
	}
	return factory(raw)
}

// datasetRecord is the wire shape a Dataset definition is marshaled to/from;
// decoupled from dataset.Dataset itself so storage-layer field renames don't
// silently change the JSON schema already written by a running deployment.
type datasetRecord struct {
	Ref             dataset.Ref      `json:"ref"`
	Columns         []dataset.Column `json:"columns"`
	PartitionKey    []string         `json:"partitionKey"`
	RowKey          []string         `json:"rowKey"`
	TimestampColumn string           `json:"timestampColumn"`
}

func toRecord(d *dataset.Dataset) datasetRecord {
	return datasetRecord{
		Ref:             d.Ref,
		Columns:         d.Columns,
		PartitionKey:    d.PartitionKey,
		RowKey:          d.RowKey,
		TimestampColumn: d.TimestampColumn,
	}
}

func (r datasetRecord) toDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Ref:             r.Ref,
		Columns:         r.Columns,
		PartitionKey:    r.PartitionKey,
		RowKey:          r.RowKey,
		TimestampColumn: r.TimestampColumn,
	}
}

// Memory is an in-process Backend: the default for tests and single-node
// demos, equivalent to the teacher's tables map before any PersistenceEngine
// is attached.
type Memory struct {
	mu   sync.RWMutex
	sets map[dataset.Ref]*dataset.Dataset
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{sets: make(map[dataset.Ref]*dataset.Dataset)}
}

func (m *Memory) Load(ref dataset.Ref) (*dataset.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.sets[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *Memory) Save(ref dataset.Ref, d *dataset.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[ref] = d
	return nil
}

func (m *Memory) Delete(ref dataset.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, ref)
	return nil
}

func (m *Memory) List() ([]dataset.Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dataset.Ref, 0, len(m.sets))
	for ref := range m.sets {
		out = append(out, ref)
	}
	return out, nil
}

// Hydrate loads every dataset a Backend knows about into reg, the startup
// step cmd/coordinator runs before it creates any router. A router leaves
// Initializing for Ready as soon as Router.SetDataset installs its dataset
// (or a CurrentShardSnapshot arrives), whichever comes first.
func Hydrate(b Backend, reg *dataset.Registry) error {
	refs, err := b.List()
	if err != nil {
		return err
	}
	for _, ref := range refs {
		d, err := b.Load(ref)
		if err != nil {
			return err
		}
		if err := reg.Create(d); err != nil && !errors.Is(err, dataset.ErrAlreadyExists) {
			return err
		}
	}
	return nil
}
