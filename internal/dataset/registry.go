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

package dataset

import (
	"errors"
	"sync"
)

// ErrAlreadyExists is returned by Registry.Create when the Ref is already
// registered.
var ErrAlreadyExists = errors.New("dataset already exists")

// ErrNotFound is returned by Registry.Get when the Ref is unknown.
var ErrNotFound = errors.New("dataset not found")

// Registry is the in-process dataset catalog: the narrow view of the
// metastore (§1, external collaborator) that the rest of the coordinator
// consumes. It is generalized from memcp's package-level
// `tables map[string]*table` in storage/storage.go into a keyed, mutex-guarded
// registry of immutable Dataset values.
type Registry struct {
	mu   sync.RWMutex
	sets map[Ref]*Dataset
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sets: make(map[Ref]*Dataset)}
}

// Create registers a new Dataset. It fails with ErrAlreadyExists if the Ref is
// already registered — datasets are immutable once loaded; to change a schema,
// register a new Ref.
func (r *Registry) Create(d *Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[d.Ref]; ok {
		return ErrAlreadyExists
	}
	r.sets[d.Ref] = d
	return nil
}

// Get resolves a Ref to its Dataset, or ErrNotFound.
func (r *Registry) Get(ref Ref) (*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sets[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// Delete removes a dataset's registration. Deleting an unregistered Ref is
// treated as Success for idempotence (see DESIGN.md open-question decision),
// not as ErrNotFound.
func (r *Registry) Delete(ref Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, ref)
	return nil
}

// List returns every registered Ref, for admin/introspection use.
func (r *Registry) List() []Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Ref, 0, len(r.sets))
	for ref := range r.sets {
		out = append(out, ref)
	}
	return out
}
