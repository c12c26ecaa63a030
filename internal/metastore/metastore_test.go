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

package metastore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronoshard/qcoord/internal/dataset"
)

func sampleDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Ref:             dataset.Ref{Name: "metrics"},
		Columns:         []dataset.Column{{Name: "t", Type: dataset.Timestamp, ID: 0}, {Name: "value", Type: dataset.Double, ID: 1}},
		TimestampColumn: "t",
	}
}

func TestMemorySaveLoadDelete(t *testing.T) {
	m := NewMemory()
	ds := sampleDataset()

	_, err := m.Load(ds.Ref)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Save(ds.Ref, ds))
	got, err := m.Load(ds.Ref)
	require.NoError(t, err)
	require.Equal(t, ds, got)

	refs, err := m.List()
	require.NoError(t, err)
	require.Equal(t, []dataset.Ref{ds.Ref}, refs)

	require.NoError(t, m.Delete(ds.Ref))
	_, err = m.Load(ds.Ref)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHydratePopulatesRegistry(t *testing.T) {
	m := NewMemory()
	ds := sampleDataset()
	require.NoError(t, m.Save(ds.Ref, ds))

	reg := dataset.NewRegistry()
	require.NoError(t, Hydrate(m, reg))

	got, err := reg.Get(ds.Ref)
	require.NoError(t, err)
	require.Equal(t, ds.Columns, got.Columns)
}

func TestHydrateIsIdempotent(t *testing.T) {
	m := NewMemory()
	ds := sampleDataset()
	require.NoError(t, m.Save(ds.Ref, ds))

	reg := dataset.NewRegistry()
	require.NoError(t, Hydrate(m, reg))
	require.NoError(t, Hydrate(m, reg))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("nonexistent", nil)
	require.Error(t, err)
}

func TestOpenMemoryBackend(t *testing.T) {
	b, err := Open("memory", nil)
	require.NoError(t, err)
	require.NotNil(t, b)
}
