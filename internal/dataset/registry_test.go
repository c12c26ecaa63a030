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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCreateThenGet(t *testing.T) {
	r := NewRegistry()
	ref := Ref{Name: "foo"}
	d := &Dataset{
		Ref:             ref,
		Columns:         []Column{{Name: "t", Type: Timestamp, ID: 0}, {Name: "value", Type: Double, ID: 1}},
		PartitionKey:    []string{"seg"},
		TimestampColumn: "t",
	}

	require.NoError(t, r.Create(d))
	require.ErrorIs(t, r.Create(d), ErrAlreadyExists)

	got, err := r.Get(ref)
	require.NoError(t, err)
	require.Same(t, d, got)

	_, err = r.Get(Ref{Name: "missing"})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Delete(ref))
	_, err = r.Get(ref)
	require.ErrorIs(t, err, ErrNotFound)

	// deleting an already-absent dataset is idempotent, not an error
	require.NoError(t, r.Delete(ref))
}
