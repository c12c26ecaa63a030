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

// Package dataset holds the dataset metadata model: the immutable Dataset
// definition, its Columns, and the registry that the metastore keeps in sync.
package dataset

import "fmt"

// ColumnType is the set of value kinds a Column can carry.
type ColumnType int

const (
	Int ColumnType = iota
	Long
	Double
	Timestamp
	String
	Histogram
)

func (t ColumnType) String() string {
	switch t {
	case Int:
		return "Int"
	case Long:
		return "Long"
	case Double:
		return "Double"
	case Timestamp:
		return "Timestamp"
	case String:
		return "String"
	case Histogram:
		return "Histogram"
	default:
		return "Unknown"
	}
}

// Column is a named, typed field with a stable small column ID.
type Column struct {
	Name string
	Type ColumnType
	ID   int
}

// Ref is a stable identifier for a dataset: an opaque name plus an optional
// database tag. Two Refs with the same Name but different Database are
// distinct datasets.
type Ref struct {
	Name     string
	Database string
}

func (r Ref) String() string {
	if r.Database == "" {
		return r.Name
	}
	return r.Database + "." + r.Name
}

// Dataset is immutable once loaded. Mutating a dataset's schema requires
// registering a new Ref (e.g. bumping a version suffix); this type never
// changes after Registry.Create returns it.
type Dataset struct {
	Ref             Ref
	Columns         []Column
	PartitionKey    []string // ordered partition-key column names
	RowKey          []string // ordered row-key column names, for RowKeyRange scans
	TimestampColumn string   // empty if the dataset has none
}

// ColumnByName resolves a column name to its definition. Column IDs are dense
// and unique within a dataset, so a name resolves to at most one ID.
func (d *Dataset) ColumnByName(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnByID resolves a column ID to its definition. IDs are dense and unique
// within a dataset (§3 invariant).
func (d *Dataset) ColumnByID(id int) (Column, bool) {
	for _, c := range d.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// HasTimestamp reports whether time-based scans are possible on this dataset.
func (d *Dataset) HasTimestamp() bool {
	return d.TimestampColumn != ""
}

func (d *Dataset) String() string {
	return fmt.Sprintf("Dataset(%s, %d columns)", d.Ref, len(d.Columns))
}
