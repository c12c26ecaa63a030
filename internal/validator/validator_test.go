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

package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/shardmap"
)

func testDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Ref: dataset.Ref{Name: "foo"},
		Columns: []dataset.Column{
			{Name: "t", Type: dataset.Timestamp, ID: 0},
			{Name: "value", Type: dataset.Double, ID: 1},
		},
		TimestampColumn: "t",
	}
}

func TestResolveColumnsUnknown(t *testing.T) {
	v := New(aggregate.NewRegistry())
	_, err := v.ResolveColumns(testDataset(), []string{"nope"})
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, UnknownColumn, verr.Kind)
	require.Equal(t, "UnknownColumn(nope)", verr.Error())
}

func TestResolveAggregatorWrongArity(t *testing.T) {
	v := New(aggregate.NewRegistry())
	ds := testDataset()
	col, _ := ds.ColumnByName("value")
	_, err := v.ResolveAggregator("sum", col, []string{"a", "b"}, ds, plan.ChunkScanMethod{Kind: plan.AllChunks})
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, WrongArity, verr.Kind)
}

func TestResolveAggregatorUnknownFunction(t *testing.T) {
	v := New(aggregate.NewRegistry())
	ds := testDataset()
	col, _ := ds.ColumnByName("value")
	_, err := v.ResolveAggregator("bogus", col, nil, ds, plan.ChunkScanMethod{Kind: plan.AllChunks})
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, NoSuchFunction, verr.Kind)
}

func TestResolveAggregatorCaseInsensitive(t *testing.T) {
	v := New(aggregate.NewRegistry())
	ds := testDataset()
	col, _ := ds.ColumnByName("value")
	_, err := v.ResolveAggregator("SuM", col, nil, ds, plan.ChunkScanMethod{Kind: plan.AllChunks})
	require.NoError(t, err)
}

func TestValidateDataQueryRequiresTimestamp(t *testing.T) {
	v := New(aggregate.NewRegistry())
	ds := &dataset.Dataset{Ref: dataset.Ref{Name: "no-ts"}, Columns: []dataset.Column{{Name: "value", Type: dataset.Double}}}
	_, err := v.ValidateDataQuery(ds, plan.DataQuery{HasRange: true, StartMs: 0, EndMs: 100})
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, NoTimestampColumn, verr.Kind)
}

func TestValidatePartQueryOmitsInactiveUnlessRequired(t *testing.T) {
	v := New(aggregate.NewRegistry())
	sm := shardmap.New()
	sm.IndexKey("p1", 0)
	sm.IndexKey("p2", 1)
	sm.Assign(1, 0, "node-a", shardmap.Active)
	sm.Assign(1, 1, "node-b", shardmap.Recovering)

	methods, err := v.ValidatePartQuery(sm, plan.PartQuery{Keys: []string{"p1", "p2"}}, Options{})
	require.NoError(t, err)
	require.Len(t, methods, 1)

	_, err = v.ValidatePartQuery(sm, plan.PartQuery{Keys: []string{"p1", "p2"}}, Options{RequireAllShards: true})
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ShardNotActive, verr.Kind)
}
