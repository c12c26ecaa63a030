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

package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/dataset"
)

func TestEncodeScalarTuple(t *testing.T) {
	r := Encode(aggregate.ClassDouble, 1, false, aggregate.Value{Doubles: []float64{15.0}})
	tup, ok := r.(TupleResult)
	require.True(t, ok)
	require.Len(t, tup.Schema, 1)
	require.Equal(t, "result", tup.Schema[0].Name)
	require.Equal(t, 15.0, tup.Tuple["result"])
}

func TestEncodeVectorCardinalityN(t *testing.T) {
	r := Encode(aggregate.ClassDouble, -1, false, aggregate.Value{Doubles: []float64{1, 2, 3}})
	vec, ok := r.(VectorResult)
	require.True(t, ok)
	require.Equal(t, []float64{1, 2, 3}, vec.Vectors["result"])
}

func TestEncodeHistogramTwoColumns(t *testing.T) {
	r := Encode(aggregate.ClassHistogram, -1, true, aggregate.Value{Counts: []int64{3, 1}, BucketMax: []float64{10, 20}})
	vec, ok := r.(VectorResult)
	require.True(t, ok)
	require.Len(t, vec.Schema, 2)
	require.Equal(t, []int64{3, 1}, vec.Vectors["counts"])
	require.Equal(t, []float64{10, 20}, vec.Vectors["bucketMax"])
}

func TestWireRoundTrip(t *testing.T) {
	r := Encode(aggregate.ClassDouble, 1, false, aggregate.Value{Doubles: []float64{42.5}})
	wire, err := EncodeWire(r)
	require.NoError(t, err)
	got, err := DecodeWire(wire)
	require.NoError(t, err)
	tup, ok := got.(TupleResult)
	require.True(t, ok)
	require.InDelta(t, 42.5, tup.Tuple["result"], 0.0001)
}

func TestNaNPreservedVerbatim(t *testing.T) {
	r := Encode(aggregate.ClassDouble, 1, false, aggregate.Value{Doubles: []float64{math.NaN()}})
	tup := r.(TupleResult)
	require.True(t, math.IsNaN(tup.Tuple["result"].(float64)))
}

func TestConcatOfVectorResultsPreservesTypedSlice(t *testing.T) {
	schema := []ColumnSchema{{Name: "value", Type: dataset.Double}}
	a := VectorResult{Schema: schema, Vectors: map[string]any{"value": []float64{1, 2, 3}}}
	b := VectorResult{Schema: schema, Vectors: map[string]any{"value": []float64{4, 5}}}

	got := Concat([]Result{a, b})
	vec, ok := got.(VectorResult)
	require.True(t, ok)
	values, ok := vec.Vectors["value"].([]float64)
	require.True(t, ok)
	require.Equal(t, []float64{1, 2, 3, 4, 5}, values)
}

func TestConcatOfTupleResultsBuildsVector(t *testing.T) {
	schema := []ColumnSchema{{Name: "value", Type: dataset.Double}}
	a := TupleResult{Schema: schema, Tuple: map[string]any{"value": 3.0}}
	b := TupleResult{Schema: schema, Tuple: map[string]any{"value": 5.0}}
	c := TupleResult{Schema: schema, Tuple: map[string]any{"value": 9.0}}

	got := Concat([]Result{a, b, c})
	vec, ok := got.(VectorResult)
	require.True(t, ok)
	values, ok := vec.Vectors["value"].([]float64)
	require.True(t, ok)
	require.Equal(t, []float64{3, 5, 9}, values)
}

func TestConcatEmptyYieldsEmptyVectorResult(t *testing.T) {
	got := Concat(nil)
	vec, ok := got.(VectorResult)
	require.True(t, ok)
	require.Nil(t, vec.Schema)
}
