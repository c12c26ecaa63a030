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

// Package codec packs Aggregate values into the tuple/vector result shape
// clients expect (§4.6, §6.4), and compresses the wire form with lz4 for the
// scatter/gather hot path.
package codec

import (
	"bytes"
	"encoding/json"

	"github.com/pierrec/lz4/v4"

	"github.com/chronoshard/qcoord/internal/aggregate"
	"github.com/chronoshard/qcoord/internal/dataset"
)

// ColumnSchema is one (name, type) pair of a Result's schema.
type ColumnSchema struct {
	Name string
	Type dataset.ColumnType
}

// Result is the sealed wire-result sum type (§6.4).
type Result interface {
	isResult()
}

// TupleResult is a single named-column record.
type TupleResult struct {
	Schema []ColumnSchema
	Tuple  map[string]any
}

func (TupleResult) isResult() {}

// VectorResult wraps one or more typed column vectors of equal length.
type VectorResult struct {
	Schema  []ColumnSchema
	Vectors map[string]any
}

func (VectorResult) isResult() {}

// Encode maps an Aggregate to its wire Result, per the table in §4.6:
//   - Int/Long/Double, cardinality 1  -> TupleResult{result}
//   - Int/Long/Double, cardinality N  -> VectorResult{result}
//   - Histogram                       -> VectorResult{counts, bucketMax}
//
// Numeric widths: integer aggregators emit 32-bit unless Wide() is true for
// 64-bit; NaN/±Inf are preserved verbatim for doubles (no clamping/rounding).
func Encode(class aggregate.ResultClass, cardinality int, wide bool, v aggregate.Value) Result {
	if class == aggregate.ClassHistogram {
		return VectorResult{
			Schema: []ColumnSchema{
				{Name: "counts", Type: dataset.Long},
				{Name: "bucketMax", Type: dataset.Double},
			},
			Vectors: map[string]any{
				"counts":    v.Counts,
				"bucketMax": v.BucketMax,
			},
		}
	}

	colType, val := encodeScalarClass(class, wide, v)
	if cardinality == 1 {
		return TupleResult{
			Schema: []ColumnSchema{{Name: "result", Type: colType}},
			Tuple:  map[string]any{"result": firstOf(val)},
		}
	}
	return VectorResult{
		Schema:  []ColumnSchema{{Name: "result", Type: colType}},
		Vectors: map[string]any{"result": val},
	}
}

func encodeScalarClass(class aggregate.ResultClass, wide bool, v aggregate.Value) (dataset.ColumnType, any) {
	switch class {
	case aggregate.ClassDouble:
		return dataset.Double, v.Doubles
	case aggregate.ClassLong:
		if wide {
			return dataset.Long, v.Longs
		}
		ints := make([]int32, len(v.Longs))
		for i, x := range v.Longs {
			ints[i] = int32(x)
		}
		return dataset.Int, ints
	case aggregate.ClassInt:
		if wide {
			longs := make([]int64, len(v.Ints))
			for i, x := range v.Ints {
				longs[i] = int64(x)
			}
			return dataset.Long, longs
		}
		return dataset.Int, v.Ints
	default:
		return dataset.Double, v.Doubles
	}
}

func firstOf(val any) any {
	switch v := val.(type) {
	case []float64:
		if len(v) > 0 {
			return v[0]
		}
		return float64(0)
	case []int32:
		if len(v) > 0 {
			return v[0]
		}
		return int32(0)
	case []int64:
		if len(v) > 0 {
			return v[0]
		}
		return int64(0)
	default:
		return val
	}
}

// Concat merges several per-partition/per-shard Results of identical schema
// (as LocalVectorReader/StreamLastTuple plans produce, one per shard, §4.2
// rules 1-2) into a single VectorResult by appending rows column-by-column,
// in the order given — callers pass elements already ordered ascending
// shard ID, then submission order within a shard (§4.3, §5). Each column
// keeps its declared ColumnType's concrete slice type throughout, matching
// VectorResult's own contract, rather than boxing into []any. An empty input
// yields an empty VectorResult with no schema.
func Concat(results []Result) Result {
	if len(results) == 0 {
		return VectorResult{}
	}
	schema := schemaOf(results[0])
	vectors := make(map[string]any, len(schema))
	for _, r := range results {
		for _, col := range schema {
			vectors[col.Name] = appendColumn(vectors[col.Name], col.Type, valueOf(r, col.Name))
		}
	}
	return VectorResult{Schema: schema, Vectors: vectors}
}

func schemaOf(r Result) []ColumnSchema {
	switch x := r.(type) {
	case TupleResult:
		return x.Schema
	case VectorResult:
		return x.Schema
	default:
		return nil
	}
}

// valueOf returns one Result's value for a column: a single scalar for a
// TupleResult row, or the whole typed vector for a VectorResult.
func valueOf(r Result, name string) any {
	switch x := r.(type) {
	case TupleResult:
		return x.Tuple[name]
	case VectorResult:
		return x.Vectors[name]
	default:
		return nil
	}
}

// appendColumn appends src (a scalar or a slice of colType's concrete type)
// onto dst, returning dst's new value still typed as colType's slice kind.
func appendColumn(dst any, colType dataset.ColumnType, src any) any {
	switch colType {
	case dataset.Double:
		out, _ := dst.([]float64)
		switch v := src.(type) {
		case []float64:
			return append(out, v...)
		case float64:
			return append(out, v)
		default:
			return out
		}
	case dataset.Long:
		out, _ := dst.([]int64)
		switch v := src.(type) {
		case []int64:
			return append(out, v...)
		case int64:
			return append(out, v)
		default:
			return out
		}
	case dataset.Int:
		out, _ := dst.([]int32)
		switch v := src.(type) {
		case []int32:
			return append(out, v...)
		case int32:
			return append(out, v)
		default:
			return out
		}
	case dataset.String:
		out, _ := dst.([]string)
		switch v := src.(type) {
		case []string:
			return append(out, v...)
		case string:
			return append(out, v)
		default:
			return out
		}
	case dataset.Timestamp:
		out, _ := dst.([]int64)
		switch v := src.(type) {
		case []int64:
			return append(out, v...)
		case int64:
			return append(out, v)
		default:
			return out
		}
	default:
		return dst
	}
}

// EncodeWire JSON-marshals r and lz4-compresses the bytes, for transport
// between router and shard executor across nodes.
func EncodeWire(r Result) ([]byte, error) {
	raw, err := json.Marshal(wireEnvelope(r))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWire reverses EncodeWire.
func DecodeWire(b []byte) (Result, error) {
	r := lz4.NewReader(bytes.NewReader(b))
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, err
	}
	return env.toResult(), nil
}

// envelope is the JSON-serializable shape of Result, since Result is an
// interface and encoding/json cannot marshal interfaces without a
// discriminator.
type envelope struct {
	Kind    string         `json:"kind"`
	Schema  []ColumnSchema `json:"schema"`
	Tuple   map[string]any `json:"tuple,omitempty"`
	Vectors map[string]any `json:"vectors,omitempty"`
}

func wireEnvelope(r Result) envelope {
	switch x := r.(type) {
	case TupleResult:
		return envelope{Kind: "tuple", Schema: x.Schema, Tuple: x.Tuple}
	case VectorResult:
		return envelope{Kind: "vector", Schema: x.Schema, Vectors: x.Vectors}
	default:
		return envelope{}
	}
}

func (e envelope) toResult() Result {
	if e.Kind == "vector" {
		return VectorResult{Schema: e.Schema, Vectors: e.Vectors}
	}
	return TupleResult{Schema: e.Schema, Tuple: e.Tuple}
}
