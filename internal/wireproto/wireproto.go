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

// Package wireproto is the JSON bridge between cmd/coordinator's HTTP
// listener and cmd/qcli's network client on one side, and the Go sum types
// plan.Logical/router.Reply on the other. Neither sum type carries a JSON
// discriminator (plan.Logical's variants use unexported marker methods, the
// same "no virtual-dispatch hierarchy" posture codec.Result and router.Reply
// also use), so this package supplies one flat, tagged DTO per direction,
// grounded on codec.go's own envelope/wireEnvelope pattern for Result.
package wireproto

import (
	"fmt"

	"github.com/chronoshard/qcoord/internal/codec"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/router"
	"github.com/chronoshard/qcoord/internal/store"
)

// PlanRequest is the client-facing LogicalPlanQuery shape (§6.3): a flat,
// JSON-tagged DTO covering every plan.Logical variant, nested via Child for
// ReduceEach/ReducePartitions.
type PlanRequest struct {
	Kind string `json:"kind"` // "partitionsInstant" | "partitionsRange" | "reduceEach" | "reducePartitions"

	// PartitionsInstant / PartitionsRange
	AllPartitions bool     `json:"allPartitions,omitempty"`
	PartitionKeys []string `json:"partitionKeys,omitempty"`
	Columns       []string `json:"columns,omitempty"`

	// PartitionsRange's DataQuery
	AllChunks   bool   `json:"allChunks,omitempty"`
	MostRecent  bool   `json:"mostRecent,omitempty"`
	HasRange    bool   `json:"hasRange,omitempty"`
	StartMs     int64  `json:"startMs,omitempty"`
	EndMs       int64  `json:"endMs,omitempty"`
	HasRowKey   bool   `json:"hasRowKey,omitempty"`
	RowKeyStart string `json:"rowKeyStart,omitempty"`
	RowKeyEnd   string `json:"rowKeyEnd,omitempty"`

	// ReduceEach
	AggFunc string   `json:"aggFunc,omitempty"`
	AggArgs []string `json:"aggArgs,omitempty"`

	// ReducePartitions
	CombFunc string   `json:"combFunc,omitempty"`
	CombArgs []string `json:"combArgs,omitempty"`

	Child *PlanRequest `json:"child,omitempty"`
}

// ToLogical builds the plan.Logical tree ToLogical's Kind selects, recursing
// into Child for the two wrapper variants.
func (p *PlanRequest) ToLogical() (plan.Logical, error) {
	if p == nil {
		return nil, fmt.Errorf("wireproto: nil plan request")
	}
	switch p.Kind {
	case "partitionsInstant":
		return plan.PartitionsInstant{
			PartQuery: p.partQuery(),
			Columns:   p.Columns,
		}, nil
	case "partitionsRange":
		return plan.PartitionsRange{
			PartQuery: p.partQuery(),
			DataQuery: p.dataQuery(),
			Columns:   p.Columns,
		}, nil
	case "reduceEach":
		child, err := p.Child.ToLogical()
		if err != nil {
			return nil, fmt.Errorf("wireproto: reduceEach.child: %w", err)
		}
		return plan.ReduceEach{
			AggFunc: p.AggFunc,
			AggArgs: p.AggArgs,
			Child:   child,
		}, nil
	case "reducePartitions":
		child, err := p.Child.ToLogical()
		if err != nil {
			return nil, fmt.Errorf("wireproto: reducePartitions.child: %w", err)
		}
		return plan.ReducePartitions{
			CombFunc: p.CombFunc,
			CombArgs: p.CombArgs,
			Child:    child,
		}, nil
	default:
		return nil, fmt.Errorf("wireproto: unknown plan kind %q", p.Kind)
	}
}

func (p *PlanRequest) partQuery() plan.PartQuery {
	return plan.PartQuery{AllPartitions: p.AllPartitions, Keys: p.PartitionKeys}
}

func (p *PlanRequest) dataQuery() plan.DataQuery {
	return plan.DataQuery{
		AllChunks:  p.AllChunks,
		MostRecent: p.MostRecent,
		StartMs:    p.StartMs,
		EndMs:      p.EndMs,
		HasRange:   p.HasRange,
		RowStart:   p.RowKeyStart,
		RowEnd:     p.RowKeyEnd,
		HasRowKey:  p.HasRowKey,
	}
}

// FromLogical is PlanRequest's inverse, used by cmd/qcli to build a request
// from REPL input without hand-assembling field-by-field literals twice.
func FromLogical(l plan.Logical) (*PlanRequest, error) {
	switch v := l.(type) {
	case plan.PartitionsInstant:
		return &PlanRequest{
			Kind:          "partitionsInstant",
			AllPartitions: v.PartQuery.AllPartitions,
			PartitionKeys: v.PartQuery.Keys,
			Columns:       v.Columns,
		}, nil
	case plan.PartitionsRange:
		return &PlanRequest{
			Kind:          "partitionsRange",
			AllPartitions: v.PartQuery.AllPartitions,
			PartitionKeys: v.PartQuery.Keys,
			Columns:       v.Columns,
			AllChunks:     v.DataQuery.AllChunks,
			MostRecent:    v.DataQuery.MostRecent,
			HasRange:      v.DataQuery.HasRange,
			StartMs:       v.DataQuery.StartMs,
			EndMs:         v.DataQuery.EndMs,
			HasRowKey:     v.DataQuery.HasRowKey,
			RowKeyStart:   v.DataQuery.RowStart,
			RowKeyEnd:     v.DataQuery.RowEnd,
		}, nil
	case plan.ReduceEach:
		child, err := FromLogical(v.Child)
		if err != nil {
			return nil, err
		}
		return &PlanRequest{Kind: "reduceEach", AggFunc: v.AggFunc, AggArgs: v.AggArgs, Child: child}, nil
	case plan.ReducePartitions:
		child, err := FromLogical(v.Child)
		if err != nil {
			return nil, err
		}
		return &PlanRequest{Kind: "reducePartitions", CombFunc: v.CombFunc, CombArgs: v.CombArgs, Child: child}, nil
	default:
		return nil, fmt.Errorf("wireproto: unrecognized logical plan %T", l)
	}
}

// Response is the JSON-marshalable shape of a router.Reply, mirroring
// codec.go's envelope/wireEnvelope split for the same reason: Reply is a
// sealed interface with no exported discriminator.
type Response struct {
	Kind string `json:"kind"` // "result" | "error" | "badQuery" | "badArgument" | "wrongNumberOfArgs" | "indexNames" | "indexValues" | "ack"

	QueryID int64  `json:"queryId,omitempty"`
	Error   string `json:"error,omitempty"`

	Result *ResultDTO `json:"result,omitempty"`

	Given    int `json:"given,omitempty"`
	Expected int `json:"expected,omitempty"`

	Names     []store.IndexName `json:"names,omitempty"`
	Values    []string          `json:"values,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
}

// ResultDTO is codec.Result's JSON shape, distinguishing TupleResult from
// VectorResult the same way codec.go's own wire envelope does.
type ResultDTO struct {
	Kind    string               `json:"kind"` // "tuple" | "vector"
	Schema  []codec.ColumnSchema `json:"schema"`
	Tuple   map[string]any       `json:"tuple,omitempty"`
	Vectors map[string]any       `json:"vectors,omitempty"`
}

func resultToDTO(r codec.Result) *ResultDTO {
	switch x := r.(type) {
	case codec.TupleResult:
		return &ResultDTO{Kind: "tuple", Schema: x.Schema, Tuple: x.Tuple}
	case codec.VectorResult:
		return &ResultDTO{Kind: "vector", Schema: x.Schema, Vectors: x.Vectors}
	default:
		return nil
	}
}

// FromReply translates a router.Reply into its wire Response.
func FromReply(reply router.Reply) Response {
	switch r := reply.(type) {
	case router.QueryResult:
		res, ok := r.Result.(codec.Result)
		if !ok {
			return Response{Kind: "error", QueryID: r.QueryID, Error: fmt.Sprintf("wireproto: unexpected result type %T", r.Result)}
		}
		return Response{Kind: "result", QueryID: r.QueryID, Result: resultToDTO(res)}
	case router.QueryError:
		return Response{Kind: "error", QueryID: r.QueryID, Error: r.Cause.Error()}
	case router.BadQuery:
		return Response{Kind: "badQuery", Error: r.Reason}
	case router.BadArgument:
		return Response{Kind: "badArgument", Error: r.Reason}
	case router.WrongNumberOfArgs:
		return Response{Kind: "wrongNumberOfArgs", Given: r.Given, Expected: r.Expected}
	case router.IndexNamesResult:
		return Response{Kind: "indexNames", Names: r.Names, Truncated: r.Truncated}
	case router.IndexValuesResult:
		return Response{Kind: "indexValues", Values: r.Values, Truncated: r.Truncated}
	case router.Ack:
		return Response{Kind: "ack"}
	default:
		return Response{Kind: "error", Error: fmt.Sprintf("wireproto: unrecognized reply %T", reply)}
	}
}
