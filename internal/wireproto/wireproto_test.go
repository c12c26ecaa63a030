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

package wireproto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronoshard/qcoord/internal/codec"
	"github.com/chronoshard/qcoord/internal/dataset"
	"github.com/chronoshard/qcoord/internal/plan"
	"github.com/chronoshard/qcoord/internal/router"
	"github.com/chronoshard/qcoord/internal/store"
)

func TestPlanRequestRoundTripsReducePartitions(t *testing.T) {
	logical := plan.ReducePartitions{
		CombFunc: "sum",
		Child: plan.ReduceEach{
			AggFunc: "sum",
			AggArgs: []string{"value"},
			Child: plan.PartitionsRange{
				PartQuery: plan.PartQuery{AllPartitions: true},
				DataQuery: plan.DataQuery{AllChunks: true},
				Columns:   []string{"value"},
			},
		},
	}

	req, err := FromLogical(logical)
	require.NoError(t, err)
	require.Equal(t, "reducePartitions", req.Kind)

	back, err := req.ToLogical()
	require.NoError(t, err)
	require.Equal(t, logical, back)
}

func TestPlanRequestUnknownKindErrors(t *testing.T) {
	req := &PlanRequest{Kind: "bogus"}
	_, err := req.ToLogical()
	require.Error(t, err)
}

func TestPlanRequestNilChildErrors(t *testing.T) {
	req := &PlanRequest{Kind: "reduceEach", AggFunc: "sum"}
	_, err := req.ToLogical()
	require.Error(t, err)
}

func TestFromReplyQueryResultTuple(t *testing.T) {
	res := codec.TupleResult{
		Schema: []codec.ColumnSchema{{Name: "result", Type: dataset.Double}},
		Tuple:  map[string]any{"result": 15.0},
	}
	resp := FromReply(router.QueryResult{QueryID: 7, Result: res})
	require.Equal(t, "result", resp.Kind)
	require.Equal(t, int64(7), resp.QueryID)
	require.NotNil(t, resp.Result)
	require.Equal(t, "tuple", resp.Result.Kind)
	require.Equal(t, 15.0, resp.Result.Tuple["result"])
}

func TestFromReplyQueryError(t *testing.T) {
	resp := FromReply(router.QueryError{QueryID: 3, Cause: errors.New("boom")})
	require.Equal(t, "error", resp.Kind)
	require.Equal(t, "boom", resp.Error)
}

func TestFromReplyWrongNumberOfArgs(t *testing.T) {
	resp := FromReply(router.WrongNumberOfArgs{Given: 1, Expected: 2})
	require.Equal(t, "wrongNumberOfArgs", resp.Kind)
	require.Equal(t, 1, resp.Given)
	require.Equal(t, 2, resp.Expected)
}

func TestFromReplyIndexNames(t *testing.T) {
	resp := FromReply(router.IndexNamesResult{
		Names:     []store.IndexName{{Name: "region", Cardinality: 4}},
		Truncated: true,
	})
	require.Equal(t, "indexNames", resp.Kind)
	require.True(t, resp.Truncated)
	require.Len(t, resp.Names, 1)
}

func TestFromReplyAck(t *testing.T) {
	resp := FromReply(router.Ack{})
	require.Equal(t, "ack", resp.Kind)
}
