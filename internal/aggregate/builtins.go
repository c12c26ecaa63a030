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

package aggregate

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/chronoshard/qcoord/internal/dataset"
)

func registerBuiltins(r *Registry) {
	r.RegisterAggregator("sum", 0, newSumAgg)
	r.RegisterAggregator("count", 0, newCountAgg)
	r.RegisterAggregator("avg", 0, newAvgAgg)
	r.RegisterAggregator("min", 0, newMinAgg)
	r.RegisterAggregator("max", 0, newMaxAgg)
	r.RegisterAggregator("last", 0, newLastAgg)
	r.RegisterAggregator("topk", 1, newTopKAgg)
	r.RegisterAggregator("histogram", 1, newHistogramAgg)

	r.RegisterCombiner("sum", 0, newSumCombiner)
	r.RegisterCombiner("min", 0, newMinCombiner)
	r.RegisterCombiner("max", 0, newMaxCombiner)
	r.RegisterCombiner("count", 0, newSumCombiner) // merging counts is itself a sum
	r.RegisterCombiner("avg", 0, newAvgCombiner)
	r.RegisterCombiner("topk", 1, newTopKCombiner)
	r.RegisterCombiner("histogram", 0, newHistogramCombiner)
}

// --- sum ---

type sumAgg struct{ total float64 }

func newSumAgg(col dataset.Column, args []string) (Aggregator, error) { return &sumAgg{}, nil }
func (a *sumAgg) Init()                                               { a.total = 0 }
func (a *sumAgg) FoldChunk(c Chunk) bool {
	for _, v := range c.Values {
		a.total += v
	}
	return false
}
func (a *sumAgg) Finalize() Value      { return Value{Doubles: []float64{a.total}} }
func (a *sumAgg) ResultClass() ResultClass { return ClassDouble }
func (a *sumAgg) Cardinality() int     { return 1 }
func (a *sumAgg) Wide() bool           { return false }

// --- count ---

type countAgg struct{ n int64 }

func newCountAgg(col dataset.Column, args []string) (Aggregator, error) { return &countAgg{}, nil }
func (a *countAgg) Init()                                               { a.n = 0 }
func (a *countAgg) FoldChunk(c Chunk) bool {
	a.n += int64(len(c.Values))
	return false
}
func (a *countAgg) Finalize() Value      { return Value{Longs: []int64{a.n}} }
func (a *countAgg) ResultClass() ResultClass { return ClassLong }
func (a *countAgg) Cardinality() int     { return 1 }
func (a *countAgg) Wide() bool           { return true }

// --- avg (accumulates sum and count; Finalize emits only their quotient) ---

type avgAgg struct {
	sum float64
	n   int64
}

func newAvgAgg(col dataset.Column, args []string) (Aggregator, error) { return &avgAgg{}, nil }
func (a *avgAgg) Init()                                               { a.sum, a.n = 0, 0 }
func (a *avgAgg) FoldChunk(c Chunk) bool {
	for _, v := range c.Values {
		a.sum += v
		a.n++
	}
	return false
}
func (a *avgAgg) Finalize() Value {
	if a.n == 0 {
		return Value{Doubles: []float64{0}}
	}
	return Value{Doubles: []float64{a.sum / float64(a.n)}}
}
func (a *avgAgg) ResultClass() ResultClass { return ClassDouble }
func (a *avgAgg) Cardinality() int         { return 1 }
func (a *avgAgg) Wide() bool               { return false }

// --- min / max ---

type extremeAgg struct {
	val     float64
	set     bool
	wantMax bool
}

func newMinAgg(col dataset.Column, args []string) (Aggregator, error) {
	return &extremeAgg{wantMax: false}, nil
}
func newMaxAgg(col dataset.Column, args []string) (Aggregator, error) {
	return &extremeAgg{wantMax: true}, nil
}
func (a *extremeAgg) Init() { a.set = false; a.val = 0 }
func (a *extremeAgg) FoldChunk(c Chunk) bool {
	for _, v := range c.Values {
		if !a.set || (a.wantMax && v > a.val) || (!a.wantMax && v < a.val) {
			a.val, a.set = v, true
		}
	}
	return false
}
func (a *extremeAgg) Finalize() Value          { return Value{Doubles: []float64{a.val}} }
func (a *extremeAgg) ResultClass() ResultClass { return ClassDouble }
func (a *extremeAgg) Cardinality() int         { return 1 }
func (a *extremeAgg) Wide() bool               { return false }

// --- last (most recent sample, per PartitionsInstant) ---

type lastAgg struct {
	val  float64
	ts   int64
	seen bool
}

func newLastAgg(col dataset.Column, args []string) (Aggregator, error) { return &lastAgg{}, nil }
func (a *lastAgg) Init()                                               { *a = lastAgg{} }
func (a *lastAgg) FoldChunk(c Chunk) bool {
	for i, v := range c.Values {
		ts := int64(i)
		if c.Timestamps != nil {
			ts = c.Timestamps[i]
		}
		if !a.seen || ts >= a.ts {
			a.val, a.ts, a.seen = v, ts, true
		}
	}
	return false
}
func (a *lastAgg) Finalize() Value          { return Value{Doubles: []float64{a.val}} }
func (a *lastAgg) ResultClass() ResultClass { return ClassDouble }
func (a *lastAgg) Cardinality() int         { return 1 }
func (a *lastAgg) Wide() bool               { return false }

// --- topk ---

type topKAgg struct {
	k      int
	values []float64
}

func newTopKAgg(col dataset.Column, args []string) (Aggregator, error) {
	k := 1
	if len(args) == 1 {
		fmt.Sscanf(args[0], "%d", &k)
	}
	if k < 1 {
		return nil, fmt.Errorf("topk: k must be >= 1")
	}
	return &topKAgg{k: k}, nil
}
func (a *topKAgg) Init() { a.values = a.values[:0] }
func (a *topKAgg) FoldChunk(c Chunk) bool {
	a.values = append(a.values, c.Values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(a.values)))
	if len(a.values) > a.k {
		a.values = a.values[:a.k]
	}
	return len(a.values) >= a.k // "the aggregator signals done" once k items are held (§4.4)
}
func (a *topKAgg) Finalize() Value          { return Value{Doubles: append([]float64(nil), a.values...)} }
func (a *topKAgg) ResultClass() ResultClass { return ClassDouble }
func (a *topKAgg) Cardinality() int         { return -1 } // N, size varies up to k
func (a *topKAgg) Wide() bool               { return false }

// --- histogram ---

type histogramAgg struct {
	bucketMax []float64
	counts    []decimal.Decimal
}

func newHistogramAgg(col dataset.Column, args []string) (Aggregator, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("histogram: expected bucket spec argument")
	}
	bounds, err := parseBucketSpec(args[0])
	if err != nil {
		return nil, err
	}
	return &histogramAgg{bucketMax: bounds, counts: make([]decimal.Decimal, len(bounds))}, nil
}

func parseBucketSpec(spec string) ([]float64, error) {
	var n int
	var lo, hi float64
	if _, err := fmt.Sscanf(spec, "%d:%f:%f", &n, &lo, &hi); err != nil || n < 1 || hi <= lo {
		return nil, fmt.Errorf("histogram: bad bucket spec %q", spec)
	}
	bounds := make([]float64, n)
	step := (hi - lo) / float64(n)
	for i := range bounds {
		bounds[i] = lo + step*float64(i+1)
	}
	return bounds, nil
}

func (a *histogramAgg) Init() {
	for i := range a.counts {
		a.counts[i] = decimal.Zero
	}
}
func (a *histogramAgg) FoldChunk(c Chunk) bool {
	one := decimal.NewFromInt(1)
	for _, v := range c.Values {
		idx := sort.SearchFloat64s(a.bucketMax, v)
		if idx >= len(a.bucketMax) {
			idx = len(a.bucketMax) - 1
		}
		a.counts[idx] = a.counts[idx].Add(one)
	}
	return false
}
func (a *histogramAgg) Finalize() Value {
	counts := make([]int64, len(a.counts))
	for i, c := range a.counts {
		counts[i] = c.IntPart()
	}
	return Value{Counts: counts, BucketMax: append([]float64(nil), a.bucketMax...)}
}
func (a *histogramAgg) ResultClass() ResultClass { return ClassHistogram }
func (a *histogramAgg) Cardinality() int         { return -1 }
func (a *histogramAgg) Wide() bool               { return true }

// --- combiners ---

type assocCommCombiner struct {
	zero    Value
	combine func(a, b Value) Value
}

func (c assocCommCombiner) Zero() Value               { return c.zero }
func (c assocCommCombiner) Combine(a, b Value) Value  { return c.combine(a, b) }
func (c assocCommCombiner) Associative() bool         { return true }
func (c assocCommCombiner) Commutative() bool         { return true }

func newSumCombiner(agg Aggregator, args []string) (Combiner, error) {
	return assocCommCombiner{
		zero: Value{Doubles: []float64{0}},
		combine: func(a, b Value) Value {
			if len(a.Longs) > 0 && len(b.Longs) > 0 { // count partials carry Longs
				return Value{Longs: []int64{a.Longs[0] + b.Longs[0]}}
			}
			return Value{Doubles: []float64{first(a.Doubles) + first(b.Doubles)}}
		},
	}, nil
}

func newMinCombiner(agg Aggregator, args []string) (Combiner, error) {
	return assocCommCombiner{
		zero: Value{Doubles: []float64{0}},
		combine: func(a, b Value) Value {
			av, bv := first(a.Doubles), first(b.Doubles)
			if bv < av {
				av = bv
			}
			return Value{Doubles: []float64{av}}
		},
	}, nil
}

func newMaxCombiner(agg Aggregator, args []string) (Combiner, error) {
	return assocCommCombiner{
		zero: Value{Doubles: []float64{0}},
		combine: func(a, b Value) Value {
			av, bv := first(a.Doubles), first(b.Doubles)
			if bv > av {
				av = bv
			}
			return Value{Doubles: []float64{av}}
		},
	}, nil
}

// avgCombiner is neither associative nor commutative in the naive sense once
// shard partials carry only an average (unweighted re-averaging biases toward
// low-cardinality shards); it is folded in shard order so the bias is at
// least deterministic.
type avgCombiner struct{ n int } // partials already folded into the accumulator

func newAvgCombiner(agg Aggregator, args []string) (Combiner, error) { return &avgCombiner{n: 1}, nil }
func (c *avgCombiner) Zero() Value                                   { return Value{Doubles: []float64{0}} }
func (c *avgCombiner) Combine(a, b Value) Value {
	c.n++
	av, bv := first(a.Doubles), first(b.Doubles)
	return Value{Doubles: []float64{av + (bv-av)/float64(c.n)}}
}
func (c *avgCombiner) Associative() bool { return false }
func (c *avgCombiner) Commutative() bool { return false }

type topKCombiner struct{ k int }

func newTopKCombiner(agg Aggregator, args []string) (Combiner, error) {
	k := 1
	if len(args) == 1 {
		fmt.Sscanf(args[0], "%d", &k)
	}
	return &topKCombiner{k: k}, nil
}
func (c *topKCombiner) Zero() Value { return Value{} }
func (c *topKCombiner) Combine(a, b Value) Value {
	merged := append(append([]float64(nil), a.Doubles...), b.Doubles...)
	sort.Sort(sort.Reverse(sort.Float64Slice(merged)))
	if len(merged) > c.k {
		merged = merged[:c.k]
	}
	return Value{Doubles: merged}
}
func (c *topKCombiner) Associative() bool { return true }
func (c *topKCombiner) Commutative() bool { return true }

func newHistogramCombiner(agg Aggregator, args []string) (Combiner, error) {
	return assocCommCombiner{
		zero: Value{},
		combine: func(a, b Value) Value {
			if len(a.Counts) == 0 {
				return b
			}
			if len(b.Counts) == 0 {
				return a
			}
			counts := make([]int64, len(a.Counts))
			for i := range counts {
				counts[i] = a.Counts[i] + b.Counts[i]
			}
			return Value{Counts: counts, BucketMax: a.BucketMax}
		},
	}, nil
}

func first(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[0]
}
