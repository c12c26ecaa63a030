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
	"golang.org/x/text/cases"
)

var fold = cases.Fold() // Unicode-correct case folding, used for case-insensitive name matching (spec §4.1)

func normalize(name string) string {
	return fold.String(name)
}

// aggEntry is one registered aggregator function.
type aggEntry struct {
	arity   int
	factory AggregatorFactory
}

// combEntry is one registered combiner function.
type combEntry struct {
	arity   int
	factory CombinerFactory
}

// Registry maps function names (matched case-insensitively) to aggregator and
// combiner factories, per spec §9 ("Registry maps name -> factory").
type Registry struct {
	aggregators map[string]aggEntry
	combiners   map[string]combEntry
}

// NewRegistry returns a registry pre-populated with the builtin functions.
func NewRegistry() *Registry {
	r := &Registry{
		aggregators: make(map[string]aggEntry),
		combiners:   make(map[string]combEntry),
	}
	registerBuiltins(r)
	return r
}

// RegisterAggregator adds (or replaces) an aggregator function. arity is the
// number of arguments resolve_aggregator requires besides the column/dataset.
func (r *Registry) RegisterAggregator(name string, arity int, f AggregatorFactory) {
	r.aggregators[normalize(name)] = aggEntry{arity: arity, factory: f}
}

// RegisterCombiner adds (or replaces) a combiner function.
func (r *Registry) RegisterCombiner(name string, arity int, f CombinerFactory) {
	r.combiners[normalize(name)] = combEntry{arity: arity, factory: f}
}

// LookupAggregator resolves a name to its factory and declared arity. ok is
// false if no such function is registered.
func (r *Registry) LookupAggregator(name string) (factory AggregatorFactory, arity int, ok bool) {
	e, ok := r.aggregators[normalize(name)]
	if !ok {
		return nil, 0, false
	}
	return e.factory, e.arity, true
}

// LookupCombiner resolves a name to its factory and declared arity.
func (r *Registry) LookupCombiner(name string) (factory CombinerFactory, arity int, ok bool) {
	e, ok := r.combiners[normalize(name)]
	if !ok {
		return nil, 0, false
	}
	return e.factory, e.arity, true
}
