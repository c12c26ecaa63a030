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

// Package trace implements the per-query observability context (§3: "Trace:
// opaque per-query observability context; created at request entry, closed
// on final response"). It is propagated via goroutine-local storage
// (github.com/jtolds/gls) the same way memcp's storage/scan.go and
// storage/compute.go thread context through gls.Go-spawned goroutines,
// instead of passing an explicit parameter through every call — the Engine
// and ShardExecutor hop across suspension points (§5) without re-deriving
// or re-passing a Trace at each boundary.
package trace

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jtolds/gls"
)

var mgr = gls.NewContextManager()

const traceKey = "qcoord-trace"

// Trace is a chrome-trace-style event log for one query, modeled on memcp's
// scm/trace.go Tracefile.
type Trace struct {
	ID      string
	mu      sync.Mutex
	events  []event
	start   time.Time
	closed  bool
}

type event struct {
	Name string `json:"name"`
	Cat  string `json:"cat"`
	Ph   string `json:"ph"`
	TsUs int64  `json:"ts"`
}

// New creates a Trace with a fresh externally-visible id.
func New() *Trace {
	return &Trace{ID: uuid.NewString(), start: time.Now()}
}

// Begin marks the start of a named, categorized span.
func (t *Trace) Begin(name, cat string) {
	t.record(name, cat, "B")
}

// End marks the end of a named, categorized span.
func (t *Trace) End(name, cat string) {
	t.record(name, cat, "E")
}

// Duration runs f, bracketed by a begin/end event pair.
func (t *Trace) Duration(name, cat string, f func()) {
	t.Begin(name, cat)
	defer t.End(name, cat)
	f()
}

func (t *Trace) record(name, cat, ph string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.events = append(t.events, event{Name: name, Cat: cat, Ph: ph, TsUs: time.Since(t.start).Microseconds()})
}

// Close finalizes the trace; further record calls are no-ops. It is called on
// the final response, success or failure.
func (t *Trace) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// WriteJSON serializes the closed trace as a JSON array of chrome-trace
// events, for archival (see Archive).
func (t *Trace) WriteJSON(w io.Writer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.NewEncoder(w).Encode(t.events)
}

// With binds tr as the current goroutine's Trace for the duration of f, and
// any goroutine f spawns via Go.
func With(tr *Trace, f func()) {
	mgr.SetValues(gls.Values{traceKey: tr}, f)
}

// Current returns the Trace bound by the nearest enclosing With call, or nil
// if none is bound.
func Current() *Trace {
	v, ok := mgr.GetValue(traceKey)
	if !ok {
		return nil
	}
	tr, _ := v.(*Trace)
	return tr
}

// Go spawns f in a new goroutine, preserving whatever Trace is bound to the
// calling goroutine so Current() still resolves inside f.
func Go(f func()) {
	gls.Go(f)
}
