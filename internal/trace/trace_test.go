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

package trace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrentPropagatesAcrossGo(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	var seen *Trace

	With(tr, func() {
		wg.Add(1)
		Go(func() {
			defer wg.Done()
			seen = Current()
		})
		wg.Wait()
	})

	require.Same(t, tr, seen)
}

func TestCurrentNilOutsideWith(t *testing.T) {
	require.Nil(t, Current())
}

func TestCloseStopsRecording(t *testing.T) {
	tr := New()
	tr.Begin("a", "cat")
	tr.Close()
	tr.End("a", "cat") // no-op after close, must not panic or append
	require.Len(t, tr.events, 1)
}
