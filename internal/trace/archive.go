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
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// Archive flushes a closed Trace to dir as an xz-compressed JSON file. Unlike
// internal/codec's lz4 wire compression (EncodeWire), archival happens off the request path once per
// finished query, so xz's higher ratio (at higher CPU cost) is the better
// trade here.
func Archive(dir string, t *Trace) error {
	var buf bytes.Buffer
	if err := t.WriteJSON(&buf); err != nil {
		return fmt.Errorf("trace archive: encode: %w", err)
	}

	path := filepath.Join(dir, t.ID+".json.xz")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trace archive: create %s: %w", path, err)
	}
	defer f.Close()

	w, err := xz.NewWriter(f)
	if err != nil {
		return fmt.Errorf("trace archive: xz writer: %w", err)
	}
	if _, err := io.Copy(w, &buf); err != nil {
		w.Close()
		return fmt.Errorf("trace archive: write: %w", err)
	}
	return w.Close()
}
