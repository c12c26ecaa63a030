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

package cluster

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fsnotify/fsnotify"
)

// ReadSeedsFile parses a static seeds file in the same {"members": [...]}
// shape FetchSeeds expects from the HTTP endpoint, for deployments that seed
// from a mounted file instead of (or in addition to) a membership service.
func ReadSeedsFile(path string) (Seeds, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seeds{}, fmt.Errorf("cluster: reading seeds file %s: %w", path, err)
	}
	var s Seeds
	if err := json.Unmarshal(raw, &s); err != nil {
		return Seeds{}, fmt.Errorf("cluster: parsing seeds file %s: %w", path, err)
	}
	sort.Strings(s.Members)
	return s, nil
}

// WatchSeedsFile watches path for writes and invokes onChange with the
// freshly parsed Seeds after each one — the supplemented hot-reload path
// SPEC_FULL §4 adds on top of spec.md §6.2's bare one-shot seeds fetch.
// Parse errors are swallowed (onChange is simply not called for that event):
// a transient partial write from the file's writer must not crash the
// watcher goroutine.
func WatchSeedsFile(path string, onChange func(Seeds)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cluster: creating seeds watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("cluster: watching %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				seeds, err := ReadSeedsFile(path)
				if err != nil {
					continue
				}
				onChange(seeds)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
