// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ambuild2

import (
	"fmt"
	"io"
	"sort"
)

// DirtyAnalyzer runs once per build invocation, before scheduling, and
// classifies the graph into known-dirty, maybe-dirty, and clean nodes,
// then propagates dirtiness along strong and dynamic edges (SPEC_FULL.md
// §4.3). Weak edges are never traversed for propagation.
type DirtyAnalyzer struct {
	store *Store
	log   io.Writer
}

// NewDirtyAnalyzer returns an analyzer that writes Explain() traces to log
// (use io.Discard to silence them).
func NewDirtyAnalyzer(store *Store, log io.Writer) *DirtyAnalyzer {
	return &DirtyAnalyzer{store: store, log: log}
}

// Result is the outcome of one analysis pass: the commands that must run,
// already deduplicated and ordered deterministically by ascending id.
type Result struct {
	Commands []*Entry
}

// Run performs the five steps of SPEC_FULL.md §4.3 and returns the set of
// commands to execute.
func (d *DirtyAnalyzer) Run() (*Result, error) {
	// 1. Ensure every Mkdir node exists on disk.
	folders, err := d.store.QueryMkdir()
	if err != nil {
		return nil, err
	}
	sortByID(folders)
	for _, f := range folders {
		if err := d.store.disk.MakeDir(f.Path); err != nil {
			return nil, fmt.Errorf("ambuild2: mkdir %s: %w", f.Path, err)
		}
	}

	// 2. Seed the dirty set with nodes already marked dirty in the database.
	dirty := make(map[int64]*Entry)
	known, err := d.store.QueryKnownDirty()
	if err != nil {
		return nil, err
	}
	for _, e := range known {
		dirty[e.ID] = e
	}

	// 3. Check maybe-dirty artifacts against the filesystem.
	maybe, err := d.store.QueryMaybeDirty()
	if err != nil {
		return nil, err
	}
	sortByID(maybe)
	for _, e := range maybe {
		stamp, err := d.store.disk.Stamp(e.Path)
		missing := err != nil
		if missing || stamp != e.Stamp {
			if err := d.store.MarkDirty(e); err != nil {
				return nil, err
			}
			dirty[e.ID] = e
			if missing {
				Explain(d.log, "%s is missing", e.Path)
			} else {
				Explain(d.log, "%s mtime changed (%.9f -> %.9f)", e.Path, e.Stamp, stamp)
			}
		}
	}

	// 4. Propagate along strong and dynamic edges, transitively.
	visited := make(map[int64]bool)
	queue := make([]*Entry, 0, len(dirty))
	for _, e := range dirty {
		queue = append(queue, e)
	}
	sortByID(queue)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n.ID] {
			continue
		}
		visited[n.ID] = true

		out, err := d.store.QueryOutgoing(n)
		if err != nil {
			return nil, err
		}
		outs := make([]*Entry, 0, len(out))
		for _, o := range out {
			outs = append(outs, o)
		}
		sortByID(outs)
		for _, o := range outs {
			if o.Dirty != KnownDirty {
				if err := d.store.MarkDirty(o); err != nil {
					return nil, err
				}
				Explain(d.log, "%s is dirty because its input %s is dirty", o.Format(), n.Format())
			}
			dirty[o.ID] = o
			if !visited[o.ID] {
				queue = append(queue, o)
			}
		}
	}
	if err := d.store.Commit(); err != nil {
		return nil, err
	}

	// 5. Partition: only commands enter the Task Graph.
	var commands []*Entry
	for _, e := range dirty {
		if e.Command() {
			commands = append(commands, e)
		}
	}
	sortByID(commands)
	return &Result{Commands: commands}, nil
}

func sortByID(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}
