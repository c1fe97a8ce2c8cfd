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
	"bytes"
	"io"
	"testing"
)

// buildChain wires up Source -> Command(Cxx) -> Output(main.o) -> Command(Command, link) -> Output(a.out),
// matching a minimal two-step compile-then-link pipeline.
func buildChain(t *testing.T) (*Store, *fakeDisk, *Entry, *Entry) {
	t.Helper()
	store, disk := openTestStore(t)

	src, err := store.AddSource("/src/main.c", false)
	if err != nil {
		t.Fatal(err)
	}
	cc, err := store.AddCommand(Cxx, nil, &CommandData{Argv: []string{"gcc", "-c", "main.c"}, Flavor: "gcc"})
	if err != nil {
		t.Fatal(err)
	}
	obj, err := store.AddOutput(nil, "main.o")
	if err != nil {
		t.Fatal(err)
	}
	link, err := store.AddCommand(Command, nil, &CommandData{Argv: []string{"gcc", "-o", "a.out", "main.o"}})
	if err != nil {
		t.Fatal(err)
	}
	bin, err := store.AddOutput(nil, "a.out")
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range []struct{ from, to *Entry }{
		{cc, src}, {obj, cc}, {link, obj}, {bin, link},
	} {
		if err := store.AddStrongEdge(e.from, e.to); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Commit(); err != nil {
		t.Fatal(err)
	}

	disk.stamps["/src/main.c"] = 1.0
	return store, disk, cc, link
}

func TestDirtyAnalyzer_SourceChangePropagates(t *testing.T) {
	store, disk, cc, link := buildChain(t)

	disk.stamps["/src/main.c"] = 2.0 // mtime advanced past the recorded stamp (0, since never unmarked)

	var log bytes.Buffer
	res, err := NewDirtyAnalyzer(store, &log).Run()
	if err != nil {
		t.Fatal(err)
	}

	gotIDs := map[int64]bool{}
	for _, c := range res.Commands {
		gotIDs[c.ID] = true
	}
	if !gotIDs[cc.ID] || !gotIDs[link.ID] {
		t.Errorf("Run().Commands = %v, want both compile (%d) and link (%d) dirty", res.Commands, cc.ID, link.ID)
	}
}

func TestDirtyAnalyzer_CleanAfterUnmark(t *testing.T) {
	store, disk, cc, link := buildChain(t)
	disk.stamps["main.o"] = 1.0
	disk.stamps["a.out"] = 1.0

	// Simulate a prior successful build: every artifact's stamp matches disk
	// and no entry carries a dirty bit, so a fresh analysis finds no work.
	for _, path := range []string{"/src/main.c", "main.o", "a.out"} {
		e, err := store.QueryPath(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.UnmarkDirty(e, nil); err != nil {
			t.Fatal(err)
		}
	}
	for _, cmd := range []*Entry{cc, link} {
		if err := store.UnmarkDirty(cmd, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Commit(); err != nil {
		t.Fatal(err)
	}

	res, err := NewDirtyAnalyzer(store, io.Discard).Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Commands) != 0 {
		t.Errorf("Run().Commands = %v, want none (nothing changed since last unmark)", res.Commands)
	}
	_ = cc
	_ = link
}
