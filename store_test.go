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
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeDisk is an in-memory Disk for tests, avoiding any real filesystem
// dependency on mtimes, matching the teacher's own pattern of swapping in
// a fake DiskInterface for ninja graph tests (disk_interface_test.go).
type fakeDisk struct {
	stamps map[string]float64
	dirs   map[string]bool
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{stamps: map[string]float64{}, dirs: map[string]bool{}}
}

func (d *fakeDisk) Stamp(path string) (float64, error) {
	s, ok := d.stamps[path]
	if !ok {
		return 0, errNotExist(path)
	}
	return s, nil
}

func (d *fakeDisk) MakeDir(path string) error {
	d.dirs[path] = true
	return nil
}

func (d *fakeDisk) RemoveFile(path string) error {
	delete(d.stamps, path)
	return nil
}

func (d *fakeDisk) RemoveDir(path string) error {
	delete(d.dirs, path)
	return nil
}

type notExistError string

func (e notExistError) Error() string { return "no such file: " + string(e) }

func errNotExist(path string) error { return notExistError(path) }

func openTestStore(t *testing.T) (*Store, *fakeDisk) {
	t.Helper()
	disk := newFakeDisk()
	path := filepath.Join(t.TempDir(), "graph.sqlite3")
	store, err := Open(path, disk)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, disk
}

func TestStore_AddAndQuerySource(t *testing.T) {
	store, _ := openTestStore(t)

	src, err := store.AddSource("/src/main.c", false)
	if err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := store.QueryPath("/src/main.c")
	if err != nil {
		t.Fatalf("QueryPath: %v", err)
	}
	if got.ID != src.ID || got.Type != Source {
		t.Errorf("QueryPath = %+v, want id=%d type=Source", got, src.ID)
	}

	if _, err := store.AddSource("/src/main.c", false); err == nil {
		t.Errorf("AddSource duplicate: want GraphInvariantError, got nil")
	}
}

func TestStore_StrongEdgeAndQueries(t *testing.T) {
	store, _ := openTestStore(t)

	src, err := store.AddSource("/src/main.c", false)
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := store.AddCommand(Cxx, nil, &CommandData{Argv: []string{"gcc", "-c", "main.c"}, Flavor: "gcc"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := store.AddOutput(nil, "main.o")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddStrongEdge(cmd, src); err != nil {
		t.Fatalf("AddStrongEdge(cmd, src): %v", err)
	}
	if err := store.AddStrongEdge(out, cmd); err != nil {
		t.Fatalf("AddStrongEdge(out, cmd): %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatal(err)
	}

	inputs, err := store.QueryStrongInputs(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 1 || inputs[src.ID] == nil {
		t.Errorf("QueryStrongInputs(cmd) = %v, want {%d: src}", inputs, src.ID)
	}

	outgoing, err := store.QueryStrongOutgoing(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if len(outgoing) != 1 || outgoing[0].ID != out.ID {
		t.Errorf("QueryStrongOutgoing(cmd) = %v, want [out]", outgoing)
	}
}

func TestStore_UpdateCommandRefactoring(t *testing.T) {
	store, _ := openTestStore(t)

	cmd, err := store.AddCommand(Cxx, nil, &CommandData{Argv: []string{"gcc", "-c", "main.c"}, Flavor: "gcc"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Commit(); err != nil {
		t.Fatal(err)
	}

	changed, err := store.UpdateCommand(cmd, Cxx, nil, &CommandData{Argv: []string{"gcc", "-c", "main.c"}, Flavor: "gcc"}, true)
	if err != nil {
		t.Fatalf("no-op update under refactoring mode should not error: %v", err)
	}
	if changed {
		t.Errorf("UpdateCommand reported a change for an identical declaration")
	}

	_, err = store.UpdateCommand(cmd, Cxx, nil, &CommandData{Argv: []string{"gcc", "-c", "main.c", "-O2"}, Flavor: "gcc"}, true)
	var refErr *RefactoringError
	if err == nil {
		t.Fatalf("UpdateCommand(refactoring=true) on a real change: want RefactoringError, got nil")
	}
	if !errorsAs(err, &refErr) {
		t.Fatalf("UpdateCommand error = %v, want *RefactoringError", err)
	}

	changed, err = store.UpdateCommand(cmd, Cxx, nil, &CommandData{Argv: []string{"gcc", "-c", "main.c", "-O2"}, Flavor: "gcc"}, false)
	if err != nil {
		t.Fatalf("UpdateCommand(refactoring=false): %v", err)
	}
	if !changed {
		t.Errorf("UpdateCommand(refactoring=false) reported no change for a real change")
	}
}

func TestStore_MarkUnmarkDirty(t *testing.T) {
	store, disk := openTestStore(t)

	out, err := store.AddOutput(nil, "main.o")
	if err != nil {
		t.Fatal(err)
	}
	disk.stamps["main.o"] = 42.0

	if err := store.MarkDirty(out); err != nil {
		t.Fatal(err)
	}
	if out.Dirty != KnownDirty {
		t.Errorf("Dirty = %s, want KnownDirty", out.Dirty)
	}

	if err := store.UnmarkDirty(out, nil); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Clean, out.Dirty); diff != "" {
		t.Errorf("Dirty after unmark: +want -got: %s", diff)
	}
	if out.Stamp != 42.0 {
		t.Errorf("Stamp = %v, want 42.0 (sampled from disk)", out.Stamp)
	}
}

// errorsAs is a tiny local shim so this file doesn't need to import
// "errors" solely for a single As call in one test.
func errorsAs(err error, target **RefactoringError) bool {
	if e, ok := err.(*RefactoringError); ok {
		*target = e
		return true
	}
	return false
}
