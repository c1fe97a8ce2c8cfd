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

import "testing"

func TestBuildTaskGraph_OrdersCompileBeforeLink(t *testing.T) {
	store, _, cc, link := buildChain(t)

	res, err := NewDirtyAnalyzer(store, nopWriter{}).Run()
	if err != nil {
		t.Fatal(err)
	}
	graph, err := BuildTaskGraph(store, res.Commands)
	if err != nil {
		t.Fatal(err)
	}

	if graph.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", graph.Len())
	}
	if !graph.HasReady() {
		t.Fatal("HasReady() = false, want true (compile has no command dependencies)")
	}

	first := graph.Pop()
	if first == nil {
		t.Fatal("Pop() = nil, want the compile task")
	}
	if first.ID != cc.ID {
		t.Errorf("first ready task id = %d, want compile task %d", first.ID, cc.ID)
	}
	if graph.HasReady() {
		t.Error("HasReady() = true before compile's Release, want false (link still blocked on the compile)")
	}

	graph.Release(first)
	if !graph.HasReady() {
		t.Fatal("HasReady() = false after Release, want true (link is now unblocked)")
	}
	second := graph.Pop()
	if second == nil || second.ID != link.ID {
		t.Errorf("second ready task = %v, want link task %d", second, link.ID)
	}

	if graph.Len() != 0 {
		t.Errorf("Len() = %d after draining both tasks, want 0", graph.Len())
	}
}

func TestTask_OutputsCollected(t *testing.T) {
	store, _, cc, _ := buildChain(t)

	res, err := NewDirtyAnalyzer(store, nopWriter{}).Run()
	if err != nil {
		t.Fatal(err)
	}
	graph, err := BuildTaskGraph(store, res.Commands)
	if err != nil {
		t.Fatal(err)
	}

	task, ok := graph.Task(cc.ID)
	if !ok {
		t.Fatal("Task(cc.ID) not found")
	}
	if len(task.Outputs) != 1 || task.Outputs[0] != "main.o" {
		t.Errorf("Outputs = %v, want [main.o]", task.Outputs)
	}
	if task.Entry().ID != cc.ID {
		t.Errorf("Entry().ID = %d, want %d", task.Entry().ID, cc.ID)
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
