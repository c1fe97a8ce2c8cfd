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

// Task is the in-memory record of one pending command, a generalization of
// the teacher's Task (ambuild2/task.py) carrying a remaining-inputs counter
// instead of a set, since the Task Graph only needs to know when it hits
// zero.
type Task struct {
	ID      int64
	Type    NodeType
	Data    *CommandData
	Folder  string
	Outputs []string

	entry *Entry

	incoming int
	outgoing []*Task
}

// Entry returns the graph node this task executes.
func (t *Task) Entry() *Entry { return t.entry }

// addOutgoing records that t must complete before dep can run, the inverse
// relationship tracked by TaskGraph.Release.
func (t *Task) addOutgoing(dep *Task) {
	t.outgoing = append(t.outgoing, dep)
	dep.incoming++
}

// TaskGraph is the in-memory projection of pending work built from the
// dirty command closure: one Task per dirty command, plus the ready queue.
// Only commands ever enter the Task Graph (SPEC_FULL.md §4.2, §4.4).
type TaskGraph struct {
	tasks map[int64]*Task
	ready []*Task // stack; LIFO gives good cache behavior for compile clusters
}

// NewTaskGraph returns an empty TaskGraph.
func NewTaskGraph() *TaskGraph {
	return &TaskGraph{tasks: make(map[int64]*Task)}
}

// AddTask registers a task. It does not compute readiness; call Seal once
// all tasks and edges (AddEdge) have been added.
func (g *TaskGraph) AddTask(t *Task) {
	g.tasks[t.ID] = t
}

// Task looks up a task by its node id.
func (g *TaskGraph) Task(id int64) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// AddEdge records that "to" must finish before "from" can run: from depends
// on to. Both must already have been added with AddTask.
func (g *TaskGraph) AddEdge(from, to *Task) {
	to.addOutgoing(from)
}

// Seal computes the initial ready set: every task with no remaining
// incoming dependency.
func (g *TaskGraph) Seal() {
	for _, t := range g.tasks {
		if t.incoming == 0 {
			g.ready = append(g.ready, t)
		}
	}
}

// Len reports how many tasks remain un-started (ready or blocked).
func (g *TaskGraph) Len() int { return len(g.tasks) }

// HasReady reports whether a task is immediately schedulable.
func (g *TaskGraph) HasReady() bool { return len(g.ready) > 0 }

// Pop removes and returns a ready task, or nil if none is ready.
func (g *TaskGraph) Pop() *Task {
	n := len(g.ready)
	if n == 0 {
		return nil
	}
	t := g.ready[n-1]
	g.ready = g.ready[:n-1]
	delete(g.tasks, t.ID)
	return t
}

// Release marks t complete and pushes any outgoing task whose last
// dependency was t onto the ready queue.
func (g *TaskGraph) Release(t *Task) {
	for _, out := range t.outgoing {
		out.incoming--
		if out.incoming == 0 {
			g.ready = append(g.ready, out)
		}
	}
}

// BuildTaskGraph projects the dirty command set into a TaskGraph: one Task
// per command, with an outputs list pre-collected from strong outgoing
// Output nodes (for unlinking stale outputs before running), and
// command-to-command ordering edges derived by following each command's
// strong, weak, and dynamic inputs back to their producing command
// (SPEC_FULL.md §4.4).
func BuildTaskGraph(store *Store, commands []*Entry) (*TaskGraph, error) {
	graph := NewTaskGraph()
	taskByID := make(map[int64]*Task, len(commands))

	for _, cmd := range commands {
		data, err := DecodeCommandData(cmd.Blob)
		if err != nil {
			return nil, err
		}
		folderPath := "."
		if cmd.Folder != nil {
			folderPath = cmd.Folder.Path
		}
		outs, err := store.QueryStrongOutgoing(cmd)
		if err != nil {
			return nil, err
		}
		var outputs []string
		for _, o := range outs {
			if o.Type == Output {
				outputs = append(outputs, o.Path)
			}
		}

		t := &Task{
			ID:      cmd.ID,
			Type:    cmd.Type,
			Data:    data,
			Folder:  folderPath,
			Outputs: outputs,
			entry:   cmd,
		}
		taskByID[cmd.ID] = t
		graph.AddTask(t)
	}

	for _, cmd := range commands {
		task := taskByID[cmd.ID]
		producers, err := commandDependencies(store, cmd)
		if err != nil {
			return nil, err
		}
		for _, p := range producers {
			if producerTask, ok := taskByID[p.ID]; ok && producerTask != task {
				graph.AddEdge(task, producerTask)
			}
		}
	}

	graph.Seal()
	return graph, nil
}

// commandDependencies resolves cmd's strong, weak, and dynamic inputs down
// to the set of commands that must finish before cmd can run: a Command
// input is a direct dependency; an Output input's dependency is whichever
// command produced it (SPEC_FULL.md §3.3 invariant 3: exactly one).
func commandDependencies(store *Store, cmd *Entry) ([]*Entry, error) {
	seen := make(map[int64]*Entry)
	inputSets, err := gatherInputs(store, cmd)
	if err != nil {
		return nil, err
	}
	for _, in := range inputSets {
		switch {
		case in.Command():
			seen[in.ID] = in
		case in.Type == Output:
			producers, err := store.QueryStrongInputs(in)
			if err != nil {
				return nil, err
			}
			for _, p := range producers {
				if p.Command() {
					seen[p.ID] = p
				}
			}
		}
	}
	out := make([]*Entry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sortByID(out)
	return out, nil
}

func gatherInputs(store *Store, cmd *Entry) ([]*Entry, error) {
	var all []*Entry
	strong, err := store.QueryStrongInputs(cmd)
	if err != nil {
		return nil, err
	}
	weak, err := store.QueryWeakInputs(cmd)
	if err != nil {
		return nil, err
	}
	dyn, err := store.QueryDynamicInputs(cmd)
	if err != nil {
		return nil, err
	}
	for _, m := range []map[int64]*Entry{strong, weak, dyn} {
		for _, e := range m {
			all = append(all, e)
		}
	}
	return all, nil
}
