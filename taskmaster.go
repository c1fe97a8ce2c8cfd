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
	"os"
	"os/exec"

	"github.com/google/uuid"
)

// WorkerModeFlag is the hidden argv[1] a self-exec'd worker process is
// launched with; cmd/ambuild2's main checks for it before parsing any
// cobra command (SPEC_FULL.md §4.5).
const WorkerModeFlag = "--ambuild2-worker"

// IsWorkerMode reports whether args (typically os.Args) asks to run as a
// worker, returning the build root it was told to resolve relative paths
// against.
func IsWorkerMode(args []string) (buildPath string, ok bool) {
	if len(args) >= 3 && args[1] == WorkerModeFlag {
		return args[2], true
	}
	return "", false
}

// BuildResult summarizes one TaskMaster.Run invocation.
type BuildResult struct {
	Status   CompletedStatus
	Ran      int
	Failures []error
}

// workerProc is the master's handle on one self-exec'd worker subprocess
// and its two IPC channels (SPEC_FULL.md §4.5: task channel + result
// channel, so a worker can be freed for its next task before its full
// results are processed).
type workerProc struct {
	idx     int
	cmd     *exec.Cmd
	task    *channel
	results *channel

	taskW   *os.File
	resultR *os.File

	current *Task
}

type eventKind int

const (
	evReady eventKind = iota
	evRanTask
	evResults
	evCrash
)

type event struct {
	kind   eventKind
	worker int
	ran    RanTaskMsg
	res    ResultsMsg
	err    error
}

// TaskMaster schedules a TaskGraph's commands onto a pool of self-exec'd
// worker subprocesses, reconciling each worker's reported results back
// into the Store before releasing any task that depended on it
// (SPEC_FULL.md §9: results must update the database before downstream
// tasks are released, resolving the commented-out wiring bug in the
// original task.py).
type TaskMaster struct {
	store *Store
	graph *TaskGraph
	cfg   BuildConfig
	log   io.Writer

	workers []*workerProc
	events  chan event
	status  *StatusPrinter

	buildFailed bool
	ran         int
	failures    []error

	// buildID tags the start and finish lines of one Run invocation so the
	// output of consecutive builds (e.g. in a test harness that reuses one
	// log writer) can still be told apart. Worker stdout/stderr lines are
	// not tagged with it.
	buildID string
}

// NewTaskMaster returns a scheduler for graph, backed by store, configured
// per cfg. log receives the build's start and finish lines and per-worker
// stdout (prefixed with the worker's pid) and stderr.
func NewTaskMaster(store *Store, graph *TaskGraph, cfg BuildConfig, log io.Writer) *TaskMaster {
	return &TaskMaster{store: store, graph: graph, cfg: cfg, log: log}
}

// SetStatus attaches a progress printer; dispatch and completion events are
// reported to it if set.
func (m *TaskMaster) SetStatus(status *StatusPrinter) { m.status = status }

// Run spawns the worker pool, drives the graph to completion (or first
// failure), and tears the pool down.
func (m *TaskMaster) Run() (*BuildResult, error) {
	m.buildID = uuid.NewString()
	n := NumWorkers(m.cfg.Jobs, m.graph.Len())
	m.events = make(chan event, 8*n)

	fmt.Fprintf(m.log, "ambuild2: build %s: %d commands, %d workers\n", m.buildID, m.graph.Len(), n)

	if m.status != nil {
		m.status.BuildStarted(m.graph.Len())
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("ambuild2: resolve own executable: %w", err)
	}

	for i := 0; i < n; i++ {
		w, err := m.spawnWorker(i, exe)
		if err != nil {
			m.shutdown()
			return nil, fmt.Errorf("ambuild2: spawn worker %d: %w", i, err)
		}
		m.workers = append(m.workers, w)
	}

	idle := make([]int, 0, n)
	outstanding := 0

	for {
		if !m.buildFailed {
			for len(idle) > 0 && m.graph.HasReady() {
				t := m.graph.Pop()
				w := m.workers[idle[len(idle)-1]]
				idle = idle[:len(idle)-1]
				if err := m.dispatch(w, t); err != nil {
					m.buildFailed = true
					m.failures = append(m.failures, err)
					continue
				}
				w.current = t
				outstanding++
				if m.status != nil {
					m.status.TaskStarted(t.Entry().Format())
				}
			}
		}

		if m.graph.Len() == 0 && outstanding == 0 {
			break // every task has run
		}
		if m.buildFailed && outstanding == 0 {
			break // dispatch is stopped and every already-running task has drained
		}

		ev := <-m.events
		switch ev.kind {
		case evReady:
			idle = append(idle, ev.worker)

		case evRanTask:
			if !ev.ran.OK {
				w := m.workers[ev.worker]
				m.buildFailed = true
				m.failures = append(m.failures, &CommandFailure{TaskID: ev.ran.TaskID, Entry: w.current.Entry()})
			}

		case evResults:
			outstanding--
			w := m.workers[ev.worker]
			t := w.current
			w.current = nil
			m.ran++
			if err := m.reconcile(t, ev.res); err != nil {
				return nil, fmt.Errorf("ambuild2: reconcile task %d: %w", t.ID, err)
			}
			if ev.res.OK {
				m.graph.Release(t)
			}
			if ev.res.Stdout != "" {
				fmt.Fprintf(m.log, "[%d] %s", ev.res.PID, ev.res.Stdout)
			}
			if ev.res.Stderr != "" {
				fmt.Fprint(m.log, ev.res.Stderr)
			}
			if m.status != nil {
				m.status.TaskFinished(t.Entry().Format(), ev.res.OK, "")
			}

		case evCrash:
			w := m.workers[ev.worker]
			m.buildFailed = true
			if w.current != nil {
				outstanding--
				m.failures = append(m.failures, &WorkerCrash{TaskID: w.current.ID, Entry: w.current.Entry(), Cause: ev.err})
				w.current = nil
			} else {
				m.failures = append(m.failures, &WorkerCrash{Cause: ev.err})
			}
			// A dead worker is not returned to the idle pool.
		}
	}

	m.shutdown()

	status := StatusOK
	if len(m.failures) > 0 {
		status = StatusFailed
		for _, f := range m.failures {
			if _, ok := f.(*WorkerCrash); ok {
				status = StatusCrashed
				break
			}
		}
	}
	if m.status != nil {
		m.status.BuildFinished(status)
	}
	fmt.Fprintf(m.log, "ambuild2: build %s: %s\n", m.buildID, status)
	return &BuildResult{Status: status, Ran: m.ran, Failures: m.failures}, nil
}

func (m *TaskMaster) dispatch(w *workerProc, t *Task) error {
	return w.task.sendTask(TaskMsg{
		TaskID:      t.ID,
		TaskType:    t.Type,
		TaskData:    t.Data,
		TaskFolder:  t.Folder,
		TaskOutputs: t.Outputs,
	})
}

// reconcile folds one task's ResultsMsg back into the Store: dynamic edge
// additions/removals (SPEC_FULL.md §4.5.1), output stamps, and the command
// node's own dirty bit, all before the caller releases any downstream task.
func (m *TaskMaster) reconcile(t *Task, res ResultsMsg) error {
	entry := t.Entry()

	if res.Deps != nil {
		if err := m.reconcileDynamicDeps(entry, res.Deps); err != nil {
			return err
		}
	}

	for _, u := range res.Updates {
		out, err := m.store.QueryPath(u.Path)
		if err != nil || out == nil {
			continue // a worker-reported output with no matching node is a front-end bug, not ours to crash on
		}
		stamp := u.Stamp
		if err := m.store.UnmarkDirty(out, &stamp); err != nil {
			return err
		}
	}

	if res.OK {
		if err := m.store.UnmarkDirty(entry, nil); err != nil {
			return err
		}
	}
	return m.store.Commit()
}

func (m *TaskMaster) reconcileDynamicDeps(cmd *Entry, reported []string) error {
	prior, err := m.store.QueryDynamicInputs(cmd)
	if err != nil {
		return err
	}

	keep := make(map[int64]bool, len(reported))
	for _, path := range reported {
		producer, err := m.store.QueryPath(path)
		if err != nil || producer == nil {
			producer, err = m.store.FindOrAddSource(path)
			if err != nil {
				return err
			}
		}
		if producer.ID == cmd.ID {
			continue
		}
		keep[producer.ID] = true
		if _, already := prior[producer.ID]; !already {
			if err := m.store.AddDynamicEdge(cmd, producer); err != nil {
				return err
			}
		}
	}
	for id, producer := range prior {
		if !keep[id] {
			if err := m.store.DropDynamicEdge(cmd, producer); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *TaskMaster) spawnWorker(idx int, exe string) (*workerProc, error) {
	taskMasterW, taskWorkerR, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	workerOutW, taskMasterR, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	resultWorkerW, resultMasterR, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, WorkerModeFlag, m.cfg.BuildPath)
	cmd.Stdin = taskWorkerR
	cmd.Stdout = workerOutW
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{resultWorkerW}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// The master keeps only its own ends open; the child's ends were
	// duplicated into the subprocess by Start and must be closed here or
	// EOF on worker exit would never be observed.
	taskWorkerR.Close()
	workerOutW.Close()
	resultWorkerW.Close()

	w := &workerProc{
		idx:     idx,
		cmd:     cmd,
		task:    newChannel(taskMasterR, taskMasterW),
		results: newChannel(resultMasterR, nil),
		taskW:   taskMasterW,
		resultR: resultMasterR,
	}

	go m.pumpTaskChannel(w)
	go m.pumpResultChannel(w)

	return w, nil
}

func (m *TaskMaster) pumpTaskChannel(w *workerProc) {
	for {
		env, err := w.task.recv()
		if err != nil {
			m.events <- event{kind: evCrash, worker: w.idx, err: err}
			return
		}
		switch env.ID {
		case idReady:
			m.events <- event{kind: evReady, worker: w.idx}
		case idRanTask:
			m.events <- event{kind: evRanTask, worker: w.idx, ran: *env.RanTask}
		}
	}
}

func (m *TaskMaster) pumpResultChannel(w *workerProc) {
	for {
		env, err := w.results.recv()
		if err != nil {
			return // task channel pump already reported the crash
		}
		if env.ID == idResults {
			m.events <- event{kind: evResults, worker: w.idx, res: *env.Results}
		}
	}
}

// shutdown closes every worker's task-channel write end, which unblocks
// its recv() with EOF and lets it exit its loop and the process terminate
// on its own.
func (m *TaskMaster) shutdown() {
	for _, w := range m.workers {
		w.taskW.Close()
	}
	for _, w := range m.workers {
		w.cmd.Wait()
		w.resultR.Close()
	}
}
