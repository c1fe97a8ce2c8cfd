// Copyright 2012 Google Inc. All Rights Reserved.
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
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// Worker executes one command at a time in this process, isolated from the
// Task Master by the fact that it's really running in its own OS process
// (see RunWorker). It never touches the database; all persistence is the
// Task Master's responsibility (SPEC_FULL.md §4.5.2).
type Worker struct {
	buildPath string
	disk      Disk
}

// NewWorker returns a Worker rooted at buildPath, used to rewrite relative
// discovered dependency paths.
func NewWorker(buildPath string, disk Disk) *Worker {
	return &Worker{buildPath: buildPath, disk: disk}
}

// RunWorker drives the worker side of the protocol: announce ready, wait
// for a task message or the task channel closing, run it, report ranTask,
// announce ready again immediately so the Task Master can dispatch this
// worker's next task without waiting on the (potentially much larger)
// results payload, and only then assemble and send results.
func RunWorker(w *Worker, task, result *channel) error {
	pid := os.Getpid()
	if err := task.sendReady(); err != nil {
		return err
	}
	for {
		env, err := task.recv()
		if err != nil {
			return err // channel closed: normal shutdown
		}
		if env.ID != idTask || env.Task == nil {
			return fmt.Errorf("ambuild2: worker expected task message, got %q", env.ID)
		}
		msg := *env.Task

		for _, out := range msg.TaskOutputs {
			_ = w.disk.RemoveFile(out)
		}

		res := w.run(msg)

		if err := task.sendRanTask(RanTaskMsg{OK: res.OK, TaskID: msg.TaskID}); err != nil {
			return err
		}
		if err := task.sendReady(); err != nil {
			return err
		}

		var updates []PathStamp
		if res.OK {
			for _, out := range msg.TaskOutputs {
				stamp, err := w.disk.Stamp(out)
				if err != nil {
					continue
				}
				updates = append(updates, PathStamp{Path: out, Stamp: stamp})
			}
		}
		res.PID = pid
		res.TaskID = msg.TaskID
		res.Updates = updates
		if err := result.sendResults(res); err != nil {
			return err
		}
	}
}

func (w *Worker) run(msg TaskMsg) ResultsMsg {
	switch msg.TaskType {
	case Cxx:
		return w.runCompile(msg)
	case Command, Copy, Symlink:
		return w.runCommand(msg)
	default:
		return ResultsMsg{OK: false, Stderr: fmt.Sprintf("ambuild2: unsupported task type %s", msg.TaskType)}
	}
}

func (w *Worker) runCommand(msg TaskMsg) ResultsMsg {
	data := msg.TaskData
	if data == nil {
		return ResultsMsg{OK: false, Stderr: "ambuild2: command node has no data"}
	}

	var cmd *exec.Cmd
	if data.Shell != "" {
		cmd = createShellCmd(context.Background(), data.Shell)
	} else if len(data.Argv) > 0 {
		cmd = exec.CommandContext(context.Background(), data.Argv[0], data.Argv[1:]...)
	} else {
		return ResultsMsg{OK: false, Stderr: "ambuild2: command node has empty argv"}
	}
	cmd.Dir = resolveFolder(w.buildPath, msg.TaskFolder)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	return ResultsMsg{
		OK:     err == nil,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
}

func (w *Worker) runCompile(msg TaskMsg) ResultsMsg {
	data := msg.TaskData
	if data == nil || len(data.Argv) == 0 {
		return ResultsMsg{OK: false, Stderr: "ambuild2: cxx node has no argv"}
	}
	if data.Flavor != gccFlavor {
		return ResultsMsg{OK: false, Stderr: fmt.Sprintf("ambuild2: unknown compiler flavor %q", data.Flavor)}
	}

	folder := resolveFolder(w.buildPath, msg.TaskFolder)
	cmd := exec.CommandContext(context.Background(), data.Argv[0], data.Argv[1:]...)
	cmd.Dir = folder

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	cleaned, rawDeps := parseGCCDeps(stderr.String())
	deps := make([]string, 0, len(rawDeps))
	for _, dep := range rawDeps {
		deps = append(deps, w.rewriteDep(folder, dep))
	}

	return ResultsMsg{
		OK:     err == nil,
		Stdout: stdout.String(),
		Stderr: cleaned,
		Deps:   deps,
	}
}

// rewriteDep implements SPEC_FULL.md §4.5.1's path rule on the worker side:
// a relative discovered path is first resolved against the worker's
// working directory, then rewritten to be build-root-relative if it falls
// inside the build root, or left absolute otherwise.
func (w *Worker) rewriteDep(folder, dep string) string {
	if !filepath.IsAbs(dep) {
		dep = filepath.Join(folder, dep)
	}
	return relativeToBuildRoot(w.buildPath, dep)
}

// createShellCmd builds the /bin/sh -c invocation for a Shell command node,
// adapted from the teacher's createCmd (subprocess_posix.go): a Shell
// command runs in its own process group so a crashed or killed worker
// doesn't leave orphaned children behind. Argv commands and Cxx compiles
// are started without a separate process group.
func createShellCmd(ctx context.Context, c string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", c)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

func resolveFolder(buildPath, folder string) string {
	if folder == "" || folder == "." {
		return buildPath
	}
	if filepath.IsAbs(folder) {
		return folder
	}
	return filepath.Join(buildPath, folder)
}
