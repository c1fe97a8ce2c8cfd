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

import "fmt"

// RefactoringError is returned by Store.UpdateCommand when refactoring is
// requested and a command's declaration silently changed.
type RefactoringError struct {
	Entry *Entry
	Old   string
	New   string
}

func (e *RefactoringError) Error() string {
	return fmt.Sprintf("refactoring error: command changed\n  old: %s\n  new: %s", e.Old, e.New)
}

// GraphInvariantError signals a front-end bug: a cycle, a duplicate path
// insertion, or a folder dropped while still referenced.
type GraphInvariantError struct {
	Msg string
}

func (e *GraphInvariantError) Error() string { return "graph invariant violated: " + e.Msg }

// CommandFailure means a worker reported ok=false for a task.
type CommandFailure struct {
	TaskID int64
	Entry  *Entry
	Stderr string
}

func (e *CommandFailure) Error() string {
	return fmt.Sprintf("command failed (task %d): %s", e.TaskID, e.Entry.Format())
}

// WorkerCrash means a worker process died without reporting a result.
type WorkerCrash struct {
	TaskID int64
	Entry  *Entry
	Cause  error
}

func (e *WorkerCrash) Error() string {
	return fmt.Sprintf("worker crashed running task %d (%s): %v", e.TaskID, e.Entry.Format(), e.Cause)
}

func (e *WorkerCrash) Unwrap() error { return e.Cause }
