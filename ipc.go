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
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
)

// msgID mirrors the string "id" discriminator SPEC_FULL.md §6.2 says every
// wire message carries.
type msgID string

const (
	idTask      msgID = "task"
	idReady     msgID = "ready"
	idRanTask   msgID = "ranTask"
	idResults   msgID = "results"
	idCompleted msgID = "completed"
)

// TaskMsg dispatches one command to a worker (master -> worker, task channel).
type TaskMsg struct {
	TaskID      int64
	TaskType    NodeType
	TaskData    *CommandData
	TaskFolder  string
	TaskOutputs []string
}

// ReadyMsg announces a worker has nothing outstanding and wants work
// (worker -> master, task channel).
type ReadyMsg struct{}

// RanTaskMsg is the worker's fast acknowledgment so the Task Master can
// dispatch more work before the full results are processed (worker ->
// master, task channel).
type RanTaskMsg struct {
	OK     bool
	TaskID int64
}

// PathStamp pairs an output path with its freshly observed mtime.
type PathStamp struct {
	Path  string
	Stamp float64
}

// ResultsMsg carries the full results of a task on the side (result)
// channel: stdout, stderr, discovered deps, and new output timestamps
// (worker -> master, result channel).
type ResultsMsg struct {
	PID     int
	TaskID  int64
	OK      bool
	Stdout  string
	Stderr  string
	Deps    []string // nil for non-Cxx tasks and for a Cxx task rejected before its compiler ran; otherwise non-nil (possibly empty)
	Updates []PathStamp
}

// CompletedStatus is the terminal state the Task Master reports to its driver.
type CompletedStatus string

const (
	StatusOK      CompletedStatus = "ok"
	StatusFailed  CompletedStatus = "failed"
	StatusCrashed CompletedStatus = "crashed"
)

// CompletedMsg is the wire shape of a build's terminal state (master ->
// driver). TaskMaster.Run does not send it: it returns the same status in
// BuildResult.Status instead.
type CompletedMsg struct {
	Status CompletedStatus
	TaskID int64 // set only when Status == StatusCrashed
}

// envelope is what actually crosses the wire: a discriminator plus at most
// one populated payload. This is the Go encoding of SPEC_FULL.md §6.2's
// "dictionaries with a string id discriminator" — a tagged union expressed
// as optional pointer fields rather than a bare interface{}, which keeps
// gob registration out of the picture entirely.
type envelope struct {
	ID        msgID
	Task      *TaskMsg
	Ready     *ReadyMsg
	RanTask   *RanTaskMsg
	Results   *ResultsMsg
	Completed *CompletedMsg
}

// channel is a gob stream over a pair of pipe ends; gob values are
// self-delimiting, so no extra length prefix is written. Each
// worker gets two independent channels (task, result), preserving the
// two-channel shape SPEC_FULL.md §9 calls out explicitly: the task channel
// lets the Task Master free a worker for its next task before the
// previous task's full results (on the result channel) have been
// processed.
type channel struct {
	enc *gob.Encoder
	dec *gob.Decoder
	w   io.Writer
}

func newChannel(r io.Reader, w io.Writer) *channel {
	return &channel{
		enc: gob.NewEncoder(w),
		dec: gob.NewDecoder(bufio.NewReader(r)),
		w:   w,
	}
}

// NewChannelPair wraps a reader and writer into one of the two IPC
// channels a worker subprocess needs (see RunWorker): r and w are
// typically a pipe end on one side and a real file descriptor
// (stdin/stdout, or the result-channel fd a Task Master passed through
// exec.Cmd.ExtraFiles) on the other. Either side may be nil if that
// direction is never used on this channel.
func NewChannelPair(r io.Reader, w io.Writer) *channel {
	return newChannel(r, w)
}

func (c *channel) send(e envelope) error {
	if err := c.enc.Encode(&e); err != nil {
		return fmt.Errorf("ambuild2: ipc send %s: %w", e.ID, err)
	}
	return nil
}

func (c *channel) recv() (envelope, error) {
	var e envelope
	if err := c.dec.Decode(&e); err != nil {
		return envelope{}, err
	}
	return e, nil
}

func (c *channel) sendTask(m TaskMsg) error    { return c.send(envelope{ID: idTask, Task: &m}) }
func (c *channel) sendReady() error            { return c.send(envelope{ID: idReady, Ready: &ReadyMsg{}}) }
func (c *channel) sendRanTask(m RanTaskMsg) error {
	return c.send(envelope{ID: idRanTask, RanTask: &m})
}
func (c *channel) sendResults(m ResultsMsg) error {
	return c.send(envelope{ID: idResults, Results: &m})
}

func (c *channel) sendCompleted(m CompletedMsg) error {
	return c.send(envelope{ID: idCompleted, Completed: &m})
}
