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
	"encoding/gob"
	"fmt"
	"strings"
)

// NodeType is the closed set of node kinds a graph entry can take.
type NodeType int

const (
	// Source is an external input file, identified by an absolute path.
	Source NodeType = iota
	// Output is a file produced by a command, path relative to the build root.
	Output
	// Mkdir is a directory to be ensured, path relative to the build root.
	Mkdir
	// Group is a named aggregation node with a synthetic path, no disk presence.
	Group
	// Command is a generic shell-like invocation.
	Command
	// Cxx is a compile invocation carrying an argv and a compiler flavor.
	Cxx
	// Copy copies a file.
	Copy
	// Symlink creates a symlink.
	Symlink
)

func (t NodeType) String() string {
	switch t {
	case Source:
		return "src"
	case Output:
		return "out"
	case Mkdir:
		return "mkd"
	case Group:
		return "grp"
	case Command:
		return "cmd"
	case Cxx:
		return "cxx"
	case Copy:
		return "cpy"
	case Symlink:
		return "lnk"
	default:
		return fmt.Sprintf("nodetype(%d)", int(t))
	}
}

// GroupPrefix is the synthetic path namespace reserved for Group nodes.
const GroupPrefix = "//group/./"

// IsCommand reports whether t is one of the command-category types.
func IsCommand(t NodeType) bool {
	switch t {
	case Command, Cxx, Copy, Symlink:
		return true
	default:
		return false
	}
}

// IsArtifact reports whether t is one of the artifact-category types.
func IsArtifact(t NodeType) bool {
	switch t {
	case Source, Output, Mkdir:
		return true
	default:
		return false
	}
}

// DirtyState is the three-valued dirtiness of a node.
type DirtyState int

const (
	// Clean means the node needs no attention.
	Clean DirtyState = iota
	// MaybeDirty means an artifact whose on-disk mtime must be checked.
	MaybeDirty
	// KnownDirty means the node must be (re)built or (re)observed.
	KnownDirty
)

func (d DirtyState) String() string {
	switch d {
	case Clean:
		return "clean"
	case MaybeDirty:
		return "maybe-dirty"
	case KnownDirty:
		return "known-dirty"
	default:
		return fmt.Sprintf("dirty(%d)", int(d))
	}
}

// CommandData is the command-specific payload stored in a command node's
// data blob. It is serialized with encoding/gob; see Encode/DecodeCommandData.
//
// Command and Copy/Symlink nodes only populate Argv (or Shell, for a
// Command node run through the shell the way the front-end authored it).
// Cxx nodes additionally set Flavor, which tells the worker how to parse
// discovered dependencies out of the compiler's output (see depparse.go).
type CommandData struct {
	// Shell is a shell-invoked command line, used only by NodeType Command.
	Shell string
	// Argv is an explicit argument vector, used by Cxx, Copy, and Symlink,
	// and by a Command node that has no Shell line.
	Argv []string
	// Flavor identifies the compiler driving a Cxx node ("gcc" today).
	Flavor string
}

// EncodeCommandData serializes d to its canonical byte form. The encoding is
// deterministic for a fixed set of field values, which is what lets
// Store.UpdateCommand compare two payloads bytewise to detect a refactoring
// change instead of comparing deserialized structs (see SPEC_FULL.md §4.1).
func EncodeCommandData(d *CommandData) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("ambuild2: encode command data: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCommandData deserializes bytes produced by EncodeCommandData.
func DecodeCommandData(blob []byte) (*CommandData, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var d CommandData
	dec := gob.NewDecoder(bytes.NewReader(blob))
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("ambuild2: decode command data: %w", err)
	}
	return &d, nil
}

// Entry is the in-memory projection of one graph node. Entries are owned
// exclusively by a Store's registry; every other component holds an Entry
// pointer borrowed from that registry rather than constructing its own, so
// there is a single place that can invalidate or refresh the adjacency
// caches below (see SPEC_FULL.md §9, "node caches vs. ownership").
type Entry struct {
	ID        int64
	Type      NodeType
	Path      string
	Folder    *Entry
	Blob      []byte
	Stamp     float64
	Dirty     DirtyState
	Generated bool

	// Adjacency memoization. nil means "not yet queried"; an empty, non-nil
	// map means "queried, no results". Populated on demand by the Store's
	// query* methods (SPEC_FULL.md §9, "cyclic reachability").
	outgoing      map[int64]*Entry
	strongInputs  map[int64]*Entry
	weakInputs    map[int64]*Entry
	dynamicInputs map[int64]*Entry
}

// Command reports whether e is a command-category node.
func (e *Entry) Command() bool { return IsCommand(e.Type) }

// Artifact reports whether e is an artifact-category node.
func (e *Entry) Artifact() bool { return IsArtifact(e.Type) }

// Format renders a one-line human description of e, used in error messages
// and in the refactoring-change diagnostic (SPEC_FULL.md §7).
func (e *Entry) Format() string {
	if e == nil {
		return "<unknown>"
	}
	data, err := DecodeCommandData(e.Blob)
	if err == nil && data != nil {
		switch e.Type {
		case Cxx:
			return fmt.Sprintf("[%s] -> %s", data.Flavor, strings.Join(data.Argv, " "))
		case Command:
			if data.Shell != "" {
				return data.Shell
			}
		}
		if len(data.Argv) > 0 {
			return strings.Join(data.Argv, " ")
		}
	}
	if e.Path != "" {
		return fmt.Sprintf("%s:%s", e.Type, e.Path)
	}
	return fmt.Sprintf("%s#%d", e.Type, e.ID)
}
