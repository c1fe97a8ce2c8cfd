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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsCommandIsArtifact(t *testing.T) {
	for _, tt := range []NodeType{Source, Output, Mkdir} {
		if IsCommand(tt) {
			t.Errorf("IsCommand(%s) = true, want false", tt)
		}
		if !IsArtifact(tt) {
			t.Errorf("IsArtifact(%s) = false, want true", tt)
		}
	}
	// Group is a third category: neither a command nor an artifact.
	if IsCommand(Group) {
		t.Errorf("IsCommand(%s) = true, want false", Group)
	}
	if IsArtifact(Group) {
		t.Errorf("IsArtifact(%s) = true, want false", Group)
	}
	for _, tt := range []NodeType{Command, Cxx, Copy, Symlink} {
		if !IsCommand(tt) {
			t.Errorf("IsCommand(%s) = false, want true", tt)
		}
		if IsArtifact(tt) {
			t.Errorf("IsArtifact(%s) = true, want false", tt)
		}
	}
}

func TestCommandDataRoundTrip(t *testing.T) {
	data := []*CommandData{
		{Shell: "echo hi"},
		{Argv: []string{"gcc", "-c", "main.c"}, Flavor: "gcc"},
		nil,
	}
	for _, d := range data {
		blob, err := EncodeCommandData(d)
		if err != nil {
			t.Fatalf("EncodeCommandData(%v): %v", d, err)
		}
		got, err := DecodeCommandData(blob)
		if err != nil {
			t.Fatalf("DecodeCommandData: %v", err)
		}
		if diff := cmp.Diff(d, got); diff != "" {
			t.Errorf("round-trip +want -got: %s", diff)
		}
	}
}

func TestCommandDataCanonicalEncoding(t *testing.T) {
	a, err := EncodeCommandData(&CommandData{Argv: []string{"a", "b"}, Flavor: "gcc"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeCommandData(&CommandData{Argv: []string{"a", "b"}, Flavor: "gcc"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("two encodings of equal values differ: %s", diff)
	}

	c, err := EncodeCommandData(&CommandData{Argv: []string{"a", "c"}, Flavor: "gcc"})
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Equal(a, c) {
		t.Errorf("encodings of different values are equal")
	}
}

func TestEntryFormat(t *testing.T) {
	cxxData, _ := EncodeCommandData(&CommandData{Argv: []string{"gcc", "-c", "main.c"}, Flavor: "gcc"})
	shellData, _ := EncodeCommandData(&CommandData{Shell: "echo hi"})

	data := []struct {
		name string
		e    *Entry
		want string
	}{
		{"cxx", &Entry{Type: Cxx, Blob: cxxData}, "[gcc] -> gcc -c main.c"},
		{"shell", &Entry{Type: Command, Blob: shellData}, "echo hi"},
		{"source", &Entry{Type: Source, Path: "/src/main.c"}, "src:/src/main.c"},
		{"no-path-no-data", &Entry{Type: Group, ID: 7}, "grp#7"},
	}
	for _, l := range data {
		t.Run(l.name, func(t *testing.T) {
			if got := l.e.Format(); got != l.want {
				t.Errorf("Format() = %q, want %q", got, l.want)
			}
		})
	}
}
