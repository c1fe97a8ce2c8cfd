// Copyright 2016 Google Inc. All Rights Reserved.
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
	"testing"
)

func TestStatusPrinter_FormatReplacePlaceholders(t *testing.T) {
	var out bytes.Buffer
	s := NewStatusPrinter(&out, Normal, 4)
	s.format = "[%%/s%s/t%t/r%r/u%u/f%f]"
	s.BuildStarted(0)

	if got, want := s.formatStatus(), "[%/s0/t0/r0/u0/f0]"; got != want {
		t.Errorf("formatStatus() = %q, want %q", got, want)
	}
}

func TestStatusPrinter_TaskStartedAdvancesCounters(t *testing.T) {
	var out bytes.Buffer
	s := NewStatusPrinter(&out, Normal, 2)
	s.format = "[%s/%t/%r]"
	s.BuildStarted(3)

	s.TaskStarted("compile main.c")
	if got, want := s.formatStatus(), "[1/3/1]"; got != want {
		t.Errorf("after one TaskStarted, formatStatus() = %q, want %q", got, want)
	}
	if out.String() != "[1/3/1]compile main.c\n" {
		t.Errorf("printed line = %q, want the post-increment status followed by the description", out.String())
	}

	s.TaskFinished("compile main.c", true, "")
	if got, want := s.formatStatus(), "[1/3/0]"; got != want {
		t.Errorf("after TaskFinished, formatStatus() = %q, want %q", got, want)
	}
}

func TestStatusPrinter_TaskFinishedPrintsFailure(t *testing.T) {
	var out bytes.Buffer
	s := NewStatusPrinter(&out, Normal, 1)
	s.BuildStarted(1)
	s.TaskStarted("link a.out")
	out.Reset()

	s.TaskFinished("link a.out", false, "undefined reference to foo\n")
	want := "FAILED: link a.out\nundefined reference to foo\n"
	if out.String() != want {
		t.Errorf("TaskFinished(ok=false) output = %q, want %q", out.String(), want)
	}
}

func TestStatusPrinter_QuietSuppressesStartLines(t *testing.T) {
	var out bytes.Buffer
	s := NewStatusPrinter(&out, Quiet, 1)
	s.BuildStarted(1)
	s.TaskStarted("compile main.c")
	if out.Len() != 0 {
		t.Errorf("Quiet verbosity printed a start line: %q", out.String())
	}
}

func TestFormatRate(t *testing.T) {
	if got, want := formatRate(-1), "?"; got != want {
		t.Errorf("formatRate(-1) = %q, want %q", got, want)
	}
	if got, want := formatRate(2.5), "2.5"; got != want {
		t.Errorf("formatRate(2.5) = %q, want %q", got, want)
	}
}

func TestSlidingRate_IgnoresRepeatedHint(t *testing.T) {
	r := slidingRate{n: 3, last: -1}
	r.update(1, 100)
	r.update(1, 200) // same hint: must be ignored, not folded into the window
	if len(r.times) != 1 {
		t.Errorf("times = %v, want a single sample after a repeated hint", r.times)
	}
}
