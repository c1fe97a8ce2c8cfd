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

func TestEditDistance_Empty(t *testing.T) {
	for _, tt := range []struct{ a, b string }{{"", "ninja"}, {"ninja", ""}, {"", ""}} {
		want := len(tt.a) + len(tt.b)
		if got := editDistance(tt.a, tt.b, true, 0); got != want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, want)
		}
	}
}

func TestEditDistance_MaxDistance(t *testing.T) {
	for max := 1; max < 7; max++ {
		got := editDistance("abcdefghijklmnop", "ponmlkjihgfedcba", true, max)
		if want := max + 1; got != want {
			t.Errorf("editDistance(max=%d) = %d, want %d", max, got, want)
		}
	}
}

func TestEditDistance_AllowReplacements(t *testing.T) {
	if diff := cmp.Diff(1, editDistance("ninja", "njnja", true, 0)); diff != "" {
		t.Errorf("+want -got: %s", diff)
	}
	if diff := cmp.Diff(1, editDistance("njnja", "ninja", true, 0)); diff != "" {
		t.Errorf("+want -got: %s", diff)
	}
	if diff := cmp.Diff(2, editDistance("ninja", "njnja", false, 0)); diff != "" {
		t.Errorf("+want -got: %s", diff)
	}
	if diff := cmp.Diff(2, editDistance("njnja", "ninja", false, 0)); diff != "" {
		t.Errorf("+want -got: %s", diff)
	}
}

func TestEditDistance_Basics(t *testing.T) {
	data := []struct {
		a, b string
		want int
	}{
		{"browser_tests", "browser_tests", 0},
		{"browser_test", "browser_tests", 1},
		{"browser_tests", "browser_test", 1},
	}
	for _, l := range data {
		if diff := cmp.Diff(l.want, editDistance(l.a, l.b, true, 0)); diff != "" {
			t.Errorf("editDistance(%q, %q): +want -got: %s", l.a, l.b, diff)
		}
	}
}

func TestSpellcheckPath(t *testing.T) {
	candidates := []string{"src/main.cc", "src/util.cc", "include/foo.h"}
	if got := spellcheckPath("src/main.cc", candidates); got != "src/main.cc" {
		t.Errorf("spellcheckPath(exact) = %q, want exact match", got)
	}
	if got := spellcheckPath("src/mian.cc", candidates); got != "src/main.cc" {
		t.Errorf("spellcheckPath(typo) = %q, want src/main.cc", got)
	}
	if got := spellcheckPath("completely/unrelated/path.xyz", candidates); got != "" {
		t.Errorf("spellcheckPath(unrelated) = %q, want no suggestion", got)
	}
}
