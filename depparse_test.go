// Copyright 2015 Google Inc. All Rights Reserved.
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

func TestParseGCCDeps(t *testing.T) {
	stderr := ". /usr/include/stdio.h\n" +
		".. /usr/include/bits/types.h\n" +
		"main.c: In function 'main':\n" +
		"main.c:3:1: warning: unused variable 'x'\n"

	cleaned, deps := parseGCCDeps(stderr)

	wantDeps := []string{"/usr/include/stdio.h", "/usr/include/bits/types.h"}
	if diff := cmp.Diff(wantDeps, deps); diff != "" {
		t.Errorf("deps: +want -got: %s", diff)
	}

	wantCleaned := "main.c: In function 'main':\n" +
		"main.c:3:1: warning: unused variable 'x'\n"
	if diff := cmp.Diff(wantCleaned, cleaned); diff != "" {
		t.Errorf("cleaned: +want -got: %s", diff)
	}
}

func TestParseGCCDeps_NoDeps(t *testing.T) {
	stderr := "main.c:1:1: error: nope\n"
	cleaned, deps := parseGCCDeps(stderr)
	if deps != nil {
		t.Errorf("deps = %v, want nil", deps)
	}
	if cleaned != stderr {
		t.Errorf("cleaned = %q, want unchanged %q", cleaned, stderr)
	}
}

func TestFilterIncludeLine(t *testing.T) {
	data := []struct {
		line     string
		wantPath string
		wantOK   bool
	}{
		{". foo.h\n", "foo.h", true},
		{"... bar/baz.h", "bar/baz.h", true},
		{"not a dep line", "", false},
		{".", "", false},
		{"", "", false},
	}
	for _, l := range data {
		path, ok := filterIncludeLine(l.line)
		if ok != l.wantOK || path != l.wantPath {
			t.Errorf("filterIncludeLine(%q) = (%q, %v), want (%q, %v)", l.line, path, ok, l.wantPath, l.wantOK)
		}
	}
}
