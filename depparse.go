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

import "strings"

// gccFlavor is the only Cxx compiler flavor this engine knows how to parse
// dependency information for (SPEC_FULL.md §4.5.2). Any other flavor is a
// hard CommandFailure at the worker.
const gccFlavor = "gcc"

// parseGCCDeps splits gcc -H style stderr into the diagnostics a user should
// see and the list of header paths the compiler reports as included.
//
// gcc -H prints one line per included file, prefixed with one or more dots
// indicating nesting depth (". foo.h", ".. bar.h", ...), interleaved with
// real diagnostics on the same stream. This is a direct generalization of
// the teacher's CLParser (clparser.go), which does the same kind of
// per-line classification for cl.exe's /showIncludes output; the dot-prefix
// grammar here is gcc's rather than MSVC's "Note: including file:" prefix,
// but the shape of the parser — classify each line, accumulate matches,
// pass everything else through — is the same.
func parseGCCDeps(stderr string) (cleaned string, deps []string) {
	var out strings.Builder
	lines := splitLinesKeepEnding(stderr)
	for _, line := range lines {
		if path, ok := filterIncludeLine(line); ok {
			deps = append(deps, path)
			continue
		}
		out.WriteString(line)
	}
	return out.String(), deps
}

// filterIncludeLine recognizes one gcc -H dependency line and returns the
// included path with its depth-dots and trailing newline stripped.
func filterIncludeLine(line string) (string, bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	i := 0
	for i < len(trimmed) && trimmed[i] == '.' {
		i++
	}
	if i == 0 || i >= len(trimmed) || trimmed[i] != ' ' {
		return "", false
	}
	path := strings.TrimSpace(trimmed[i+1:])
	if path == "" {
		return "", false
	}
	return path, true
}

// splitLinesKeepEnding splits s into lines, preserving the trailing newline
// on every line but the (possibly missing) last one, so non-dependency
// lines can be reassembled byte-for-byte into the cleaned stderr.
func splitLinesKeepEnding(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
