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

import "runtime"

// Verbosity controls how chatty the status printer is.
type Verbosity int

const (
	Normal Verbosity = iota
	Quiet
	ExplainVerbosity
)

// BuildConfig is the configuration surface named in SPEC_FULL.md §6.3.
type BuildConfig struct {
	// Jobs is the requested worker count; 0 selects the default (see NumWorkers).
	Jobs int
	// SourcePath is the absolute path to the source tree.
	SourcePath string
	// BuildPath is the absolute path to the build tree.
	BuildPath string
	// Verbosity controls console output detail.
	Verbosity Verbosity
}

// NumWorkers resolves cfg.Jobs against the machine's CPU count and the
// number of tasks actually pending, per SPEC_FULL.md §4.5: default is
// ceil(1.5 * cpu_count), minimum 2, clamped to the task count.
func NumWorkers(jobs, taskCount int) int {
	n := jobs
	if n <= 0 {
		cpus := runtime.NumCPU()
		n = (cpus*3 + 1) / 2
		if n < 2 {
			n = 2
		}
	}
	if taskCount > 0 && n > taskCount {
		n = taskCount
	}
	if n < 1 {
		n = 1
	}
	return n
}
