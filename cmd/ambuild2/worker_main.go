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

package main

import (
	"os"

	"github.com/buildgraph/ambuild2"
)

// resultFD is the well-known file descriptor the Task Master's
// exec.Cmd.ExtraFiles hands each worker its result channel on; fds 0-2
// are stdin/stdout/stderr, so the first ExtraFiles entry lands at 3.
const resultFD = 3

// runWorker re-enters this same binary as a worker subprocess: the task
// channel rides stdin/stdout, the result channel rides resultFD, both set
// up by TaskMaster.spawnWorker.
func runWorker(buildPath string) error {
	resultFile := os.NewFile(resultFD, "ambuild2-results")
	task := ambuild2.NewChannelPair(os.Stdin, os.Stdout)
	result := ambuild2.NewChannelPair(nil, resultFile)

	w := ambuild2.NewWorker(buildPath, ambuild2.NewRealDisk())
	return ambuild2.RunWorker(w, task, result)
}
