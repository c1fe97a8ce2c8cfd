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
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// StatusPrinter tracks in-flight command counts and prints one progress
// line per started command (plus the command and its stderr when one
// fails; successful completions print nothing), adapted from the teacher's
// StatusPrinter (status.go): same "[%f/%t] description" format mini
// language and sliding-window rate estimate, generalized from ninja edges
// to ambuild2 commands.
type StatusPrinter struct {
	out       io.Writer
	verbosity Verbosity
	format    string

	started, finished, total, running int
	startTime                         time.Time
	rate                              slidingRate
}

type slidingRate struct {
	n      int
	times  []float64
	last   int
	value  float64
}

func (r *slidingRate) update(hint int, elapsedMillis float64) {
	if hint == r.last {
		return
	}
	r.last = hint
	if len(r.times) == r.n {
		r.times = r.times[1:]
	}
	r.times = append(r.times, elapsedMillis)
	if front, back := r.times[0], r.times[len(r.times)-1]; back != front {
		r.value = float64(len(r.times)) / ((back - front) / 1e3)
	}
}

// NewStatusPrinter returns a printer writing to out at the given verbosity
// and worker-count window for its sliding rate estimate. The format
// defaults to NINJA_STATUS for familiarity with the teacher's tooling,
// falling back to "[%f/%t] " exactly as status.go does.
func NewStatusPrinter(out io.Writer, verbosity Verbosity, jobs int) *StatusPrinter {
	format := os.Getenv("NINJA_STATUS")
	if format == "" {
		format = "[%f/%t] "
	}
	n := jobs
	if n < 1 {
		n = 1
	}
	return &StatusPrinter{
		out:       out,
		verbosity: verbosity,
		format:    format,
		rate:      slidingRate{n: n, value: -1, last: -1},
		startTime: time.Now(),
	}
}

// BuildStarted resets per-build counters; total is the command count the
// Task Graph is about to run.
func (s *StatusPrinter) BuildStarted(total int) {
	s.started, s.finished, s.running, s.total = 0, 0, 0, total
	s.startTime = time.Now()
}

// TaskStarted records a command beginning execution and, outside QUIET
// verbosity, prints its progress line.
func (s *StatusPrinter) TaskStarted(description string) {
	s.started++
	s.running++
	if s.verbosity == Quiet {
		return
	}
	fmt.Fprint(s.out, s.formatStatus()+description+"\n")
}

// TaskFinished records completion and, on failure, prints the failing
// command and its collected stderr.
func (s *StatusPrinter) TaskFinished(description string, ok bool, stderr string) {
	s.finished++
	s.running--
	if !ok {
		fmt.Fprintf(s.out, "FAILED: %s\n", description)
		if stderr != "" {
			fmt.Fprint(s.out, stderr)
		}
	}
}

// BuildFinished prints the trailing summary line.
func (s *StatusPrinter) BuildFinished(status CompletedStatus) {
	fmt.Fprintf(s.out, "ambuild2: %s (%d/%d commands ran)\n", status, s.finished, s.total)
}

func (s *StatusPrinter) elapsedMillis() float64 {
	return float64(time.Since(s.startTime).Milliseconds())
}

// formatStatus expands the %-placeholders from NINJA_STATUS's mini
// language: %s started, %t total, %r running, %u unstarted, %f finished,
// %o overall rate, %c current (sliding) rate, %p percent, %e elapsed.
func (s *StatusPrinter) formatStatus() string {
	elapsed := s.elapsedMillis()
	var out []byte
	for i := 0; i < len(s.format); i++ {
		c := s.format[i]
		if c != '%' || i == len(s.format)-1 {
			out = append(out, c)
			continue
		}
		i++
		switch s.format[i] {
		case '%':
			out = append(out, '%')
		case 's':
			out = append(out, strconv.Itoa(s.started)...)
		case 't':
			out = append(out, strconv.Itoa(s.total)...)
		case 'r':
			out = append(out, strconv.Itoa(s.running)...)
		case 'u':
			out = append(out, strconv.Itoa(s.total-s.started)...)
		case 'f':
			out = append(out, strconv.Itoa(s.finished)...)
		case 'o':
			out = append(out, formatRate(float64(s.finished)/elapsed*1000)...)
		case 'c':
			s.rate.update(s.finished, elapsed)
			out = append(out, formatRate(s.rate.value)...)
		case 'p':
			pct := 0
			if s.total > 0 {
				pct = (100 * s.finished) / s.total
			}
			out = append(out, fmt.Sprintf("%3d%%", pct)...)
		case 'e':
			out = append(out, fmt.Sprintf("%.3f", elapsed*0.001)...)
		default:
			out = append(out, '%', s.format[i])
		}
	}
	return string(out)
}

func formatRate(rate float64) string {
	if rate < 0 {
		return "?"
	}
	return fmt.Sprintf("%.1f", rate)
}
