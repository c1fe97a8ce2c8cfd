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
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Disk is the filesystem surface the Node Store and Dirty Analyzer need:
// stat for mtime checks, mkdir for folder nodes, unlink/rmdir for cleanup.
// It's a direct generalization of the teacher's DiskInterface, which the
// same package used to abstract stat caching for ninja's own Node/Edge
// graph; here it backs the persistent Node Store instead.
type Disk interface {
	// Stamp returns the modification time of path, in fractional seconds
	// since the epoch, matching the Node.stamp unit from SPEC_FULL.md §3.1.
	Stamp(path string) (float64, error)
	MakeDir(path string) error
	RemoveFile(path string) error
	RemoveDir(path string) error
}

// realDisk is the default, OS-backed Disk implementation.
type realDisk struct{}

// NewRealDisk returns a Disk backed by the real filesystem.
func NewRealDisk() Disk { return realDisk{} }

func (realDisk) Stamp(path string) (float64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(fi.ModTime().UnixNano()) / 1e9, nil
}

func (realDisk) MakeDir(path string) error {
	if err := os.MkdirAll(path, 0o777); err != nil {
		return err
	}
	return nil
}

// RemoveFile unlinks path, tolerating "already gone" per
// SPEC_FULL.md §7 (FileSystemCleanup).
func (realDisk) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveDir rmdirs path, tolerating "already gone".
func (realDisk) RemoveDir(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// normalizePath canonicalizes a relative path by collapsing "." and ".."
// components and switching backslashes to forward slashes, matching the
// teacher's CanonicalizePath contract (minus the slash-bit bookkeeping,
// which only mattered for reconstructing Windows paths byte-for-byte).
func normalizePath(path string) string {
	p := filepath.ToSlash(path)
	p = filepath.ToSlash(filepath.Clean(p))
	if p == "." {
		return "."
	}
	return strings.TrimPrefix(p, "./")
}

// relativeToBuildRoot converts an absolute path that falls inside buildRoot
// into a build-root-relative path, and leaves any other absolute path
// unchanged. It implements the rewrite rule from SPEC_FULL.md §4.5.1 used
// when reconciling a worker-reported dependency path.
func relativeToBuildRoot(buildRoot, path string) string {
	root := buildRoot
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	if strings.HasPrefix(path, root) {
		rel, err := filepath.Rel(buildRoot, path)
		if err == nil {
			return normalizePath(rel)
		}
	}
	return path
}
