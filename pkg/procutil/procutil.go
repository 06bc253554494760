// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

// Package procutil enumerates and signals descendants of a process,
// walking /proc directly rather than shelling out. Linux-only: the
// job loop is the only caller and it already assumes a POSIX signal
// model (SIGINT/SIGKILL) the rest of this module runs on.
package procutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Descendants returns every PID whose ancestry (recursively, through
// PPID) traces back to root, root excluded. It never returns an error
// for a process that has already exited mid-walk; it simply stops
// descending from it.
func Descendants(root int) []int {
	children := childIndex()
	var out []int
	queue := []int{root}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, child := range children[pid] {
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// KillDescendants sends sig to every descendant of root, recursively,
// best-effort: a process that has already exited is skipped rather
// than treated as an error. Returns the last non-ESRCH error seen, if
// any, after attempting every descendant.
func KillDescendants(root int, sig syscall.Signal) error {
	var lastErr error
	for _, pid := range Descendants(root) {
		if err := syscall.Kill(pid, sig); err != nil && err != syscall.ESRCH {
			lastErr = fmt.Errorf("procutil: signalling pid %d: %w", pid, err)
		}
	}
	return lastErr
}

// childIndex scans /proc once and returns a PPID -> []PID adjacency
// map built from every numeric entry's stat file.
func childIndex() map[int][]int {
	index := map[int][]int{}
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return index
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ppid, ok := readPPID(pid)
		if !ok {
			continue
		}
		index[ppid] = append(index[ppid], pid)
	}
	return index
}

// readPPID parses field 4 of /proc/<pid>/stat. The comm field (field 2)
// is parenthesized and may itself contain spaces or closing parens, so
// the scan starts after the last ')' rather than naively splitting on
// whitespace.
func readPPID(pid int) (int, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, false
	}
	line := string(data)
	close := strings.LastIndexByte(line, ')')
	if close == -1 || close+2 >= len(line) {
		return 0, false
	}
	fields := strings.Fields(line[close+2:])
	// fields[0] = state, fields[1] = ppid
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}
