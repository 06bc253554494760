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

package procutil

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

// TestDescendantsFindsShelledOutChild spawns a shell that in turn spawns
// a sleep, and checks that Descendants(shell.pid) includes the sleep's
// pid -- the shape the job loop relies on when a submitted cell runs
// "/bin/bash -c '...'" and that script forks further children.
func TestDescendantsFindsShelledOutChild(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "sleep 5 & wait")
	if err := cmd.Start(); err != nil {
		t.Skipf("unable to start test subprocess: %v", err)
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()

	// Give the shell a moment to fork sleep.
	time.Sleep(200 * time.Millisecond)

	descendants := Descendants(cmd.Process.Pid)
	if len(descendants) == 0 {
		t.Fatalf("expected at least one descendant of pid %d, found none", cmd.Process.Pid)
	}
}

func TestKillDescendantsTerminatesChild(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "sleep 30 & wait")
	if err := cmd.Start(); err != nil {
		t.Skipf("unable to start test subprocess: %v", err)
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()

	time.Sleep(200 * time.Millisecond)
	descendants := Descendants(cmd.Process.Pid)
	if len(descendants) == 0 {
		t.Fatalf("expected descendants before kill, found none")
	}

	if err := KillDescendants(cmd.Process.Pid, syscall.SIGKILL); err != nil {
		t.Errorf("KillDescendants returned error: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	for _, pid := range descendants {
		if ppid, ok := readPPID(pid); ok && ppid == cmd.Process.Pid {
			t.Errorf("descendant pid %d still alive after KillDescendants", pid)
		}
	}
}
