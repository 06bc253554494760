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

package endpoint

import (
	"testing"
)

func TestStoreSaveAndGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	cfg := Config{
		Name: "nightly-lint",
		Argv: []string{"/usr/bin/python3", "-u", "lint.py"},
		Env:  map[string]string{"PYTHONPATH": "/srv/files"},
	}

	if err := s.Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get("nightly-lint")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != cfg.Name || len(got.Argv) != len(cfg.Argv) {
		t.Errorf("round-tripped config = %+v, want %+v", got, cfg)
	}
	if got.Env["PYTHONPATH"] != "/srv/files" {
		t.Errorf("env not round-tripped: %+v", got.Env)
	}
}

func TestStoreGetMissingEndpointFails(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Get("does-not-exist"); err == nil {
		t.Errorf("expected Get to fail for a missing endpoint")
	}
}

type fakeSubmitter struct {
	cellID, channel string
	argv            []string
	env             map[string]string
}

func (f *fakeSubmitter) Submit(cellID, channel string, argv []string, env map[string]string) error {
	f.cellID, f.channel, f.argv, f.env = cellID, channel, argv, env
	return nil
}

func TestRunnerRunsEndpointWithoutRepository(t *testing.T) {
	store := NewStore(t.TempDir())
	cfg := Config{Name: "no-repo", Argv: []string{"/bin/echo", "hi"}}
	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sub := &fakeSubmitter{}
	runner := NewRunner(store, sub, t.TempDir())

	if err := runner.Run("no-repo", "cell-1", "chan-1"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sub.cellID != "cell-1" || sub.channel != "chan-1" {
		t.Errorf("submitter received cellID=%q channel=%q", sub.cellID, sub.channel)
	}
	if len(sub.argv) != 2 || sub.argv[0] != "/bin/echo" {
		t.Errorf("submitter received argv=%v", sub.argv)
	}
}
