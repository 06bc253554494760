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
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
)

// Submitter is the slice of jobloop.JobLoop the runner needs; kept as
// an interface so this package does not import jobloop just to call
// Submit.
type Submitter interface {
	Submit(cellID, channel string, argv []string, env map[string]string) error
}

// Runner executes named endpoints by cloning their repository (if any)
// and submitting their argv to a Submitter (in practice the job loop).
type Runner struct {
	store     *Store
	submitter Submitter
	scratch   string
}

func NewRunner(store *Store, submitter Submitter, scratchDir string) *Runner {
	return &Runner{store: store, submitter: submitter, scratch: scratchDir}
}

// Run looks up name, clones its repository into a scratch directory if
// one is configured, and submits its argv as a cellID/channel execution.
// The scratch checkout's path is appended to PYTHONPATH via env so an
// endpoint's argv can reference files inside it.
func (r *Runner) Run(name, cellID, channel string) error {
	cfg, err := r.store.Get(name)
	if err != nil {
		return err
	}

	env := map[string]string{}
	for k, v := range cfg.Env {
		env[k] = v
	}

	if cfg.Repository != nil {
		dir, err := r.cloneRepository(name, *cfg.Repository)
		if err != nil {
			return fmt.Errorf("endpoint: cloning repository for %s: %w", name, err)
		}
		if p := env["PYTHONPATH"]; p != "" {
			dir = p + string(os.PathListSeparator) + dir
		}
		env["PYTHONPATH"] = dir
	}

	return r.submitter.Submit(cellID, channel, cfg.Argv, env)
}

func (r *Runner) cloneRepository(name string, repo Repository) (string, error) {
	dir, err := os.MkdirTemp(r.scratch, name+"-")
	if err != nil {
		return "", err
	}

	cloneOpts := &git.CloneOptions{URL: repo.URL}
	if repo.Branch != "" {
		cloneOpts.ReferenceName = refNameForBranch(repo.Branch)
	}

	if _, err := git.PlainClone(dir, false, cloneOpts); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}
