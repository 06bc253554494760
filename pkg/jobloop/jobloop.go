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

// Package jobloop runs submitted (cell_id, argv, env) requests as OS
// child processes, one at a time per cell_id, many concurrently across
// cells. Each cell in the notebook behaves like a terminal tab: unless
// the existing process is killed, a new submission to a busy cell is
// refused.
package jobloop

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/codepr/narwhal/pkg/cellexec"
	"github.com/codepr/narwhal/pkg/logrouter"
	"github.com/codepr/narwhal/pkg/procutil"
)

// killGrace bounds how long End() waits for a child to exit on its own
// after SIGTERM before it force-kills it with SIGKILL.
const killGrace = 3 * time.Second

type request struct {
	cellID  string
	channel string
	argv    []string
	env     map[string]string
}

// EventSink receives the terminal event for a submission once its
// process exits or fails to spawn. Satisfied by *emitter.CellEventEmitter
// constructed per submission by whoever wires the job loop (typically
// the AppFactory, which knows the (namespace, room) pair for the cell).
type EventSink interface {
	Done(rc int)
}

// EmitterFactory builds the EventSink for a given cell/channel pair.
// Kept as a function rather than a fixed emitter because the job loop
// outlives any single submission and each submission may target a
// different front-end channel.
type EmitterFactory func(cellID, channel string) EventSink

// JobLoop owns the dispatcher goroutine and the live child processes it
// has spawned, indexed by cell_id.
type JobLoop struct {
	router   *logrouter.LogRouter
	newSink  EmitterFactory
	logger   *log.Logger

	requests chan request
	status   sync.Map // cellID -> *int32 pid, cellexec.Idle when idle

	mu      sync.Mutex
	procs   map[string]*exec.Cmd
	started bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a job loop that routes every spawned process's stdout and
// stderr through router and reports submission-terminal events through
// the sinks newSink builds.
func New(router *logrouter.LogRouter, newSink EmitterFactory, l *log.Logger) *JobLoop {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobLoop{
		router:   router,
		newSink:  newSink,
		logger:   l,
		requests: make(chan request, 64),
		procs:    map[string]*exec.Cmd{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the dispatcher goroutine. Safe to call once; a second
// call is a no-op.
func (j *JobLoop) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	j.wg.Add(1)
	go j.dispatch()
}

func (j *JobLoop) dispatch() {
	defer j.wg.Done()
	for {
		select {
		case req, ok := <-j.requests:
			if !ok {
				return
			}
			j.wg.Add(1)
			go func(r request) {
				defer j.wg.Done()
				j.runSubprocess(r)
			}(req)
		case <-j.ctx.Done():
			return
		}
	}
}

// Submit enqueues a request for cellID to run argv with the given
// environment overlay. Non-blocking.
func (j *JobLoop) Submit(cellID, channel string, argv []string, env map[string]string) error {
	select {
	case j.requests <- request{cellID: cellID, channel: channel, argv: argv, env: env}:
		return nil
	default:
		return cellexec.ErrQueueClosed
	}
}

func (j *JobLoop) pidSlot(cellID string) *int32 {
	v, _ := j.status.LoadOrStore(cellID, new(int32))
	slot := v.(*int32)
	return slot
}

func (j *JobLoop) runSubprocess(r request) {
	slot := j.pidSlot(r.cellID)
	if pid := loadPID(slot); pid != cellexec.Idle {
		j.router.Publish(r.cellID, cellexec.KeyErr, fmt.Sprintf("cell %s already busy with pid %d", r.cellID, pid))
		return
	}

	cmd := buildCmd(j.ctx, r)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		j.spawnFailed(r, fmt.Errorf("jobloop: opening stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		j.spawnFailed(r, fmt.Errorf("jobloop: opening stderr pipe: %w", err))
		return
	}

	if err := cmd.Start(); err != nil {
		j.spawnFailed(r, &cellexec.SpawnError{CellID: r.cellID, Err: err})
		return
	}

	storePID(slot, cmd.Process.Pid)
	j.mu.Lock()
	j.procs[r.cellID] = cmd
	j.mu.Unlock()

	scope := j.router.Capture(r.cellID, stdout, stderr)
	err = cmd.Wait()
	scope.Close()

	j.mu.Lock()
	delete(j.procs, r.cellID)
	j.mu.Unlock()
	storePID(slot, cellexec.Idle)

	if j.newSink != nil {
		rc := exitCode(err)
		j.newSink(r.cellID, r.channel).Done(rc)
	}
}

func (j *JobLoop) spawnFailed(r request, err error) {
	j.router.Publish(r.cellID, cellexec.KeyErr, err.Error())
	if j.newSink != nil {
		j.newSink(r.cellID, r.channel).Done(-1)
	}
}

func buildCmd(ctx context.Context, r request) *exec.Cmd {
	var cmd *exec.Cmd
	if len(r.argv) == 1 {
		cmd = exec.CommandContext(ctx, r.argv[0])
	} else {
		cmd = exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	}
	if len(r.env) > 0 {
		env := os.Environ()
		for k, v := range r.env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	return cmd
}

// Interrupt sends SIGINT to the cell's live process, if any. No-op
// otherwise.
func (j *JobLoop) Interrupt(cellID string) error {
	return j.signal(cellID, syscall.SIGINT)
}

// Kill sends SIGKILL to the cell's live process and to every descendant
// of it, if any. No-op otherwise.
func (j *JobLoop) Kill(cellID string) error {
	j.mu.Lock()
	cmd, ok := j.procs[cellID]
	j.mu.Unlock()
	if !ok {
		return nil
	}
	procutil.KillDescendants(cmd.Process.Pid, syscall.SIGKILL)
	return cmd.Process.Kill()
}

func (j *JobLoop) signal(cellID string, sig syscall.Signal) error {
	j.mu.Lock()
	cmd, ok := j.procs[cellID]
	j.mu.Unlock()
	if !ok {
		return nil
	}
	return cmd.Process.Signal(sig)
}

// End kills every still-running child, stops the dispatcher and closes
// the request queue. Children that do not exit within killGrace are
// force-killed so End never hangs.
func (j *JobLoop) End() {
	j.mu.Lock()
	procs := make(map[string]*exec.Cmd, len(j.procs))
	for k, v := range j.procs {
		procs[k] = v
	}
	j.mu.Unlock()

	for _, cmd := range procs {
		cmd := cmd
		killDescendants(cmd.Process.Pid)
		cmd.Process.Signal(syscall.SIGTERM)
		// runSubprocess owns the only Wait on cmd; once it has reaped the
		// child, this Kill is a harmless no-op.
		time.AfterFunc(killGrace, func() { cmd.Process.Kill() })
	}

	j.cancel()
	close(j.requests)
	j.wg.Wait()
}
