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

// Package console runs a single long-lived interpreter worker as a
// dedicated OS process, serializing submitted code strings through it
// one at a time. Running the interpreter out-of-process is what lets
// Interrupt target only the user's code, never the runner itself.
package console

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/codepr/narwhal/pkg/cellexec"
	"github.com/codepr/narwhal/pkg/logrouter"
)

// inputSentinel marks the end of a submitted cell on stdin, on its own
// line, so bootstrapScript knows when to stop buffering and exec what
// it has collected.
const inputSentinel = "\x00NARWHAL-CELL-DONE\x00"

// sentinelPrefix/sentinelSuffix delimit the status sentinel bootstrapScript
// echoes back on both stdout and stderr once it has execed (or failed to
// exec) a cell, flushing first so no output from the cell can arrive
// after it. The digit between them is the cell's exit status: 0 on a
// clean exec, 1 if exec raised.
const (
	sentinelPrefix = "\x00NARWHAL-CELL-DONE:"
	sentinelSuffix = "\x00"
)

// bootstrapScript is fed to the interpreter via -c. It reads one cell
// at a time from stdin, delimited by inputSentinel on its own line,
// execs it against a persistent namespace (so later cells see earlier
// cells' definitions, matching code.InteractiveConsole's behavior),
// and reports completion with a status sentinel on both streams.
const bootstrapScript = `
import sys, traceback
_ns = {}
_buf = []
while True:
    _line = sys.stdin.readline()
    if _line == "":
        break
    if _line.rstrip("\n") == "\x00NARWHAL-CELL-DONE\x00":
        _src = "".join(_buf)
        _buf = []
        _rc = 0
        try:
            exec(compile(_src, "<cell>", "exec"), _ns)
        except BaseException:
            traceback.print_exc()
            _rc = 1
        sys.stdout.flush()
        sys.stderr.flush()
        print("\x00NARWHAL-CELL-DONE:%d\x00" % _rc, flush=True)
        print("\x00NARWHAL-CELL-DONE:%d\x00" % _rc, file=sys.stderr, flush=True)
    else:
        _buf.append(_line)
`

const (
	busyIdle int32 = -1
	busyBusy int32 = 1
)

// EventSink receives Start/Stdout/Stderr/Done for the currently
// executing cell. Satisfied by *emitter.CellEventEmitter.
type EventSink interface {
	Start()
	Stdout(lines []string)
	Stderr(lines []string)
	Done(rc int)
}

// EmitterFactory builds the EventSink for a given cell/channel pair,
// same role as jobloop.EmitterFactory.
type EmitterFactory func(cellID, channel string) EventSink

type submission struct {
	cellID  string
	channel string
	code    string
}

// Runner owns exactly one interpreter process and its inbound queue.
type Runner struct {
	interpreterArgv []string
	// router is accepted for constructor symmetry with jobloop.New; the
	// console path never publishes through it, since its EventSink
	// already gives each cell the same start/output/end sequencing the
	// job loop gets from the router.
	router  *logrouter.LogRouter
	newSink EmitterFactory
	logger  *log.Logger

	queue chan submission
	busy  int32 // busyIdle or busyBusy, read by HTTP handlers via IsBusy
	ended int32 // set to 1 by End; the worker skips submissions still queued

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	done   chan struct{}
}

// New builds a console runner that will launch interpreterArgv (e.g.
// []string{"python3", "-u", "-c", bootstrapScript}) on Start.
func New(interpreterArgv []string, router *logrouter.LogRouter, newSink EmitterFactory, l *log.Logger) *Runner {
	return &Runner{
		interpreterArgv: interpreterArgv,
		router:          router,
		newSink:         newSink,
		logger:          l,
		queue:           make(chan submission, 64),
		busy:            busyIdle,
	}
}

// BootstrapArgv returns the argv this module uses by default to launch
// a Python interpreter running bootstrapScript; callers that want a
// different interpreter build their own argv instead of calling this.
func BootstrapArgv(python string) []string {
	return []string{python, "-u", "-c", bootstrapScript}
}

// Start spawns the interpreter process and the worker goroutine that
// serves the submission queue. A second call spawns nothing and returns
// cellexec.ErrAlreadyStart.
func (r *Runner) Start() error {
	if r.cmd != nil {
		return cellexec.ErrAlreadyStart
	}
	cmd := exec.Command(r.interpreterArgv[0], r.interpreterArgv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("console: opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("console: opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("console: opening stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("console: starting interpreter: %w", err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.done = make(chan struct{})

	go r.worker(stdout, stderr)
	return nil
}

// IsBusy reports whether a submission is currently executing.
func (r *Runner) IsBusy() bool {
	return atomic.LoadInt32(&r.busy) == busyBusy
}

// Submit enqueues code for cellID. Rejects with ErrConsoleBusy while a
// previous submission is still running; rejects with ErrNotStarted if
// Start has not been called.
func (r *Runner) Submit(cellID, channel, code string) error {
	if r.cmd == nil {
		return cellexec.ErrNotStarted
	}
	if r.IsBusy() {
		return cellexec.ErrConsoleBusy
	}
	select {
	case r.queue <- submission{cellID: cellID, channel: channel, code: code}:
		return nil
	default:
		return cellexec.ErrQueueClosed
	}
}

// Interrupt sends SIGINT to the interpreter process; the running cell,
// if any, is expected to translate that into a keyboard-interrupt-style
// abort and return the worker to idle.
func (r *Runner) Interrupt() error {
	if r.cmd == nil {
		return cellexec.ErrNotStarted
	}
	return r.cmd.Process.Signal(syscall.SIGINT)
}

// End closes the submission queue and terminates the interpreter.
// Submissions still queued but not yet started are dropped.
func (r *Runner) End() error {
	if r.cmd == nil {
		return cellexec.ErrNotStarted
	}
	atomic.StoreInt32(&r.ended, 1)
	close(r.queue)
	r.stdin.Close()
	err := r.cmd.Process.Kill()
	<-r.done
	return err
}

func (r *Runner) worker(stdout, stderr io.ReadCloser) {
	defer close(r.done)
	outReader := bufio.NewReader(stdout)
	errReader := bufio.NewReader(stderr)

	for sub := range r.queue {
		if atomic.LoadInt32(&r.ended) == 1 {
			continue
		}
		atomic.StoreInt32(&r.busy, busyBusy)
		sink := r.newSink(sub.cellID, sub.channel)
		sink.Start()

		fmt.Fprint(r.stdin, sub.code)
		if !strings.HasSuffix(sub.code, "\n") {
			fmt.Fprint(r.stdin, "\n")
		}
		fmt.Fprintln(r.stdin, inputSentinel)

		outRc := make(chan int, 1)
		errRc := make(chan int, 1)
		go drainUntilSentinel(outReader, sink.Stdout, outRc)
		go drainUntilSentinel(errReader, sink.Stderr, errRc)

		// bootstrapScript echoes the same status on both streams; either
		// one that reaches its sentinel before EOF carries the real rc.
		rc := 0
		if v, ok := <-outRc; ok {
			rc = v
		}
		if v, ok := <-errRc; ok {
			rc = v
		}

		sink.Done(rc)
		atomic.StoreInt32(&r.busy, busyIdle)
	}
}

// parseSentinel reports whether line (with or without its trailing
// newline) is a status sentinel, and if so, the rc it carries.
func parseSentinel(line string) (rc int, ok bool) {
	line = strings.TrimRight(line, "\n")
	if !strings.HasPrefix(line, sentinelPrefix) || !strings.HasSuffix(line, sentinelSuffix) {
		return 0, false
	}
	digits := line[len(sentinelPrefix) : len(line)-len(sentinelSuffix)]
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// drainUntilSentinel reads lines from r, batching them, and calls
// publish once with every line read since the previous submission when
// the status sentinel is reached (or EOF, whichever comes first). The
// sentinel's rc, if one was seen, is sent on rcCh before it is closed.
func drainUntilSentinel(r *bufio.Reader, publish func([]string), rcCh chan<- int) {
	defer close(rcCh)
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if rc, ok := parseSentinel(line); ok {
				if len(lines) > 0 {
					publish(lines)
				}
				rcCh <- rc
				return
			}
			lines = append(lines, line)
		}
		if err != nil {
			break
		}
	}
	if len(lines) > 0 {
		publish(lines)
	}
}
