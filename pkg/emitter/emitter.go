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

// Package emitter binds a SocketSink to a fixed (namespace, room, cellID)
// triple and exposes the cell event vocabulary described in spec.md
// section 4.2: start, stdout, stderr, done.
package emitter

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/codepr/narwhal/pkg/cellexec"
	"github.com/codepr/narwhal/pkg/sink"
)

const (
	stateIdle int32 = iota
	stateStarted
	stateDone
)

// CellEventEmitter translates the cell event vocabulary into the three
// canonical wire events. Start must be called exactly once before any
// Stdout/Stderr/Done call; Done must be called exactly once and is the
// last event. Re-emission past Done, or a Stdout/Stderr/Done before
// Start, is a programming error: logged and ignored rather than
// propagated, matching the runtime's "never let a cell's plumbing crash
// the process" posture.
type CellEventEmitter struct {
	sink      sink.SocketSink
	namespace string
	room      string
	cellID    string
	state     int32
	logger    *log.Logger
}

// New builds an emitter bound to s for the given namespace/room/cellID.
func New(s sink.SocketSink, namespace, room, cellID string, l *log.Logger) *CellEventEmitter {
	return &CellEventEmitter{
		sink:      s,
		namespace: namespace,
		room:      room,
		cellID:    cellID,
		logger:    l,
	}
}

func (e *CellEventEmitter) Start() {
	if !atomic.CompareAndSwapInt32(&e.state, stateIdle, stateStarted) {
		e.logger.Printf("emitter: start() called out of order for cell %s", e.cellID)
		return
	}
	e.sink.Emit(cellexec.EventRunStart, map[string]string{
		"id":     e.cellID,
		"status": cellexec.StatusBusy,
	}, e.room, e.namespace)
}

func (e *CellEventEmitter) Stdout(lines []string) {
	if atomic.LoadInt32(&e.state) != stateStarted {
		e.logger.Printf("emitter: stdout() called out of order for cell %s", e.cellID)
		return
	}
	e.sink.Emit(cellexec.EventResult, map[string]string{
		"id":     e.cellID,
		"output": strings.Join(lines, ""),
	}, e.room, e.namespace)
}

func (e *CellEventEmitter) Stderr(lines []string) {
	if atomic.LoadInt32(&e.state) != stateStarted {
		e.logger.Printf("emitter: stderr() called out of order for cell %s", e.cellID)
		return
	}
	e.sink.Emit(cellexec.EventResult, map[string]string{
		"id":    e.cellID,
		"error": strings.Join(lines, ""),
	}, e.room, e.namespace)
}

func (e *CellEventEmitter) Done(rc int) {
	if !atomic.CompareAndSwapInt32(&e.state, stateStarted, stateDone) {
		e.logger.Printf("emitter: done() called out of order for cell %s", e.cellID)
		return
	}
	status := cellexec.StatusDone
	if rc != 0 {
		status = cellexec.StatusError
	}
	e.sink.Emit(cellexec.EventRunEnd, map[string]string{
		"id":     e.cellID,
		"status": status,
	}, e.room, e.namespace)
}
