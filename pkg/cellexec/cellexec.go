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

// Package cellexec holds the shared domain model for the cell execution
// runtime: the vocabulary that LogRouter, CellEventEmitter, the console
// runner and the job loop all speak, kept in one place so none of them
// need to import each other just to pass a record around.
package cellexec

const (
	// CellsNamespace is the only namespace this runtime emits on.
	CellsNamespace = "/cells"
)

// Event names carried on the wire, see SocketSink.
const (
	EventRunStart = "cell_run_start"
	EventResult   = "cell_result"
	EventRunEnd   = "cell_run_end"
)

// Execution status strings carried in CellEvent payloads.
const (
	StatusBusy  = "busy"
	StatusDone  = "done"
	StatusError = "error"
)

// Stream keys a LogRecord can carry.
const (
	KeyOut = "out"
	KeyErr = "err"
)

// ExecutionKind distinguishes the two submission shapes a cell accepts.
type ExecutionKind int

const (
	KindInteractive ExecutionKind = iota
	KindSubprocess
)

// ExecutionRequest is created by HTTP handlers and consumed exactly once
// by either the console runner or the job loop.
type ExecutionRequest struct {
	CellID  string
	Kind    ExecutionKind
	Code    string   // interactive payload
	Argv    []string // subprocess payload
	Env     map[string]string
	Channel string
}

// LogRecord is produced by stream readers and consumed by LogRouter; it
// is never persisted.
type LogRecord struct {
	CellID string
	Key    string // KeyOut or KeyErr
	Line   string
}

// CellStatus mirrors the JobLoop's per-cell bookkeeping: Idle is the
// zero value of PID, any other value is the live child's PID.
const Idle = -1
