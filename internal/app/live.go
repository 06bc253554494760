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

package app

import (
	"github.com/codepr/narwhal/pkg/cellexec"
	"github.com/codepr/narwhal/pkg/emitter"
	"github.com/codepr/narwhal/pkg/jobloop"
)

// beginCell registers a fresh emitter for cellID and fires its Start
// event, refusing (cellexec.ErrCellBusy) if cellID already has a live
// emitter -- i.e. a previous submission hasn't reached Done yet. This
// is what gives the job-loop and container backends, which have no
// synchronous busy check of their own the way console.Submit does, the
// same at-most-one-execution guarantee at the HTTP boundary.
func (a *App) beginCell(cellID, channel string) (*emitter.CellEventEmitter, error) {
	e := emitter.New(a.sink, cellexec.CellsNamespace, channel, cellID, a.logger)
	if _, loaded := a.live.LoadOrStore(cellID, e); loaded {
		return nil, cellexec.ErrCellBusy
	}
	a.metrics.IncLiveCells()
	e.Start()
	return e, nil
}

// finishCell looks up cellID's live emitter, reports rc through it, and
// removes it from the registry. A no-op if cellID has no live emitter
// (defensive -- should not happen on the normal path).
func (a *App) finishCell(cellID string, rc int) {
	v, ok := a.live.LoadAndDelete(cellID)
	if !ok {
		return
	}
	v.(*emitter.CellEventEmitter).Done(rc)
	a.metrics.DecLiveCells()
}

// publishToEmitter is the LogRouter Publisher: it forwards batched
// stdout/stderr lines to whichever cell's emitter is currently live,
// translating LogRouter's (cellID, key, lines) vocabulary into the
// emitter's Stdout/Stderr calls. Cells with no live emitter (e.g. the
// console runner, which reports its own Stdout/Stderr directly) are a
// silent no-op here.
func (a *App) publishToEmitter(cellID, key string, lines []string) {
	v, ok := a.live.Load(cellID)
	if !ok {
		return
	}
	e := v.(*emitter.CellEventEmitter)
	if key == cellexec.KeyOut {
		e.Stdout(lines)
	} else {
		e.Stderr(lines)
	}
}

// jobEmitterFactory backs jobloop.EmitterFactory: the job loop only
// ever calls Done on the value this returns, once per submission, so
// it is a thin adapter onto finishCell.
func (a *App) jobEmitterFactory(cellID, channel string) jobloop.EventSink {
	return jobEventSink{app: a, cellID: cellID}
}

type jobEventSink struct {
	app    *App
	cellID string
}

func (s jobEventSink) Done(rc int) {
	s.app.finishCell(s.cellID, rc)
}
