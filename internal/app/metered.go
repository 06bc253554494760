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
	"github.com/codepr/narwhal/pkg/emitter"
	"github.com/codepr/narwhal/pkg/metrics"
)

// meteredEmitter wraps a CellEventEmitter for the console runner, which
// calls the full Start/Stdout/Stderr/Done sequence per submission.
type meteredEmitter struct {
	inner *emitter.CellEventEmitter
	m     *metrics.Metrics
}

func (e *meteredEmitter) Start() {
	e.m.IncLiveCells()
	e.inner.Start()
}

func (e *meteredEmitter) Stdout(lines []string) { e.inner.Stdout(lines) }
func (e *meteredEmitter) Stderr(lines []string) { e.inner.Stderr(lines) }

func (e *meteredEmitter) Done(rc int) {
	e.inner.Done(rc)
	e.m.DecLiveCells()
}
