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

package sink

import "testing"

func TestRecordingSinkFindEvent(t *testing.T) {
	s := NewRecordingSink()
	s.Emit("cell_run_start", map[string]string{"id": "c1", "status": "busy"}, "channel", "/cells")

	if !s.FindEvent("cell_run_start", map[string]string{"id": "c1", "status": "busy"}, "channel", "/cells") {
		t.Errorf("FindEvent failed to find a recorded event")
	}
	if s.FindEvent("cell_run_end", map[string]string{"id": "c1", "status": "busy"}, "channel", "/cells") {
		t.Errorf("FindEvent matched an event that was never recorded")
	}
}

func TestRecordingSinkOrdering(t *testing.T) {
	s := NewRecordingSink()
	s.Emit("cell_run_start", nil, "channel", "/cells")
	s.Emit("cell_result", nil, "channel", "/cells")
	s.Emit("cell_run_end", nil, "channel", "/cells")

	events := s.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Event != "cell_run_start" || events[len(events)-1].Event != "cell_run_end" {
		t.Errorf("events out of order: %+v", events)
	}
}

func TestRecordingSinkFindEventAsync(t *testing.T) {
	s := NewRecordingSink()
	go s.Emit("cell_run_end", map[string]string{"id": "c1"}, "channel", "/cells")

	if !s.FindEventAsync("cell_run_end", map[string]string{"id": "c1"}, "channel", "/cells") {
		t.Errorf("FindEventAsync failed to observe event emitted concurrently")
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a := NewRecordingSink()
	b := NewRecordingSink()
	m := NewMultiSink(a, b)

	m.Emit("cell_run_start", nil, "channel", "/cells")

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("MultiSink did not fan out to every wrapped sink")
	}
}
