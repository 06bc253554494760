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

import (
	"encoding/json"
	"sync"
	"time"
)

type recordedEvent struct {
	Event     string
	Payload   any
	Room      string
	Namespace string
}

// RecordingSink keeps every emitted event in memory, in order. It is the
// test double used throughout this module's own test suite to assert on
// wire event sequences (see cellexec's testable properties).
type RecordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Emit(event string, payload any, room, namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{event, payload, room, namespace})
}

// Events returns a snapshot of everything recorded so far, in emission
// order.
func (s *RecordingSink) Events() []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedEvent, len(s.events))
	copy(out, s.events)
	return out
}

// FindEvent reports whether an event matching event/payload/room/namespace
// was recorded, comparing payloads by JSON encoding (so callers can pass
// plain maps or structs interchangeably).
func (s *RecordingSink) FindEvent(event string, payload any, room, namespace string) bool {
	want, err := json.Marshal(recordedEvent{event, payload, room, namespace})
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		got, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if string(got) == string(want) {
			return true
		}
	}
	return false
}

// FindEventAsync polls FindEvent five times, 0.5s apart (~2.5s total),
// for use against events that may still be in flight.
func (s *RecordingSink) FindEventAsync(event string, payload any, room, namespace string) bool {
	for i := 0; i < 5; i++ {
		if s.FindEvent(event, payload, room, namespace) {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}
