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
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// HTTPSink posts every event as JSON to an upstream Socket.IO-compatible
// collector. Delivery is best effort: transport errors are logged only,
// never returned to the caller.
type HTTPSink struct {
	url    string
	client *http.Client
	logger *log.Logger
}

type wireEvent struct {
	Event     string `json:"event"`
	Payload   any    `json:"payload"`
	Room      string `json:"room"`
	Namespace string `json:"namespace"`
}

// NewHTTPSink builds a sink that posts to url, e.g.
// "http://collector.local/runtime-messages".
func NewHTTPSink(url string, l *log.Logger) *HTTPSink {
	return &HTTPSink{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: l,
	}
}

func (s *HTTPSink) Emit(event string, payload any, room, namespace string) {
	body, err := json.Marshal(wireEvent{
		Event:     event,
		Payload:   payload,
		Room:      room,
		Namespace: namespace,
	})
	if err != nil {
		s.logger.Println("sink: unable to marshal event", err)
		return
	}
	res, err := s.client.Post(s.url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		s.logger.Println("sink: unable to post event", err)
		return
	}
	res.Body.Close()
}
