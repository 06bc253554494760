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
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSSink is a SocketSink that terminates the socket itself instead of
// forwarding to an upstream collector: front-ends upgrade to a websocket
// connection against a (namespace, room) pair and get every event for
// that pair fanned out to them directly.
type WSSink struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu    sync.Mutex
	conns map[string][]*websocket.Conn // key: namespace+"|"+room
}

func NewWSSink(l *log.Logger) *WSSink {
	return &WSSink{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: l,
		conns:  map[string][]*websocket.Conn{},
	}
}

func roomKey(namespace, room string) string {
	return namespace + "|" + room
}

// ServeHTTP upgrades the request and registers the connection against
// the namespace/room pair given in the query string.
func (s *WSSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	room := r.URL.Query().Get("room")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Println("ws sink: upgrade failed", err)
		return
	}

	key := roomKey(namespace, room)
	s.mu.Lock()
	s.conns[key] = append(s.conns[key], conn)
	s.mu.Unlock()

	defer s.removeConn(key, conn)
	defer conn.Close()

	// Drain and discard anything the client sends; this is an
	// event-out-only channel.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WSSink) removeConn(key string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.conns[key][:0]
	for _, c := range s.conns[key] {
		if c != conn {
			remaining = append(remaining, c)
		}
	}
	s.conns[key] = remaining
}

func (s *WSSink) Emit(event string, payload any, room, namespace string) {
	body, err := json.Marshal(wireEvent{
		Event:     event,
		Payload:   payload,
		Room:      room,
		Namespace: namespace,
	})
	if err != nil {
		s.logger.Println("ws sink: unable to marshal event", err)
		return
	}

	key := roomKey(namespace, room)
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns[key]...)
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			s.logger.Println("ws sink: write failed", err)
		}
	}
}
