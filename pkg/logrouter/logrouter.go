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

// Package logrouter multiplexes the stdout/stderr of any number of
// concurrently running cells onto a single ordered stream of
// cellexec.LogRecord values, optionally batched over LoggingInterval
// before being handed to a publish callback.
package logrouter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/codepr/narwhal/pkg/cellexec"
)

// Publisher receives a batch of lines for a single (cellID, key) pair.
// It is called from the router's own goroutine when batching is off, and
// from batch timer goroutines when it is on; calls are never concurrent.
type Publisher func(cellID, key string, lines []string)

// LogRouter owns a single records channel fed by per-cell stream
// readers and drains it into a Publisher, batching consecutive records
// for the same (cellID, key) that arrive within LoggingInterval of one
// another. A LoggingInterval of zero publishes every line immediately,
// matching the original's unbuffered default.
type LogRouter struct {
	publish         Publisher
	loggingInterval time.Duration

	records chan cellexec.LogRecord
	done    chan struct{}

	// selfFeedback is set by the AppFactory when the configured sink
	// writes events back to this process's own stdout/stderr. Capturing
	// ambient streams in that configuration is an infinite loop: every
	// line the router reads becomes a log event whose emission writes
	// more lines to the very stream being read.
	selfFeedback bool

	wg sync.WaitGroup
}

// New builds a router that calls publish for every batch it assembles.
// loggingInterval <= 0 disables batching.
func New(publish Publisher, loggingInterval time.Duration, selfFeedback bool) *LogRouter {
	r := &LogRouter{
		publish:         publish,
		loggingInterval: loggingInterval,
		records:         make(chan cellexec.LogRecord, 256),
		done:            make(chan struct{}),
		selfFeedback:    selfFeedback,
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Close stops the router's drain loop. Any records already queued are
// flushed before it returns.
func (r *LogRouter) Close() error {
	close(r.records)
	r.wg.Wait()
	return nil
}

func (r *LogRouter) loop() {
	defer r.wg.Done()

	type key struct{ cellID, streamKey string }
	pending := map[key][]string{}
	timers := map[key]*time.Timer{}
	// mu guards pending, which batch timers flush from their own
	// goroutines, and serialises the publish calls made from them.
	var mu sync.Mutex

	flush := func(k key) {
		mu.Lock()
		defer mu.Unlock()
		lines := pending[k]
		if len(lines) == 0 {
			return
		}
		delete(pending, k)
		r.publish(k.cellID, k.streamKey, lines)
	}

	for rec := range r.records {
		k := key{rec.CellID, rec.Key}
		if r.loggingInterval <= 0 {
			r.publish(rec.CellID, rec.Key, []string{rec.Line})
			continue
		}
		mu.Lock()
		pending[k] = append(pending[k], rec.Line)
		mu.Unlock()
		if t, ok := timers[k]; ok {
			t.Stop()
		}
		kk := k
		timers[kk] = time.AfterFunc(r.loggingInterval, func() {
			flush(kk)
		})
	}

	// Drain anything still pending once the input side closes.
	for k, t := range timers {
		t.Stop()
		flush(k)
	}
}

// scope implements io.Closer for a single capture session; closing it
// stops the readers for that cell without tearing down the router.
type scope struct {
	stop chan struct{}
	wg   *sync.WaitGroup
}

func (s *scope) Close() error {
	close(s.stop)
	s.wg.Wait()
	return nil
}

// Publish injects a single already-materialized line for cellID/key,
// bypassing the reader goroutines entirely. Used by components that
// already have per-line data, such as the job loop reporting a spawn
// failure before any child process -- and therefore any stream --
// exists.
func (r *LogRouter) Publish(cellID, key, line string) {
	r.records <- cellexec.LogRecord{CellID: cellID, Key: key, Line: line}
}

// Capture reads stdout and stderr line by line, each until its own EOF
// or until the returned scope is Closed, publishing a cellexec.LogRecord
// per line onto the router's internal channel.
func (r *LogRouter) Capture(cellID string, stdout, stderr io.Reader) io.Closer {
	sc := &scope{stop: make(chan struct{}), wg: &sync.WaitGroup{}}
	sc.wg.Add(2)
	go r.readStream(sc, cellID, cellexec.KeyOut, stdout)
	go r.readStream(sc, cellID, cellexec.KeyErr, stderr)
	return sc
}

func (r *LogRouter) readStream(sc *scope, cellID, streamKey string, stream io.Reader) {
	defer sc.wg.Done()
	if stream == nil {
		return
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(stream)
		for {
			// ReadString keeps the trailing "\n" on the returned line,
			// matching the original's iter(stream.readline, '') so a
			// single line of output round-trips byte for byte.
			line, err := reader.ReadString('\n')
			if line != "" {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			select {
			case r.records <- cellexec.LogRecord{CellID: cellID, Key: streamKey, Line: line}:
			case <-sc.stop:
				return
			}
		case <-sc.stop:
			return
		}
	}
}

// CaptureAmbient redirects the calling process's own stdout and stderr
// through an os.Pipe pair and captures them as if they belonged to
// cellID. It refuses when selfFeedback is set: publishing an event for
// every line read would otherwise write right back into the stream
// being read, looping forever.
func (r *LogRouter) CaptureAmbient(cellID string) (io.Closer, error) {
	if r.selfFeedback {
		return nil, fmt.Errorf("logrouter: refusing to capture ambient streams: sink writes back to this process's stdout (cell %s)", cellID)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("logrouter: opening stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("logrouter: opening stderr pipe: %w", err)
	}

	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = outW, errW

	inner := r.Capture(cellID, outR, errR)
	return &ambientScope{
		inner:   inner,
		outW:    outW,
		errW:    errW,
		origOut: origOut,
		origErr: origErr,
	}, nil
}

type ambientScope struct {
	inner            io.Closer
	outW, errW       *os.File
	origOut, origErr *os.File
}

func (a *ambientScope) Close() error {
	os.Stdout, os.Stderr = a.origOut, a.origErr
	a.outW.Close()
	a.errW.Close()
	return a.inner.Close()
}
