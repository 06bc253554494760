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

package logrouter

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type capturedBatch struct {
	cellID, key string
	lines       []string
}

func TestCaptureUnbufferedPublishesEachLine(t *testing.T) {
	var mu sync.Mutex
	var batches []capturedBatch

	r := New(func(cellID, key string, lines []string) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, capturedBatch{cellID, key, lines})
	}, 0, false)

	stdout := strings.NewReader("line one\nline two\n")
	scope := r.Capture("cell-1", stdout, strings.NewReader(""))

	waitForBatches(t, &mu, &batches, 2)
	scope.Close()
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 2 {
		t.Fatalf("expected 2 unbatched publishes, got %d", len(batches))
	}
	for _, b := range batches {
		if b.cellID != "cell-1" || b.key != "out" {
			t.Errorf("unexpected batch %+v", b)
		}
	}
}

func TestCaptureBatchesWithinInterval(t *testing.T) {
	var mu sync.Mutex
	var batches []capturedBatch

	r := New(func(cellID, key string, lines []string) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, capturedBatch{cellID, key, lines})
	}, 50*time.Millisecond, false)

	stdout := strings.NewReader("a\nb\nc\n")
	scope := r.Capture("cell-2", stdout, strings.NewReader(""))

	waitForBatches(t, &mu, &batches, 1)
	scope.Close()
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("expected a single batched publish, got %d", len(batches))
	}
	if len(batches[0].lines) != 3 {
		t.Errorf("expected 3 lines in the batch, got %d: %v", len(batches[0].lines), batches[0].lines)
	}
}

func TestCaptureAmbientRefusesOnSelfFeedback(t *testing.T) {
	r := New(func(string, string, []string) {}, 0, true)
	defer r.Close()

	if _, err := r.CaptureAmbient("cell-3"); err == nil {
		t.Errorf("expected CaptureAmbient to refuse when selfFeedback is set")
	}
}

func waitForBatches(t *testing.T, mu *sync.Mutex, batches *[]capturedBatch, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := len(*batches)
		mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d batches", n)
}
