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

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecordSubmissionExposedOnHandler(t *testing.T) {
	m := New()
	m.RecordSubmission("jobloop")
	m.RecordSubmission("jobloop")
	m.RecordRejection("console", "busy")
	m.IncLiveCells()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `narwhal_submissions_total{backend="jobloop"} 2`) {
		t.Errorf("expected submissions counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, `narwhal_rejections_total{backend="console",reason="busy"} 1`) {
		t.Errorf("expected rejections counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, "narwhal_live_cells 1") {
		t.Errorf("expected live_cells gauge in output, got:\n%s", body)
	}
}

func TestDecLiveCellsDecrements(t *testing.T) {
	m := New()
	m.IncLiveCells()
	m.IncLiveCells()
	m.DecLiveCells()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "narwhal_live_cells 1") {
		t.Errorf("expected live_cells gauge to read 1, got:\n%s", rec.Body.String())
	}
}
