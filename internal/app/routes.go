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

import "net/http"

func (a *App) routes() {
	a.mux.HandleFunc("/interactive", a.logged(a.handleInteractive))
	a.mux.HandleFunc("/file-runs", a.logged(a.handleFileRun))
	a.mux.HandleFunc("/files", a.logged(a.handleFiles))
	a.mux.HandleFunc("/endpoint-configs", a.logged(a.handleEndpointConfigs))
	a.mux.HandleFunc("/endpoint-configs/", a.logged(a.handleEndpointConfigByName))
	a.mux.HandleFunc("/endpoint-runs/", a.logged(a.handleEndpointRun))
	a.mux.HandleFunc("/container-runs", a.logged(a.handleContainerRun))
	a.mux.HandleFunc("/webhooks/github", a.logged(a.handleGithubWebhook))
	a.mux.HandleFunc("/ping", a.logged(a.handlePing))
	a.mux.HandleFunc("/info", a.logged(a.handleInfo))
	a.mux.Handle("/metrics", a.metrics.Handler())
}

func (a *App) logged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.logger.Println(r.Method, r.URL.Path)
		next(w, r)
	}
}
