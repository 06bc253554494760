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

// Package app is the composition root: it builds every component --
// sink, log router, console runner, job loop, endpoint store/runner,
// file store, metrics -- and wires them into the HTTP surface described
// by SPEC_FULL.md section 6, the same role NewServer factory functions
// play in the teacher repo.
package app

import (
	"log"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/codepr/narwhal/pkg/cellexec"
	"github.com/codepr/narwhal/pkg/config"
	"github.com/codepr/narwhal/pkg/console"
	"github.com/codepr/narwhal/pkg/containerbackend"
	"github.com/codepr/narwhal/pkg/emitter"
	"github.com/codepr/narwhal/pkg/endpoint"
	"github.com/codepr/narwhal/pkg/filestore"
	"github.com/codepr/narwhal/pkg/jobloop"
	"github.com/codepr/narwhal/pkg/logrouter"
	"github.com/codepr/narwhal/pkg/metrics"
	"github.com/codepr/narwhal/pkg/sink"
)

// defaultPythonInterpreter is used both for the interactive console
// worker and for file runs, matching spec.md's "<interpreter>" shorthand.
const defaultPythonInterpreter = "python3"

// App is the fully wired runtime: HTTP handlers plus every component
// they dispatch to.
type App struct {
	cfg    config.Config
	logger *log.Logger

	sink      sink.SocketSink
	router    *logrouter.LogRouter
	console   *console.Runner
	jobs      *jobloop.JobLoop
	endpoints *endpoint.Store
	epRunner  *endpoint.Runner
	files     *filestore.FileStore
	metrics   *metrics.Metrics
	container *containerbackend.Backend

	// live tracks the emitter for every cell currently executing,
	// keyed by cellID. beginCell/finishCell/publishToEmitter in
	// live.go are the only things that touch it.
	live sync.Map

	mux *http.ServeMux
}

// New composes every component per cfg and returns a ready-to-Start App.
// containerImage may be empty, in which case no container backend is
// wired (the /endpoint-runs and /interactive/file-runs paths only ever
// use the native subprocess backend).
func New(cfg config.Config, containerImage string) (*App, error) {
	logger := log.New(os.Stderr, "narwhal: ", log.LstdFlags)

	a := &App{cfg: cfg, logger: logger}
	a.sink = buildSink(cfg, logger)
	a.metrics = metrics.New()

	// selfFeedback is true only when the sink itself writes to this
	// process's stdout/stderr -- none of the wired sinks do, they all
	// go over a socket/HTTP/AMQP transport, so ambient capture is safe.
	// publishToEmitter is how captured subprocess stdout/stderr lines
	// reach the cell's emitter -- see live.go.
	a.router = logrouter.New(a.publishToEmitter, 0, false)

	a.jobs = jobloop.New(a.router, a.jobEmitterFactory, logger)
	a.console = console.New(console.BootstrapArgv(defaultPythonInterpreter), a.router, a.consoleEmitterFactory, logger)

	a.endpoints = endpoint.NewStore(cfg.EndpointConfigRootDir)
	a.epRunner = endpoint.NewRunner(a.endpoints, a.jobs, os.TempDir())
	a.files = filestore.New(cfg.FileRootDir)

	if containerImage != "" {
		backend, err := containerbackend.New(containerImage)
		if err != nil {
			return nil, err
		}
		a.container = backend
	}

	a.mux = http.NewServeMux()
	a.routes()
	return a, nil
}

func buildSink(cfg config.Config, logger *log.Logger) sink.SocketSink {
	if cfg.SocketSinkURL == "" {
		return sink.NewRecordingSink()
	}
	switch {
	case strings.HasPrefix(cfg.SocketSinkURL, "amqp://"):
		return sink.NewAMQPSink(cfg.SocketSinkURL, "narwhal-cell-events", logger)
	default:
		return sink.NewHTTPSink(cfg.SocketSinkURL, logger)
	}
}

func (a *App) consoleEmitterFactory(cellID, channel string) console.EventSink {
	inner := emitter.New(a.sink, cellexec.CellsNamespace, channel, cellID, a.logger)
	return &meteredEmitter{inner: inner, m: a.metrics}
}

// Start launches every long-running component. Order matches
// SPEC_FULL.md section 4.6: the console's interpreter worker first,
// then the job loop dispatcher.
func (a *App) Start() error {
	if err := a.console.Start(); err != nil {
		return err
	}
	a.jobs.Start()
	return nil
}

// Stop tears every component down in the reverse order Start brought
// them up: the job loop (killing its children) first, then the console.
func (a *App) Stop() {
	a.jobs.End()
	a.console.End()
}

// Handler returns the composed HTTP handler to pass to http.Server.
func (a *App) Handler() http.Handler {
	return a.mux
}

// Sink exposes the composed SocketSink, mainly so tests can type-assert
// it to *sink.RecordingSink and inspect recorded events.
func (a *App) Sink() sink.SocketSink {
	return a.sink
}

// Metrics exposes the composed Metrics, for tests and for mounting
// GET /metrics from cmd/narwhal.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}
