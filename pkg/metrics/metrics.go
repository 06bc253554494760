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

// Package metrics exposes runtime counters and gauges for the
// submission backends (interactive console, job loop, container
// backend, endpoints) on a Prometheus registry scraped at GET /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the prometheus collectors tracked for a single runtime
// instance. A fresh Registry is used (rather than the global default
// registry) so multiple instances never collide in tests.
type Metrics struct {
	registry *prometheus.Registry

	submissionsTotal *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	liveCells        prometheus.Gauge
}

// New builds a Metrics instance and registers its collectors along with
// the standard Go process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		submissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "narwhal",
				Name:      "submissions_total",
				Help:      "Total cell/endpoint submissions accepted, by backend.",
			},
			[]string{"backend"},
		),
		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "narwhal",
				Name:      "rejections_total",
				Help:      "Total submissions rejected (busy backend, full queue, bad config), by backend and reason.",
			},
			[]string{"backend", "reason"},
		),
		liveCells: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "narwhal",
				Name:      "live_cells",
				Help:      "Number of cells currently executing across all backends.",
			},
		),
	}

	registry.MustRegister(m.submissionsTotal, m.rejectionsTotal, m.liveCells)
	return m
}

// RecordSubmission increments the accepted-submission counter for backend.
func (m *Metrics) RecordSubmission(backend string) {
	m.submissionsTotal.WithLabelValues(backend).Inc()
}

// RecordRejection increments the rejected-submission counter for backend,
// labeled with reason (e.g. "busy", "queue_full", "not_found").
func (m *Metrics) RecordRejection(backend, reason string) {
	m.rejectionsTotal.WithLabelValues(backend, reason).Inc()
}

// IncLiveCells and DecLiveCells track the number of cells currently
// executing, regardless of which backend runs them.
func (m *Metrics) IncLiveCells() { m.liveCells.Inc() }
func (m *Metrics) DecLiveCells() { m.liveCells.Dec() }

// Handler returns the http.Handler to mount at GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry so a caller can register
// additional collectors before serving.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
