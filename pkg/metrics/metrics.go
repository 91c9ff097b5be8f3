/*
Copyright 2026 The Scarlett Kernel Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes the kernel's runtime counters and gauges
// over a dedicated Prometheus registry, served at /metrics by cmd/kerneld.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry isolates the kernel's collectors from the global default
// registry, so tests can spin up independent instances without
// colliding on metric names.
type Registry struct {
	reg *prometheus.Registry

	BlockOpsTotal   *prometheus.CounterVec
	BlockOpErrors   *prometheus.CounterVec
	FDTableSize     prometheus.Gauge
	FDTableCapacity prometheus.Gauge
	TCPConnsByState *prometheus.GaugeVec
	AuditWritesTotal prometheus.Counter
	CapabilityChecksTotal *prometheus.CounterVec
}

// New registers every collector against a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		BlockOpsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "blockdev",
			Name:      "ops_total",
			Help:      "Block device operations processed, by device and operation kind.",
		}, []string{"device", "op"}),
		BlockOpErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "blockdev",
			Name:      "op_errors_total",
			Help:      "Block device operations that returned an error, by device and operation kind.",
		}, []string{"device", "op"}),
		FDTableSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "kernel",
			Subsystem: "fdtable",
			Name:      "open",
			Help:      "Open file descriptors across all processes.",
		}),
		FDTableCapacity: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "kernel",
			Subsystem: "fdtable",
			Name:      "capacity",
			Help:      "Total file descriptor capacity across all processes.",
		}),
		TCPConnsByState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kernel",
			Subsystem: "tcp",
			Name:      "connections",
			Help:      "TCP connections currently in each state.",
		}, []string{"state"}),
		AuditWritesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "audit",
			Name:      "writes_total",
			Help:      "Audit log entries recorded.",
		}),
		CapabilityChecksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "security",
			Name:      "capability_checks_total",
			Help:      "Capability checks, partitioned by outcome.",
		}, []string{"outcome"}),
	}
	return r
}

// Handler serves the registry in the Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// SetTCPState replaces the gauge value for one connection state; callers
// recompute the full state histogram on each scrape rather than trying
// to increment/decrement in lockstep with every transition.
func (r *Registry) SetTCPState(state string, count int) {
	r.TCPConnsByState.WithLabelValues(state).Set(float64(count))
}
