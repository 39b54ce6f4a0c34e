// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package metrics exposes exploration progress as Prometheus metrics.
//
// Every Metrics value owns a private registry, so several searches in one
// process, or tests, never collide on the default registry. Handler serves
// the registry in the text exposition format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/trustgo/internal/algo"
	"github.com/vk/trustgo/internal/checker"
)

const namespace = "trustgo"

// Metrics records checker progress. It implements checker.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	iterations   *prometheus.CounterVec
	duration     prometheus.Histogram
	events       prometheus.Histogram
	popped       *prometheus.GaugeVec
	pushed       *prometheus.GaugeVec
	inconsistent prometheus.Gauge
	pending      prometheus.Gauge
	distinct     prometheus.Gauge
	duplicates   prometheus.Gauge
}

var _ checker.Recorder = (*Metrics)(nil)

// New registers the checker metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "iterations_total",
			Help:      "Runs of the subject program by outcome.",
		}, []string{"status"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "iteration_duration_seconds",
			Help:      "Wall time of one run.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		events: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "graph_events",
			Help:      "Events in the execution graph at the end of a run.",
			Buckets:   prometheus.ExponentialBuckets(2, 2, 10),
		}),
		popped: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exploration",
			Name:      "popped",
			Help:      "Exploration items taken from the stack by kind.",
		}, []string{"kind"}),
		pushed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exploration",
			Name:      "pushed",
			Help:      "Exploration items pushed onto the stack by kind.",
		}, []string{"kind"}),
		inconsistent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exploration",
			Name:      "inconsistent",
			Help:      "Forward alternatives rejected by the consistency check.",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exploration",
			Name:      "pending",
			Help:      "Items left on the exploration stack.",
		}),
		distinct: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coverage",
			Name:      "distinct_graphs",
			Help:      "Distinct execution graphs explored.",
		}),
		duplicates: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coverage",
			Name:      "duplicate_graphs",
			Help:      "Runs that produced an already explored graph.",
		}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IterationFinished(status checker.Status, events int, elapsed time.Duration) {
	m.iterations.WithLabelValues(status.String()).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.events.Observe(float64(events))
}

func (m *Metrics) Explored(stats algo.Stats) {
	for k, n := range stats.Popped {
		m.popped.WithLabelValues(k.String()).Set(float64(n))
	}
	for k, n := range stats.Pushed {
		m.pushed.WithLabelValues(k.String()).Set(float64(n))
	}
	m.inconsistent.Set(float64(stats.Inconsistent))
	m.pending.Set(float64(stats.Pending))
}

func (m *Metrics) Covered(distinct, duplicates int) {
	m.distinct.Set(float64(distinct))
	m.duplicates.Set(float64(duplicates))
}
