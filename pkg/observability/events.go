// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sttp/cppapi-sub001/pkg/transport"
)

// Events counts the subscriber's callbacks. Its methods match the subscriber's callback signatures where possible.
type Events struct {
	statusMessages prometheus.Counter
	errorMessages  prometheus.Counter
	terminations   prometheus.Counter
	reconnects     *prometheus.CounterVec
	batchSize      prometheus.Histogram
}

// NewEvents creates unregistered event metrics.
func NewEvents() *Events {
	return &Events{
		statusMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_messages_total",
			Help:      "Status messages dispatched by the subscriber.",
		}),
		errorMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_messages_total",
			Help:      "Error messages dispatched by the subscriber.",
		}),
		terminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_terminated_total",
			Help:      "Terminated publisher connections.",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Finished reconnect sequences by their outcome.",
		}, []string{"status"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "measurement_batch_size",
			Help:      "Measurements per delivered batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (e *Events) collectors() []prometheus.Collector {
	return []prometheus.Collector{e.statusMessages, e.errorMessages, e.terminations, e.reconnects, e.batchSize}
}

func (e *Events) StatusMessage(_ *transport.Subscriber, _ string) {
	e.statusMessages.Inc()
}

func (e *Events) ErrorMessage(_ *transport.Subscriber, _ string) {
	e.errorMessages.Inc()
}

func (e *Events) ConnectionTerminated(_ *transport.Subscriber) {
	e.terminations.Inc()
}

func (e *Events) Reconnect(_ *transport.Subscriber, status transport.ConnectStatus) {
	e.reconnects.WithLabelValues(status.String()).Inc()
}

// Measurements observes the size of a delivered batch.
func (e *Events) Measurements(n int) {
	e.batchSize.Observe(float64(n))
}

// Register a Collector for the source and the Events on the registerer.
func Register(reg prometheus.Registerer, source StatisticsSource, events *Events) error {
	if err := reg.Register(NewCollector(source)); err != nil {
		return err
	}

	for _, c := range events.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the gatherer's metrics, e.g., at /metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
