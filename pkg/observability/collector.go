// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package observability exports a subscriber's state and events as prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sttp/cppapi-sub001/pkg/transport"
)

const namespace = "sttp_subscriber"

// StatisticsSource reports the subscriber's counters and states, e.g., a transport.Subscriber.
type StatisticsSource interface {
	Statistics() transport.Statistics
}

// Collector is a prometheus.Collector reading a StatisticsSource on each scrape.
type Collector struct {
	source StatisticsSource

	state         *prometheus.Desc
	commandBytes  *prometheus.Desc
	dataBytes     *prometheus.Desc
	measurements  *prometheus.Desc
	signalIndices *prometheus.Desc
}

// NewCollector for a StatisticsSource.
func NewCollector(source StatisticsSource) *Collector {
	return &Collector{
		source: source,

		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "state"),
			"Connection state of the subscriber, one series per state.",
			[]string{"state"}, nil),
		commandBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "command_channel", "received_bytes_total"),
			"Total bytes received on the command channel.",
			nil, nil),
		dataBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "data_channel", "received_bytes_total"),
			"Total bytes received on the UDP data channel.",
			nil, nil),
		measurements: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "measurements_received_total"),
			"Total measurements delivered to the new-measurements callback.",
			nil, nil),
		signalIndices: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "signal_index_cache_size"),
			"Signal indices within the active signal index cache.",
			nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.commandBytes
	ch <- c.dataBytes
	ch <- c.measurements
	ch <- c.signalIndices
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Statistics()

	states := []struct {
		name  string
		value bool
	}{
		{"connected", stats.Connected},
		{"validated", stats.Validated},
		{"subscribed", stats.Subscribed},
		{"listening", stats.Listening},
	}
	for _, state := range states {
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, boolToFloat(state.value), state.name)
	}

	ch <- prometheus.MustNewConstMetric(c.commandBytes, prometheus.CounterValue, float64(stats.CommandChannelBytesReceived))
	ch <- prometheus.MustNewConstMetric(c.dataBytes, prometheus.CounterValue, float64(stats.DataChannelBytesReceived))
	ch <- prometheus.MustNewConstMetric(c.measurements, prometheus.CounterValue, float64(stats.MeasurementsReceived))
	ch <- prometheus.MustNewConstMetric(c.signalIndices, prometheus.GaugeValue, float64(stats.SignalIndexCacheSize))
}
