// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"math"
	"time"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
	"github.com/sttp/cppapi-sub001/pkg/transport"
)

// RestMeasurement describes a Measurement within a JSON response. A NaN or infinite value is null.
type RestMeasurement struct {
	SignalID  string    `json:"signal_id"`
	Source    string    `json:"source"`
	ID        uint64    `json:"id"`
	Ticks     uint64    `json:"ticks"`
	Timestamp time.Time `json:"timestamp"`
	Flags     uint32    `json:"flags"`
	Value     *float64  `json:"value"`
}

func newRestMeasurement(m sttp.Measurement) RestMeasurement {
	rm := RestMeasurement{
		SignalID:  m.SignalID.String(),
		Source:    m.Source,
		ID:        m.ID,
		Ticks:     uint64(m.Timestamp),
		Timestamp: m.DateTime(),
		Flags:     uint32(m.Flags),
	}

	if !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0) {
		value := m.Value
		rm.Value = &value
	}
	return rm
}

// RestStatusResponse describes a JSON response for /status.
type RestStatusResponse struct {
	Connected  bool `json:"connected"`
	Validated  bool `json:"validated"`
	Subscribed bool `json:"subscribed"`
	Listening  bool `json:"listening"`

	CommandChannelBytesReceived uint64 `json:"command_channel_bytes_received"`
	DataChannelBytesReceived    uint64 `json:"data_channel_bytes_received"`
	MeasurementsReceived        uint64 `json:"measurements_received"`

	SignalIndexCacheSize int `json:"signal_index_cache_size"`
}

func newRestStatusResponse(stats transport.Statistics) RestStatusResponse {
	return RestStatusResponse{
		Connected:  stats.Connected,
		Validated:  stats.Validated,
		Subscribed: stats.Subscribed,
		Listening:  stats.Listening,

		CommandChannelBytesReceived: stats.CommandChannelBytesReceived,
		DataChannelBytesReceived:    stats.DataChannelBytesReceived,
		MeasurementsReceived:        stats.MeasurementsReceived,

		SignalIndexCacheSize: stats.SignalIndexCacheSize,
	}
}

// RestLatestResponse describes a JSON response for /latest.
type RestLatestResponse struct {
	Error        string            `json:"error"`
	Measurements []RestMeasurement `json:"measurements"`
}

// RestHistoryResponse describes a JSON response for /history.
type RestHistoryResponse struct {
	Error        string            `json:"error"`
	Measurements []RestMeasurement `json:"measurements"`
}
