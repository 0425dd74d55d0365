// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

// MeasurementItem is the archived form of a sttp.Measurement. The Store operates on MeasurementItems instead of
// Measurements.
type MeasurementItem struct {
	Id string `badgerhold:"key"`

	SignalID  string    `badgerholdIndex:"SignalID"`
	Timestamp time.Time `badgerholdIndex:"Timestamp"`
	Expires   time.Time `badgerholdIndex:"Expires"`

	Source string
	ID     uint64
	Ticks  uint64
	Flags  uint32
	Value  float64
}

// itemId is the key of a signal's value at some point in time.
func itemId(signalID uuid.UUID, ticks sttp.Ticks) string {
	return fmt.Sprintf("%s/%020d", signalID, uint64(ticks))
}

// newMeasurementItem creates a new MeasurementItem for a Measurement, to be removed after the retention.
func newMeasurementItem(m sttp.Measurement, retention time.Duration) MeasurementItem {
	return MeasurementItem{
		Id: itemId(m.SignalID, m.Timestamp),

		SignalID:  m.SignalID.String(),
		Timestamp: m.DateTime(),
		Expires:   time.Now().Add(retention),

		Source: m.Source,
		ID:     m.ID,
		Ticks:  uint64(m.Timestamp),
		Flags:  uint32(m.Flags),
		Value:  m.Value,
	}
}

// Measurement restores the archived sttp.Measurement.
func (mi MeasurementItem) Measurement() (m sttp.Measurement, err error) {
	signalID, err := uuid.Parse(mi.SignalID)
	if err != nil {
		return
	}

	m = sttp.Measurement{
		SignalID:  signalID,
		Source:    mi.Source,
		ID:        mi.ID,
		Timestamp: sttp.Ticks(mi.Ticks),
		Flags:     sttp.StateFlags(mi.Flags),
		Value:     mi.Value,
	}
	return
}
