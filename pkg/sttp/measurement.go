// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sttp

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Ticks is a timestamp in 100 nanosecond intervals since 0001-01-01 00:00:00 UTC. The two highest bits are
// reserved for leap second information.
type Ticks uint64

const (
	TicksPerMillisecond Ticks = 10_000
	TicksPerSecond      Ticks = 1_000 * TicksPerMillisecond

	// UnixBaseOffset are the Ticks of 1970-01-01 00:00:00 UTC.
	UnixBaseOffset Ticks = 621_355_968_000_000_000

	LeapSecondFlag      Ticks = 1 << 63
	LeapSecondDirection Ticks = 1 << 62
	TicksValueMask            = ^(LeapSecondFlag | LeapSecondDirection)
)

// TicksFromTime converts a time.Time. Times before the Unix epoch are supported, times before year 1 are not.
func TicksFromTime(t time.Time) Ticks {
	t = t.UTC()
	return UnixBaseOffset + Ticks(t.Unix())*TicksPerSecond + Ticks(t.Nanosecond()/100)
}

// Value without the leap second bits.
func (t Ticks) Value() Ticks {
	return t & TicksValueMask
}

// IsLeapSecond checks the leap second flag.
func (t Ticks) IsLeapSecond() bool {
	return t&LeapSecondFlag != 0
}

// Time converts these Ticks into a time.Time in UTC.
func (t Ticks) Time() time.Time {
	v := int64(t.Value()) - int64(UnixBaseOffset)
	secs := v / int64(TicksPerSecond)
	rem := v % int64(TicksPerSecond)
	if rem < 0 {
		secs--
		rem += int64(TicksPerSecond)
	}
	return time.Unix(secs, rem*100).UTC()
}

func (t Ticks) String() string {
	return t.Time().Format("2006-01-02 15:04:05.0000000")
}

// StateFlags describe the quality of a Measurement's value and timestamp.
type StateFlags uint32

const (
	Normal              StateFlags = 0x00000000
	BadData             StateFlags = 0x00000001
	SuspectData         StateFlags = 0x00000002
	OverRangeError      StateFlags = 0x00000004
	UnderRangeError     StateFlags = 0x00000008
	AlarmHigh           StateFlags = 0x00000010
	AlarmLow            StateFlags = 0x00000020
	WarningHigh         StateFlags = 0x00000040
	WarningLow          StateFlags = 0x00000080
	FlatlineAlarm       StateFlags = 0x00000100
	ComparisonAlarm     StateFlags = 0x00000200
	ROCAlarm            StateFlags = 0x00000400
	ReceivedAsBad       StateFlags = 0x00000800
	CalculatedValue     StateFlags = 0x00001000
	CalculationError    StateFlags = 0x00002000
	CalculationWarning  StateFlags = 0x00004000
	ReservedQualityFlag StateFlags = 0x00008000
	BadTime             StateFlags = 0x00010000
	SuspectTime         StateFlags = 0x00020000
	LateTimeAlarm       StateFlags = 0x00040000
	FutureTimeAlarm     StateFlags = 0x00080000
	UpSampled           StateFlags = 0x00100000
	DownSampled         StateFlags = 0x00200000
	DiscardedValue      StateFlags = 0x00400000
	ReservedTimeFlag    StateFlags = 0x00800000
	UserDefinedFlag1    StateFlags = 0x01000000
	UserDefinedFlag2    StateFlags = 0x02000000
	UserDefinedFlag3    StateFlags = 0x04000000
	UserDefinedFlag4    StateFlags = 0x08000000
	UserDefinedFlag5    StateFlags = 0x10000000
	SystemError         StateFlags = 0x20000000
	SystemWarning       StateFlags = 0x40000000
	MeasurementError    StateFlags = 0x80000000
)

// Measurement is a single value of a signal at a point in time.
type Measurement struct {
	// SignalID identifies the signal across sessions.
	SignalID uuid.UUID

	// Source and ID are the human readable measurement key, e.g., "PPA" and 42.
	Source string
	ID     uint64

	Timestamp Ticks
	Flags     StateFlags
	Value     float64
}

// Key returns the human readable measurement key, e.g., "PPA:42".
func (m Measurement) Key() string {
	return fmt.Sprintf("%s:%d", m.Source, m.ID)
}

// DateTime of this Measurement's Timestamp.
func (m Measurement) DateTime() time.Time {
	return m.Timestamp.Time()
}

// IsNaN checks if this Measurement carries no value.
func (m Measurement) IsNaN() bool {
	return math.IsNaN(m.Value)
}

func (m Measurement) String() string {
	return fmt.Sprintf("Measurement(%v, %s, %v, %v, 0x%08X)", m.SignalID, m.Key(), m.Timestamp, m.Value, uint32(m.Flags))
}
