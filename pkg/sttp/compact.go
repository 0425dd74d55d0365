// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sttp

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/sttp/cppapi-sub001/pkg/endian"
)

var (
	// ErrCompactFlags is returned for a compact record with an invalid flag combination.
	ErrCompactFlags = errors.New("invalid compact measurement flags")

	// ErrNoBaseTimes is returned for a base time relative record while no base times are known.
	ErrNoBaseTimes = errors.New("compact measurement references unknown base times")

	// ErrUnknownSignal is returned when serializing a Measurement whose signal ID is not cached.
	ErrUnknownSignal = errors.New("signal ID is not part of the signal index cache")
)

// CompactCodec reads and writes compact measurement records.
//
// A record is: flags (u8), runtime index (u16, or u32 for CompactWideIndex), an optional timestamp, the state flags
// (u32), and the value (f32). The timestamp is either absolute Ticks (u64) or, for CompactBaseTimeOffset, a
// millisecond offset (u16) to one of the two base times, selected by CompactTimeIndex.
type CompactCodec struct {
	Cache *SignalIndexCache

	// BaseTimeOffsets are the base times as announced by the publisher's UpdateBaseTimes message.
	BaseTimeOffsets [2]Ticks
	TimeIndex       int

	IncludeTime              bool
	UseMillisecondResolution bool
}

// NewCompactCodec for a SignalIndexCache.
func NewCompactCodec(cache *SignalIndexCache, includeTime, useMillisecondResolution bool) *CompactCodec {
	return &CompactCodec{
		Cache:                    cache,
		IncludeTime:              includeTime,
		UseMillisecondResolution: useMillisecondResolution,
	}
}

func (cc *CompactCodec) hasBaseTimes() bool {
	return cc.BaseTimeOffsets[0] != 0 || cc.BaseTimeOffsets[1] != 0
}

// recordLength of a compact record with the given flags.
func recordLength(flags CompactFlags) (length int, err error) {
	if flags&compactReservedMask != 0 {
		err = fmt.Errorf("%w: reserved bits 0x%02X", ErrCompactFlags, uint8(flags))
		return
	}

	length = 1 + 2 + 4 + 4
	if flags&CompactWideIndex != 0 {
		length += 2
	}

	switch {
	case flags&CompactTimeIncluded == 0 && flags&CompactBaseTimeOffset != 0:
		err = fmt.Errorf("%w: base time offset without time", ErrCompactFlags)
	case flags&CompactBaseTimeOffset != 0:
		length += 2
	case flags&CompactTimeIncluded != 0:
		length += 8
	}
	return
}

// TryParseMeasurement reads the next compact record from the Reader.
//
// If the Reader holds less than one full record, ok is false, no error is returned, and the Reader's offset stays
// unchanged. This is the regular end of a data packet. An invalid record results in an error.
func (cc *CompactCodec) TryParseMeasurement(r *endian.Reader) (m Measurement, ok bool, err error) {
	if r.Len() < 1 {
		return
	}

	flags := CompactFlags(r.Remaining()[0])
	length, err := recordLength(flags)
	if err != nil {
		return
	}
	if r.Len() < length {
		return
	}
	if flags&CompactBaseTimeOffset != 0 && !cc.hasBaseTimes() {
		err = ErrNoBaseTimes
		return
	}

	// Enough bytes were checked above, so the following reads cannot fail.
	_, _ = r.Uint8()

	var signalIndex int32
	if flags&CompactWideIndex != 0 {
		u, _ := r.Uint32()
		signalIndex = int32(u)
	} else {
		u, _ := r.Uint16()
		signalIndex = int32(u)
	}

	switch {
	case flags&CompactBaseTimeOffset != 0:
		offset, _ := r.Uint16()
		base := cc.BaseTimeOffsets[0]
		if flags&CompactTimeIndex != 0 {
			base = cc.BaseTimeOffsets[1]
		}
		m.Timestamp = base + Ticks(offset)*TicksPerMillisecond

	case flags&CompactTimeIncluded != 0:
		ticks, _ := r.Uint64()
		m.Timestamp = Ticks(ticks)
	}

	stateFlags, _ := r.Uint32()
	value, _ := r.Float32()

	m.Flags = StateFlags(stateFlags)
	m.Value = float64(value)

	if cc.Cache != nil {
		m.SignalID, m.Source, m.ID, _ = cc.Cache.GetMeasurementKey(signalIndex)
	}

	ok = true
	return
}

// SerializeMeasurement appends a Measurement's compact record to the buffer and returns the amount of written bytes.
//
// The Measurement's signal ID must be part of the SignalIndexCache. Its value is narrowed to a float32.
func (cc *CompactCodec) SerializeMeasurement(buffer *[]byte, m Measurement) (n int, err error) {
	signalIndex, ok := cc.signalIndex(m.SignalID)
	if !ok {
		err = fmt.Errorf("%w: %v", ErrUnknownSignal, m.SignalID)
		return
	}

	var flags CompactFlags
	if signalIndex > math.MaxUint16 || signalIndex < 0 {
		flags |= CompactWideIndex
	}

	var offset uint16
	if cc.IncludeTime {
		flags |= CompactTimeIncluded

		if cc.UseMillisecondResolution && cc.hasBaseTimes() {
			base := cc.BaseTimeOffsets[cc.TimeIndex&1]
			if m.Timestamp >= base && (m.Timestamp-base)/TicksPerMillisecond <= math.MaxUint16 {
				flags |= CompactBaseTimeOffset
				if cc.TimeIndex&1 != 0 {
					flags |= CompactTimeIndex
				}
				offset = uint16((m.Timestamp - base) / TicksPerMillisecond)
			}
		}
	}

	n += endian.WriteBigEndianBytes(buffer, uint8(flags))

	if flags&CompactWideIndex != 0 {
		n += endian.WriteBigEndianBytes(buffer, uint32(signalIndex))
	} else {
		n += endian.WriteBigEndianBytes(buffer, uint16(signalIndex))
	}

	switch {
	case flags&CompactBaseTimeOffset != 0:
		n += endian.WriteBigEndianBytes(buffer, offset)
	case flags&CompactTimeIncluded != 0:
		n += endian.WriteBigEndianBytes(buffer, uint64(m.Timestamp))
	}

	n += endian.WriteBigEndianBytes(buffer, uint32(m.Flags))
	n += endian.WriteBigEndianBytes(buffer, float32(m.Value))
	return
}

func (cc *CompactCodec) signalIndex(signalID uuid.UUID) (int32, bool) {
	if cc.Cache == nil {
		return 0, false
	}
	return cc.Cache.GetSignalIndex(signalID)
}
