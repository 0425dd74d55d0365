// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sttp

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sttp/cppapi-sub001/pkg/endian"
)

func TestCompactBoundaryParse(t *testing.T) {
	sic := NewSignalIndexCache()
	signalID := uuid.New()
	sic.AddMeasurementKey(7, signalID, "PPA", 7)

	tests := []struct {
		name  string
		codec *CompactCodec
	}{
		{"without time", NewCompactCodec(sic, false, false)},
		{"with time", NewCompactCodec(sic, true, false)},
		{"with base time", &CompactCodec{
			Cache:                    sic,
			BaseTimeOffsets:          [2]Ticks{TicksFromTime(time.Now()), 0},
			IncludeTime:              true,
			UseMillisecondResolution: true,
		}},
	}

	for _, test := range tests {
		m := Measurement{SignalID: signalID, Timestamp: test.codec.BaseTimeOffsets[0] + 5*TicksPerMillisecond, Value: 1.5}

		var buf []byte
		n, err := test.codec.SerializeMeasurement(&buf, m)
		if err != nil {
			t.Fatalf("%s: %v", test.name, err)
		}
		if n != len(buf) {
			t.Fatalf("%s: reported %d bytes, wrote %d", test.name, n, len(buf))
		}

		r := endian.NewReader(buf)
		if _, ok, err := test.codec.TryParseMeasurement(r); err != nil || !ok {
			t.Fatalf("%s: parsing a full record failed: %t, %v", test.name, ok, err)
		} else if r.Offset() != len(buf) {
			t.Fatalf("%s: offset is %d, expected %d", test.name, r.Offset(), len(buf))
		}

		r = endian.NewReader(buf[:len(buf)-1])
		if _, ok, err := test.codec.TryParseMeasurement(r); err != nil || ok {
			t.Fatalf("%s: parsing a short record returned %t, %v", test.name, ok, err)
		} else if r.Offset() != 0 {
			t.Fatalf("%s: short parse moved offset to %d", test.name, r.Offset())
		}
	}
}

func TestCompactRoundTrip(t *testing.T) {
	sic := NewSignalIndexCache()
	narrow, wide := uuid.New(), uuid.New()
	sic.AddMeasurementKey(12, narrow, "PPA", 12)
	sic.AddMeasurementKey(70000, wide, "PPB", 70000)

	codec := NewCompactCodec(sic, true, false)
	now := TicksFromTime(time.Date(2026, 10, 18, 12, 30, 0, 123456700, time.UTC))

	in := []Measurement{
		{SignalID: narrow, Timestamp: now, Flags: SuspectData | CalculatedValue, Value: 59.98},
		{SignalID: wide, Timestamp: now + 1, Flags: Normal, Value: -0.25},
	}

	var buf []byte
	for _, m := range in {
		if _, err := codec.SerializeMeasurement(&buf, m); err != nil {
			t.Fatal(err)
		}
	}

	r := endian.NewReader(buf)
	for i, expected := range in {
		m, ok, err := codec.TryParseMeasurement(r)
		if err != nil || !ok {
			t.Fatalf("measurement %d: %t, %v", i, ok, err)
		}

		if m.SignalID != expected.SignalID || m.Timestamp != expected.Timestamp || m.Flags != expected.Flags {
			t.Fatalf("measurement %d is %v, expected %v", i, m, expected)
		}
		if float32(m.Value) != float32(expected.Value) {
			t.Fatalf("measurement %d has value %v, expected %v", i, m.Value, expected.Value)
		}
		if expectedSource := []string{"PPA", "PPB"}[i]; m.Source != expectedSource {
			t.Fatalf("measurement %d has source %s, expected %s", i, m.Source, expectedSource)
		}
	}

	if _, ok, err := codec.TryParseMeasurement(r); ok || err != nil {
		t.Fatalf("parsing past the end returned %t, %v", ok, err)
	}
}

func TestCompactMillisecondOffset(t *testing.T) {
	sic := NewSignalIndexCache()
	signalID := uuid.New()
	sic.AddMeasurementKey(1, signalID, "PPA", 1)

	base0 := TicksFromTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	base1 := base0 + 60*TicksPerSecond

	codec := &CompactCodec{
		Cache:                    sic,
		BaseTimeOffsets:          [2]Ticks{base0, base1},
		TimeIndex:                1,
		IncludeTime:              true,
		UseMillisecondResolution: true,
	}

	var buf []byte
	n, err := codec.SerializeMeasurement(&buf, Measurement{SignalID: signalID, Timestamp: base1 + 250*TicksPerMillisecond})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1+2+2+4+4 {
		t.Fatalf("record has %d bytes", n)
	}
	if CompactFlags(buf[0])&CompactTimeIndex == 0 {
		t.Fatalf("flags 0x%02X lack the time index", buf[0])
	}

	m, ok, err := codec.TryParseMeasurement(endian.NewReader(buf))
	if err != nil || !ok {
		t.Fatalf("%t, %v", ok, err)
	}
	if m.Timestamp != base1+250*TicksPerMillisecond {
		t.Fatalf("timestamp is %v", m.Timestamp)
	}

	codec.BaseTimeOffsets = [2]Ticks{}
	if _, _, err := codec.TryParseMeasurement(endian.NewReader(buf)); !errors.Is(err, ErrNoBaseTimes) {
		t.Fatalf("expected ErrNoBaseTimes, got %v", err)
	}
}

func TestCompactParseErrors(t *testing.T) {
	codec := NewCompactCodec(NewSignalIndexCache(), false, false)

	tests := [][]byte{
		// reserved bit
		{0x10, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0},
		// base time offset without included time
		{0x04, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	}

	for i, test := range tests {
		r := endian.NewReader(test)
		if _, ok, err := codec.TryParseMeasurement(r); !errors.Is(err, ErrCompactFlags) || ok {
			t.Fatalf("test %d: expected ErrCompactFlags, got %t, %v", i, ok, err)
		}
	}
}

func TestCompactUnknownSignal(t *testing.T) {
	codec := NewCompactCodec(NewSignalIndexCache(), false, false)

	var buf []byte
	if _, err := codec.SerializeMeasurement(&buf, Measurement{SignalID: uuid.New()}); !errors.Is(err, ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal, got %v", err)
	}
	if len(buf) != 0 {
		t.Fatal("failed serialization wrote bytes")
	}
}

func TestCompactUnresolvedIndex(t *testing.T) {
	sic := NewSignalIndexCache()
	signalID := uuid.New()
	sic.AddMeasurementKey(3, signalID, "PPA", 3)

	var buf []byte
	if _, err := NewCompactCodec(sic, false, false).SerializeMeasurement(&buf, Measurement{SignalID: signalID, Value: 2}); err != nil {
		t.Fatal(err)
	}

	m, ok, err := NewCompactCodec(NewSignalIndexCache(), false, false).TryParseMeasurement(endian.NewReader(buf))
	if err != nil || !ok {
		t.Fatalf("%t, %v", ok, err)
	}
	if m.SignalID != uuid.Nil || m.Source != "" || m.Value != 2 {
		t.Fatalf("unresolved measurement is %v", m)
	}
}
