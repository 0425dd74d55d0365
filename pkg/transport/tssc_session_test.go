// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/sttp/cppapi-sub001/pkg/sttp/tssc"
)

func tsscPackets(n int) [][]byte {
	enc := tssc.NewEncoder()

	packets := make([][]byte, n)
	for i := range packets {
		points := []tssc.Point{
			{ID: 0, Timestamp: int64(1000 + i), Quality: 0, Value: float32(i)},
			{ID: 1, Timestamp: int64(1000 + i), Quality: 0, Value: float32(-i)},
		}
		packets[i], _ = enc.EncodePacket(points, 1024)
	}
	return packets
}

func TestTsscSessionDecode(t *testing.T) {
	ts := newTsscSession(time.Second)
	now := time.Now()

	for i, packet := range tsscPackets(3) {
		points, warning, err := ts.decode(packet, now)
		if err != nil {
			t.Fatal(err)
		}
		if warning != "" {
			t.Fatalf("unexpected warning %q", warning)
		}
		if len(points) != 2 {
			t.Fatalf("packet %d: expected 2 points, got %d", i, len(points))
		}
		if points[0].Value != float32(i) || points[1].Value != float32(-i) {
			t.Fatalf("packet %d: unexpected points %v", i, points)
		}
	}
}

func TestTsscSessionResetPending(t *testing.T) {
	ts := newTsscSession(time.Second)
	now := time.Now()

	packets := tsscPackets(2)
	ts.requestReset()

	// The second packet belongs to a former compression context.
	if points, warning, err := ts.decode(packets[1], now); err != nil || warning != "" || len(points) != 0 {
		t.Fatalf("expected a silent drop, got %v, %q, %v", points, warning, err)
	}

	if points, _, err := ts.decode(packets[0], now); err != nil || len(points) != 2 {
		t.Fatalf("expected 2 points, got %v, %v", points, err)
	}
	if points, _, err := ts.decode(packets[1], now); err != nil || len(points) != 2 {
		t.Fatalf("expected 2 points, got %v, %v", points, err)
	}
}

func TestTsscSessionOutOfSequence(t *testing.T) {
	ts := newTsscSession(time.Second)
	now := time.Now()

	packets := tsscPackets(4)
	if _, _, err := ts.decode(packets[0], now); err != nil {
		t.Fatal(err)
	}

	points, warning, err := ts.decode(packets[2], now)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 0 || warning == "" {
		t.Fatalf("expected a dropped packet with warning, got %v, %q", points, warning)
	}

	if _, warning, _ = ts.decode(packets[3], now.Add(100*time.Millisecond)); warning != "" {
		t.Fatalf("warning was not rate-limited: %q", warning)
	}
	if _, warning, _ = ts.decode(packets[3], now.Add(time.Second)); warning == "" {
		t.Fatal("expected a warning after the report interval")
	}

	// A new compression context recovers the session.
	ts.reset()
	if points, _, err := ts.decode(packets[0], now); err != nil || len(points) != 2 {
		t.Fatalf("expected 2 points, got %v, %v", points, err)
	}
}

func TestTsscSessionVersion(t *testing.T) {
	ts := newTsscSession(time.Second)

	packet := tsscPackets(1)[0]
	packet[0] = tssc.Version + 1

	if _, _, err := ts.decode(packet, time.Now()); !errors.Is(err, tssc.ErrVersion) {
		t.Fatalf("expected ErrVersion, got %v", err)
	}
}
