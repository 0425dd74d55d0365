// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sttp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

type cacheEntry struct {
	signalIndex int32
	signalID    uuid.UUID
	source      string
	id          uint64
}

func newTestCache(n int) (*SignalIndexCache, []cacheEntry) {
	sic := NewSignalIndexCache()
	entries := make([]cacheEntry, n)

	for i := 0; i < n; i++ {
		entries[i] = cacheEntry{
			signalIndex: int32(i * 3),
			signalID:    uuid.New(),
			source:      fmt.Sprintf("PPA%d", i%4),
			id:          uint64(1000 + i),
		}
		sic.AddMeasurementKey(entries[i].signalIndex, entries[i].signalID, entries[i].source, entries[i].id)
	}

	return sic, entries
}

func TestSignalIndexCacheRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 7, 300} {
		sic, entries := newTestCache(n)
		subscriberID := uuid.New()

		var buf []byte
		sic.Encode(subscriberID, &buf)

		decoded := NewSignalIndexCache()
		decodedSubscriberID, err := decoded.Decode(buf)
		if err != nil {
			t.Fatalf("n = %d: %v", n, err)
		}

		if decodedSubscriberID != subscriberID {
			t.Fatalf("n = %d: subscriber ID %v differs from %v", n, decodedSubscriberID, subscriberID)
		}
		if decoded.Count() != n {
			t.Fatalf("n = %d: decoded cache has %d entries", n, decoded.Count())
		}

		for _, e := range entries {
			signalID, source, id, ok := decoded.GetMeasurementKey(e.signalIndex)
			if !ok {
				t.Fatalf("n = %d: signal index %d is missing", n, e.signalIndex)
			}
			if signalID != e.signalID || source != e.source || id != e.id {
				t.Fatalf("n = %d: entry %d is (%v, %s, %d), expected (%v, %s, %d)",
					n, e.signalIndex, signalID, source, id, e.signalID, e.source, e.id)
			}

			if signalIndex, ok := decoded.GetSignalIndex(e.signalID); !ok || signalIndex != e.signalIndex {
				t.Fatalf("n = %d: reverse lookup of %v is %d, %t", n, e.signalID, signalIndex, ok)
			}
		}
	}
}

func TestSignalIndexCacheEncodeLength(t *testing.T) {
	sic := NewSignalIndexCache()
	sic.AddMeasurementKey(1, uuid.New(), "STAT", 1)

	buf := []byte{0xAA, 0xBB}
	sic.Encode(uuid.Nil, &buf)

	// 4 length + 16 subscriber ID + 4 count + (4 + 16 + 4 + 4 + 8) + 4 unauthorized
	const expected = 4 + 16 + 4 + 36 + 4
	if len(buf) != 2+expected {
		t.Fatalf("encoded %d bytes, expected %d", len(buf)-2, expected)
	}
	if buf[0] != 0xAA || buf[1] != 0xBB {
		t.Fatal("encoding altered preceding bytes")
	}
	if buf[2] != 0 || buf[3] != 0 || buf[4] != 0 || buf[5] != expected {
		t.Fatalf("length field is %x", buf[2:6])
	}
}

func TestSignalIndexCacheOverwrite(t *testing.T) {
	sic := NewSignalIndexCache()
	first, second := uuid.New(), uuid.New()

	sic.AddMeasurementKey(5, first, "A", 1)
	sic.AddMeasurementKey(5, second, "B", 2)

	if sic.Count() != 1 {
		t.Fatalf("cache has %d entries", sic.Count())
	}
	if sic.GetSignalID(5) != second || sic.GetSource(5) != "B" || sic.GetID(5) != 2 {
		t.Fatal("last write did not win")
	}
	if sic.MaxSignalIndex() != 5 {
		t.Fatalf("max signal index is %d", sic.MaxSignalIndex())
	}
}

func TestSignalIndexCacheEncodeSkipsStaleEntries(t *testing.T) {
	sic := NewSignalIndexCache()
	signalID := uuid.New()

	sic.AddMeasurementKey(1, signalID, "A", 1)
	sic.AddMeasurementKey(2, signalID, "A", 1)

	var buf []byte
	sic.Encode(uuid.Nil, &buf)

	decoded := NewSignalIndexCache()
	if _, err := decoded.Decode(buf); err != nil {
		t.Fatal(err)
	}

	if decoded.Count() != 1 || !decoded.Contains(2) || decoded.Contains(1) {
		t.Fatalf("decoded cache contains %v", decoded.SignalIndices())
	}
}

func TestSignalIndexCacheLookupMisses(t *testing.T) {
	sic := NewSignalIndexCache()

	if sic.GetSignalID(1) != uuid.Nil || sic.GetSource(1) != "" || sic.GetID(1) != 0 {
		t.Fatal("lookup of an unknown index returned data")
	}
	if _, _, _, ok := sic.GetMeasurementKey(1); ok {
		t.Fatal("GetMeasurementKey succeeded for an unknown index")
	}
	if _, ok := sic.GetSignalIndex(uuid.New()); ok {
		t.Fatal("GetSignalIndex succeeded for an unknown signal ID")
	}
}

func TestSignalIndexCacheDecodeTruncated(t *testing.T) {
	sic, _ := newTestCache(3)

	var buf []byte
	sic.Encode(uuid.New(), &buf)

	for _, cut := range []int{0, 3, 10, 24, 30, len(buf) - 1} {
		if _, err := NewSignalIndexCache().Decode(buf[:cut]); !errors.Is(err, ErrCacheTruncated) {
			t.Fatalf("cut %d: expected ErrCacheTruncated, got %v", cut, err)
		}
	}

	// A declared length smaller than the content cuts the references as well.
	short := append([]byte(nil), buf...)
	short[3] -= 9
	if _, err := NewSignalIndexCache().Decode(short); !errors.Is(err, ErrCacheTruncated) {
		t.Fatalf("expected ErrCacheTruncated for short declared length, got %v", err)
	}
}
