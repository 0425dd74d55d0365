// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

func setupStoreDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "store")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func measurementAt(signalID uuid.UUID, t time.Time, value float64) sttp.Measurement {
	return sttp.Measurement{
		SignalID:  signalID,
		Source:    "PPA",
		ID:        23,
		Timestamp: sttp.TicksFromTime(t),
		Flags:     sttp.CalculatedValue,
		Value:     value,
	}
}

func TestStore(t *testing.T) {
	dir := setupStoreDir(t)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	signalID := uuid.New()
	m := measurementAt(signalID, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC), 59.98)

	if err := store.Push(m); err != nil {
		t.Fatal(err)
	}
	if err := store.Push(m); err != nil {
		t.Fatal(err)
	}

	if mi, err := store.QueryId(signalID, m.Timestamp); err != nil {
		t.Fatal(err)
	} else if m2, err := mi.Measurement(); err != nil {
		t.Fatal(err)
	} else if m2 != m {
		t.Fatalf("Measurement changed after loading: %v, %v", m, m2)
	}

	if !store.KnowsMeasurement(signalID, m.Timestamp) {
		t.Fatal("Store does not know the pushed Measurement")
	}
	if store.KnowsMeasurement(uuid.New(), m.Timestamp) {
		t.Fatal("Store knows an unknown signal")
	}
	if store.KnowsMeasurement(signalID, m.Timestamp+1) {
		t.Fatal("Store knows an unknown timestamp")
	}
	if _, err := store.QueryId(signalID, m.Timestamp+1); !errors.Is(err, badgerhold.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Delete(signalID, m.Timestamp); err != nil {
		t.Fatal(err)
	}
	if store.KnowsMeasurement(signalID, m.Timestamp) {
		t.Fatal("Deleted Measurement is still known")
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreQuerySignal(t *testing.T) {
	dir := setupStoreDir(t)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	signalID, otherID := uuid.New(), uuid.New()
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	var batch []sttp.Measurement
	for i := 9; i >= 0; i-- {
		batch = append(batch,
			measurementAt(signalID, base.Add(time.Duration(i)*time.Second), float64(i)),
			measurementAt(otherID, base.Add(time.Duration(i)*time.Second), float64(-i)))
	}

	if err := store.PushAll(batch); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		from, to time.Time
		values   []float64
	}{
		{base, base.Add(3 * time.Second), []float64{0, 1, 2}},
		{base.Add(8 * time.Second), base.Add(time.Minute), []float64{8, 9}},
		{base.Add(-time.Minute), base, nil},
	}

	for _, test := range tests {
		mis, err := store.QuerySignal(signalID, test.from, test.to)
		if err != nil {
			t.Fatal(err)
		}

		if len(mis) != len(test.values) {
			t.Fatalf("Query [%v, %v) returned %d items, expected %d", test.from, test.to, len(mis), len(test.values))
		}
		for i, mi := range mis {
			if mi.SignalID != signalID.String() || mi.Value != test.values[i] {
				t.Fatalf("Query [%v, %v) returned %v at %d, expected value %v",
					test.from, test.to, mi, i, test.values[i])
			}
		}
	}
}

func TestStoreDeleteExpired(t *testing.T) {
	dir := setupStoreDir(t)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	signalID := uuid.New()
	m := measurementAt(signalID, time.Now(), 1)

	if err := store.Push(m); err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)
	store.DeleteExpired()

	if mi, err := store.QueryId(signalID, m.Timestamp); err == nil {
		t.Fatalf("Deleted expired MeasurementItem was found: %v", mi)
	}
}
