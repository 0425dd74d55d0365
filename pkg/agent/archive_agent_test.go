// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sttp/cppapi-sub001/pkg/storage"
	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

type mockArchive struct {
	sync.Mutex

	measurements []sttp.Measurement
	cleanups     int
}

func (ma *mockArchive) PushAll(measurements []sttp.Measurement) error {
	ma.Lock()
	defer ma.Unlock()

	ma.measurements = append(ma.measurements, measurements...)
	return nil
}

func (ma *mockArchive) DeleteExpired() {
	ma.Lock()
	defer ma.Unlock()

	ma.cleanups++
}

func (ma *mockArchive) state() (int, int) {
	ma.Lock()
	defer ma.Unlock()

	return len(ma.measurements), ma.cleanups
}

func TestArchiveAgent(t *testing.T) {
	archive := &mockArchive{}
	aa := NewArchiveAgent(archive, 50*time.Millisecond)

	aa.MessageReceiver() <- MeasurementsMessage{createMeasurements(uuid.New(), uuid.New())}
	aa.MessageReceiver() <- NoticeMessage{Text: "ignored"}
	aa.MessageReceiver() <- MeasurementsMessage{createMeasurements(uuid.New())}

	time.Sleep(200 * time.Millisecond)

	if measurements, cleanups := archive.state(); measurements != 3 {
		t.Fatalf("expected three archived measurements, got %d", measurements)
	} else if cleanups == 0 {
		t.Fatal("expired measurements were never deleted")
	}

	aa.MessageReceiver() <- ShutdownMessage{}

	select {
	case _, ok := <-aa.MessageSender():
		if ok {
			t.Fatal("ArchiveAgent sent a message")
		}

	case <-time.After(250 * time.Millisecond):
		t.Fatal("ArchiveAgent did not close its sender")
	}
}

func TestArchiveAgentStore(t *testing.T) {
	dir, err := os.MkdirTemp("", "archive")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := storage.NewStore(dir, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	signal := uuid.New()
	ms := createMeasurements(signal)

	mux := NewMuxAgent()
	mux.Register(NewArchiveAgent(store, 0))

	mux.MessageReceiver() <- MeasurementsMessage{ms}
	mux.MessageReceiver() <- ShutdownMessage{}
	<-mux.Done()

	// The ArchiveAgent has handled the Measurements before the ShutdownMessage.
	if !store.KnowsMeasurement(signal, ms[0].Timestamp) {
		t.Fatal("Store does not know the archived measurement")
	}
}
