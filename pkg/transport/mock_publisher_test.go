// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sttp/cppapi-sub001/pkg/endian"
	"github.com/sttp/cppapi-sub001/pkg/sttp"
	"github.com/sttp/cppapi-sub001/pkg/transport/internal/msgs"
)

const testTimeout = 2 * time.Second

func getRandomPort(t *testing.T) uint16 {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}

	defer func() { _ = l.Close() }()

	return uint16(l.Addr().(*net.TCPAddr).Port)
}

// mockPublisher is a bare TCP listener; the test drives the protocol on the accepted connections.
type mockPublisher struct {
	t  *testing.T
	ln *net.TCPListener
}

func newMockPublisher(t *testing.T) *mockPublisher {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}

	return &mockPublisher{t: t, ln: ln}
}

func (mp *mockPublisher) port() uint16 {
	return uint16(mp.ln.Addr().(*net.TCPAddr).Port)
}

func (mp *mockPublisher) accept() net.Conn {
	if err := mp.ln.SetDeadline(time.Now().Add(testTimeout)); err != nil {
		mp.t.Fatal(err)
	}

	conn, err := mp.ln.Accept()
	if err != nil {
		mp.t.Fatal(err)
	}
	return conn
}

func (mp *mockPublisher) close() {
	_ = mp.ln.Close()
}

func readCommand(t *testing.T, conn net.Conn) *msgs.CommandFrame {
	if err := conn.SetReadDeadline(time.Now().Add(testTimeout)); err != nil {
		t.Fatal(err)
	}

	frame, err := msgs.ReadCommand(conn)
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func writeResponse(t *testing.T, conn net.Conn, response sttp.ServerResponse, command sttp.ServerCommand, payload []byte) {
	if err := msgs.NewResponseFrame(response, command, payload).Marshal(conn); err != nil {
		t.Fatal(err)
	}
}

// acceptSession accepts a subscriber and acknowledges its operational modes.
func (mp *mockPublisher) acceptSession(s *Subscriber) net.Conn {
	conn := mp.accept()

	frame := readCommand(mp.t, conn)
	if frame.Command != sttp.DefineOperationalModes || len(frame.Payload) != 4 {
		mp.t.Fatalf("expected DefineOperationalModes, got %v", frame)
	}

	writeResponse(mp.t, conn, sttp.Succeeded, sttp.DefineOperationalModes, []byte("accepted"))

	if err := s.WaitForOperationalModesResponse(testTimeout); err != nil {
		mp.t.Fatal(err)
	}
	return conn
}

// testCache returns a signal index cache with n signals and its encoded UpdateSignalIndexCache payload for a
// protocol version above one.
func testCache(n int) (*sttp.SignalIndexCache, []byte) {
	cache := sttp.NewSignalIndexCache()
	for i := 0; i < n; i++ {
		cache.AddMeasurementKey(int32(i), uuid.New(), "PPA", uint64(i+1))
	}

	payload := []byte{0}
	cache.Encode(uuid.New(), &payload)
	return cache, payload
}

func compactPacket(t *testing.T, codec *sttp.CompactCodec, measurements []sttp.Measurement) []byte {
	payload := []byte{uint8(sttp.DataPacketCompact)}
	endian.WriteBigEndianBytes(&payload, uint32(len(measurements)))

	for _, m := range measurements {
		if _, err := codec.SerializeMeasurement(&payload, m); err != nil {
			t.Fatal(err)
		}
	}
	return payload
}

// recorder collects the callbacks of a Subscriber.
type recorder struct {
	mutex    sync.Mutex
	errors   []string
	statuses []string

	measurements chan []sttp.Measurement
	updates      chan *sttp.SignalIndexCache
	terminated   chan struct{}
	reconnects   chan ConnectStatus
}

func newRecorder(s *Subscriber) *recorder {
	rec := &recorder{
		measurements: make(chan []sttp.Measurement, 64),
		updates:      make(chan *sttp.SignalIndexCache, 8),
		terminated:   make(chan struct{}, 8),
		reconnects:   make(chan ConnectStatus, 8),
	}

	s.SetErrorMessageCallback(func(_ *Subscriber, message string) {
		rec.mutex.Lock()
		defer rec.mutex.Unlock()
		rec.errors = append(rec.errors, message)
	})
	s.SetStatusMessageCallback(func(_ *Subscriber, message string) {
		rec.mutex.Lock()
		defer rec.mutex.Unlock()
		rec.statuses = append(rec.statuses, message)
	})
	s.SetNewMeasurementsCallback(func(_ *Subscriber, measurements []sttp.Measurement) {
		rec.measurements <- measurements
	})
	s.SetSubscriptionUpdatedCallback(func(_ *Subscriber, cache *sttp.SignalIndexCache) {
		rec.updates <- cache
	})
	s.SetConnectionTerminatedCallback(func(_ *Subscriber) {
		rec.terminated <- struct{}{}
	})
	s.Connector().SetReconnectCallback(func(_ *Subscriber, status ConnectStatus) {
		rec.reconnects <- status
	})

	return rec
}

func (rec *recorder) errorMessages() []string {
	rec.mutex.Lock()
	defer rec.mutex.Unlock()

	return append([]string(nil), rec.errors...)
}

func (rec *recorder) awaitTerminated(t *testing.T) {
	select {
	case <-rec.terminated:
	case <-time.After(testTimeout):
		t.Fatal("connection was not terminated")
	}
}

// testConfig disables compression and automatic reconnects.
func testConfig() Config {
	return Config{
		ProtocolVersion: 2,
		MaxRetries:      1,
		RetryInterval:   10 * time.Millisecond,
	}
}
