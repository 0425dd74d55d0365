// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sttp/cppapi-sub001/pkg/transport"
)

type mockSource struct {
	stats transport.Statistics
}

func (ms *mockSource) Statistics() transport.Statistics {
	return ms.stats
}

func TestCollector(t *testing.T) {
	source := &mockSource{transport.Statistics{
		Connected:            true,
		Validated:            true,
		MeasurementsReceived: 23,
		SignalIndexCacheSize: 2,
	}}
	collector := NewCollector(source)

	if n := testutil.CollectAndCount(collector); n != 8 {
		t.Fatalf("expected 8 metrics, got %d", n)
	}

	expected := `
# HELP sttp_subscriber_measurements_received_total Total measurements delivered to the new-measurements callback.
# TYPE sttp_subscriber_measurements_received_total counter
sttp_subscriber_measurements_received_total 23
# HELP sttp_subscriber_state Connection state of the subscriber, one series per state.
# TYPE sttp_subscriber_state gauge
sttp_subscriber_state{state="connected"} 1
sttp_subscriber_state{state="listening"} 0
sttp_subscriber_state{state="subscribed"} 0
sttp_subscriber_state{state="validated"} 1
`
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"sttp_subscriber_measurements_received_total", "sttp_subscriber_state"); err != nil {
		t.Fatal(err)
	}

	// Values are read on each scrape
	source.stats.SignalIndexCacheSize = 5
	expected = `
# HELP sttp_subscriber_signal_index_cache_size Signal indices within the active signal index cache.
# TYPE sttp_subscriber_signal_index_cache_size gauge
sttp_subscriber_signal_index_cache_size 5
`
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"sttp_subscriber_signal_index_cache_size"); err != nil {
		t.Fatal(err)
	}
}

func TestEvents(t *testing.T) {
	events := NewEvents()

	events.StatusMessage(nil, "connected")
	events.ErrorMessage(nil, "lost")
	events.ErrorMessage(nil, "lost again")
	events.ConnectionTerminated(nil)
	events.Reconnect(nil, transport.ConnectFailed)
	events.Reconnect(nil, transport.ConnectSuccess)
	events.Reconnect(nil, transport.ConnectSuccess)
	events.Measurements(16)

	if got := testutil.ToFloat64(events.statusMessages); got != 1 {
		t.Fatalf("expected 1 status message, got %f", got)
	}
	if got := testutil.ToFloat64(events.errorMessages); got != 2 {
		t.Fatalf("expected 2 error messages, got %f", got)
	}
	if got := testutil.ToFloat64(events.terminations); got != 1 {
		t.Fatalf("expected 1 termination, got %f", got)
	}
	if got := testutil.ToFloat64(events.reconnects.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successful reconnects, got %f", got)
	}
	if got := testutil.ToFloat64(events.reconnects.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed reconnect, got %f", got)
	}
	if samples := testutil.CollectAndCount(events.batchSize); samples != 1 {
		t.Fatalf("expected the histogram to record 1 sample, got %d", samples)
	}
}

func TestRegisterAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	source := &mockSource{transport.Statistics{Listening: true}}

	if err := Register(reg, source, NewEvents()); err != nil {
		t.Fatal(err)
	}
	if err := Register(reg, source, NewEvents()); err == nil {
		t.Fatal("registering twice did not fail")
	}

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `sttp_subscriber_state{state="listening"} 1`) {
		t.Fatalf("metrics lack the listening state:\n%s", body)
	}
}
