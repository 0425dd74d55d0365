// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/cboring"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// startWebSocketAgent serves a new WebSocketAgent at /ws and returns its address.
func startWebSocketAgent(t *testing.T) (*WebSocketAgent, string) {
	addr := fmt.Sprintf("localhost:%d", randomPort(t))
	ws := NewWebSocketAgent()

	httpMux := http.NewServeMux()
	httpMux.Handle("/ws", ws)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: httpMux,
	}
	go func() { _ = httpServer.ListenAndServe() }()
	t.Cleanup(func() { _ = httpServer.Close() })

	// Let the WebSocketAgent start..
	time.Sleep(250 * time.Millisecond)

	for i := 1; i <= 3; i++ {
		if isAddrReachable(addr) {
			break
		} else if i == 3 {
			t.Fatal("WebSocketAgent seems to be unreachable")
		}
	}

	return ws, addr
}

func dialWebSocketAgent(t *testing.T, addr string) *websocket.Conn {
	u := url.URL{
		Scheme: "ws",
		Host:   addr,
		Path:   "/ws",
	}
	wsClient, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return wsClient
}

func writeWam(t *testing.T, wsClient *websocket.Conn, msg webAgentMessage) {
	if w, err := wsClient.NextWriter(websocket.BinaryMessage); err != nil {
		t.Fatal(err)
	} else if err := encodeWam(msg, w); err != nil {
		t.Fatal(err)
	} else if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func readWam(t *testing.T, wsClient *websocket.Conn, code wamCode) webAgentMessage {
	_ = wsClient.SetReadDeadline(time.Now().Add(2 * time.Second))

	if mt, r, err := wsClient.NextReader(); err != nil {
		t.Fatal(err)
	} else if mt != websocket.BinaryMessage {
		t.Fatalf("expected message type %v, got %v", websocket.BinaryMessage, mt)
	} else if msg, err := decodeWam(r); err != nil {
		t.Fatal(err)
	} else if msg.typeCode() != code {
		t.Fatalf("expected %v message, got %v", code, msg.typeCode())
	} else {
		return msg
	}
	return nil
}

func TestWebAgentNew(t *testing.T) {
	log.SetLevel(log.DebugLevel)

	ws, addr := startWebSocketAgent(t)
	wsClient := dialWebSocketAgent(t, addr)

	s1, s2 := uuid.New(), uuid.New()

	// Register client for s1
	writeWam(t, wsClient, newRegisterMessage(s1.String()))
	if msg := readWam(t, wsClient, wamStatusCode).(*wamStatus); msg.errorMsg != "" {
		t.Fatal(msg.errorMsg)
	}

	if signals := ws.Signals(); !reflect.DeepEqual(signals, []uuid.UUID{s1}) {
		t.Fatalf("expected signals %v, got %v", []uuid.UUID{s1}, signals)
	}

	// Send Measurements of both signals; only s1 is forwarded
	ms := createMeasurements(s1, s2)
	ws.MessageReceiver() <- MeasurementsMessage{ms}

	if recv := readWam(t, wsClient, wamMeasurementsCode).(*wamMeasurements).measurements; len(recv) != 1 {
		t.Fatalf("expected one measurement, got %v", recv)
	} else if recv[0] != ms[0] {
		t.Fatalf("expected %v, got %v", ms[0], recv[0])
	}

	// Notices are not restricted to signals
	ws.MessageReceiver() <- NoticeMessage{Text: "connection established", IsError: false}

	if notice := readWam(t, wsClient, wamNoticeCode).(*wamNotice); notice.text != "connection established" || notice.isError {
		t.Fatalf("unexpected notice %v", notice)
	}

	// Request metadata from client
	writeWam(t, wsClient, newMetadataRequestMessage("FILTER ActiveMeasurements WHERE SignalType='FREQ'"))

	select {
	case msg := <-ws.MessageSender():
		if msg, ok := msg.(MetadataRequestMessage); !ok {
			t.Fatalf("Message is not a MetadataRequestMessage; %v", msg)
		} else if msg.FilterExpression != "FILTER ActiveMeasurements WHERE SignalType='FREQ'" {
			t.Fatalf("unexpected filter expression %q", msg.FilterExpression)
		}

	case <-time.After(500 * time.Millisecond):
		t.Fatal("metadata request reception timed out")
	}

	ws.MessageReceiver() <- MetadataMessage{Metadata: []byte("<DataSet/>")}

	if metadata := readWam(t, wsClient, wamMetadataCode).(*wamMetadata).metadata; !bytes.Equal(metadata, []byte("<DataSet/>")) {
		t.Fatalf("received metadata %q", metadata)
	}

	// Shutdown WebSocketAgent with all its child processes
	ws.MessageReceiver() <- ShutdownMessage{}

	_ = wsClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := wsClient.NextReader(); err == nil {
		t.Fatal("client connection is still open after shutdown")
	}

	select {
	case _, ok := <-ws.MessageSender():
		if ok {
			t.Fatal("WebSocketAgent sent a message after shutdown")
		}

	case <-time.After(500 * time.Millisecond):
		t.Fatal("WebSocketAgent did not close its sender")
	}
}

func TestWebAgentIllegalSignal(t *testing.T) {
	log.SetLevel(log.DebugLevel)

	ws, addr := startWebSocketAgent(t)
	wsClient := dialWebSocketAgent(t, addr)

	// Register client with an illegal signal ID
	writeWam(t, wsClient, newRegisterMessage("uff"))
	if msg := readWam(t, wsClient, wamStatusCode).(*wamStatus); msg.errorMsg == "" {
		t.Fatal("Expected error due to illegal signal ID")
	}

	// The client was dropped
	time.Sleep(100 * time.Millisecond)
	if clients := ws.Clients(); clients != 0 {
		t.Fatalf("expected no clients, got %d", clients)
	}

	ws.MessageReceiver() <- ShutdownMessage{}
}

func TestWebAgentMessageCbor(t *testing.T) {
	ms := createMeasurements(uuid.New(), uuid.New())
	ms[1].Value = math.Inf(-1)

	var buf bytes.Buffer
	if err := encodeWam(newMeasurementsMessage(ms), &buf); err != nil {
		t.Fatal(err)
	}

	if msg, err := decodeWam(&buf); err != nil {
		t.Fatal(err)
	} else if recv := msg.(*wamMeasurements).measurements; !reflect.DeepEqual(recv, ms) {
		t.Fatalf("expected %v, got %v", ms, recv)
	}

	buf.Reset()
	if err := cboring.WriteArrayLength(2, &buf); err != nil {
		t.Fatal(err)
	} else if err := cboring.WriteUInt(42, &buf); err != nil {
		t.Fatal(err)
	}

	if msg, err := decodeWam(&buf); !errors.Is(err, ErrUnknownWam) {
		t.Fatalf("unknown type code was decoded to %v, %v", msg, err)
	}
}
