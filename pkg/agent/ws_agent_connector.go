// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

const connectorNoticeQueueSize = 16

// ErrConnectorClosed is returned after the WebSocketAgentConnector's connection was closed.
var ErrConnectorClosed = errors.New("web socket agent connector is closed")

// WebSocketAgentConnector is the client side version of the WebSocketAgent.
type WebSocketAgentConnector struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex

	msgInMeasurementsChan chan []sttp.Measurement
	msgInMetadataChan     chan []byte
	msgInNoticeChan       chan NoticeMessage

	closeSyn  chan struct{}
	closeOnce sync.Once
}

// NewWebSocketAgentConnector creates a new WebSocketAgentConnector connection to a WebSocketAgent. Without signals,
// all Measurements are received.
func NewWebSocketAgentConnector(apiUrl string, signals ...uuid.UUID) (wac *WebSocketAgentConnector, err error) {
	var conn *websocket.Conn
	if conn, _, err = websocket.DefaultDialer.Dial(apiUrl, nil); err != nil {
		return
	}

	wac = &WebSocketAgentConnector{
		conn: conn,

		msgInMeasurementsChan: make(chan []sttp.Measurement),
		msgInMetadataChan:     make(chan []byte, 1),
		msgInNoticeChan:       make(chan NoticeMessage, connectorNoticeQueueSize),

		closeSyn: make(chan struct{}),
	}

	if err = wac.registerSignals(signals); err != nil {
		_ = conn.Close()
		wac = nil
		return
	}

	go wac.handleReader()

	return
}

func (wac *WebSocketAgentConnector) writeMessage(msg webAgentMessage) error {
	wac.writeMutex.Lock()
	defer wac.writeMutex.Unlock()

	wc, wcErr := wac.conn.NextWriter(websocket.BinaryMessage)
	if wcErr != nil {
		return wcErr
	}

	if cborErr := encodeWam(msg, wc); cborErr != nil {
		return cborErr
	}

	return wc.Close()
}

func (wac *WebSocketAgentConnector) readMessage() (msg webAgentMessage, err error) {
	if mt, r, rErr := wac.conn.NextReader(); rErr != nil {
		err = rErr
		return
	} else if mt != websocket.BinaryMessage {
		err = fmt.Errorf("expected binary message, got %d", mt)
		return
	} else {
		msg, err = decodeWam(r)
		return
	}
}

func (wac *WebSocketAgentConnector) registerSignals(signals []uuid.UUID) error {
	ids := make([]string, len(signals))
	for i, signal := range signals {
		ids[i] = signal.String()
	}

	if err := wac.writeMessage(newRegisterMessage(ids...)); err != nil {
		return err
	}

	if msg, err := wac.readMessage(); err != nil {
		return err
	} else if status, ok := msg.(*wamStatus); !ok {
		return fmt.Errorf("expected wamStatus, got %T", msg)
	} else if status.errorMsg != "" {
		return fmt.Errorf("received non-empty error message: %s", status.errorMsg)
	} else {
		return nil
	}
}

func (wac *WebSocketAgentConnector) handleReader() {
	defer close(wac.msgInMeasurementsChan)

	for {
		msg, err := wac.readMessage()
		if err != nil {
			log.WithError(err).Debug("WebSocketAgentConnector's reader finished")
			return
		}

		switch msg := msg.(type) {
		case *wamMeasurements:
			select {
			case wac.msgInMeasurementsChan <- msg.measurements:
			case <-wac.closeSyn:
				return
			}

		case *wamMetadata:
			// Only the most recent document is kept.
			select {
			case <-wac.msgInMetadataChan:
			default:
			}
			wac.msgInMetadataChan <- msg.metadata

		case *wamNotice:
			select {
			case wac.msgInNoticeChan <- NoticeMessage{Text: msg.text, IsError: msg.isError}:
			default:
				log.WithField("notice", msg.text).Debug("WebSocketAgentConnector dropped a notice")
			}

		default:
			log.WithField("message", msg).Debug("WebSocketAgentConnector received unsupported message")
		}
	}
}

// ReadMeasurements returns the next incoming batch of Measurements. This method blocks.
func (wac *WebSocketAgentConnector) ReadMeasurements() ([]sttp.Measurement, error) {
	select {
	case ms, ok := <-wac.msgInMeasurementsChan:
		if !ok {
			return nil, ErrConnectorClosed
		}
		return ms, nil

	case <-wac.closeSyn:
		return nil, ErrConnectorClosed
	}
}

// Notices of the subscriber. Notices are dropped if this channel is not read.
func (wac *WebSocketAgentConnector) Notices() <-chan NoticeMessage {
	return wac.msgInNoticeChan
}

// RequestMetadata from the publisher. The metadata document or an error after a timeout will be returned.
func (wac *WebSocketAgentConnector) RequestMetadata(filterExpression string, timeout time.Duration) ([]byte, error) {
	if err := wac.writeMessage(newMetadataRequestMessage(filterExpression)); err != nil {
		return nil, err
	}

	select {
	case metadata := <-wac.msgInMetadataChan:
		return metadata, nil

	case <-wac.closeSyn:
		return nil, ErrConnectorClosed

	case <-time.After(timeout):
		return nil, fmt.Errorf("metadata response timed out")
	}
}

// Close this WebSocketAgentConnector.
func (wac *WebSocketAgentConnector) Close() {
	wac.closeOnce.Do(func() {
		close(wac.closeSyn)
		_ = wac.conn.Close()
	})
}
