// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"errors"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	clientQueueSize    = 64
	clientWriteTimeout = 10 * time.Second
)

// errAlreadyRegistered is acknowledged for a second registration.
var errAlreadyRegistered = errors.New("register errored, signals are already present")

type webAgentClient struct {
	sync.Mutex
	writeMutex sync.Mutex

	conn       *websocket.Conn
	signals    []uuid.UUID
	registered bool
	receiver   chan Message
	sender     chan Message

	shutdownOnce sync.Once
}

func newWebAgentClient(conn *websocket.Conn) *webAgentClient {
	return &webAgentClient{
		conn:     conn,
		receiver: make(chan Message, clientQueueSize),
		sender:   make(chan Message),
	}
}

func (client *webAgentClient) logger() *log.Entry {
	return log.WithField("web agent client", client.conn.RemoteAddr().String())
}

func (client *webAgentClient) start() {
	go client.handleReceiver()
	client.handleConn()
}

// shutdown closes the connection, which terminates handleConn.
func (client *webAgentClient) shutdown() {
	client.shutdownOnce.Do(func() {
		client.logger().Debug("Reached shutdown")

		_ = client.conn.Close()
	})
}

// handleReceiver writes the incoming Messages to the client. After a failure, Messages are discarded until the
// MuxAgent closes the receiver.
func (client *webAgentClient) handleReceiver() {
	var logger = client.logger()
	var failed bool

	for msg := range client.receiver {
		if failed {
			continue
		}

		var err error

		switch msg := msg.(type) {
		case ShutdownMessage:
			logger.Debug("Received Shutdown")
			client.shutdown()
			failed = true
			continue

		case MeasurementsMessage:
			err = client.writeMessage(newMeasurementsMessage(msg.Measurements))

		case NoticeMessage:
			err = client.writeMessage(newNoticeMessage(msg.Text, msg.IsError))

		case MetadataMessage:
			err = client.writeMessage(newMetadataMessage(msg.Metadata))

		default:
			logger.WithField("message", msg).Info("Received unknown / unsupported message")
		}

		if err != nil {
			logger.WithError(err).Warn("Sending outgoing message errored")
			client.shutdown()
			failed = true
		}
	}
}

func (client *webAgentClient) handleConn() {
	defer close(client.sender)
	defer client.shutdown()

	var logger = client.logger()

	for {
		if messageType, reader, err := client.conn.NextReader(); err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.WithError(err).Debug("Reader errored due to closed network connection")
			} else {
				logger.WithError(err).Debug("Opening next Websocket Reader errored")
			}
			return
		} else if messageType != websocket.BinaryMessage {
			logger.WithField("message type", messageType).Warn("Websocket Reader's type is not binary")
			return
		} else if msg, err := decodeWam(reader); err != nil {
			logger.WithError(err).Warn("Unmarshal CBOR errored")
			return
		} else {
			switch msg := msg.(type) {
			case *wamRegister:
				err := client.handleIncomingRegister(msg)
				if err = client.acknowledgeIncoming(err); err != nil {
					logger.WithError(err).Warn("Handling registration errored")
					return
				}

			case *wamMetadataRequest:
				logger.WithField("filter", msg.filterExpression).Info("Received metadata request")
				client.sender <- MetadataRequestMessage{FilterExpression: msg.filterExpression}

			default:
				logger.WithField("message", msg).Info("Received unknown / unsupported message")
			}
		}
	}
}

func (client *webAgentClient) handleIncomingRegister(m *wamRegister) error {
	client.Lock()
	defer client.Unlock()

	var logger = client.logger().WithField("message", m)

	if client.registered {
		logger.Warn(errAlreadyRegistered.Error())
		return errAlreadyRegistered
	}

	signals, err := m.signalIDs()
	if err != nil {
		logger.WithError(err).Warn("Parsing signal IDs errored")
		return err
	}

	logger.WithField("signals", len(signals)).Debug("Setting signals")
	client.signals = signals
	client.registered = true
	return nil
}

func (client *webAgentClient) acknowledgeIncoming(err error) error {
	if writeErr := client.writeMessage(newStatusMessage(err)); writeErr != nil {
		return writeErr
	} else {
		return err
	}
}

// writeMessage is used both by handleConn and handleReceiver; the connection only supports one concurrent writer.
func (client *webAgentClient) writeMessage(msg webAgentMessage) error {
	client.writeMutex.Lock()
	defer client.writeMutex.Unlock()

	if err := client.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout)); err != nil {
		return err
	}

	wc, wcErr := client.conn.NextWriter(websocket.BinaryMessage)
	if wcErr != nil {
		return wcErr
	}

	if cborErr := encodeWam(msg, wc); cborErr != nil {
		return cborErr
	}

	return wc.Close()
}

// Signals registered by this client. Until the registration, a client receives all signals.
func (client *webAgentClient) Signals() []uuid.UUID {
	client.Lock()
	defer client.Unlock()

	return client.signals
}

func (client *webAgentClient) MessageReceiver() chan Message {
	return client.receiver
}

func (client *webAgentClient) MessageSender() chan Message {
	return client.sender
}
