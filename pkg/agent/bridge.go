// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

const bridgeShutdownTimeout = 5 * time.Second

// ErrBridgeClosed is returned after the Bridge was closed.
var ErrBridgeClosed = errors.New("bridge is closed")

// Source is the subscriber behind a Bridge, e.g., a transport.Subscriber.
type Source interface {
	StatusSource
	RefreshMetadata(filterExpression string) error
}

// Bridge multiplexes the subscriber's Measurements, notices and metadata to its ApplicationAgents. A WebSocketAgent
// is served at /ws and a RestAgent below /rest.
type Bridge struct {
	source Source

	agents *MuxAgent
	router *mux.Router
	ws     *WebSocketAgent
	rest   *RestAgent

	mutex    sync.RWMutex
	closed   bool
	server   *http.Server
	listener net.Listener
}

// NewBridge for a Source. The history might be nil, disabling /rest/history.
func NewBridge(source Source, history History) (b *Bridge) {
	router := mux.NewRouter()

	b = &Bridge{
		source: source,

		agents: NewMuxAgent(),
		router: router,
		ws:     NewWebSocketAgent(),
	}
	b.rest = NewRestAgent(router.PathPrefix("/rest").Subrouter(), source, history)

	router.Handle("/ws", b.ws)

	b.agents.Register(b.ws)
	b.agents.Register(b.rest)

	go b.handle()

	return
}

func (b *Bridge) handle() {
	for {
		select {
		case msg := <-b.agents.MessageSender():
			switch msg := msg.(type) {
			case MetadataRequestMessage:
				go b.refreshMetadata(msg.FilterExpression)

			default:
				log.WithField("message", msg).Debug("Bridge received unsupported message")
			}

		case <-b.agents.Done():
			return
		}
	}
}

func (b *Bridge) refreshMetadata(filterExpression string) {
	if err := b.source.RefreshMetadata(filterExpression); err != nil {
		log.WithError(err).Warn("Bridge failed to request metadata")

		_ = b.Notice(err.Error(), true)
	}
}

// Register an additional ApplicationAgent, e.g., an ArchiveAgent.
func (b *Bridge) Register(agent ApplicationAgent) {
	b.agents.Register(agent)
}

// Router to mount further handlers, e.g., /metrics.
func (b *Bridge) Router() *mux.Router {
	return b.router
}

// Clients is the amount of connected WebSocket clients.
func (b *Bridge) Clients() int {
	return b.ws.Clients()
}

func (b *Bridge) send(msg Message) error {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.closed {
		return ErrBridgeClosed
	}

	b.agents.MessageReceiver() <- msg
	return nil
}

// Publish a batch of received Measurements.
func (b *Bridge) Publish(measurements []sttp.Measurement) error {
	if len(measurements) == 0 {
		return nil
	}
	return b.send(MeasurementsMessage{Measurements: measurements})
}

// Notice forwards a status or error message.
func (b *Bridge) Notice(text string, isError bool) error {
	return b.send(NoticeMessage{Text: text, IsError: isError})
}

// Metadata forwards a received metadata document.
func (b *Bridge) Metadata(metadata []byte) error {
	return b.send(MetadataMessage{Metadata: metadata})
}

// ListenAndServe binds the address and serves the Bridge's router in the background.
func (b *Bridge) ListenAndServe(addr string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return ErrBridgeClosed
	} else if b.server != nil {
		return errors.New("bridge is already serving")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	b.listener = ln
	b.server = &http.Server{Handler: b.router}

	go func(server *http.Server) {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("Bridge's HTTP server errored")
		}
	}(b.server)

	log.WithField("address", ln.Addr()).Info("Bridge is serving")
	return nil
}

// Addr of the HTTP server, nil if not serving.
func (b *Bridge) Addr() net.Addr {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// Close shuts down all ApplicationAgents and the HTTP server.
func (b *Bridge) Close() error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return ErrBridgeClosed
	}
	b.closed = true
	server := b.server
	b.mutex.Unlock()

	b.agents.MessageReceiver() <- ShutdownMessage{}
	<-b.agents.Done()

	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), bridgeShutdownTimeout)
	defer cancel()

	return server.Shutdown(ctx)
}
