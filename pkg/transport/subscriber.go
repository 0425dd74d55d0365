// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/sttp/cppapi-sub001/pkg/endian"
	"github.com/sttp/cppapi-sub001/pkg/sttp"
	"github.com/sttp/cppapi-sub001/pkg/transport/internal/dispatch"
	"github.com/sttp/cppapi-sub001/pkg/transport/internal/msgs"
	"github.com/sttp/cppapi-sub001/pkg/transport/internal/utils"
)

var (
	// ErrAlreadyConnected is returned by Connect or Listen for a connected Subscriber.
	ErrAlreadyConnected = errors.New("subscriber is already connected")

	// ErrListening is returned by Connect or Listen while waiting for a reverse connection.
	ErrListening = errors.New("subscriber is listening for a publisher")

	// ErrInvalidVersion is returned for a protocol version outside the supported range.
	ErrInvalidVersion = errors.New("unsupported protocol version")

	// ErrNotConnected is returned for commands without a connection.
	ErrNotConnected = errors.New("subscriber is not connected")

	// ErrNotValidated is returned for commands sent before the publisher accepted the operational modes.
	ErrNotValidated = errors.New("operational modes were not accepted yet")

	// ErrConnectionRefused is returned by WaitForOperationalModesResponse if the publisher rejected the operational
	// modes.
	ErrConnectionRefused = errors.New("publisher refused the operational modes")

	// ErrTimeout is returned by WaitForOperationalModesResponse if the publisher did not respond in time.
	ErrTimeout = errors.New("timed out waiting for the publisher")

	// ErrNoUserCommand is returned by SendUserCommand for other commands.
	ErrNoUserCommand = errors.New("command is not a user command")
)

// Subscriber is the client side of an STTP connection.
//
// A Subscriber either connects to a publisher, see Connect and Connector, or waits for a publisher to connect, see
// Listen. After the publisher accepted the operational modes, measurements can be requested by Subscribe.
//
// All events are reported through registered callbacks. Those are invoked one after another on a single goroutine,
// in the order of their occurrence. The only exception is the connection terminated callback, which runs on its own
// goroutine. A callback must not call Connect or Listen; use the connection terminated callback instead.
type Subscriber struct {
	config    Config
	connector *Connector

	// connectMutex is held by connect, listen and the whole teardown.
	connectMutex sync.Mutex

	connected         *atomic.Bool
	listening         *atomic.Bool
	validated         *atomic.Bool
	subscribed        *atomic.Bool
	disconnecting     *atomic.Bool
	disconnected      *atomic.Bool
	connectionRefused *atomic.Bool

	address *atomic.String

	// connMutex guards the sockets and the FrameSwitch.
	connMutex sync.RWMutex
	conn      net.Conn
	fs        *utils.FrameSwitch
	udp       *net.UDPConn
	stopSyn   chan struct{}
	workers   sync.WaitGroup

	listener *reverseListener

	teardownMutex sync.Mutex
	teardownDone  chan struct{}
	teardown      *teardown

	opModesMutex sync.Mutex
	opModesDone  chan struct{}

	dispatcher *dispatch.Dispatcher[*Subscriber]
	callbacks  callbacks

	operationalModes sttp.OperationalModes

	infoMutex sync.RWMutex
	info      sttp.SubscriptionInfo

	// cacheMutex guards the signal index caches and the base times.
	cacheMutex   sync.Mutex
	caches       [2]*sttp.SignalIndexCache
	subscriberID uuid.UUID
	baseTimes    [2]sttp.Ticks
	timeIndex    int

	tssc *tsscSession

	metadataRequested *atomic.Int64

	commandChannelBytes  *atomic.Uint64
	dataChannelBytes     *atomic.Uint64
	measurementsReceived *atomic.Uint64

	// dialFunc opens the command channel.
	dialFunc func(ctx context.Context, address string) (net.Conn, error)
}

// NewSubscriber creates a disconnected Subscriber.
func NewSubscriber(conf Config) *Subscriber {
	conf = conf.withDefaults()

	s := &Subscriber{
		config: conf,

		connected:         atomic.NewBool(false),
		listening:         atomic.NewBool(false),
		validated:         atomic.NewBool(false),
		subscribed:        atomic.NewBool(false),
		disconnecting:     atomic.NewBool(false),
		disconnected:      atomic.NewBool(false),
		connectionRefused: atomic.NewBool(false),

		address: atomic.NewString(""),

		info: sttp.DefaultSubscriptionInfo(),

		tssc: newTsscSession(conf.OutOfSequenceReportInterval),

		metadataRequested: atomic.NewInt64(0),

		commandChannelBytes:  atomic.NewUint64(0),
		dataChannelBytes:     atomic.NewUint64(0),
		measurementsReceived: atomic.NewUint64(0),
	}

	s.connector = newConnector(conf)
	s.dispatcher = dispatch.NewDispatcher(s)
	s.dispatcher.Start()
	s.teardown = newTeardown(s)
	s.caches = [2]*sttp.SignalIndexCache{sttp.NewSignalIndexCache(), sttp.NewSignalIndexCache()}

	s.opModesDone = make(chan struct{})
	close(s.opModesDone)

	s.dialFunc = func(ctx context.Context, address string) (net.Conn, error) {
		return dialTCP(ctx, address, s.config.DialTimeout)
	}

	return s
}

func (s *Subscriber) String() string {
	if address := s.address.Load(); address != "" {
		return fmt.Sprintf("Subscriber(%s)", address)
	}
	return "Subscriber()"
}

func (s *Subscriber) log() *log.Entry {
	return log.WithField("subscriber", s.String())
}

// Config of this Subscriber, with defaults applied.
func (s *Subscriber) Config() Config {
	return s.config
}

// Connector of this Subscriber, used for automatic reconnects.
func (s *Subscriber) Connector() *Connector {
	return s.connector
}

// IsConnected checks if a command channel exists, regardless of the operational modes.
func (s *Subscriber) IsConnected() bool {
	return s.connected.Load()
}

// IsListening checks if Listen waits for or serves reverse connections.
func (s *Subscriber) IsListening() bool {
	return s.listening.Load()
}

// IsValidated checks if the publisher accepted the operational modes.
func (s *Subscriber) IsValidated() bool {
	return s.validated.Load()
}

func (s *Subscriber) IsSubscribed() bool {
	return s.subscribed.Load()
}

// IsDisconnected checks if an established connection was torn down. It is false before the first connection and
// while connected.
func (s *Subscriber) IsDisconnected() bool {
	return s.disconnected.Load()
}

// IsConnectionRefused checks if the publisher rejected the operational modes of the last connection.
func (s *Subscriber) IsConnectionRefused() bool {
	return s.connectionRefused.Load()
}

// OperationalModes sent on the current or last connection.
func (s *Subscriber) OperationalModes() sttp.OperationalModes {
	s.connMutex.RLock()
	defer s.connMutex.RUnlock()

	return s.operationalModes
}

// SubscriptionInfo of the last Subscribe call.
func (s *Subscriber) SubscriptionInfo() sttp.SubscriptionInfo {
	s.infoMutex.RLock()
	defer s.infoMutex.RUnlock()

	return s.info
}

// SubscriberID as assigned by the publisher within the signal index cache.
func (s *Subscriber) SubscriberID() uuid.UUID {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	return s.subscriberID
}

// SignalIndexCache currently used for data packets without the cache index flag.
func (s *Subscriber) SignalIndexCache() *sttp.SignalIndexCache {
	return s.signalIndexCache(false)
}

func (s *Subscriber) signalIndexCache(second bool) *sttp.SignalIndexCache {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if second {
		return s.caches[1]
	}
	return s.caches[0]
}

// Connect to a publisher and negotiate the operational modes.
//
// The TCP connection is established synchronously. The negotiation happens in the background and can be awaited by
// WaitForOperationalModesResponse. The address is kept for the Connector's automatic reconnects.
func (s *Subscriber) Connect(hostname string, port uint16) error {
	s.connector.ResetConnection()
	s.connector.SetTarget(hostname, port)

	return s.connect(context.Background(), hostname, port)
}

func (s *Subscriber) connect(ctx context.Context, hostname string, port uint16) error {
	if err := s.config.checkVersion(); err != nil {
		return err
	}

	if s.connected.Load() {
		return ErrAlreadyConnected
	}
	if s.listening.Load() {
		return ErrListening
	}

	s.connectMutex.Lock()
	defer s.connectMutex.Unlock()

	if s.connected.Load() {
		return ErrAlreadyConnected
	}
	if s.listening.Load() {
		return ErrListening
	}

	address := net.JoinHostPort(hostname, strconv.Itoa(int(port)))
	conn, err := s.dialFunc(ctx, address)
	if err != nil {
		return err
	}

	s.establish(conn)
	return nil
}

// establish a session on a fresh command channel. The connectMutex must be held.
func (s *Subscriber) establish(conn net.Conn) {
	info := s.SubscriptionInfo()
	modes := sttp.NewOperationalModes(s.config.ProtocolVersion,
		s.config.CompressPayloadData, s.config.CompressMetadata, s.config.CompressSignalIndexCache,
		info.UdpDataChannel)

	s.cacheMutex.Lock()
	s.caches = [2]*sttp.SignalIndexCache{sttp.NewSignalIndexCache(), sttp.NewSignalIndexCache()}
	s.subscriberID = uuid.Nil
	s.baseTimes = [2]sttp.Ticks{}
	s.timeIndex = 0
	s.cacheMutex.Unlock()

	s.tssc.reset()

	s.validated.Store(false)
	s.subscribed.Store(false)
	s.connectionRefused.Store(false)

	s.opModesMutex.Lock()
	s.opModesDone = make(chan struct{})
	s.opModesMutex.Unlock()

	s.address.Store(conn.RemoteAddr().String())

	s.connMutex.Lock()
	s.operationalModes = modes
	s.conn = conn
	s.stopSyn = make(chan struct{})
	s.connected.Store(true)
	s.disconnected.Store(false)
	s.fs = utils.NewFrameSwitch(conn, conn, s.handleResponse, s.maxPacketSize)

	s.workers.Add(1)
	go s.watch(s.fs, s.stopSyn)
	s.connMutex.Unlock()

	s.log().WithField("modes", modes).Info("Connected to publisher")

	var payload []byte
	endian.WriteBigEndianBytes(&payload, uint32(modes))
	if err := s.SendServerCommand(sttp.DefineOperationalModes, payload); err != nil {
		s.dispatchErrorMessage(fmt.Sprintf("Failed to send operational modes: %v", err))
	}

	s.dispatchConnectionEstablished()
}

// maxPacketSize limits the declared length of incoming frames. Before validation, a large frame indicates a peer not
// speaking this protocol.
func (s *Subscriber) maxPacketSize() uint32 {
	if s.validated.Load() {
		return sttp.MaxPacketSize
	}
	return sttp.MaxInitialPacketSize
}

// watch the FrameSwitch of one connection for a terminating error.
func (s *Subscriber) watch(fs *utils.FrameSwitch, stopSyn <-chan struct{}) {
	defer s.workers.Done()

	select {
	case <-stopSyn:
		return

	case err := <-fs.Errors():
		if s.disconnecting.Load() {
			return
		}

		if errors.Is(err, msgs.ErrPacketTooLarge) {
			s.protocolError(fmt.Sprintf("Possible invalid protocol detected from publisher: %v", err))
			return
		}

		if isConnectionClosed(err) {
			s.dispatchStatusMessage(fmt.Sprintf("Publisher closed the command channel: %v", err))
		} else {
			s.dispatchErrorMessage(fmt.Sprintf("Error on the command channel: %v", err))
		}
		s.disconnect(reasonSocketError)
	}
}

// protocolError reports a peer not speaking this protocol and terminates the connection without a reconnect.
func (s *Subscriber) protocolError(message string) {
	s.log().Error(message)
	s.dispatchErrorMessage(message)
	s.disconnect(reasonProtocolError)
}

// closeOperationalModes wakes the waiters of WaitForOperationalModesResponse.
func (s *Subscriber) closeOperationalModes() {
	s.opModesMutex.Lock()
	defer s.opModesMutex.Unlock()

	select {
	case <-s.opModesDone:
	default:
		close(s.opModesDone)
	}
}

// WaitForOperationalModesResponse blocks until the publisher responded to the operational modes.
//
// An error is returned if the publisher refused them, the connection was lost, or the timeout was reached.
func (s *Subscriber) WaitForOperationalModesResponse(timeout time.Duration) error {
	s.opModesMutex.Lock()
	done := s.opModesDone
	s.opModesMutex.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		switch {
		case s.connectionRefused.Load():
			return ErrConnectionRefused
		case !s.validated.Load():
			return ErrNotConnected
		default:
			return nil
		}

	case <-timer.C:
		return fmt.Errorf("%w: no operational modes response within %v", ErrTimeout, timeout)
	}
}

// SendServerCommand sends a command to the publisher.
//
// Before the publisher accepted the operational modes, all commands except DefineOperationalModes are suppressed and
// ErrNotValidated is returned. The command is written asynchronously; write errors terminate the connection.
func (s *Subscriber) SendServerCommand(command sttp.ServerCommand, payload []byte) error {
	s.connMutex.RLock()
	fs := s.fs
	s.connMutex.RUnlock()

	if fs == nil || !s.connected.Load() {
		return ErrNotConnected
	}

	if command != sttp.DefineOperationalModes && !s.validated.Load() {
		s.log().WithField("command", command).Warn("Suppressed command before operational modes were accepted")
		return ErrNotValidated
	}

	frame := msgs.NewCommandFrame(command, payload)
	if err := fs.Send(frame); err != nil {
		return fmt.Errorf("sending %v failed: %w", frame, err)
	}

	s.log().WithField("command", frame).Debug("Sent command")
	return nil
}

// SendUserCommand sends one of the sttp.UserCommand00 to sttp.UserCommand15 commands.
func (s *Subscriber) SendUserCommand(command sttp.ServerCommand, payload []byte) error {
	if !command.IsUserCommand() {
		return fmt.Errorf("%w: %v", ErrNoUserCommand, command)
	}
	return s.SendServerCommand(command, payload)
}

// Subscribe requests measurements. An active subscription is unsubscribed first.
//
// The SubscriptionInfo is validated synchronously. A UDP data channel is opened if requested.
func (s *Subscriber) Subscribe(info sttp.SubscriptionInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if !s.connected.Load() {
		return ErrNotConnected
	}
	if !s.validated.Load() {
		s.log().Warn("Suppressed subscribe before operational modes were accepted")
		return ErrNotValidated
	}

	if s.subscribed.Load() {
		if err := s.Unsubscribe(); err != nil {
			return err
		}
	}

	s.infoMutex.Lock()
	s.info = info
	s.infoMutex.Unlock()

	if info.UdpDataChannel {
		if err := s.openDataChannel(info.DataChannelLocalPort); err != nil {
			return err
		}
	}

	connectionString := info.ConnectionString()

	payload := []byte{uint8(sttp.DataPacketCompact)}
	endian.WriteBigEndianBytes(&payload, uint32(len(connectionString)))
	payload = append(payload, connectionString...)

	s.tssc.requestReset()

	if err := s.SendServerCommand(sttp.Subscribe, payload); err != nil {
		s.closeDataChannel()
		return err
	}
	return nil
}

// Unsubscribe from the publisher. Without an active subscription, nothing happens.
func (s *Subscriber) Unsubscribe() error {
	if !s.subscribed.CompareAndSwap(true, false) {
		return nil
	}

	s.closeDataChannel()
	return s.SendServerCommand(sttp.Unsubscribe, nil)
}

// UpdateProcessingInterval changes the playback speed of a temporal subscription, in milliseconds.
func (s *Subscriber) UpdateProcessingInterval(processingInterval int32) error {
	s.infoMutex.Lock()
	s.info.ProcessingInterval = processingInterval
	s.infoMutex.Unlock()

	var payload []byte
	endian.WriteBigEndianBytes(&payload, processingInterval)
	return s.SendServerCommand(sttp.UpdateProcessingInterval, payload)
}

// RotateCipherKeys asks the publisher for new keys of the UDP data channel.
func (s *Subscriber) RotateCipherKeys() error {
	return s.SendServerCommand(sttp.RotateCipherKeys, nil)
}

// Disconnect from the publisher and stop listening. The call blocks until the teardown has finished. A concurrent or
// repeated call joins the ongoing teardown. The Connector is canceled as well.
//
// The teardown waits for the dispatched callbacks. Thus, within such a callback, DisconnectAsync must be used. The
// connection terminated callback runs on its own goroutine and may call Disconnect.
func (s *Subscriber) Disconnect() {
	<-s.DisconnectAsync()
}

// DisconnectAsync starts the teardown of Disconnect without waiting for it. The returned channel is closed after the
// teardown has finished.
func (s *Subscriber) DisconnectAsync() <-chan struct{} {
	s.connector.Cancel()
	return s.disconnect(reasonUser)
}

// disconnect starts the teardown on its own goroutine, unless one is already running. The returned channel is
// closed after the teardown.
func (s *Subscriber) disconnect(reason disconnectReason) <-chan struct{} {
	s.teardownMutex.Lock()
	defer s.teardownMutex.Unlock()

	if !s.disconnecting.CompareAndSwap(false, true) {
		return s.teardownDone
	}

	done := make(chan struct{})
	s.teardownDone = done

	go func() {
		s.connectMutex.Lock()
		s.teardown.run(reason)

		s.teardownMutex.Lock()
		s.disconnecting.Store(false)
		s.teardownMutex.Unlock()

		s.connectMutex.Unlock()
		close(done)
	}()

	return done
}

// connectionTerminated runs on its own goroutine after a connection was torn down.
func (s *Subscriber) connectionTerminated(reason disconnectReason) {
	if f := s.callbacks.get().connectionTerminated; f != nil {
		f(s)
	}

	if reason == reasonSocketError && s.config.AutoReconnect && !s.listening.Load() {
		s.connector.reconnect(s)
	}
}

// Statistics of a Subscriber. The counters accumulate over all connections.
type Statistics struct {
	Connected  bool
	Validated  bool
	Subscribed bool
	Listening  bool

	CommandChannelBytesReceived uint64
	DataChannelBytesReceived    uint64
	MeasurementsReceived        uint64

	SignalIndexCacheSize int
}

// Statistics returns the current counters and states.
func (s *Subscriber) Statistics() Statistics {
	return Statistics{
		Connected:  s.connected.Load(),
		Validated:  s.validated.Load(),
		Subscribed: s.subscribed.Load(),
		Listening:  s.listening.Load(),

		CommandChannelBytesReceived: s.commandChannelBytes.Load(),
		DataChannelBytesReceived:    s.dataChannelBytes.Load(),
		MeasurementsReceived:        s.measurementsReceived.Load(),

		SignalIndexCacheSize: s.SignalIndexCache().Count(),
	}
}

// TotalCommandChannelBytesReceived counts the bytes of all frames received on command channels.
func (s *Subscriber) TotalCommandChannelBytesReceived() uint64 {
	return s.commandChannelBytes.Load()
}

// TotalDataChannelBytesReceived counts the bytes of all datagrams received on UDP data channels.
func (s *Subscriber) TotalDataChannelBytesReceived() uint64 {
	return s.dataChannelBytes.Load()
}

func (s *Subscriber) TotalMeasurementsReceived() uint64 {
	return s.measurementsReceived.Load()
}
