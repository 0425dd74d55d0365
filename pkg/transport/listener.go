// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"net"
	"time"
)

// reverseListener accepts publishers connecting to a Subscriber.
type reverseListener struct {
	ln *net.TCPListener

	stopSyn chan struct{}
}

// Listen for a publisher initiating the connection, i.e., a reverse connection.
//
// One publisher is served at a time; further connections are closed while one is active. A lost connection is
// torn down and the Subscriber waits for the publisher's next connection. Disconnect stops listening.
func (s *Subscriber) Listen(port uint16) error {
	if err := s.config.checkVersion(); err != nil {
		return err
	}

	s.connectMutex.Lock()
	defer s.connectMutex.Unlock()

	if s.connected.Load() {
		return ErrAlreadyConnected
	}
	if s.listening.Load() {
		return ErrListening
	}

	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: int(port)})
	if err != nil {
		return err
	}

	listener := &reverseListener{
		ln:      ln,
		stopSyn: make(chan struct{}),
	}

	s.connector.Cancel()
	s.listener = listener
	s.listening.Store(true)
	s.disconnected.Store(false)

	go s.accept(listener)

	s.log().WithField("address", ln.Addr()).Info("Listening for publisher")
	s.dispatchStatusMessage(fmt.Sprintf("Listening for publisher connections on %v", ln.Addr()))
	return nil
}

// ListenAddress is the local address while listening, or nil.
func (s *Subscriber) ListenAddress() net.Addr {
	s.connectMutex.Lock()
	defer s.connectMutex.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.ln.Addr()
}

func (s *Subscriber) accept(listener *reverseListener) {
	for {
		select {
		case <-listener.stopSyn:
			return

		default:
			if err := listener.ln.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
				select {
				case <-listener.stopSyn:
				default:
					s.log().WithError(err).Error("Listener failed to set deadline on TCP socket")
				}
				return
			}

			conn, err := listener.ln.Accept()
			if err != nil {
				continue
			}

			s.acceptConnection(listener, conn)
		}
	}
}

// acceptConnection establishes a session on an accepted connection, unless another one is active.
func (s *Subscriber) acceptConnection(listener *reverseListener, conn net.Conn) {
	s.connectMutex.Lock()
	defer s.connectMutex.Unlock()

	select {
	case <-listener.stopSyn:
		_ = conn.Close()
		return
	default:
	}

	if s.connected.Load() {
		s.log().WithField("peer", conn.RemoteAddr()).Warn("Rejected publisher connection while another one is active")
		_ = conn.Close()
		return
	}

	s.establish(conn)
}

// close the socket and signal the accepting goroutine to stop. It does not wait, because the goroutine might be
// blocked on the Subscriber's connectMutex.
func (listener *reverseListener) close() {
	close(listener.stopSyn)
	_ = listener.ln.Close()
}
