// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
	"net"

	"github.com/sttp/cppapi-sub001/pkg/transport/internal/msgs"
)

// maxDatagramSize is the largest UDP payload.
const maxDatagramSize = 65535

// openDataChannel binds the UDP data channel and starts its reader. A former data channel is closed.
func (s *Subscriber) openDataChannel(port uint16) error {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	if !s.connected.Load() {
		return ErrNotConnected
	}

	if s.udp != nil {
		_ = s.udp.Close()
		s.udp = nil
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(port)})
	if err != nil {
		return fmt.Errorf("binding the data channel on port %d failed: %w", port, err)
	}
	s.udp = conn

	s.workers.Add(1)
	go s.readDataChannel(conn)

	s.log().WithField("port", port).Info("Opened data channel")
	return nil
}

// closeDataChannel closes an open UDP data channel; its reader terminates afterwards.
func (s *Subscriber) closeDataChannel() {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	if s.udp != nil {
		_ = s.udp.Close()
		s.udp = nil
	}
}

func (s *Subscriber) readDataChannel(conn *net.UDPConn) {
	defer s.workers.Done()

	buffer := make([]byte, maxDatagramSize)

	for {
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !s.disconnecting.Load() {
				s.dispatchErrorMessage(fmt.Sprintf("Error on the data channel: %v", err))
			}
			s.log().WithError(err).Debug("Data channel reader stopped")
			return
		}

		if s.disconnecting.Load() {
			return
		}

		s.dataChannelBytes.Add(uint64(n))

		datagram := make([]byte, n)
		copy(datagram, buffer[:n])

		frame, err := msgs.ParseDatagram(datagram)
		if err != nil {
			s.dispatchErrorMessage(fmt.Sprintf("Malformed datagram on the data channel: %v", err))
			continue
		}

		s.processResponse(frame)
	}
}
