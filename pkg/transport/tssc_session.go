// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sttp/cppapi-sub001/pkg/sttp/tssc"
)

// tsscSession is the TSSC decompression state of one connection.
//
// After a Subscribe, a reset is pending: packets of the former subscription are dropped until the publisher starts a
// new compression context with sequence number zero. Packets out of sequence are dropped as well; a warning about
// them is reported at most once per reportInterval.
type tsscSession struct {
	mutex sync.Mutex

	decoder        *tssc.Decoder
	resetPending   bool
	reportInterval time.Duration
	lastReport     time.Time
}

func newTsscSession(reportInterval time.Duration) *tsscSession {
	return &tsscSession{
		decoder:        tssc.NewDecoder(),
		reportInterval: reportInterval,
	}
}

// reset to a fresh compression state, as for a new connection.
func (ts *tsscSession) reset() {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	ts.decoder = tssc.NewDecoder()
	ts.resetPending = false
	ts.lastReport = time.Time{}
}

// requestReset marks a reset as pending.
func (ts *tsscSession) requestReset() {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	ts.resetPending = true
}

// decode a TSSC packet, including its header.
//
// If the packet was dropped because of its sequence number, no points are returned. In this case, warning might
// contain a message to be reported. An error is returned for an unknown version or a corrupt stream; the latter
// might be accompanied by the points decoded before.
func (ts *tsscSession) decode(packet []byte, now time.Time) (points []tssc.Point, warning string, err error) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	if ts.resetPending {
		if len(packet) >= tssc.HeaderSize && packet[0] == tssc.Version && (packet[1] != 0 || packet[2] != 0) {
			return
		}

		ts.resetPending = false
		ts.decoder.ResetSequenceNumber()
	}

	if err = ts.decoder.BeginPacket(packet); err != nil {
		if errors.Is(err, tssc.ErrOutOfSequence) {
			if now.Sub(ts.lastReport) >= ts.reportInterval {
				ts.lastReport = now
				warning = fmt.Sprintf("TSSC is out of sequence, dropping data packets until the next reset: %v", err)
			}
			err = nil
		}
		return
	}

	for {
		p, ok, pErr := ts.decoder.TryGetMeasurement()
		if pErr != nil {
			err = pErr
			return
		}
		if !ok {
			return
		}
		points = append(points, p)
	}
}
