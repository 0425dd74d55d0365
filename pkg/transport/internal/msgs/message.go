// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package msgs contains the frames of the STTP command channel.
//
// A subscriber sends CommandFrames and receives ResponseFrames. Both start with a four byte, big endian length
// field, which does not count itself.
package msgs

import (
	"errors"
	"fmt"
	"io"

	"github.com/sttp/cppapi-sub001/pkg/endian"
	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

// ErrPacketTooLarge is returned for a declared packet length beyond the allowed maximum. The packet's body was not
// read from the stream.
var ErrPacketTooLarge = errors.New("declared packet length exceeds limit")

// Message describes both kinds of frames, which have their serialization and deserialization in common.
type Message interface {
	Marshal(w io.Writer) error
	Unmarshal(r io.Reader) error
}

// readLength reads the length prefix and checks it against the limit, a limit of zero is unlimited.
func readLength(r io.Reader, minLength, maxLength uint32) (length uint32, err error) {
	header := make([]byte, sttp.PayloadHeaderSize)
	if _, err = io.ReadFull(r, header); err != nil {
		return
	}

	length = endian.ToBigEndian[uint32](header, 0)
	switch {
	case length < minLength:
		err = fmt.Errorf("declared packet length %d is less than %d", length, minLength)
	case maxLength > 0 && length > maxLength:
		err = fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, length, maxLength)
	}
	return
}

// writeFrame writes a length prefixed frame of a header and a payload as one write.
func writeFrame(w io.Writer, header []byte, payload []byte) error {
	frame := make([]byte, 0, sttp.PayloadHeaderSize+len(header)+len(payload))
	endian.WriteBigEndianBytes(&frame, uint32(len(header)+len(payload)))
	frame = append(frame, header...)
	frame = append(frame, payload...)

	_, err := w.Write(frame)
	return err
}
