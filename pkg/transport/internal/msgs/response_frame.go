// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

// ResponseFrame is a message from the publisher: length (u32), response code (u8), command code (u8), and the
// payload. For unsolicited messages, e.g., data packets, the command code is the one of the subscription.
type ResponseFrame struct {
	Response sttp.ServerResponse
	Command  sttp.ServerCommand
	Payload  []byte
}

// NewResponseFrame for a response, the related command, and a payload.
func NewResponseFrame(response sttp.ServerResponse, command sttp.ServerCommand, payload []byte) *ResponseFrame {
	return &ResponseFrame{
		Response: response,
		Command:  command,
		Payload:  payload,
	}
}

func (rf ResponseFrame) String() string {
	return fmt.Sprintf("ResponseFrame(%v, %v, %d bytes)", rf.Response, rf.Command, len(rf.Payload))
}

// Len of the marshalled frame, including its length field.
func (rf ResponseFrame) Len() int {
	return sttp.ResponseHeaderSize + len(rf.Payload)
}

func (rf ResponseFrame) Marshal(w io.Writer) error {
	return writeFrame(w, []byte{uint8(rf.Response), uint8(rf.Command)}, rf.Payload)
}

func (rf *ResponseFrame) Unmarshal(r io.Reader) error {
	return rf.unmarshal(r, sttp.MaxPacketSize)
}

func (rf *ResponseFrame) unmarshal(r io.Reader, maxLength uint32) error {
	length, err := readLength(r, 2, maxLength)
	if err != nil {
		return err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}

	return rf.parseBody(body)
}

func (rf *ResponseFrame) parseBody(body []byte) error {
	if len(body) < 2 {
		return fmt.Errorf("response of %d bytes has no header", len(body))
	}

	rf.Response = sttp.ServerResponse(body[0])
	rf.Command = sttp.ServerCommand(body[1])
	rf.Payload = body[2:]
	return nil
}

// ReadResponse parses the next ResponseFrame from the Reader.
//
// The length field is read first. If the declared length exceeds maxPacketSize, the body is not read and an error
// wrapping ErrPacketTooLarge is returned. The limit is the declared length without the length field itself.
func ReadResponse(r io.Reader, maxPacketSize uint32) (rf *ResponseFrame, err error) {
	rf = new(ResponseFrame)
	if err = rf.unmarshal(r, maxPacketSize); err != nil {
		rf = nil
	}
	return
}

// ParseDatagram reads a ResponseFrame from a data channel datagram, which lacks the length field.
func ParseDatagram(datagram []byte) (rf *ResponseFrame, err error) {
	rf = new(ResponseFrame)
	if err = rf.parseBody(datagram); err != nil {
		rf = nil
	}
	return
}

// MarshalDatagram returns this ResponseFrame as a data channel datagram.
func (rf ResponseFrame) MarshalDatagram() []byte {
	datagram := make([]byte, 0, 2+len(rf.Payload))
	datagram = append(datagram, uint8(rf.Response), uint8(rf.Command))
	return append(datagram, rf.Payload...)
}
