// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

// CommandFrame is a request from the subscriber: length (u32), command code (u8), and the payload.
type CommandFrame struct {
	Command sttp.ServerCommand
	Payload []byte
}

// NewCommandFrame for a command and its payload.
func NewCommandFrame(command sttp.ServerCommand, payload []byte) *CommandFrame {
	return &CommandFrame{
		Command: command,
		Payload: payload,
	}
}

func (cf CommandFrame) String() string {
	return fmt.Sprintf("CommandFrame(%v, %d bytes)", cf.Command, len(cf.Payload))
}

// Len of the marshalled frame, including its length field.
func (cf CommandFrame) Len() int {
	return sttp.PayloadHeaderSize + 1 + len(cf.Payload)
}

func (cf CommandFrame) Marshal(w io.Writer) error {
	return writeFrame(w, []byte{uint8(cf.Command)}, cf.Payload)
}

func (cf *CommandFrame) Unmarshal(r io.Reader) error {
	length, err := readLength(r, 1, sttp.MaxPacketSize)
	if err != nil {
		return err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}

	cf.Command = sttp.ServerCommand(body[0])
	cf.Payload = body[1:]
	return nil
}

// ReadCommand parses the next CommandFrame from the Reader.
func ReadCommand(r io.Reader) (cf *CommandFrame, err error) {
	cf = new(CommandFrame)
	if err = cf.Unmarshal(r); err != nil {
		cf = nil
	}
	return
}
