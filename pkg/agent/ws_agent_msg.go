// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"errors"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// ErrUnknownWam is returned when decoding a web agent message of an unknown type.
var ErrUnknownWam = errors.New("unknown web agent message type")

// wamCode identifies the type of a webAgentMessage on the wire.
type wamCode uint64

const (
	wamStatusCode wamCode = iota
	wamRegisterCode
	wamMeasurementsCode
	wamMetadataRequestCode
	wamMetadataCode
	wamNoticeCode
)

func (code wamCode) String() string {
	switch code {
	case wamStatusCode:
		return "status"
	case wamRegisterCode:
		return "register"
	case wamMeasurementsCode:
		return "measurements"
	case wamMetadataRequestCode:
		return "metadata request"
	case wamMetadataCode:
		return "metadata"
	case wamNoticeCode:
		return "notice"
	default:
		return fmt.Sprintf("unknown (%d)", uint64(code))
	}
}

// webAgentMessage is exchanged between a WebSocketAgent and its clients, see ws_agent_msg_impl.go.
//
// On the wire, each message is a CBOR array of its wamCode and its body. The body is written by the message's
// cboring.CborMarshaler implementation.
type webAgentMessage interface {
	typeCode() wamCode

	cboring.CborMarshaler
}

// newWam creates an empty webAgentMessage to be decoded for a wamCode.
func newWam(code wamCode) (webAgentMessage, error) {
	switch code {
	case wamStatusCode:
		return new(wamStatus), nil
	case wamRegisterCode:
		return new(wamRegister), nil
	case wamMeasurementsCode:
		return new(wamMeasurements), nil
	case wamMetadataRequestCode:
		return new(wamMetadataRequest), nil
	case wamMetadataCode:
		return new(wamMetadata), nil
	case wamNoticeCode:
		return new(wamNotice), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownWam, code)
	}
}

// encodeWam writes a webAgentMessage with its wamCode.
func encodeWam(wam webAgentMessage, w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(wam.typeCode()), w); err != nil {
		return err
	}
	if err := cboring.Marshal(wam, w); err != nil {
		return fmt.Errorf("encoding %v message: %w", wam.typeCode(), err)
	}
	return nil
}

// decodeWam reads the next webAgentMessage.
func decodeWam(r io.Reader) (webAgentMessage, error) {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return nil, err
	} else if n != 2 {
		return nil, fmt.Errorf("web agent message is an array of %d elements instead of two", n)
	}

	code, err := cboring.ReadUInt(r)
	if err != nil {
		return nil, err
	}

	wam, err := newWam(wamCode(code))
	if err != nil {
		return nil, err
	}

	if err := cboring.Unmarshal(wam, r); err != nil {
		return nil, fmt.Errorf("decoding %v message: %w", wamCode(code), err)
	}
	return wam, nil
}
