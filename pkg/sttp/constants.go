// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sttp

import "fmt"

const (
	// PayloadHeaderSize is the length prefix of every command channel packet.
	PayloadHeaderSize = 4

	// ResponseHeaderSize is the length prefix followed by the response and command code.
	ResponseHeaderSize = PayloadHeaderSize + 2

	// MaxPacketSize is the largest accepted packet size on the command channel, e.g., for a large metadata document.
	MaxPacketSize = 32 * 1024 * 1024

	// MaxInitialPacketSize is the largest packet size accepted from a peer before the operational modes were
	// validated. Everything beyond this limit is considered a non-protocol peer.
	MaxInitialPacketSize = ResponseHeaderSize + 8192
)

// ServerCommand is the code of a request sent from the subscriber to the publisher.
type ServerCommand uint8

const (
	Connect                       ServerCommand = 0x00
	MetadataRefresh               ServerCommand = 0x01
	Subscribe                     ServerCommand = 0x02
	Unsubscribe                   ServerCommand = 0x03
	RotateCipherKeys              ServerCommand = 0x04
	UpdateProcessingInterval      ServerCommand = 0x05
	DefineOperationalModes        ServerCommand = 0x06
	ConfirmNotification           ServerCommand = 0x07
	ConfirmBufferBlock            ServerCommand = 0x08
	ConfirmUpdateBaseTimes        ServerCommand = 0x09
	ConfirmUpdateSignalIndexCache ServerCommand = 0x0A
	ConfirmUpdateCipherKeys       ServerCommand = 0x0B

	// UserCommand00 is the first of the 16 user defined commands, UserCommand00 + 15 is the last.
	UserCommand00 ServerCommand = 0xD0
	UserCommand15 ServerCommand = 0xDF
)

var serverCommandNames = map[ServerCommand]string{
	Connect:                       "Connect",
	MetadataRefresh:               "MetadataRefresh",
	Subscribe:                     "Subscribe",
	Unsubscribe:                   "Unsubscribe",
	RotateCipherKeys:              "RotateCipherKeys",
	UpdateProcessingInterval:      "UpdateProcessingInterval",
	DefineOperationalModes:        "DefineOperationalModes",
	ConfirmNotification:           "ConfirmNotification",
	ConfirmBufferBlock:            "ConfirmBufferBlock",
	ConfirmUpdateBaseTimes:        "ConfirmUpdateBaseTimes",
	ConfirmUpdateSignalIndexCache: "ConfirmUpdateSignalIndexCache",
	ConfirmUpdateCipherKeys:       "ConfirmUpdateCipherKeys",
}

// IsUserCommand checks if this ServerCommand is one of the user defined commands.
func (sc ServerCommand) IsUserCommand() bool {
	return sc >= UserCommand00 && sc <= UserCommand15
}

func (sc ServerCommand) String() string {
	if name, ok := serverCommandNames[sc]; ok {
		return name
	}
	if sc.IsUserCommand() {
		return fmt.Sprintf("UserCommand%02d", sc-UserCommand00)
	}
	return fmt.Sprintf("0x%02X", uint8(sc))
}

// ServerResponse is the code of a response or an unsolicited message sent by the publisher.
type ServerResponse uint8

const (
	Succeeded              ServerResponse = 0x80
	Failed                 ServerResponse = 0x81
	DataPacket             ServerResponse = 0x82
	UpdateSignalIndexCache ServerResponse = 0x83
	UpdateBaseTimes        ServerResponse = 0x84
	UpdateCipherKeys       ServerResponse = 0x85
	DataStartTime          ServerResponse = 0x86
	ProcessingComplete     ServerResponse = 0x87
	BufferBlock            ServerResponse = 0x88
	Notify                 ServerResponse = 0x89
	ConfigurationChanged   ServerResponse = 0x8A

	UserResponse00 ServerResponse = 0xE0
	UserResponse15 ServerResponse = 0xEF

	// NoOp is sent by the publisher as a heartbeat and has no payload of interest.
	NoOp ServerResponse = 0xFF
)

var serverResponseNames = map[ServerResponse]string{
	Succeeded:              "Succeeded",
	Failed:                 "Failed",
	DataPacket:             "DataPacket",
	UpdateSignalIndexCache: "UpdateSignalIndexCache",
	UpdateBaseTimes:        "UpdateBaseTimes",
	UpdateCipherKeys:       "UpdateCipherKeys",
	DataStartTime:          "DataStartTime",
	ProcessingComplete:     "ProcessingComplete",
	BufferBlock:            "BufferBlock",
	Notify:                 "Notify",
	ConfigurationChanged:   "ConfigurationChanged",
	NoOp:                   "NoOp",
}

// IsUserResponse checks if this ServerResponse is one of the user defined responses.
func (sr ServerResponse) IsUserResponse() bool {
	return sr >= UserResponse00 && sr <= UserResponse15
}

func (sr ServerResponse) String() string {
	if name, ok := serverResponseNames[sr]; ok {
		return name
	}
	if sr.IsUserResponse() {
		return fmt.Sprintf("UserResponse%02d", sr-UserResponse00)
	}
	return fmt.Sprintf("0x%02X", uint8(sr))
}

// OperationalModes are the session flags negotiated by a DefineOperationalModes command.
type OperationalModes uint32

const (
	VersionMask         OperationalModes = 0x0000001F
	CompressionModeMask OperationalModes = 0x000000E0
	EncodingMask        OperationalModes = 0x00000300

	ReceiveExternalMetadata  OperationalModes = 0x02000000
	ReceiveInternalMetadata  OperationalModes = 0x04000000
	CompressPayloadData      OperationalModes = 0x20000000
	CompressSignalIndexCache OperationalModes = 0x40000000
	CompressMetadata         OperationalModes = 0x80000000
	NoFlags                  OperationalModes = 0x00000000
)

// OperationalEncoding is the string encoding part of the OperationalModes.
type OperationalEncoding uint32

const (
	UTF8 OperationalEncoding = 0x00000200
)

// CompressionModes is the compression part of the OperationalModes.
type CompressionModes uint32

const (
	CompressionGZip CompressionModes = 0x00000020
	CompressionTSSC CompressionModes = 0x00000040
	CompressionNone CompressionModes = 0x00000000
)

const (
	// MinProtocolVersion and MaxProtocolVersion are the bounds of the supported protocol versions.
	MinProtocolVersion uint8 = 1
	MaxProtocolVersion uint8 = 3

	// TSSCMaxProtocolVersion is the first protocol version without TSSC support.
	TSSCMaxProtocolVersion uint8 = 3
)

// NewOperationalModes composes the OperationalModes of a subscriber.
//
// TSSC is only offered for protocol versions below TSSCMaxProtocolVersion and without a UDP data channel, because
// datagrams might be lost or reordered and break the compression sequence.
func NewOperationalModes(version uint8, compressPayload, compressMetadata, compressCache, udpDataChannel bool) OperationalModes {
	modes := OperationalModes(version)&VersionMask | OperationalModes(UTF8)

	if compressPayload {
		modes |= CompressPayloadData
		if version < TSSCMaxProtocolVersion && !udpDataChannel {
			modes |= OperationalModes(CompressionTSSC)
		}
	}
	if compressMetadata || compressCache {
		modes |= OperationalModes(CompressionGZip)
	}
	if compressMetadata {
		modes |= CompressMetadata
	}
	if compressCache {
		modes |= CompressSignalIndexCache
	}

	return modes
}

// Version of these OperationalModes.
func (om OperationalModes) Version() uint8 {
	return uint8(om & VersionMask)
}

// Has checks if all flags are set.
func (om OperationalModes) Has(flags OperationalModes) bool {
	return om&flags == flags
}

func (om OperationalModes) String() string {
	return fmt.Sprintf("0x%08X", uint32(om))
}

// DataPacketFlags precede each DataPacket's payload.
type DataPacketFlags uint8

const (
	DataPacketCompact     DataPacketFlags = 0x02
	DataPacketCipherIndex DataPacketFlags = 0x04
	DataPacketCompressed  DataPacketFlags = 0x08
	DataPacketCacheIndex  DataPacketFlags = 0x10
	DataPacketNoFlags     DataPacketFlags = 0x00
)

// CompactFlags are the first byte of a compact measurement record.
type CompactFlags uint8

const (
	CompactWideIndex      CompactFlags = 0x01
	CompactTimeIncluded   CompactFlags = 0x02
	CompactBaseTimeOffset CompactFlags = 0x04
	CompactTimeIndex      CompactFlags = 0x08

	compactReservedMask CompactFlags = 0xF0
)
