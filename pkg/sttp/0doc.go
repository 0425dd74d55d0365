// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sttp contains the data model and the codecs of the Streaming Telemetry Transport Protocol.
//
// A Measurement is the unit of data exchanged between a publisher and a subscriber. On the wire, measurements are
// identified by a small runtime index which is only valid together with the SignalIndexCache of the current session.
// The CompactCodec reads and writes the default per-measurement record, while the stateful compression is located
// in the tssc subpackage.
//
// The transport itself, framing and connection handling, is implemented in the transport package.
package sttp
