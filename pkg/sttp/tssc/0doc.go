// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package tssc implements the Time-Series Special Compression of STTP data packets.
//
// TSSC is a stateful compression: each measurement is encoded relative to the previous measurement of the same
// point and to the previous timestamps of the stream. Encoder and Decoder therefore have to process every packet in
// the same order. Each packet carries a version byte and a sequence number; sequence number zero starts a new
// compression context.
//
// A single packet is encoded as follows.
//
//	| Version (u8) | Sequence (u16) | compressed stream ... |
//
// The compressed stream interleaves a bit stream of code words with byte aligned payloads.
package tssc
