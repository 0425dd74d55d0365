// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package endian converts fixed-width numbers between the network byte order used on the STTP wire and Go values.
//
// ToBigEndian and WriteBigEndianBytes operate on buffers whose length was already checked by the caller. A Reader
// wraps a buffer with a cursor and checks every read against the remaining length instead.
package endian

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Fixed is the set of fixed-width number types which can be transferred in network byte order.
type Fixed interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Size of a Fixed type in bytes.
func Size[T Fixed]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// isFloat reports if T is one of the floating point types; integer division truncates the half to zero.
func isFloat[T Fixed]() bool {
	one := T(1)
	return one/(one+one) != 0
}

// ToBigEndian reads a T in network byte order from buffer, starting at offset.
//
// The buffer must hold at least Size[T]() bytes after offset; otherwise this function panics.
func ToBigEndian[T Fixed](buffer []byte, offset int) T {
	b := buffer[offset:]

	switch Size[T]() {
	case 1:
		return T(b[0])

	case 2:
		return T(binary.BigEndian.Uint16(b))

	case 4:
		u := binary.BigEndian.Uint32(b)
		if isFloat[T]() {
			return T(math.Float32frombits(u))
		}
		return T(u)

	default:
		u := binary.BigEndian.Uint64(b)
		if isFloat[T]() {
			return T(math.Float64frombits(u))
		}
		return T(u)
	}
}

// WriteBigEndianBytes appends value in network byte order to the buffer and returns the amount of written bytes.
func WriteBigEndianBytes[T Fixed](buffer *[]byte, value T) int {
	size := Size[T]()

	var raw uint64
	switch {
	case isFloat[T]() && size == 4:
		raw = uint64(math.Float32bits(float32(value)))
	case isFloat[T]():
		raw = math.Float64bits(float64(value))
	default:
		raw = uint64(value)
	}

	switch size {
	case 1:
		*buffer = append(*buffer, byte(raw))
	case 2:
		*buffer = binary.BigEndian.AppendUint16(*buffer, uint16(raw))
	case 4:
		*buffer = binary.BigEndian.AppendUint32(*buffer, uint32(raw))
	default:
		*buffer = binary.BigEndian.AppendUint64(*buffer, raw)
	}

	return size
}
