// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tssc

// The 7-bit encoding writes seven bits per byte, least significant group first, and sets the high bit if another
// byte follows. The last possible byte of a value carries all eight bits, e.g., the fifth byte of an uint32.

func write7BitUint32(data []byte, pos int, value uint32) int {
	for i := 0; i < 4; i++ {
		if value < 0x80 {
			data[pos] = byte(value)
			return pos + 1
		}
		data[pos] = byte(value | 0x80)
		pos++
		value >>= 7
	}

	data[pos] = byte(value)
	return pos + 1
}

func write7BitUint64(data []byte, pos int, value uint64) int {
	for i := 0; i < 8; i++ {
		if value < 0x80 {
			data[pos] = byte(value)
			return pos + 1
		}
		data[pos] = byte(value | 0x80)
		pos++
		value >>= 7
	}

	data[pos] = byte(value)
	return pos + 1
}

// read7BitUint32 uses next to fetch the following byte.
func read7BitUint32(next func() byte) (value uint32) {
	for i := 0; i < 4; i++ {
		b := next()
		value |= uint32(b&0x7F) << (7 * i)
		if b < 0x80 {
			return
		}
	}

	value |= uint32(next()) << 28
	return
}

func read7BitUint64(next func() byte) (value uint64) {
	for i := 0; i < 8; i++ {
		b := next()
		value |= uint64(b&0x7F) << (7 * i)
		if b < 0x80 {
			return
		}
	}

	value |= uint64(next()) << 56
	return
}
