// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tssc

// Code words of the bit stream. Each measurement is a sequence of an optional point ID change, an optional
// timestamp change, an optional quality change, and a value code, in this order.
const (
	endOfStream byte = 0

	pointIDXOR4  byte = 1
	pointIDXOR8  byte = 2
	pointIDXOR12 byte = 3
	pointIDXOR16 byte = 4
	pointIDXOR20 byte = 5
	pointIDXOR24 byte = 6
	pointIDXOR32 byte = 7

	timeDelta1Forward byte = 8
	timeDelta2Forward byte = 9
	timeDelta3Forward byte = 10
	timeDelta4Forward byte = 11
	timeDelta1Reverse byte = 12
	timeDelta2Reverse byte = 13
	timeDelta3Reverse byte = 14
	timeDelta4Reverse byte = 15
	timestamp2        byte = 16
	timeXOR7Bit       byte = 17

	quality2      byte = 18
	quality7Bit32 byte = 19

	value1     byte = 20
	value2     byte = 21
	value3     byte = 22
	valueZero  byte = 23
	valueXOR4  byte = 24
	valueXOR8  byte = 25
	valueXOR12 byte = 26
	valueXOR16 byte = 27
	valueXOR20 byte = 28
	valueXOR24 byte = 29
	valueXOR28 byte = 30
	valueXOR32 byte = 31

	codeWordCount = 32
)

const (
	bits28 = 0xFFFFFFF
	bits24 = 0xFFFFFF
	bits20 = 0xFFFFF
	bits16 = 0xFFFF
	bits12 = 0xFFF
	bits8  = 0xFF
	bits4  = 0xF
)
