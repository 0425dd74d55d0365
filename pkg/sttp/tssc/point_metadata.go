// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tssc

import (
	"fmt"
	"math"
)

// pointMetadata is the compression state of one point. Besides the point's previous values, it holds the adaptive
// code word table which is used for the code words following a measurement of this point.
type pointMetadata struct {
	prevNextPointID1 int32

	prevQuality1 uint32
	prevQuality2 uint32

	prevValue1 uint32
	prevValue2 uint32
	prevValue3 uint32

	commandStats                [codeWordCount]int
	commandsSentSinceLastChange int

	// mode 1 writes all codes with 5 bits; mode 2, 3, and 4 have one, two, or three short codes for the most
	// frequent code words and prefix all others with zero bits.
	mode                      int
	mode21                    byte
	mode31, mode301           byte
	mode41, mode401, mode4001 byte
	startupMode               int

	writeBits func(code uint32, length int)
	readBit   func() uint32
	readBits5 func() uint32
}

func newPointMetadata(writeBits func(uint32, int), readBit func() uint32, readBits5 func() uint32) *pointMetadata {
	return &pointMetadata{
		mode:     4,
		mode41:   value1,
		mode401:  value2,
		mode4001: value3,

		writeBits: writeBits,
		readBit:   readBit,
		readBits5: readBits5,
	}
}

func (pm *pointMetadata) writeCode(code byte) {
	switch pm.mode {
	case 1:
		pm.writeBits(uint32(code), 5)

	case 2:
		if code == pm.mode21 {
			pm.writeBits(1, 1)
		} else {
			pm.writeBits(uint32(code), 6)
		}

	case 3:
		switch code {
		case pm.mode31:
			pm.writeBits(1, 1)
		case pm.mode301:
			pm.writeBits(1, 2)
		default:
			pm.writeBits(uint32(code), 7)
		}

	case 4:
		switch code {
		case pm.mode41:
			pm.writeBits(1, 1)
		case pm.mode401:
			pm.writeBits(1, 2)
		case pm.mode4001:
			pm.writeBits(1, 3)
		default:
			pm.writeBits(uint32(code), 8)
		}

	default:
		panic(fmt.Sprintf("tssc: invalid code word mode %d", pm.mode))
	}

	pm.updateCodeStatistics(code)
}

func (pm *pointMetadata) readCode() byte {
	var code byte

	switch pm.mode {
	case 1:
		code = byte(pm.readBits5())

	case 2:
		if pm.readBit() == 1 {
			code = pm.mode21
		} else {
			code = byte(pm.readBits5())
		}

	case 3:
		if pm.readBit() == 1 {
			code = pm.mode31
		} else if pm.readBit() == 1 {
			code = pm.mode301
		} else {
			code = byte(pm.readBits5())
		}

	case 4:
		if pm.readBit() == 1 {
			code = pm.mode41
		} else if pm.readBit() == 1 {
			code = pm.mode401
		} else if pm.readBit() == 1 {
			code = pm.mode4001
		} else {
			code = byte(pm.readBits5())
		}

	default:
		panic(fmt.Sprintf("tssc: invalid code word mode %d", pm.mode))
	}

	pm.updateCodeStatistics(code)
	return code
}

func (pm *pointMetadata) updateCodeStatistics(code byte) {
	pm.commandsSentSinceLastChange++
	pm.commandStats[code&(codeWordCount-1)]++

	switch {
	case pm.startupMode == 0 && pm.commandsSentSinceLastChange > 5:
		pm.startupMode++
		pm.adaptCommands()
	case pm.startupMode == 1 && pm.commandsSentSinceLastChange > 20:
		pm.startupMode++
		pm.adaptCommands()
	case pm.startupMode == 2 && pm.commandsSentSinceLastChange > 100:
		pm.adaptCommands()
	}
}

// adaptCommands selects the mode with the shortest encoding of the recently used code words.
func (pm *pointMetadata) adaptCommands() {
	var (
		code1, code2, code3    byte = 0, 1, 2
		count1, count2, count3 int
		total                  int
	)

	for i := range pm.commandStats {
		count := pm.commandStats[i]
		pm.commandStats[i] = 0
		total += count

		if count <= count3 {
			continue
		}

		switch {
		case count > count1:
			code3, count3 = code2, count2
			code2, count2 = code1, count1
			code1, count1 = byte(i), count
		case count > count2:
			code3, count3 = code2, count2
			code2, count2 = byte(i), count
		default:
			code3, count3 = byte(i), count
		}
	}

	mode1Size := total * 5
	mode2Size := count1 + (total-count1)*6
	mode3Size := count1 + count2*2 + (total-count1-count2)*7
	mode4Size := count1 + count2*2 + count3*3 + (total-count1-count2-count3)*8

	minSize := math.MaxInt
	for _, size := range []int{mode1Size, mode2Size, mode3Size, mode4Size} {
		if size < minSize {
			minSize = size
		}
	}

	switch minSize {
	case mode1Size:
		pm.mode = 1
	case mode2Size:
		pm.mode = 2
		pm.mode21 = code1
	case mode3Size:
		pm.mode = 3
		pm.mode31 = code1
		pm.mode301 = code2
	default:
		pm.mode = 4
		pm.mode41 = code1
		pm.mode401 = code2
		pm.mode4001 = code3
	}

	pm.commandsSentSinceLastChange = 0
}
