// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tssc

import (
	"math"

	"github.com/sttp/cppapi-sub001/pkg/endian"
)

// Version is the first byte of each TSSC packet.
const Version byte = 85

// HeaderSize is the version byte and the sequence number.
const HeaderSize = 3

// minFreeBytes is the required space for one more measurement in the worst case.
const minFreeBytes = 100

// Point is a single measurement as seen by TSSC: the runtime index, the Ticks, the state flags, and the value.
type Point struct {
	ID        int32
	Timestamp int64
	Quality   uint32
	Value     float32
}

// Encoder compresses Points into TSSC packets.
type Encoder struct {
	data         []byte
	position     int
	lastPosition int

	prevTimestamp1 int64
	prevTimestamp2 int64

	prevTimeDelta1 int64
	prevTimeDelta2 int64
	prevTimeDelta3 int64
	prevTimeDelta4 int64

	lastPoint *pointMetadata
	points    map[int32]*pointMetadata

	bitStreamBufferIndex   int
	bitStreamCacheBitCount int
	bitStreamCache         uint32

	sequenceNumber uint16
}

// NewEncoder creates an Encoder whose next packet starts a new compression context.
func NewEncoder() *Encoder {
	e := &Encoder{}
	e.Reset()
	return e
}

// Reset the compression state. The next packet gets sequence number zero.
func (e *Encoder) Reset() {
	e.points = make(map[int32]*pointMetadata)
	e.lastPoint = e.newPoint()

	e.prevTimeDelta1 = math.MaxInt64
	e.prevTimeDelta2 = math.MaxInt64
	e.prevTimeDelta3 = math.MaxInt64
	e.prevTimeDelta4 = math.MaxInt64
	e.prevTimestamp1 = 0
	e.prevTimestamp2 = 0

	e.sequenceNumber = 0
	e.clearBitStream()
}

// SequenceNumber of the next packet.
func (e *Encoder) SequenceNumber() uint16 {
	return e.sequenceNumber
}

func (e *Encoder) newPoint() *pointMetadata {
	return newPointMetadata(e.writeBits, nil, nil)
}

func (e *Encoder) clearBitStream() {
	e.bitStreamBufferIndex = -1
	e.bitStreamCacheBitCount = 0
	e.bitStreamCache = 0
}

// SetBuffer to be filled by the following TryAddMeasurement calls.
func (e *Encoder) SetBuffer(data []byte) {
	e.clearBitStream()
	e.data = data
	e.position = 0
	e.lastPosition = len(data)
}

// FinishBlock terminates the current buffer and returns the amount of written bytes.
func (e *Encoder) FinishBlock() int {
	e.bitStreamFlush()
	return e.position
}

// TryAddMeasurement appends a Point to the buffer. False is returned if the buffer is too full.
func (e *Encoder) TryAddMeasurement(p Point) bool {
	if e.lastPosition-e.position < minFreeBytes {
		return false
	}

	point, ok := e.points[p.ID]
	if !ok {
		point = e.newPoint()
		point.prevNextPointID1 = p.ID + 1
		e.points[p.ID] = point
	}

	// The code words of this measurement are written with the table of the previous point. Measurements usually
	// arrive in a repeating order, which makes this table a good predictor.
	if e.lastPoint.prevNextPointID1 != p.ID {
		e.writePointIDChange(p.ID)
	}
	if e.prevTimestamp1 != p.Timestamp {
		e.writeTimestampChange(p.Timestamp)
	}
	if point.prevQuality1 != p.Quality {
		e.writeQualityChange(p.Quality, point)
	}

	valueRaw := math.Float32bits(p.Value)

	switch {
	case point.prevValue1 == valueRaw:
		e.lastPoint.writeCode(value1)

	case point.prevValue2 == valueRaw:
		e.lastPoint.writeCode(value2)
		point.prevValue2 = point.prevValue1
		point.prevValue1 = valueRaw

	case point.prevValue3 == valueRaw:
		e.lastPoint.writeCode(value3)
		point.prevValue3 = point.prevValue2
		point.prevValue2 = point.prevValue1
		point.prevValue1 = valueRaw

	case valueRaw == 0:
		e.lastPoint.writeCode(valueZero)
		point.prevValue3 = point.prevValue2
		point.prevValue2 = point.prevValue1
		point.prevValue1 = 0

	default:
		e.writeValueChange(valueRaw^point.prevValue1)
		point.prevValue3 = point.prevValue2
		point.prevValue2 = point.prevValue1
		point.prevValue1 = valueRaw
	}

	e.lastPoint = point
	return true
}

func (e *Encoder) writeBytes(bitsChanged uint32, shift uint, n int) {
	for i := 0; i < n; i++ {
		e.data[e.position] = byte(bitsChanged >> (shift + uint(8*i)))
		e.position++
	}
}

func (e *Encoder) writeValueChange(bitsChanged uint32) {
	switch {
	case bitsChanged <= bits4:
		e.lastPoint.writeCode(valueXOR4)
		e.writeBits(bitsChanged&0xF, 4)
	case bitsChanged <= bits8:
		e.lastPoint.writeCode(valueXOR8)
		e.writeBytes(bitsChanged, 0, 1)
	case bitsChanged <= bits12:
		e.lastPoint.writeCode(valueXOR12)
		e.writeBits(bitsChanged&0xF, 4)
		e.writeBytes(bitsChanged, 4, 1)
	case bitsChanged <= bits16:
		e.lastPoint.writeCode(valueXOR16)
		e.writeBytes(bitsChanged, 0, 2)
	case bitsChanged <= bits20:
		e.lastPoint.writeCode(valueXOR20)
		e.writeBits(bitsChanged&0xF, 4)
		e.writeBytes(bitsChanged, 4, 2)
	case bitsChanged <= bits24:
		e.lastPoint.writeCode(valueXOR24)
		e.writeBytes(bitsChanged, 0, 3)
	case bitsChanged <= bits28:
		e.lastPoint.writeCode(valueXOR28)
		e.writeBits(bitsChanged&0xF, 4)
		e.writeBytes(bitsChanged, 4, 3)
	default:
		e.lastPoint.writeCode(valueXOR32)
		e.writeBytes(bitsChanged, 0, 4)
	}
}

func (e *Encoder) writePointIDChange(id int32) {
	bitsChanged := uint32(id ^ e.lastPoint.prevNextPointID1)

	switch {
	case bitsChanged <= bits4:
		e.lastPoint.writeCode(pointIDXOR4)
		e.writeBits(bitsChanged&0xF, 4)
	case bitsChanged <= bits8:
		e.lastPoint.writeCode(pointIDXOR8)
		e.writeBytes(bitsChanged, 0, 1)
	case bitsChanged <= bits12:
		e.lastPoint.writeCode(pointIDXOR12)
		e.writeBits(bitsChanged&0xF, 4)
		e.writeBytes(bitsChanged, 4, 1)
	case bitsChanged <= bits16:
		e.lastPoint.writeCode(pointIDXOR16)
		e.writeBytes(bitsChanged, 0, 2)
	case bitsChanged <= bits20:
		e.lastPoint.writeCode(pointIDXOR20)
		e.writeBits(bitsChanged&0xF, 4)
		e.writeBytes(bitsChanged, 4, 2)
	case bitsChanged <= bits24:
		e.lastPoint.writeCode(pointIDXOR24)
		e.writeBytes(bitsChanged, 0, 3)
	default:
		e.lastPoint.writeCode(pointIDXOR32)
		e.writeBytes(bitsChanged, 0, 4)
	}

	e.lastPoint.prevNextPointID1 = id
}

func (e *Encoder) writeTimestampChange(timestamp int64) {
	switch timestamp {
	case e.prevTimestamp1 + e.prevTimeDelta1:
		e.lastPoint.writeCode(timeDelta1Forward)
	case e.prevTimestamp1 + e.prevTimeDelta2:
		e.lastPoint.writeCode(timeDelta2Forward)
	case e.prevTimestamp1 + e.prevTimeDelta3:
		e.lastPoint.writeCode(timeDelta3Forward)
	case e.prevTimestamp1 + e.prevTimeDelta4:
		e.lastPoint.writeCode(timeDelta4Forward)
	case e.prevTimestamp1 - e.prevTimeDelta1:
		e.lastPoint.writeCode(timeDelta1Reverse)
	case e.prevTimestamp1 - e.prevTimeDelta2:
		e.lastPoint.writeCode(timeDelta2Reverse)
	case e.prevTimestamp1 - e.prevTimeDelta3:
		e.lastPoint.writeCode(timeDelta3Reverse)
	case e.prevTimestamp1 - e.prevTimeDelta4:
		e.lastPoint.writeCode(timeDelta4Reverse)
	case e.prevTimestamp2:
		e.lastPoint.writeCode(timestamp2)
	default:
		e.lastPoint.writeCode(timeXOR7Bit)
		e.position = write7BitUint64(e.data, e.position, uint64(timestamp^e.prevTimestamp1))
	}

	e.prevTimeDelta1, e.prevTimeDelta2, e.prevTimeDelta3, e.prevTimeDelta4 = updateTimeDeltas(
		e.prevTimestamp1, timestamp,
		e.prevTimeDelta1, e.prevTimeDelta2, e.prevTimeDelta3, e.prevTimeDelta4)

	e.prevTimestamp2 = e.prevTimestamp1
	e.prevTimestamp1 = timestamp
}

// updateTimeDeltas keeps the four smallest distinct deltas between consecutive timestamps in ascending order.
func updateTimeDeltas(prevTimestamp, timestamp, d1, d2, d3, d4 int64) (int64, int64, int64, int64) {
	minDelta := prevTimestamp - timestamp
	if minDelta < 0 {
		minDelta = -minDelta
	}

	if minDelta >= d4 || minDelta == d1 || minDelta == d2 || minDelta == d3 {
		return d1, d2, d3, d4
	}

	switch {
	case minDelta < d1:
		return minDelta, d1, d2, d3
	case minDelta < d2:
		return d1, minDelta, d2, d3
	case minDelta < d3:
		return d1, d2, minDelta, d3
	default:
		return d1, d2, d3, minDelta
	}
}

func (e *Encoder) writeQualityChange(quality uint32, point *pointMetadata) {
	if point.prevQuality2 == quality {
		e.lastPoint.writeCode(quality2)
	} else {
		e.lastPoint.writeCode(quality7Bit32)
		e.position = write7BitUint32(e.data, e.position, quality)
	}

	point.prevQuality2 = point.prevQuality1
	point.prevQuality1 = quality
}

func (e *Encoder) writeBits(code uint32, length int) {
	if e.bitStreamBufferIndex < 0 {
		e.bitStreamBufferIndex = e.position
		e.position++
	}

	e.bitStreamCache = e.bitStreamCache<<uint(length) | code
	e.bitStreamCacheBitCount += length

	if e.bitStreamCacheBitCount > 7 {
		e.bitStreamEnd()
	}
}

func (e *Encoder) bitStreamFlush() {
	if e.bitStreamCacheBitCount > 0 {
		if e.bitStreamBufferIndex < 0 {
			e.bitStreamBufferIndex = e.position
			e.position++
		}

		e.lastPoint.writeCode(endOfStream)

		if e.bitStreamCacheBitCount > 7 {
			e.bitStreamEnd()
		}

		if e.bitStreamCacheBitCount > 0 {
			// Pad the remaining bits to a full byte.
			e.bitStreamCache <<= uint(8 - e.bitStreamCacheBitCount)
			e.bitStreamCacheBitCount = 8
			e.bitStreamEnd()
		}
	}

	e.clearBitStream()
}

func (e *Encoder) bitStreamEnd() {
	for e.bitStreamCacheBitCount > 7 {
		e.data[e.bitStreamBufferIndex] = byte(e.bitStreamCache >> uint(e.bitStreamCacheBitCount-8))
		e.bitStreamCacheBitCount -= 8

		if e.bitStreamCacheBitCount > 0 {
			e.bitStreamBufferIndex = e.position
			e.position++
		} else {
			e.bitStreamBufferIndex = -1
		}
	}

	// Drop the already written bits to keep the cache from overflowing.
	e.bitStreamCache &= 1<<uint(e.bitStreamCacheBitCount) - 1
}

// EncodePacket compresses as many Points as fit into a packet of at most maxPacketSize bytes, including the header.
// It returns the packet and the amount of encoded Points.
func (e *Encoder) EncodePacket(points []Point, maxPacketSize int) (packet []byte, n int) {
	buffer := make([]byte, maxPacketSize)

	e.SetBuffer(buffer[HeaderSize:])
	for _, p := range points {
		if !e.TryAddMeasurement(p) {
			break
		}
		n++
	}
	length := e.FinishBlock()

	packet = buffer[:0]
	endian.WriteBigEndianBytes(&packet, Version)
	endian.WriteBigEndianBytes(&packet, e.sequenceNumber)
	packet = buffer[:HeaderSize+length]

	e.sequenceNumber++
	if e.sequenceNumber == 0 {
		e.sequenceNumber = 1
	}
	return
}
