// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tssc

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrVersion is returned for a packet with an unknown version byte.
	ErrVersion = errors.New("unsupported TSSC version")

	// ErrOutOfSequence is returned for a packet whose sequence number is not the expected one. The Decoder's state is
	// not altered by such a packet.
	ErrOutOfSequence = errors.New("TSSC packet out of sequence")

	// ErrCorrupt is returned for a stream which cannot be decoded.
	ErrCorrupt = errors.New("corrupt TSSC stream")
)

// Decoder decompresses TSSC packets into Points.
type Decoder struct {
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

	bitStreamCacheBitCount int
	bitStreamCache         uint32

	sequenceNumber uint16

	// err is set by the byte fetching methods if the stream ends prematurely.
	err error
}

// NewDecoder creates a Decoder expecting a packet with sequence number zero.
func NewDecoder() *Decoder {
	d := &Decoder{}
	d.ResetSequenceNumber()
	return d
}

// ResetSequenceNumber resets the compression state; the next packet must start a new compression context.
func (d *Decoder) ResetSequenceNumber() {
	d.points = make(map[int32]*pointMetadata)
	d.lastPoint = d.newPoint()

	d.prevTimeDelta1 = math.MaxInt64
	d.prevTimeDelta2 = math.MaxInt64
	d.prevTimeDelta3 = math.MaxInt64
	d.prevTimeDelta4 = math.MaxInt64
	d.prevTimestamp1 = 0
	d.prevTimestamp2 = 0

	d.sequenceNumber = 0
	d.clearBitStream()
}

// SequenceNumber of the next expected packet.
func (d *Decoder) SequenceNumber() uint16 {
	return d.sequenceNumber
}

func (d *Decoder) newPoint() *pointMetadata {
	return newPointMetadata(nil, d.readBit, d.readBits5)
}

func (d *Decoder) clearBitStream() {
	d.bitStreamCacheBitCount = 0
	d.bitStreamCache = 0
}

// BeginPacket checks a packet's header and prepares its stream for TryGetMeasurement.
//
// A sequence number of zero resets the Decoder. Any other sequence number must match SequenceNumber; otherwise
// ErrOutOfSequence is returned and the packet must be dropped. After a successful call, the expected sequence number
// is advanced, skipping zero.
func (d *Decoder) BeginPacket(packet []byte) error {
	if len(packet) < HeaderSize {
		return fmt.Errorf("%w: packet of %d bytes has no header", ErrCorrupt, len(packet))
	}
	if packet[0] != Version {
		return fmt.Errorf("%w: version %d, expected %d", ErrVersion, packet[0], Version)
	}

	sequenceNumber := uint16(packet[1])<<8 | uint16(packet[2])
	if sequenceNumber == 0 && d.sequenceNumber > 0 {
		d.ResetSequenceNumber()
	}
	if sequenceNumber != d.sequenceNumber {
		return fmt.Errorf("%w: expected %d, received %d", ErrOutOfSequence, d.sequenceNumber, sequenceNumber)
	}

	d.SetBuffer(packet[HeaderSize:])

	d.sequenceNumber++
	if d.sequenceNumber == 0 {
		d.sequenceNumber = 1
	}
	return nil
}

// SetBuffer to be read by the following TryGetMeasurement calls.
func (d *Decoder) SetBuffer(data []byte) {
	d.clearBitStream()
	d.data = data
	d.position = 0
	d.lastPosition = len(data)
	d.err = nil
}

func (d *Decoder) nextByte() byte {
	if d.position >= d.lastPosition {
		if d.err == nil {
			d.err = fmt.Errorf("%w: read beyond the end of %d bytes", ErrCorrupt, d.lastPosition)
		}
		return 0
	}

	b := d.data[d.position]
	d.position++
	return b
}

func (d *Decoder) readBit() uint32 {
	if d.bitStreamCacheBitCount == 0 {
		d.bitStreamCacheBitCount = 8
		d.bitStreamCache = uint32(d.nextByte())
	}

	d.bitStreamCacheBitCount--
	return (d.bitStreamCache >> uint(d.bitStreamCacheBitCount)) & 1
}

func (d *Decoder) readBits4() uint32 {
	return d.readBit()<<3 | d.readBit()<<2 | d.readBit()<<1 | d.readBit()
}

func (d *Decoder) readBits5() uint32 {
	return d.readBit()<<4 | d.readBit()<<3 | d.readBit()<<2 | d.readBit()<<1 | d.readBit()
}

// readBytes reads n bytes as a little endian number and shifts it left.
func (d *Decoder) readBytes(shift uint, n int) (v uint32) {
	for i := 0; i < n; i++ {
		v |= uint32(d.nextByte()) << (shift + uint(8*i))
	}
	return
}

// TryGetMeasurement decodes the next Point of the current packet. At the end of the packet, ok is false.
func (d *Decoder) TryGetMeasurement() (p Point, ok bool, err error) {
	if d.position == d.lastPosition && d.bitStreamCacheBitCount == 0 {
		d.clearBitStream()
		return
	}

	code := d.lastPoint.readCode()
	if d.err != nil {
		err = d.err
		return
	}

	if code == endOfStream {
		d.clearBitStream()
		return
	}

	if code <= pointIDXOR32 {
		d.decodePointID(code)
		code = d.lastPoint.readCode()

		if code < timeDelta1Forward {
			err = fmt.Errorf("%w: expected code >= %d, received %d at position %d", ErrCorrupt, timeDelta1Forward, code, d.position)
		}
	}
	if err == nil && d.err != nil {
		err = d.err
	}
	if err != nil {
		return
	}

	p.ID = d.lastPoint.prevNextPointID1

	nextPoint, known := d.points[p.ID]
	if !known {
		nextPoint = d.newPoint()
		nextPoint.prevNextPointID1 = p.ID + 1
		d.points[p.ID] = nextPoint
	}

	if code <= timeXOR7Bit {
		p.Timestamp = d.decodeTimestamp(code)
		code = d.lastPoint.readCode()

		if code < quality2 {
			err = fmt.Errorf("%w: expected code >= %d, received %d at position %d", ErrCorrupt, quality2, code, d.position)
		}
	} else {
		p.Timestamp = d.prevTimestamp1
	}
	if err == nil && d.err != nil {
		err = d.err
	}
	if err != nil {
		return
	}

	if code <= quality7Bit32 {
		p.Quality = d.decodeQuality(code, nextPoint)
		code = d.lastPoint.readCode()

		if code < value1 {
			err = fmt.Errorf("%w: expected code >= %d, received %d at position %d", ErrCorrupt, value1, code, d.position)
		}
	} else {
		p.Quality = nextPoint.prevQuality1
	}
	if err == nil && d.err != nil {
		err = d.err
	}
	if err != nil {
		return
	}

	var valueRaw uint32

	switch code {
	case value1:
		valueRaw = nextPoint.prevValue1

	case value2:
		valueRaw = nextPoint.prevValue2
		nextPoint.prevValue2 = nextPoint.prevValue1
		nextPoint.prevValue1 = valueRaw

	case value3:
		valueRaw = nextPoint.prevValue3
		nextPoint.prevValue3 = nextPoint.prevValue2
		nextPoint.prevValue2 = nextPoint.prevValue1
		nextPoint.prevValue1 = valueRaw

	case valueZero:
		valueRaw = 0
		nextPoint.prevValue3 = nextPoint.prevValue2
		nextPoint.prevValue2 = nextPoint.prevValue1
		nextPoint.prevValue1 = 0

	default:
		valueRaw = d.decodeValueChange(code) ^ nextPoint.prevValue1
		nextPoint.prevValue3 = nextPoint.prevValue2
		nextPoint.prevValue2 = nextPoint.prevValue1
		nextPoint.prevValue1 = valueRaw
	}
	if d.err != nil {
		err = d.err
		return
	}

	p.Value = math.Float32frombits(valueRaw)
	d.lastPoint = nextPoint

	ok = true
	return
}

func (d *Decoder) decodeValueChange(code byte) uint32 {
	switch code {
	case valueXOR4:
		return d.readBits4()
	case valueXOR8:
		return d.readBytes(0, 1)
	case valueXOR12:
		return d.readBits4() | d.readBytes(4, 1)
	case valueXOR16:
		return d.readBytes(0, 2)
	case valueXOR20:
		return d.readBits4() | d.readBytes(4, 2)
	case valueXOR24:
		return d.readBytes(0, 3)
	case valueXOR28:
		return d.readBits4() | d.readBytes(4, 3)
	default:
		return d.readBytes(0, 4)
	}
}

func (d *Decoder) decodePointID(code byte) {
	var bitsChanged uint32

	switch code {
	case pointIDXOR4:
		bitsChanged = d.readBits4()
	case pointIDXOR8:
		bitsChanged = d.readBytes(0, 1)
	case pointIDXOR12:
		bitsChanged = d.readBits4() | d.readBytes(4, 1)
	case pointIDXOR16:
		bitsChanged = d.readBytes(0, 2)
	case pointIDXOR20:
		bitsChanged = d.readBits4() | d.readBytes(4, 2)
	case pointIDXOR24:
		bitsChanged = d.readBytes(0, 3)
	default:
		bitsChanged = d.readBytes(0, 4)
	}

	d.lastPoint.prevNextPointID1 ^= int32(bitsChanged)
}

func (d *Decoder) decodeTimestamp(code byte) (timestamp int64) {
	switch code {
	case timeDelta1Forward:
		timestamp = d.prevTimestamp1 + d.prevTimeDelta1
	case timeDelta2Forward:
		timestamp = d.prevTimestamp1 + d.prevTimeDelta2
	case timeDelta3Forward:
		timestamp = d.prevTimestamp1 + d.prevTimeDelta3
	case timeDelta4Forward:
		timestamp = d.prevTimestamp1 + d.prevTimeDelta4
	case timeDelta1Reverse:
		timestamp = d.prevTimestamp1 - d.prevTimeDelta1
	case timeDelta2Reverse:
		timestamp = d.prevTimestamp1 - d.prevTimeDelta2
	case timeDelta3Reverse:
		timestamp = d.prevTimestamp1 - d.prevTimeDelta3
	case timeDelta4Reverse:
		timestamp = d.prevTimestamp1 - d.prevTimeDelta4
	case timestamp2:
		timestamp = d.prevTimestamp2
	default:
		timestamp = d.prevTimestamp1 ^ int64(read7BitUint64(d.nextByte))
	}

	d.prevTimeDelta1, d.prevTimeDelta2, d.prevTimeDelta3, d.prevTimeDelta4 = updateTimeDeltas(
		d.prevTimestamp1, timestamp,
		d.prevTimeDelta1, d.prevTimeDelta2, d.prevTimeDelta3, d.prevTimeDelta4)

	d.prevTimestamp2 = d.prevTimestamp1
	d.prevTimestamp1 = timestamp
	return
}

func (d *Decoder) decodeQuality(code byte, point *pointMetadata) (quality uint32) {
	if code == quality2 {
		quality = point.prevQuality2
	} else {
		quality = read7BitUint32(d.nextByte)
	}

	point.prevQuality2 = point.prevQuality1
	point.prevQuality1 = quality
	return
}
