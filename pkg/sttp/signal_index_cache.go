// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sttp

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sttp/cppapi-sub001/pkg/endian"
)

// ErrCacheTruncated is returned by SignalIndexCache.Decode for a buffer shorter than its declared lengths.
var ErrCacheTruncated = errors.New("signal index cache truncated")

// SignalIndexCache maps the runtime indices of a session to their signal IDs and measurement keys.
//
// A SignalIndexCache is filled once, either by AddMeasurementKey or Decode, and is only read afterwards. A new
// cache replaces the old one as a whole. Thus, a SignalIndexCache might be shared between goroutines after it was
// populated.
type SignalIndexCache struct {
	// reference maps a runtime index to its position within the three parallel lists.
	reference map[int32]int

	signalIDList []uuid.UUID
	sourceList   []string
	idList       []uint64

	// signalIDCache is the reverse mapping of a signal ID to its runtime index.
	signalIDCache map[uuid.UUID]int32

	maxSignalIndex int32
}

// NewSignalIndexCache creates an empty SignalIndexCache.
func NewSignalIndexCache() *SignalIndexCache {
	return &SignalIndexCache{
		reference:     make(map[int32]int),
		signalIDCache: make(map[uuid.UUID]int32),
	}
}

// AddMeasurementKey registers a measurement key for a runtime index. A known runtime index is overwritten.
func (sic *SignalIndexCache) AddMeasurementKey(signalIndex int32, signalID uuid.UUID, source string, id uint64) {
	sic.reference[signalIndex] = len(sic.signalIDList)

	sic.signalIDList = append(sic.signalIDList, signalID)
	sic.sourceList = append(sic.sourceList, source)
	sic.idList = append(sic.idList, id)

	sic.signalIDCache[signalID] = signalIndex

	if signalIndex > sic.maxSignalIndex {
		sic.maxSignalIndex = signalIndex
	}
}

// Contains checks if a runtime index is known.
func (sic *SignalIndexCache) Contains(signalIndex int32) bool {
	_, ok := sic.reference[signalIndex]
	return ok
}

// Count of known runtime indices.
func (sic *SignalIndexCache) Count() int {
	return len(sic.reference)
}

// MaxSignalIndex is the largest known runtime index.
func (sic *SignalIndexCache) MaxSignalIndex() int32 {
	return sic.maxSignalIndex
}

// SignalIndices returns all known runtime indices in no specific order.
func (sic *SignalIndexCache) SignalIndices() []int32 {
	indices := make([]int32, 0, len(sic.reference))
	for signalIndex := range sic.reference {
		indices = append(indices, signalIndex)
	}
	return indices
}

// GetSignalID returns the signal ID of a runtime index or uuid.Nil.
func (sic *SignalIndexCache) GetSignalID(signalIndex int32) uuid.UUID {
	if pos, ok := sic.reference[signalIndex]; ok {
		return sic.signalIDList[pos]
	}
	return uuid.Nil
}

// GetSource returns the measurement key's source of a runtime index or an empty string.
func (sic *SignalIndexCache) GetSource(signalIndex int32) string {
	if pos, ok := sic.reference[signalIndex]; ok {
		return sic.sourceList[pos]
	}
	return ""
}

// GetID returns the measurement key's ID of a runtime index or zero.
func (sic *SignalIndexCache) GetID(signalIndex int32) uint64 {
	if pos, ok := sic.reference[signalIndex]; ok {
		return sic.idList[pos]
	}
	return 0
}

// GetMeasurementKey returns the signal ID and the measurement key of a runtime index.
func (sic *SignalIndexCache) GetMeasurementKey(signalIndex int32) (signalID uuid.UUID, source string, id uint64, ok bool) {
	pos, ok := sic.reference[signalIndex]
	if !ok {
		return
	}

	signalID = sic.signalIDList[pos]
	source = sic.sourceList[pos]
	id = sic.idList[pos]
	return
}

// GetSignalIndex returns the runtime index of a signal ID.
func (sic *SignalIndexCache) GetSignalIndex(signalID uuid.UUID) (signalIndex int32, ok bool) {
	signalIndex, ok = sic.signalIDCache[signalID]
	return
}

// isLive checks if an entry's signal ID still refers back to its runtime index.
func (sic *SignalIndexCache) isLive(signalIndex int32, pos int) bool {
	reverse, ok := sic.signalIDCache[sic.signalIDList[pos]]
	return ok && reverse == signalIndex
}

// Decode a binary SignalIndexCache into this one and return the subscriber ID.
//
// The layout is: total length (u32), subscriber ID (16 bytes), reference count (u32), the references, and the
// unauthorized signal count (u32). Each reference is: runtime index (i32), signal ID (16 bytes), source length
// (u32), source (UTF-8), and ID (u64).
func (sic *SignalIndexCache) Decode(buffer []byte) (subscriberID uuid.UUID, err error) {
	r := endian.NewReader(buffer)

	totalLength, err := r.Uint32()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrCacheTruncated, err)
		return
	}
	if int(totalLength) > len(buffer) {
		err = fmt.Errorf("%w: declared length %d exceeds buffer length %d", ErrCacheTruncated, totalLength, len(buffer))
		return
	}
	r = endian.NewReader(buffer[:totalLength])
	r.SetOffset(endian.Size[uint32]())

	subscriberID, err = readGUID(r)
	if err != nil {
		err = fmt.Errorf("%w: subscriber ID: %v", ErrCacheTruncated, err)
		return
	}

	referenceCount, err := r.Uint32()
	if err != nil {
		err = fmt.Errorf("%w: reference count: %v", ErrCacheTruncated, err)
		return
	}

	for i := uint32(0); i < referenceCount; i++ {
		signalIndex, signalID, source, id, refErr := decodeReference(r)
		if refErr != nil {
			err = fmt.Errorf("%w: reference %d of %d: %v", ErrCacheTruncated, i, referenceCount, refErr)
			return
		}

		sic.AddMeasurementKey(signalIndex, signalID, source, id)
	}

	// The unauthorized signal IDs are not used by a subscriber; only their count is checked.
	if _, err = r.Uint32(); err != nil {
		err = fmt.Errorf("%w: unauthorized count: %v", ErrCacheTruncated, err)
	}
	return
}

func decodeReference(r *endian.Reader) (signalIndex int32, signalID uuid.UUID, source string, id uint64, err error) {
	if signalIndex, err = r.Int32(); err != nil {
		return
	}
	if signalID, err = readGUID(r); err != nil {
		return
	}

	sourceLength, err := r.Uint32()
	if err != nil {
		return
	}
	sourceBytes, err := r.Bytes(int(sourceLength))
	if err != nil {
		return
	}
	source = string(sourceBytes)

	id, err = r.Uint64()
	return
}

// Encode this SignalIndexCache for a subscriber ID and append it to the buffer.
//
// Only live entries are written: a runtime index whose signal ID was later registered for another runtime index is
// skipped.
func (sic *SignalIndexCache) Encode(subscriberID uuid.UUID, buffer *[]byte) {
	start := len(*buffer)

	// Placeholder for the total length, patched below.
	endian.WriteBigEndianBytes(buffer, uint32(0))

	*buffer = append(*buffer, subscriberID[:]...)

	var referenceCount uint32
	for signalIndex, pos := range sic.reference {
		if sic.isLive(signalIndex, pos) {
			referenceCount++
		}
	}
	endian.WriteBigEndianBytes(buffer, referenceCount)

	for signalIndex, pos := range sic.reference {
		if !sic.isLive(signalIndex, pos) {
			continue
		}

		source := sic.sourceList[pos]

		endian.WriteBigEndianBytes(buffer, signalIndex)
		*buffer = append(*buffer, sic.signalIDList[pos][:]...)
		endian.WriteBigEndianBytes(buffer, uint32(len(source)))
		*buffer = append(*buffer, source...)
		endian.WriteBigEndianBytes(buffer, sic.idList[pos])
	}

	// No unauthorized signal IDs are tracked.
	endian.WriteBigEndianBytes(buffer, uint32(0))

	var length []byte
	endian.WriteBigEndianBytes(&length, uint32(len(*buffer)-start))
	copy((*buffer)[start:], length)
}

func readGUID(r *endian.Reader) (id uuid.UUID, err error) {
	b, err := r.Bytes(len(id))
	if err != nil {
		return
	}
	copy(id[:], b)
	return
}
