// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package endian

import (
	"errors"
	"fmt"
)

// ErrShortBuffer is wrapped by every Reader error caused by a buffer too short for the requested read.
var ErrShortBuffer = errors.New("buffer too short")

// Reader is a bounds-checked cursor over a byte buffer holding network byte ordered values.
type Reader struct {
	buffer []byte
	offset int
}

// NewReader for a buffer, starting at offset zero.
func NewReader(buffer []byte) *Reader {
	return &Reader{buffer: buffer}
}

// Offset of the next read.
func (r *Reader) Offset() int {
	return r.offset
}

// SetOffset moves the cursor. Offsets outside the buffer are clamped to its bounds.
func (r *Reader) SetOffset(offset int) {
	switch {
	case offset < 0:
		r.offset = 0
	case offset > len(r.buffer):
		r.offset = len(r.buffer)
	default:
		r.offset = offset
	}
}

// Len returns the amount of unread bytes.
func (r *Reader) Len() int {
	return len(r.buffer) - r.offset
}

// Remaining returns the unread part of the buffer without advancing the cursor.
func (r *Reader) Remaining() []byte {
	return r.buffer[r.offset:]
}

// Require checks if at least n bytes are left.
func (r *Reader) Require(n int) error {
	if n < 0 || r.Len() < n {
		return fmt.Errorf("%w: %d bytes requested at offset %d, %d bytes available", ErrShortBuffer, n, r.offset, r.Len())
	}
	return nil
}

// Read the next T from a Reader and advance its cursor.
func Read[T Fixed](r *Reader) (v T, err error) {
	size := Size[T]()
	if err = r.Require(size); err != nil {
		return
	}

	v = ToBigEndian[T](r.buffer, r.offset)
	r.offset += size
	return
}

// Bytes returns the next n bytes and advances the cursor. The returned slice shares the Reader's buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.Require(n); err != nil {
		return nil, err
	}

	b := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *Reader) Uint8() (uint8, error)     { return Read[uint8](r) }
func (r *Reader) Uint16() (uint16, error)   { return Read[uint16](r) }
func (r *Reader) Int32() (int32, error)     { return Read[int32](r) }
func (r *Reader) Uint32() (uint32, error)   { return Read[uint32](r) }
func (r *Reader) Int64() (int64, error)     { return Read[int64](r) }
func (r *Reader) Uint64() (uint64, error)   { return Read[uint64](r) }
func (r *Reader) Float32() (float32, error) { return Read[float32](r) }
