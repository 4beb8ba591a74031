package rtp

import "encoding/binary"

// Uint32Array is a read-only, zero-copy view of consecutive big-endian 32-bit
// words inside a byte slice. It is used for CSRC lists and extension values.
//
// The view never reaches past the end of the underlying buffer: a requested
// count that does not fit is clamped to the number of whole words available.
type Uint32Array struct {
	buf []byte
}

// NewUint32Array returns a view of count words starting at offset in buf.
// Out-of-range offsets and counts are clamped, never rejected.
func NewUint32Array(buf []byte, offset, count int) Uint32Array {
	if offset < 0 || count <= 0 || offset >= len(buf) {
		return Uint32Array{}
	}
	avail := (len(buf) - offset) / 4
	if count > avail {
		count = avail
	}
	return Uint32Array{buf: buf[offset : offset+count*4 : offset+count*4]}
}

// Len returns the number of words in the view.
func (a Uint32Array) Len() int {
	return len(a.buf) / 4
}

// At returns the i-th word. It returns 0 when i is out of range.
func (a Uint32Array) At(i int) uint32 {
	if i < 0 || i >= a.Len() {
		return 0
	}
	return binary.BigEndian.Uint32(a.buf[i*4:])
}

// Values copies the words into a new slice.
func (a Uint32Array) Values() []uint32 {
	n := a.Len()
	if n == 0 {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(a.buf[i*4:])
	}
	return out
}

// Bytes returns the raw bytes backing the view.
func (a Uint32Array) Bytes() []byte {
	return a.buf
}
