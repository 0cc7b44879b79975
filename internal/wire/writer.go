// Package wire provides typed little-endian encoding over in-memory byte
// buffers, shared by the message and command codecs.
package wire

import (
	"bytes"
	"encoding/binary"
)

// Writer accumulates a little-endian encoded byte stream.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty Writer with the given initial capacity hint.
func NewWriter(capacity int) *Writer {
	w := &Writer{}
	w.buf.Grow(capacity)
	return w
}

// WriteI32 writes a signed 32-bit integer.
func (w *Writer) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

// WriteU32 writes an unsigned 32-bit integer.
func (w *Writer) WriteU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf.Write(tmp[:])
}

// WriteI64 writes a signed 64-bit integer.
func (w *Writer) WriteI64(v int64) {
	w.WriteU64(uint64(v))
}

// WriteU64 writes an unsigned 64-bit integer.
func (w *Writer) WriteU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf.Write(tmp[:])
}

// WriteBool writes a single byte, 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// WriteString writes a UTF-8 string prefixed by its byte length as a u32.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteBytes writes raw bytes with no length prefix.
func (w *Writer) WriteBytes(b []byte) {
	w.buf.Write(b)
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Bytes returns the accumulated byte slice. The slice is shared with the
// Writer's internal buffer and must not be retained past further writes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// PatchU32At overwrites the four bytes at the given byte offset with v,
// little-endian. Used to back-patch a frame length header after the body
// has already been written.
func (w *Writer) PatchU32At(offset int, v uint32) {
	b := w.buf.Bytes()
	binary.LittleEndian.PutUint32(b[offset:offset+4], v)
}
