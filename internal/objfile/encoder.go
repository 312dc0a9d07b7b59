package objfile

import (
	"bufio"
	"io"
)

// encoder wraps the destination stream with the format's primitives.
// bufio's error is sticky, so individual puts stay unchecked and the first
// failure surfaces from flush.
type encoder struct {
	w *bufio.Writer
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: bufio.NewWriter(w)}
}

func (e *encoder) byte(b uint8) {
	_ = e.w.WriteByte(b)
}

// long writes a 4-byte little-endian integer.
func (e *encoder) long(v uint32) {
	_ = e.w.WriteByte(byte(v))
	_ = e.w.WriteByte(byte(v >> 8))
	_ = e.w.WriteByte(byte(v >> 16))
	_ = e.w.WriteByte(byte(v >> 24))
}

// str writes a NUL-terminated string.
func (e *encoder) str(s string) {
	_, _ = e.w.WriteString(s)
	_ = e.w.WriteByte(0)
}

func (e *encoder) raw(b []byte) {
	_, _ = e.w.Write(b)
}

func (e *encoder) flush() error {
	return e.w.Flush()
}
