package replication

import (
	"encoding/binary"
	"math"

	hmath "github.com/Faultbox/hsync/pkg/math"
)

// Writer appends little-endian fields to a byte slice.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer whose buffer starts with room for a header.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, HeaderSize, 4096)}
}

// Bytes returns the written bytes, header space included.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written, header space included.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) U8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) U32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *Writer) I32(v int32)  { w.U32(uint32(v)) }
func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

func (w *Writer) Vec2(v hmath.Vec2) { w.F32(v.X); w.F32(v.Y) }
func (w *Writer) Vec3(v hmath.Vec3) { w.F32(v.X); w.F32(v.Y); w.F32(v.Z) }
func (w *Writer) Vec4(v hmath.Vec4) { w.F32(v.X); w.F32(v.Y); w.F32(v.Z); w.F32(v.W) }
func (w *Writer) Quat(q hmath.Quat) { w.F32(q.X); w.F32(q.Y); w.F32(q.Z); w.F32(q.W) }

// Text writes a u32 length followed by the bytes.
func (w *Writer) Text(s string) {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Blob writes a u32 length followed by the bytes.
func (w *Writer) Blob(b []byte) {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Reader consumes fields written by Writer. The first failure sticks: later
// reads return zero values and Err reports ErrTruncated.
type Reader struct {
	b   []byte
	off int
	err error
}

// NewReader reads from b.
func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Err returns the first read failure.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.b) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.Remaining() {
		r.err = ErrTruncated
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *Reader) Bool() bool {
	p := r.take(1)
	return p != nil && p[0] != 0
}

func (r *Reader) U8() uint8 {
	if p := r.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *Reader) U32() uint32 {
	if p := r.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (r *Reader) I32() int32   { return int32(r.U32()) }
func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

func (r *Reader) Vec2() hmath.Vec2 {
	return hmath.Vec2{X: r.F32(), Y: r.F32()}
}

func (r *Reader) Vec3() hmath.Vec3 {
	return hmath.Vec3{X: r.F32(), Y: r.F32(), Z: r.F32()}
}

func (r *Reader) Vec4() hmath.Vec4 {
	return hmath.Vec4{X: r.F32(), Y: r.F32(), Z: r.F32(), W: r.F32()}
}

func (r *Reader) Quat() hmath.Quat {
	return hmath.Quat{X: r.F32(), Y: r.F32(), Z: r.F32(), W: r.F32()}
}

// Count reads an i32 element count and checks that the remaining bytes can
// hold that many elements of at least elemSize bytes each.
func (r *Reader) Count(elemSize int) int {
	n := int(r.I32())
	if r.err != nil {
		return 0
	}
	if n < 0 || (elemSize > 0 && n > r.Remaining()/elemSize) {
		r.err = ErrTruncated
		return 0
	}
	return n
}

func (r *Reader) Text() string {
	return string(r.take(int(r.U32())))
}

// Blob returns a copy of a length-prefixed byte blob.
func (r *Reader) Blob() []byte {
	p := r.take(int(r.U32()))
	if p == nil {
		return nil
	}
	return append([]byte(nil), p...)
}
