package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// HeaderSize is the number of bytes preceding the payload.
const HeaderSize = 4

var (
	// ErrShort indicates the buffer can't hold the header or the payload.
	ErrShort = errors.New("frame truncated")
	// ErrNoFrame indicates the buffer doesn't start with a valid sequence,
	// e.g. an idle line or a zeroed buffer.
	ErrNoFrame = errors.New("no frame")
)

// Seq is the sequence number of a frame.
type Seq byte

// NewSeq creates a random sequence number.
func NewSeq() Seq {
	return Seq(byte(time.Now().UnixNano())).Next()
}

// Next calculates the next sequence number.
func (s Seq) Next() Seq {
	n := byte(s) + 1
	if n == 0 || n >= 0xf0 {
		n = 1
	}
	return Seq(n)
}

// IsValid checks if it's a valid sequence number. 0 and 0xf0-0xff are
// reserved so a zeroed buffer or an idle line never decodes as a frame.
func (s Seq) IsValid() bool {
	n := byte(s)
	return n > 0 && n < 0xf0
}

// Frame is a payload carried in a transfer buffer:
//
//	[seq] [code] [len lo] [len hi] [data ...]
type Frame struct {
	Seq  Seq
	Code byte
	Data []byte
}

// Size returns the encoded size.
func (f *Frame) Size() int {
	return HeaderSize + len(f.Data)
}

// Encode writes the frame to the start of buf and returns the number of
// bytes written.
func (f *Frame) Encode(buf []byte) (int, error) {
	size := f.Size()
	if len(f.Data) > 0xffff || size > len(buf) {
		return 0, fmt.Errorf("%w: %d bytes into %d", ErrShort, size, len(buf))
	}
	buf[0], buf[1] = byte(f.Seq), f.Code
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(f.Data)))
	copy(buf[HeaderSize:], f.Data)
	return size, nil
}

// Bytes returns encoded bytes.
func (f *Frame) Bytes() []byte {
	b := make([]byte, f.Size())
	f.Encode(b)
	return b
}

// WriteTo writes encoded bytes.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// Decode parses the frame at the start of buf. Data aliases buf.
func Decode(buf []byte) (*Frame, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShort
	}
	f := &Frame{Seq: Seq(buf[0]), Code: buf[1]}
	if !f.Seq.IsValid() {
		return nil, ErrNoFrame
	}
	size := HeaderSize + int(binary.LittleEndian.Uint16(buf[2:]))
	if size > len(buf) {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrShort, size, len(buf))
	}
	f.Data = buf[HeaderSize:size]
	return f, nil
}
