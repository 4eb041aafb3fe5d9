package frame

import (
	"errors"
	"fmt"
)

// ErrStale indicates a frame repeating the last sequence, which happens
// when a buffer is read again without a new transfer in between.
var ErrStale = errors.New("stale frame")

// GapError reports frames lost between two received ones.
type GapError struct {
	Expected Seq
	Got      Seq
}

// Error implements error.
func (e *GapError) Error() string {
	return fmt.Sprintf("sequence gap: expected %d, got %d", e.Expected, e.Got)
}

// Tracker checks the sequence of received frames.
type Tracker struct {
	last   Seq
	synced bool

	Received uint64
	Stale    uint64
	Gaps     uint64
}

// Check validates seq against the previous one. The first frame always
// passes; after a gap the tracker resynchronizes to seq.
func (t *Tracker) Check(seq Seq) error {
	if !seq.IsValid() {
		return ErrNoFrame
	}
	if t.synced && seq == t.last {
		t.Stale++
		return ErrStale
	}
	var err error
	if t.synced && seq != t.last.Next() {
		t.Gaps++
		err = &GapError{Expected: t.last.Next(), Got: seq}
	}
	t.last, t.synced = seq, true
	t.Received++
	return err
}

// Reset forgets the previous sequence.
func (t *Tracker) Reset() {
	*t = Tracker{}
}

// Sender assigns consecutive sequence numbers to outgoing frames.
type Sender struct {
	seq Seq
}

// NewSender creates a Sender starting at a random sequence.
func NewSender() *Sender {
	return &Sender{seq: NewSeq()}
}

// Encode writes a frame with the next sequence into buf.
func (s *Sender) Encode(buf []byte, code byte, data []byte) (int, error) {
	f := Frame{Seq: s.seq, Code: code, Data: data}
	n, err := f.Encode(buf)
	if err == nil {
		s.seq = s.seq.Next()
	}
	return n, err
}
