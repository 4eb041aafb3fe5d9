package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeq(t *testing.T) {
	for s := byte(0xff); s >= byte(0xf0); s-- {
		require.False(t, Seq(s).IsValid())
		require.Equal(t, Seq(1), Seq(s).Next())
	}
	for s := byte(1); s < byte(0xf0); s++ {
		require.True(t, Seq(s).IsValid())
		if s+1 < 0xf0 {
			require.Equal(t, Seq(s+1), Seq(s).Next())
		} else {
			require.Equal(t, Seq(1), Seq(s).Next())
		}
	}
	require.False(t, Seq(0).IsValid())
	require.True(t, NewSeq().IsValid())
}

func TestFrame(t *testing.T) {
	testCases := []struct {
		name   string
		frame  Frame
		expect []byte
	}{
		{"no data", Frame{Seq: 1, Code: 2}, []byte{1, 2, 0, 0}},
		{"small data", Frame{Seq: 1, Code: 2, Data: []byte{9}}, []byte{1, 2, 1, 0, 9}},
		{"large data", Frame{Seq: 3, Code: 4, Data: make([]byte, 0x102)}, append([]byte{3, 4, 2, 1}, make([]byte, 0x102)...)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, tc.frame.Bytes())
			var buf bytes.Buffer
			n, err := tc.frame.WriteTo(&buf)
			require.NoError(t, err)
			require.Equal(t, tc.expect, buf.Bytes())
			require.EqualValues(t, len(tc.expect), n)

			padded := append(append([]byte{}, tc.expect...), 0xff, 0xff)
			f, err := Decode(padded)
			require.NoError(t, err)
			require.Equal(t, tc.frame.Seq, f.Seq)
			require.Equal(t, tc.frame.Code, f.Code)
			require.Len(t, f.Data, len(tc.frame.Data))
		})
	}
}

func TestEncodeShort(t *testing.T) {
	f := Frame{Seq: 1, Data: make([]byte, 8)}
	_, err := f.Encode(make([]byte, 11))
	require.True(t, errors.Is(err, ErrShort))
	n, err := f.Encode(make([]byte, 12))
	require.NoError(t, err)
	require.Equal(t, 12, n)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	require.Equal(t, ErrShort, err)
	_, err = Decode([]byte{0xff, 0xff, 0xff, 0xff})
	require.Equal(t, ErrNoFrame, err)
	_, err = Decode(make([]byte, 16))
	require.Equal(t, ErrNoFrame, err)
	_, err = Decode([]byte{1, 0, 5, 0, 1})
	require.True(t, errors.Is(err, ErrShort))
}

func TestTracker(t *testing.T) {
	var tr Tracker
	require.NoError(t, tr.Check(5))
	require.NoError(t, tr.Check(6))
	require.Equal(t, ErrStale, tr.Check(6))
	err := tr.Check(9)
	var gap *GapError
	require.True(t, errors.As(err, &gap))
	require.Equal(t, Seq(7), gap.Expected)
	require.NoError(t, tr.Check(10))
	require.Equal(t, ErrNoFrame, tr.Check(0))
	require.EqualValues(t, 4, tr.Received)
	require.EqualValues(t, 1, tr.Stale)
	require.EqualValues(t, 1, tr.Gaps)

	tr.Reset()
	require.NoError(t, tr.Check(0xef))
	require.NoError(t, tr.Check(1))
}

func TestSender(t *testing.T) {
	s := &Sender{seq: 0xef}
	buf := make([]byte, 16)
	var tr Tracker
	for i := 0; i < 3; i++ {
		n, err := s.Encode(buf, 7, []byte{byte(i)})
		require.NoError(t, err)
		require.Equal(t, 5, n)
		f, err := Decode(buf)
		require.NoError(t, err)
		require.NoError(t, tr.Check(f.Seq))
		require.Equal(t, []byte{byte(i)}, f.Data)
	}
	_, err := s.Encode(buf[:2], 0, nil)
	require.Error(t, err)
	require.Equal(t, Seq(3), s.seq)
}
