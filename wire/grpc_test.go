package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	payload := []byte("hello grpc")
	framed := Frame(payload)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x0a}, framed[:5])

	got, err := Unframe(framed)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrame_EmptyPayload(t *testing.T) {
	framed := Frame(nil)
	require.Len(t, framed, 5)

	got, err := Unframe(framed)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestUnframe_ShortInput(t *testing.T) {
	_, err := Unframe([]byte{0x00, 0x00, 0x00})
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestUnframe_TruncatedPayload(t *testing.T) {
	framed := Frame([]byte("full payload"))
	_, err := Unframe(framed[:len(framed)-3])
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestUnframe_IgnoresTrailers(t *testing.T) {
	framed := Frame([]byte("data"))
	framed = append(framed, []byte("grpc-status: 0")...)

	got, err := Unframe(framed)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), got)
}

func TestUnframe_RejectsCompressed(t *testing.T) {
	framed := Frame([]byte("data"))
	framed[0] = 0x01

	_, err := Unframe(framed)
	require.ErrorIs(t, err, ErrCompressedFrame)
}
