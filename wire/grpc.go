package wire

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrShortFrame is returned when a gRPC data frame is truncated.
	ErrShortFrame = errors.New("grpc frame too short")

	// ErrCompressedFrame is returned for frames with the compression flag
	// set. Requests are always sent uncompressed, so no response should
	// come back compressed either.
	ErrCompressedFrame = errors.New("grpc frame is compressed")
)

// Frame wraps payload in an uncompressed gRPC data frame: a zero compression
// flag followed by the big-endian 32-bit payload length.
func Frame(payload []byte) []byte {
	out := make([]byte, 5, 5+len(payload))
	binary.BigEndian.PutUint32(out[1:], uint32(len(payload)))
	return append(out, payload...)
}

// Unframe extracts the payload of the first gRPC data frame in data. Any
// trailing bytes, such as a second frame or inline trailers, are ignored.
func Unframe(data []byte) ([]byte, error) {
	if len(data) < 5 {
		return nil, ErrShortFrame
	}
	if data[0] != 0 {
		return nil, ErrCompressedFrame
	}
	length := binary.BigEndian.Uint32(data[1:5])
	if uint32(len(data)-5) < length {
		return nil, ErrShortFrame
	}
	return data[5 : 5+length], nil
}
