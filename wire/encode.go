package wire

import "encoding/binary"

// AppendVarint appends v in base-128 varint encoding.
func AppendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

func appendTag(dst []byte, num, wireType int) []byte {
	return AppendVarint(dst, uint64(num)<<3|uint64(wireType))
}

// AppendVarintField appends a varint field.
func AppendVarintField(dst []byte, num int, v uint64) []byte {
	dst = appendTag(dst, num, TypeVarint)
	return AppendVarint(dst, v)
}

// AppendBytesField appends a length-delimited field.
func AppendBytesField(dst []byte, num int, data []byte) []byte {
	dst = appendTag(dst, num, TypeBytes)
	dst = AppendVarint(dst, uint64(len(data)))
	return append(dst, data...)
}

// AppendStringField appends a length-delimited field holding a string.
func AppendStringField(dst []byte, num int, s string) []byte {
	return AppendBytesField(dst, num, []byte(s))
}

// AppendFixed32Field appends a fixed32 field in little-endian byte order.
func AppendFixed32Field(dst []byte, num int, v uint32) []byte {
	dst = appendTag(dst, num, TypeFixed32)
	return binary.LittleEndian.AppendUint32(dst, v)
}
