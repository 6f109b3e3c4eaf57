package wire

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_VarintField(t *testing.T) {
	data := AppendVarintField(nil, 1, 300)
	require.Equal(t, []byte{0x08, 0xac, 0x02}, data)

	m := Decode(data)
	v, ok := m.Uint(1)
	require.True(t, ok)
	require.Equal(t, uint64(300), v)

	_, ok = m.Uint(2)
	require.False(t, ok)
}

func TestDecode_NestedMessage(t *testing.T) {
	inner := AppendVarintField(nil, 1, 2)
	inner = AppendStringField(inner, 3, "abc-def")
	data := AppendBytesField(nil, 1, inner)

	m := Decode(data)
	nested := m.Inner(1)
	require.NotNil(t, nested)

	v, ok := nested.Uint(1)
	require.True(t, ok)
	require.Equal(t, uint64(2), v)
	require.Equal(t, "abc-def", nested.String(3))

	require.Nil(t, m.Inner(9))
}

func TestDecode_RepeatedFields(t *testing.T) {
	data := AppendBytesField(nil, 5, []byte("one"))
	data = AppendBytesField(data, 5, []byte("two"))
	data = AppendBytesField(data, 6, AppendVarintField(nil, 1, 42))
	data = AppendBytesField(data, 6, AppendVarintField(nil, 1, 43))

	m := Decode(data)
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, m.Repeated(5))

	inners := m.RepeatedInner(6)
	require.Len(t, inners, 2)
	v0, _ := inners[0].Uint(1)
	v1, _ := inners[1].Uint(1)
	require.Equal(t, uint64(42), v0)
	require.Equal(t, uint64(43), v1)
}

func TestDecode_StopsAtUnknownWireType(t *testing.T) {
	data := AppendVarintField(nil, 1, 7)
	// Field 2 with deprecated group wire type 3, then a field that must not
	// be reached.
	data = append(data, 0x13)
	data = AppendVarintField(data, 3, 9)

	m := Decode(data)
	v, ok := m.Uint(1)
	require.True(t, ok)
	require.Equal(t, uint64(7), v)

	_, ok = m.Uint(3)
	require.False(t, ok)
}

func TestDecode_TruncatedBytesField(t *testing.T) {
	data := AppendVarintField(nil, 1, 7)
	// Field 2 advertises 10 bytes but only 3 follow.
	data = append(data, 0x12, 0x0a, 0xde, 0xad, 0xbe)

	m := Decode(data)
	v, ok := m.Uint(1)
	require.True(t, ok)
	require.Equal(t, uint64(7), v)
	require.Nil(t, m.Bytes(2))
}

func TestDecode_TruncatedVarint(t *testing.T) {
	m := Decode([]byte{0x08, 0xff})
	require.Empty(t, m)
}

func TestDecode_Fixed32LittleEndian(t *testing.T) {
	data := AppendFixed32Field(nil, 3, math.Float32bits(12.5))
	m := Decode(data)

	raw, ok := m.Fixed32(3)
	require.True(t, ok)
	require.Equal(t, []byte{0x00, 0x00, 0x48, 0x41}, raw)
	require.Equal(t, float32(12.5), math.Float32frombits(binary.LittleEndian.Uint32(raw)))
}

func TestDecode_Fixed64(t *testing.T) {
	data := appendTag(nil, 4, TypeFixed64)
	data = binary.LittleEndian.AppendUint64(data, 0x1122334455667788)

	m := Decode(data)
	fields := m[4]
	require.Len(t, fields, 1)
	require.Equal(t, TypeFixed64, fields[0].WireType)
	require.Equal(t, uint64(0x1122334455667788), binary.LittleEndian.Uint64(fields[0].Data))
}

func TestDecode_EmptyInput(t *testing.T) {
	require.Empty(t, Decode(nil))
	require.Empty(t, Decode([]byte{}))
}
