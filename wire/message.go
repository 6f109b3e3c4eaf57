package wire

// Protobuf wire types.
const (
	TypeVarint  = 0
	TypeFixed64 = 1
	TypeBytes   = 2
	TypeFixed32 = 5
)

// Field is a single decoded wire-format value. Varint holds the value for
// TypeVarint fields; Data holds the payload for length-delimited and fixed
// width fields.
type Field struct {
	WireType int
	Varint   uint64
	Data     []byte
}

// Message maps field numbers to the values decoded for them, in wire order.
type Message map[int][]Field

// Decode parses data as a protobuf message. It never returns an error:
// decoding stops at the first malformed byte or unknown wire type and the
// fields decoded up to that point are returned.
func Decode(data []byte) Message {
	m := make(Message)
	offset := 0
	for offset < len(data) {
		tag, next, ok := decodeVarint(data, offset)
		if !ok {
			break
		}
		offset = next
		num := int(tag >> 3)
		wireType := int(tag & 0x07)

		switch wireType {
		case TypeVarint:
			v, next, ok := decodeVarint(data, offset)
			if !ok {
				return m
			}
			offset = next
			m[num] = append(m[num], Field{WireType: wireType, Varint: v})

		case TypeBytes:
			length, next, ok := decodeVarint(data, offset)
			if !ok {
				return m
			}
			offset = next
			if uint64(len(data)-offset) < length {
				return m
			}
			end := offset + int(length)
			m[num] = append(m[num], Field{WireType: wireType, Data: data[offset:end]})
			offset = end

		case TypeFixed32:
			if len(data)-offset < 4 {
				return m
			}
			m[num] = append(m[num], Field{WireType: wireType, Data: data[offset : offset+4]})
			offset += 4

		case TypeFixed64:
			if len(data)-offset < 8 {
				return m
			}
			m[num] = append(m[num], Field{WireType: wireType, Data: data[offset : offset+8]})
			offset += 8

		default:
			return m
		}
	}
	return m
}

func decodeVarint(data []byte, offset int) (uint64, int, bool) {
	var v uint64
	var shift uint
	for offset < len(data) {
		b := data[offset]
		offset++
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, offset, true
		}
		shift += 7
		if shift >= 64 {
			return 0, offset, false
		}
	}
	return 0, offset, false
}

// Uint returns the first varint value for the field.
func (m Message) Uint(num int) (uint64, bool) {
	for _, f := range m[num] {
		if f.WireType == TypeVarint {
			return f.Varint, true
		}
	}
	return 0, false
}

// Bytes returns the first length-delimited value for the field, or nil.
func (m Message) Bytes(num int) []byte {
	for _, f := range m[num] {
		if f.WireType == TypeBytes {
			return f.Data
		}
	}
	return nil
}

// String returns the first length-delimited value decoded as a string.
func (m Message) String(num int) string {
	return string(m.Bytes(num))
}

// Inner decodes the first length-delimited value as a nested message.
// Returns nil when the field is absent.
func (m Message) Inner(num int) Message {
	b := m.Bytes(num)
	if b == nil {
		return nil
	}
	return Decode(b)
}

// Fixed32 returns the raw little-endian bytes of the first fixed32 value.
func (m Message) Fixed32(num int) ([]byte, bool) {
	for _, f := range m[num] {
		if f.WireType == TypeFixed32 {
			return f.Data, true
		}
	}
	return nil, false
}

// Repeated returns every length-delimited value for the field, in order.
func (m Message) Repeated(num int) [][]byte {
	var out [][]byte
	for _, f := range m[num] {
		if f.WireType == TypeBytes {
			out = append(out, f.Data)
		}
	}
	return out
}

// RepeatedInner decodes every length-delimited value for the field as a
// nested message.
func (m Message) RepeatedInner(num int) []Message {
	var out []Message
	for _, b := range m.Repeated(num) {
		out = append(out, Decode(b))
	}
	return out
}
