package hdc

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// DType is a tag from the closed HDC data-type set. The upper nibble encodes
// category, the lower nibble encodes byte size; 0x_F denotes a variable-size
// type. See spec.md section 3.
type DType uint8

const (
	DTypeUint8  DType = 0x01
	DTypeUint16 DType = 0x02
	DTypeUint32 DType = 0x04
	DTypeInt8   DType = 0x11
	DTypeInt16  DType = 0x12
	DTypeInt32  DType = 0x14
	DTypeFloat  DType = 0x24
	DTypeDouble DType = 0x28
	DTypeUTF8   DType = 0xAF
	DTypeBool   DType = 0xB1
	DTypeBlob   DType = 0xBF
	DTypeDType  DType = 0xD1
)

var dtypeNames = map[DType]string{
	DTypeUint8: "UINT8", DTypeUint16: "UINT16", DTypeUint32: "UINT32",
	DTypeInt8: "INT8", DTypeInt16: "INT16", DTypeInt32: "INT32",
	DTypeFloat: "FLOAT", DTypeDouble: "DOUBLE",
	DTypeUTF8: "UTF8", DTypeBool: "BOOL", DTypeBlob: "BLOB", DTypeDType: "DTYPE",
}

func (t DType) String() string {
	if n, ok := dtypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("DType(0x%02x)", uint8(t))
}

// IsDefined reports whether t is one of the closed set of dtype tags.
func (t DType) IsDefined() bool {
	_, ok := dtypeNames[t]
	return ok
}

// IsVariableSize reports whether t has no fixed wire size (UTF8, BLOB).
func (t DType) IsVariableSize() bool {
	return t == DTypeUTF8 || t == DTypeBlob
}

// SizeOf returns the fixed encoded size of t in bytes, or (0, false) if t is
// variable-size or undefined.
func SizeOf(t DType) (int, bool) {
	switch t {
	case DTypeUint8, DTypeInt8, DTypeBool, DTypeDType:
		return 1, true
	case DTypeUint16, DTypeInt16:
		return 2, true
	case DTypeUint32, DTypeInt32, DTypeFloat:
		return 4, true
	case DTypeDouble:
		return 8, true
	default:
		return 0, false
	}
}

// Encode serializes value for dtype t. value must be of the Go type listed
// below for t, or Encode returns an error:
//
//	UINT8/INT8/BOOL/DTYPE -> uint8-compatible (uint8, int8, bool, DType)
//	UINT16/INT16          -> uint16 / int16
//	UINT32/INT32          -> uint32 / int32
//	FLOAT                 -> float32
//	DOUBLE                -> float64
//	UTF8                  -> string
//	BLOB                  -> []byte
func Encode(t DType, value interface{}) ([]byte, error) {
	switch t {
	case DTypeUint8:
		v, ok := value.(uint8)
		if !ok {
			return nil, fmt.Errorf("hdc: encode UINT8: value is %T, not uint8", value)
		}
		return []byte{v}, nil
	case DTypeInt8:
		v, ok := value.(int8)
		if !ok {
			return nil, fmt.Errorf("hdc: encode INT8: value is %T, not int8", value)
		}
		return []byte{byte(v)}, nil
	case DTypeBool:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("hdc: encode BOOL: value is %T, not bool", value)
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case DTypeDType:
		v, ok := value.(DType)
		if !ok {
			return nil, fmt.Errorf("hdc: encode DTYPE: value is %T, not DType", value)
		}
		if !v.IsDefined() {
			return nil, fmt.Errorf("hdc: encode DTYPE: 0x%02x is not a defined tag", uint8(v))
		}
		return []byte{byte(v)}, nil
	case DTypeUint16:
		v, ok := value.(uint16)
		if !ok {
			return nil, fmt.Errorf("hdc: encode UINT16: value is %T, not uint16", value)
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b, nil
	case DTypeInt16:
		v, ok := value.(int16)
		if !ok {
			return nil, fmt.Errorf("hdc: encode INT16: value is %T, not int16", value)
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return b, nil
	case DTypeUint32:
		v, ok := value.(uint32)
		if !ok {
			return nil, fmt.Errorf("hdc: encode UINT32: value is %T, not uint32", value)
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b, nil
	case DTypeInt32:
		v, ok := value.(int32)
		if !ok {
			return nil, fmt.Errorf("hdc: encode INT32: value is %T, not int32", value)
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		return b, nil
	case DTypeFloat:
		v, ok := value.(float32)
		if !ok {
			return nil, fmt.Errorf("hdc: encode FLOAT: value is %T, not float32", value)
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
		return b, nil
	case DTypeDouble:
		v, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("hdc: encode DOUBLE: value is %T, not float64", value)
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		return b, nil
	case DTypeUTF8:
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("hdc: encode UTF8: value is %T, not string", value)
		}
		if !utf8.ValidString(v) {
			return nil, fmt.Errorf("hdc: encode UTF8: value is not valid UTF-8")
		}
		return []byte(v), nil
	case DTypeBlob:
		v, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("hdc: encode BLOB: value is %T, not []byte", value)
		}
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	default:
		return nil, fmt.Errorf("hdc: encode: undefined dtype 0x%02x", uint8(t))
	}
}

// Decode deserializes b as dtype t. For fixed-size t, len(b) must equal
// SizeOf(t) exactly. UTF8 must be strict UTF-8; BOOL must be 0 or 1; DTYPE
// must decode to a defined tag.
func Decode(t DType, b []byte) (interface{}, error) {
	if size, ok := SizeOf(t); ok && len(b) != size {
		return nil, fmt.Errorf("hdc: decode %s: expected %d bytes, got %d", t, size, len(b))
	}
	switch t {
	case DTypeUint8:
		return b[0], nil
	case DTypeInt8:
		return int8(b[0]), nil
	case DTypeBool:
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, fmt.Errorf("hdc: decode BOOL: invalid value 0x%02x", b[0])
		}
	case DTypeDType:
		d := DType(b[0])
		if !d.IsDefined() {
			return nil, fmt.Errorf("hdc: decode DTYPE: 0x%02x is not a defined tag", b[0])
		}
		return d, nil
	case DTypeUint16:
		return binary.LittleEndian.Uint16(b), nil
	case DTypeInt16:
		return int16(binary.LittleEndian.Uint16(b)), nil
	case DTypeUint32:
		return binary.LittleEndian.Uint32(b), nil
	case DTypeInt32:
		return int32(binary.LittleEndian.Uint32(b)), nil
	case DTypeFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	case DTypeDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case DTypeUTF8:
		if !utf8.Valid(b) {
			return nil, fmt.Errorf("hdc: decode UTF8: invalid UTF-8 encoding")
		}
		return string(b), nil
	case DTypeBlob:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	default:
		return nil, fmt.Errorf("hdc: decode: undefined dtype 0x%02x", uint8(t))
	}
}

// ValidatePlacement enforces the payload placement invariant: of the dtypes
// in types, at most one may be variable-size, and if one is, it must be
// last.
func ValidatePlacement(types []DType) error {
	for i, t := range types {
		if t.IsVariableSize() && i != len(types)-1 {
			return fmt.Errorf("hdc: payload placement: variable-size dtype %s at position %d of %d must be last", t, i, len(types))
		}
	}
	return nil
}

// DecodePayload splits buf into one value per dtype in types, per the
// multi-value decode rules in spec.md section 4.2: every type but the last
// must be fixed-size and consumes exactly SizeOf(t) bytes; the last type
// consumes the remainder if variable-size, or SizeOf(t) (and the buffer must
// then be exactly empty) if fixed-size. An empty types list requires buf to
// be empty.
func DecodePayload(buf []byte, types []DType) ([]interface{}, error) {
	if err := ValidatePlacement(types); err != nil {
		return nil, err
	}
	if len(types) == 0 {
		if len(buf) != 0 {
			return nil, fmt.Errorf("hdc: decode_payload: expected void (empty) payload, got %d bytes", len(buf))
		}
		return nil, nil
	}
	values := make([]interface{}, 0, len(types))
	pos := 0
	for i, t := range types {
		isLast := i == len(types)-1
		if !isLast {
			size, ok := SizeOf(t)
			if !ok {
				return nil, fmt.Errorf("hdc: decode_payload: non-last dtype %s at position %d must be fixed-size", t, i)
			}
			if pos+size > len(buf) {
				return nil, fmt.Errorf("hdc: decode_payload: buffer too short for dtype %s at position %d", t, i)
			}
			v, err := Decode(t, buf[pos:pos+size])
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			pos += size
			continue
		}
		if t.IsVariableSize() {
			v, err := Decode(t, buf[pos:])
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			pos = len(buf)
		} else {
			size, _ := SizeOf(t)
			if pos+size != len(buf) {
				return nil, fmt.Errorf("hdc: decode_payload: expected exactly %d remaining bytes for dtype %s, got %d", size, t, len(buf)-pos)
			}
			v, err := Decode(t, buf[pos:pos+size])
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			pos = len(buf)
		}
	}
	return values, nil
}

// EncodePayload concatenates the encoding of each value against its dtype in
// order, enforcing the placement invariant first.
func EncodePayload(types []DType, values []interface{}) ([]byte, error) {
	if err := ValidatePlacement(types); err != nil {
		return nil, err
	}
	if len(types) != len(values) {
		return nil, fmt.Errorf("hdc: encode_payload: %d dtypes but %d values", len(types), len(values))
	}
	out := make([]byte, 0)
	for i, t := range types {
		b, err := Encode(t, values[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
