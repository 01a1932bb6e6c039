package hdc

import (
	"bytes"
	"reflect"
	"testing"
)

func TestCodecRoundTripFixedSize(t *testing.T) {
	cases := []struct {
		dtype DType
		value interface{}
	}{
		{DTypeUint8, uint8(0xAB)},
		{DTypeInt8, int8(-7)},
		{DTypeUint16, uint16(0xBEEF)},
		{DTypeInt16, int16(-12345)},
		{DTypeUint32, uint32(0xDEADBEEF)},
		{DTypeInt32, int32(-1)},
		{DTypeFloat, float32(3.5)},
		{DTypeDouble, float64(-2.25)},
		{DTypeBool, true},
		{DTypeBool, false},
		{DTypeDType, DTypeUint16},
	}
	for _, c := range cases {
		enc, err := Encode(c.dtype, c.value)
		if err != nil {
			t.Fatalf("Encode(%s, %v): %v", c.dtype, c.value, err)
		}
		dec, err := Decode(c.dtype, enc)
		if err != nil {
			t.Fatalf("Decode(%s, %v): %v", c.dtype, enc, err)
		}
		if !reflect.DeepEqual(dec, c.value) {
			t.Errorf("round trip %s: got %v, want %v", c.dtype, dec, c.value)
		}
	}
}

func TestCodecRoundTripVariableSize(t *testing.T) {
	s, err := Encode(DTypeUTF8, "héllo wörld")
	if err != nil {
		t.Fatal(err)
	}
	v, err := Decode(DTypeUTF8, s)
	if err != nil {
		t.Fatal(err)
	}
	if v != "héllo wörld" {
		t.Errorf("UTF8 round trip: got %q", v)
	}

	empty, err := Encode(DTypeUTF8, "")
	if err != nil || len(empty) != 0 {
		t.Errorf("empty UTF8 should encode to zero bytes, got %v, err %v", empty, err)
	}

	blob, err := Encode(DTypeBlob, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	d, err := Decode(DTypeBlob, blob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d.([]byte), []byte{1, 2, 3}) {
		t.Errorf("BLOB round trip mismatch")
	}
}

func TestDecodeStrictness(t *testing.T) {
	if _, err := Decode(DTypeUint16, []byte{1}); err == nil {
		t.Errorf("expected length-mismatch error")
	}
	if _, err := Decode(DTypeBool, []byte{2}); err == nil {
		t.Errorf("expected invalid BOOL error")
	}
	if _, err := Decode(DTypeUTF8, []byte{0xFF, 0xFE}); err == nil {
		t.Errorf("expected invalid UTF-8 error")
	}
	if _, err := Decode(DTypeDType, []byte{0x99}); err == nil {
		t.Errorf("expected undefined DTYPE error")
	}
}

func TestPlacementInvariant(t *testing.T) {
	if err := ValidatePlacement([]DType{DTypeUint8, DTypeUTF8}); err != nil {
		t.Errorf("trailing variable-size should be accepted: %v", err)
	}
	if err := ValidatePlacement([]DType{DTypeUTF8, DTypeUint8}); err == nil {
		t.Errorf("leading variable-size should be rejected")
	}
	if err := ValidatePlacement([]DType{DTypeBlob, DTypeUTF8}); err == nil {
		t.Errorf("two variable-size dtypes should be rejected")
	}
}

func TestDecodePayloadVoid(t *testing.T) {
	vals, err := DecodePayload(nil, nil)
	if err != nil || vals != nil {
		t.Errorf("void payload should decode to nil, nil; got %v, %v", vals, err)
	}
	if _, err := DecodePayload([]byte{1}, nil); err == nil {
		t.Errorf("non-empty buffer against void types should error")
	}
}

func TestDecodePayloadMixed(t *testing.T) {
	payload := []byte{0x2A, 'h', 'i'}
	vals, err := DecodePayload(payload, []DType{DTypeUint8, DTypeUTF8})
	if err != nil {
		t.Fatal(err)
	}
	if vals[0].(uint8) != 0x2A || vals[1].(string) != "hi" {
		t.Errorf("mixed decode mismatch: %v", vals)
	}

	// trailing fixed-size type requires the buffer to end exactly there
	if _, err := DecodePayload([]byte{1, 2, 3}, []DType{DTypeUint8, DTypeUint16}); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodePayload([]byte{1, 2, 3, 4}, []DType{DTypeUint8, DTypeUint16}); err == nil {
		t.Errorf("expected error: trailing bytes beyond fixed-size dtype")
	}
}

func TestEncodePayloadRoundTrip(t *testing.T) {
	types := []DType{DTypeUint8, DTypeBlob}
	values := []interface{}{uint8(9), []byte{4, 5, 6}}
	enc, err := EncodePayload(types, values)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := DecodePayload(enc, types)
	if err != nil {
		t.Fatal(err)
	}
	if dec[0].(uint8) != 9 || !bytes.Equal(dec[1].([]byte), []byte{4, 5, 6}) {
		t.Errorf("encode/decode payload round trip mismatch: %v", dec)
	}
}
