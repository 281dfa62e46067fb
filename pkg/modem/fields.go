// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// FieldType identifies the wire encoding of one field.
type FieldType int

const (
	// FieldInt is ASCII decimal text, delimiter-scanned.
	FieldInt FieldType = iota
	// FieldBool is a single ASCII digit, '0' or '1'.
	FieldBool
	// FieldFloat is 4-byte little-endian IEEE-754, fixed width.
	FieldFloat
	// FieldString is raw UTF-8 text, delimiter-scanned.
	FieldString
	// FieldBytes is a 2-byte little-endian length prefix followed by raw
	// payload bytes. The payload may contain separator/terminator byte
	// values; no other field type may, since they are delimiter-scanned.
	FieldBytes
)

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "int"
	case FieldBool:
		return "bool"
	case FieldFloat:
		return "float"
	case FieldString:
		return "string"
	case FieldBytes:
		return "bytes"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// Value is a tagged variant holding one decoded or to-be-encoded field.
// The type is decided at schema-definition time; accessors fail with
// ErrTypeMismatch rather than coercing.
type Value struct {
	typ FieldType
	i   int64
	b   bool
	f   float32
	s   string
	raw []byte
}

// Int creates an Int field value.
func Int(v int64) Value { return Value{typ: FieldInt, i: v} }

// Bool creates a Bool field value.
func Bool(v bool) Value { return Value{typ: FieldBool, b: v} }

// Float creates a Float field value.
func Float(v float32) Value { return Value{typ: FieldFloat, f: v} }

// String creates a String field value.
func String(v string) Value { return Value{typ: FieldString, s: v} }

// Bytes creates a Bytes field value. The slice is not copied.
func Bytes(v []byte) Value { return Value{typ: FieldBytes, raw: v} }

// Type returns the field type tag.
func (v Value) Type() FieldType { return v.typ }

// Int returns the value as int64.
func (v Value) Int() (int64, error) {
	if v.typ != FieldInt {
		return 0, ErrTypeMismatch
	}
	return v.i, nil
}

// Bool returns the value as bool.
func (v Value) Bool() (bool, error) {
	if v.typ != FieldBool {
		return false, ErrTypeMismatch
	}
	return v.b, nil
}

// Float returns the value as float32.
func (v Value) Float() (float32, error) {
	if v.typ != FieldFloat {
		return 0, ErrTypeMismatch
	}
	return v.f, nil
}

// String returns the value as a string. For non-String fields this is a
// human-readable rendering, so Value still satisfies fmt.Stringer.
func (v Value) String() string {
	switch v.typ {
	case FieldInt:
		return strconv.FormatInt(v.i, 10)
	case FieldBool:
		if v.b {
			return "1"
		}
		return "0"
	case FieldFloat:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	case FieldString:
		return v.s
	case FieldBytes:
		return fmt.Sprintf("bytes[%d]", len(v.raw))
	}
	return "invalid"
}

// Text returns the value as a string, failing unless it is a String field.
func (v Value) Text() (string, error) {
	if v.typ != FieldString {
		return "", ErrTypeMismatch
	}
	return v.s, nil
}

// Bytes returns the raw payload of a Bytes field.
func (v Value) Bytes() ([]byte, error) {
	if v.typ != FieldBytes {
		return nil, ErrTypeMismatch
	}
	return v.raw, nil
}

// encodeField renders one value to its wire bytes. The value's own type tag
// must match the schema's declared type; a mismatch is a programmer error
// and is reported rather than coerced.
func encodeField(t FieldType, v Value) ([]byte, error) {
	if v.typ != t {
		return nil, fmt.Errorf("%w: schema wants %s, value is %s", ErrTypeMismatch, t, v.typ)
	}
	switch t {
	case FieldInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case FieldBool:
		if v.b {
			return []byte{'1'}, nil
		}
		return []byte{'0'}, nil
	case FieldFloat:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v.f))
		return buf, nil
	case FieldString:
		return []byte(v.s), nil
	case FieldBytes:
		if len(v.raw) > math.MaxUint16 {
			return nil, fmt.Errorf("modem: bytes field too long: %d", len(v.raw))
		}
		buf := make([]byte, 2+len(v.raw))
		binary.LittleEndian.PutUint16(buf, uint16(len(v.raw)))
		copy(buf[2:], v.raw)
		return buf, nil
	}
	return nil, fmt.Errorf("modem: unknown field type %d", int(t))
}

// decodeDelimited decodes a delimiter-scanned field (Int, Bool, String)
// from buf[:boundary], where boundary is the index of the next separator
// or terminator byte. It returns the value and the bytes consumed.
func decodeDelimited(t FieldType, buf []byte, boundary int) (Value, int, error) {
	span := buf[:boundary]
	switch t {
	case FieldInt:
		n, err := strconv.ParseInt(string(span), 10, 64)
		if err != nil {
			return Value{}, 0, fmt.Errorf("%w: %q is not an integer", ErrFormat, span)
		}
		return Int(n), boundary, nil
	case FieldBool:
		if boundary != 1 {
			return Value{}, 0, fmt.Errorf("%w: bool field is %d bytes, want 1", ErrFormat, boundary)
		}
		switch span[0] {
		case '0':
			return Bool(false), 1, nil
		case '1':
			return Bool(true), 1, nil
		}
		return Value{}, 0, fmt.Errorf("%w: bool field byte 0x%02X", ErrFormat, span[0])
	case FieldString:
		return String(string(span)), boundary, nil
	}
	return Value{}, 0, fmt.Errorf("modem: field type %s is not delimiter-scanned", t)
}

// decodeFloat consumes a fixed 4 bytes. Float fields are never delimiter
// scanned: the raw IEEE-754 bytes may collide with delimiter values.
func decodeFloat(buf []byte) (Value, int, error) {
	if len(buf) < 4 {
		return Value{}, 0, fmt.Errorf("%w: float field needs 4 bytes, have %d", ErrTruncated, len(buf))
	}
	return Float(math.Float32frombits(binary.LittleEndian.Uint32(buf))), 4, nil
}

// decodeBytes reads the 2-byte length prefix and then exactly that many
// raw bytes, ignoring delimiter scanning entirely.
func decodeBytes(buf []byte) (Value, int, error) {
	if len(buf) < 2 {
		return Value{}, 0, fmt.Errorf("%w: bytes field needs length prefix", ErrTruncated)
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if len(buf) < 2+n {
		return Value{}, 0, fmt.Errorf("%w: bytes field declares %d bytes, have %d", ErrTruncated, n, len(buf)-2)
	}
	payload := make([]byte, n)
	copy(payload, buf[2:2+n])
	return Bytes(payload), 2 + n, nil
}
