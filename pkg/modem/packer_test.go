// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	p := NewPacker(DefaultSeparator, DefaultTerminator)

	tests := []struct {
		name   string
		schema []FieldType
		values []Value
	}{
		{
			"mixed",
			[]FieldType{FieldInt, FieldBool, FieldFloat, FieldString},
			[]Value{Int(-42), Bool(true), Float(3.25), String("ok")},
		},
		{
			"single int",
			[]FieldType{FieldInt},
			[]Value{Int(7)},
		},
		{
			"bytes",
			[]FieldType{FieldBytes},
			[]Value{Bytes([]byte{0x01, 0x02, 0x03})},
		},
		{
			"empty",
			nil,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := p.Pack(tt.values, tt.schema)
			if err != nil {
				t.Fatalf("Pack: %v", err)
			}
			if wire[len(wire)-1] != DefaultTerminator {
				t.Fatal("frame body not terminated")
			}

			values, end, err := p.Unpack(wire, tt.schema)
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if end != len(wire)-1 {
				t.Errorf("terminator offset = %d, want %d", end, len(wire)-1)
			}
			if len(values) != len(tt.values) {
				t.Fatalf("decoded %d values, want %d", len(values), len(tt.values))
			}
			for i := range values {
				if values[i].String() != tt.values[i].String() {
					t.Errorf("field %d = %v, want %v", i, values[i], tt.values[i])
				}
			}
		})
	}
}

// Bytes and Float payloads may contain the separator and terminator byte
// values; decoding must not split on them.
func TestUnpackDelimiterCollision(t *testing.T) {
	p := NewPacker(DefaultSeparator, DefaultTerminator)

	payload := []byte{DefaultSeparator, DefaultTerminator, DefaultSeparator, 0x00}
	schema := []FieldType{FieldBytes, FieldInt}
	wire, err := p.Pack([]Value{Bytes(payload), Int(9)}, schema)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	values, _, err := p.Unpack(wire, schema)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	got, _ := values[0].Bytes()
	if !bytes.Equal(got, payload) {
		t.Errorf("bytes field = % X, want % X", got, payload)
	}
	if n, _ := values[1].Int(); n != 9 {
		t.Errorf("trailing int = %d, want 9", n)
	}
}

func TestUnpackFloatCollision(t *testing.T) {
	p := NewPacker(DefaultSeparator, DefaultTerminator)

	// Pick a float whose wire bytes include the separator byte 0x7C.
	// 0x7C7C7C7C decodes to some float; the exact value is irrelevant,
	// only that it survives the round trip.
	schema := []FieldType{FieldFloat, FieldBool}
	wire := append([]byte{DefaultSeparator, 0x7C, 0x7C, 0x7C, 0x7C, DefaultSeparator, '1'}, DefaultTerminator)

	values, _, err := p.Unpack(wire, schema)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if b, _ := values[1].Bool(); !b {
		t.Error("bool after collision float not decoded")
	}
}

func TestUnpackShortFrame(t *testing.T) {
	p := NewPacker(DefaultSeparator, DefaultTerminator)
	schema := []FieldType{FieldInt, FieldInt}

	// Only one of two fields present: a hard parse failure, not padding.
	wire := []byte("|5\r")
	if _, _, err := p.Unpack(wire, schema); err == nil {
		t.Fatal("expected error for frame with missing field")
	}
}

func TestUnpackTruncated(t *testing.T) {
	p := NewPacker(DefaultSeparator, DefaultTerminator)

	tests := []struct {
		name   string
		schema []FieldType
		wire   []byte
	}{
		{"no terminator", []FieldType{FieldInt}, []byte("|42")},
		{"empty schema no terminator", nil, []byte("")},
		{"float cut short", []FieldType{FieldFloat}, []byte{'|', 0x00, 0x00}},
		{"bytes cut short", []FieldType{FieldBytes}, []byte{'|', 0x08, 0x00, 0xAA}},
		{"ends before field", []FieldType{FieldInt, FieldInt}, []byte("|1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.Unpack(tt.wire, tt.schema)
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("err = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestUnpackFormatErrors(t *testing.T) {
	p := NewPacker(DefaultSeparator, DefaultTerminator)

	tests := []struct {
		name   string
		schema []FieldType
		wire   []byte
	}{
		{"missing separator", []FieldType{FieldInt}, []byte("42\r")},
		{"bad int", []FieldType{FieldInt}, []byte("|4x\r")},
		{"bad bool", []FieldType{FieldBool}, []byte("|2\r")},
		{"trailing junk before terminator", []FieldType{FieldBool}, []byte("|1x\r")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.Unpack(tt.wire, tt.schema)
			if !errors.Is(err, ErrFormat) {
				t.Errorf("err = %v, want ErrFormat", err)
			}
		})
	}
}

func TestPackValueCountMismatch(t *testing.T) {
	p := NewPacker(DefaultSeparator, DefaultTerminator)
	if _, err := p.Pack([]Value{Int(1)}, []FieldType{FieldInt, FieldInt}); err == nil {
		t.Error("expected error for value/schema count mismatch")
	}
}

// Randomized round trip over arbitrary schemas and values. Seeded so a
// failure reproduces.
func TestPackUnpackRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(0x1EE7))
	p := NewPacker(DefaultSeparator, DefaultTerminator)

	for iter := 0; iter < 500; iter++ {
		nFields := rng.Intn(6)
		schema := make([]FieldType, nFields)
		values := make([]Value, nFields)
		for i := range schema {
			switch FieldType(rng.Intn(5)) {
			case FieldInt:
				schema[i] = FieldInt
				values[i] = Int(rng.Int63() - rng.Int63())
			case FieldBool:
				schema[i] = FieldBool
				values[i] = Bool(rng.Intn(2) == 1)
			case FieldFloat:
				schema[i] = FieldFloat
				values[i] = Float(float32(rng.NormFloat64()))
			case FieldString:
				schema[i] = FieldString
				// Delimiter-free printable text.
				n := rng.Intn(12)
				s := make([]byte, n)
				for j := range s {
					s[j] = byte('a' + rng.Intn(26))
				}
				values[i] = String(string(s))
			case FieldBytes:
				schema[i] = FieldBytes
				b := make([]byte, rng.Intn(40))
				rng.Read(b)
				values[i] = Bytes(b)
			}
		}

		wire, err := p.Pack(values, schema)
		if err != nil {
			t.Fatalf("iter %d: Pack: %v", iter, err)
		}
		decoded, _, err := p.Unpack(wire, schema)
		if err != nil {
			t.Fatalf("iter %d: Unpack(% X): %v", iter, wire, err)
		}
		for i := range decoded {
			if decoded[i].Type() != schema[i] {
				t.Fatalf("iter %d field %d: type %v, want %v", iter, i, decoded[i].Type(), schema[i])
			}
			if schema[i] == FieldBytes {
				a, _ := decoded[i].Bytes()
				b, _ := values[i].Bytes()
				if !bytes.Equal(a, b) {
					t.Fatalf("iter %d field %d: bytes mismatch", iter, i)
				}
			} else if decoded[i].String() != values[i].String() {
				t.Fatalf("iter %d field %d: %v != %v", iter, i, decoded[i], values[i])
			}
		}
	}
}

func TestPackCustomDelimiters(t *testing.T) {
	p := NewPacker(';', '\n')
	wire, err := p.Pack([]Value{Int(3), String("x")}, []FieldType{FieldInt, FieldString})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if want := []byte(";3;x\n"); !bytes.Equal(wire, want) {
		t.Errorf("wire = %q, want %q", wire, want)
	}
}
