// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import (
	"bytes"
	"fmt"
)

// Wire framing defaults. A frame is key(3) [sep field]* term.
const (
	KeyLength         = 3
	DefaultSeparator  = '|'
	DefaultTerminator = '\r'
)

// Packer composes and decomposes delimited frame bodies for a fixed
// separator/terminator pair.
type Packer struct {
	sep  byte
	term byte
}

// NewPacker creates a Packer for the given delimiter bytes.
func NewPacker(sep, term byte) *Packer {
	return &Packer{sep: sep, term: term}
}

// Pack encodes values per the schema into one frame body: every field is
// preceded by the separator, and the terminator is appended. The caller
// prepends the 3-byte key.
func (p *Packer) Pack(values []Value, schema []FieldType) ([]byte, error) {
	if len(values) != len(schema) {
		return nil, fmt.Errorf("modem: pack: %d values for %d schema fields", len(values), len(schema))
	}
	body := make([]byte, 0, 16)
	for i, t := range schema {
		enc, err := encodeField(t, values[i])
		if err != nil {
			return nil, fmt.Errorf("modem: pack field %d: %w", i, err)
		}
		body = append(body, p.sep)
		body = append(body, enc...)
	}
	return append(body, p.term), nil
}

// Unpack walks the schema over buf, which must start immediately after the
// key, and returns the decoded values and the terminator's offset in buf.
// A missing delimiter or field-count shortfall is a truncated frame; a
// frame with fewer fields than its schema is therefore a hard parse
// failure, never padded.
func (p *Packer) Unpack(buf []byte, schema []FieldType) ([]Value, int, error) {
	if len(schema) == 0 {
		// Still locate the terminator so the caller can advance past it.
		end := bytes.IndexByte(buf, p.term)
		if end < 0 {
			return nil, 0, fmt.Errorf("%w: no terminator", ErrTruncated)
		}
		return []Value{}, end, nil
	}

	values := make([]Value, 0, len(schema))
	cursor := 0
	for i, t := range schema {
		if cursor >= len(buf) {
			return nil, 0, fmt.Errorf("%w: buffer ends before field %d", ErrTruncated, i)
		}
		if buf[cursor] != p.sep {
			return nil, 0, fmt.Errorf("%w: field %d not preceded by separator (byte 0x%02X)", ErrFormat, i, buf[cursor])
		}
		cursor++

		var (
			v   Value
			n   int
			err error
		)
		switch t {
		case FieldFloat:
			v, n, err = decodeFloat(buf[cursor:])
		case FieldBytes:
			v, n, err = decodeBytes(buf[cursor:])
		default:
			boundary := p.nextDelimiter(buf[cursor:])
			if boundary < 0 {
				return nil, 0, fmt.Errorf("%w: no delimiter after field %d", ErrTruncated, i)
			}
			v, n, err = decodeDelimited(t, buf[cursor:], boundary)
		}
		if err != nil {
			return nil, 0, fmt.Errorf("field %d: %w", i, err)
		}
		values = append(values, v)
		cursor += n
	}

	// The cursor must land exactly on the frame terminator.
	if cursor >= len(buf) {
		return nil, 0, fmt.Errorf("%w: buffer ends before terminator", ErrTruncated)
	}
	if buf[cursor] != p.term {
		return nil, 0, fmt.Errorf("%w: expected terminator, found 0x%02X", ErrFormat, buf[cursor])
	}
	return values, cursor, nil
}

// nextDelimiter returns the index of the nearest separator-or-terminator
// byte, or -1 when neither occurs.
func (p *Packer) nextDelimiter(buf []byte) int {
	sep := bytes.IndexByte(buf, p.sep)
	term := bytes.IndexByte(buf, p.term)
	switch {
	case sep < 0:
		return term
	case term < 0:
		return sep
	case sep < term:
		return sep
	}
	return term
}
