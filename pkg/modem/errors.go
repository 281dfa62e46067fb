// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import "errors"

var (
	// ErrFormat indicates a field's bytes do not match its declared type,
	// e.g. non-numeric text in an Int field or a Bool span that is not a
	// single '0'/'1' byte.
	ErrFormat = errors.New("modem: field format error")

	// ErrTruncated indicates a declared length or field count exceeds the
	// bytes available in the frame.
	ErrTruncated = errors.New("modem: truncated frame")

	// ErrTypeMismatch is returned by Value accessors when the stored type
	// does not match the requested one.
	ErrTypeMismatch = errors.New("modem: field type mismatch")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("modem: engine closed")
)
