// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import "io"

// Transport is the byte-stream link to the device. The engine owns it
// exclusively: nothing else may read or write it while the engine runs.
//
// Read must be non-blocking or short-timeout bounded: when no bytes are
// waiting it returns (0, nil) after at most a few tens of milliseconds
// rather than blocking indefinitely. Serial ports get this from a read
// timeout; in-memory fakes simply return what they have. The engine never
// assumes any message framing at this layer.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}
