// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import "fmt"

// FragmentOverhead is the per-frame wire overhead reserved when splitting
// a long payload: key, separators, length prefix, countdown byte, and the
// firmware's own slack for the acknowledgement path.
const FragmentOverhead = 20

// SplitPayload splits an arbitrary payload into fragments that each fit
// one frame of maxFrameLen bytes. Every fragment is prefixed with a
// countdown byte: number of fragments remaining after this one, reaching
// 0 on the last. An empty payload still yields one terminal fragment.
func SplitPayload(payload []byte, maxFrameLen int) ([][]byte, error) {
	capacity := maxFrameLen - FragmentOverhead
	if capacity < 1 {
		return nil, fmt.Errorf("modem: max frame length %d leaves no fragment capacity", maxFrameLen)
	}
	n := (len(payload) + capacity - 1) / capacity
	if n == 0 {
		n = 1
	}
	if n > 256 {
		return nil, fmt.Errorf("modem: payload needs %d fragments, countdown byte allows 256", n)
	}

	chunks := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		lo := i * capacity
		hi := lo + capacity
		if hi > len(payload) {
			hi = len(payload)
		}
		chunk := make([]byte, 0, 1+hi-lo)
		chunk = append(chunk, byte(n-1-i))
		chunk = append(chunk, payload[lo:hi]...)
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Reassembly accumulates countdown-prefixed fragments back into one
// payload. A session starts implicitly on the first fragment and resets
// after the terminal one.
type Reassembly struct {
	buf      []byte
	lastSeen int // countdown of the previous fragment; -1 when unseeded
	valid    bool
}

// NewReassembly creates an empty, unseeded session.
func NewReassembly() *Reassembly {
	return &Reassembly{lastSeen: -1, valid: true}
}

// Absorb consumes one fragment. When the fragment is terminal (countdown
// 0) it returns done=true with the accumulated payload and the session's
// validity, then resets for the next message. gap reports whether THIS
// fragment's countdown broke the sequence: not exactly one less than the
// previous fragment's, meaning a fragment was dropped or reordered. Every
// gap marks the session invalid, but accumulation continues; received
// data is never discarded.
func (r *Reassembly) Absorb(fragment []byte) (msg []byte, valid, gap, done bool) {
	if len(fragment) == 0 {
		r.valid = false
		return nil, false, true, false
	}
	countdown := int(fragment[0])
	if r.lastSeen >= 0 && countdown != r.lastSeen-1 {
		r.valid = false
		gap = true
	}
	r.lastSeen = countdown
	r.buf = append(r.buf, fragment[1:]...)

	if countdown != 0 {
		return nil, r.valid, gap, false
	}
	msg = r.buf
	valid = r.valid
	r.buf = nil
	r.lastSeen = -1
	r.valid = true
	return msg, valid, gap, true
}

// Pending reports how many payload bytes the open session has buffered.
func (r *Reassembly) Pending() int { return len(r.buf) }
