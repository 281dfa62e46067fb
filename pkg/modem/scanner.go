// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import (
	"bytes"
	"errors"

	"github.com/rs/zerolog"
)

// Frame is one fully parsed wire message.
type Frame struct {
	Key    string
	Values []Value
}

// Scanner locates and extracts complete frames from an unstructured byte
// stream. Chunks may contain zero, one, or many frames, cut at arbitrary
// offsets; the unconsumed tail is carried across calls so frames split
// between reads still decode.
//
// The scanner is driven by nearest-occurrence search over all registered
// keys. A key's 3 ASCII bytes occurring inside an earlier Bytes payload
// that has not been consumed yet can in principle false-positive; the
// protocol accepts this limitation.
type Scanner struct {
	packer   *Packer
	schemas  map[string][]FieldType
	keys     [][]byte
	carry    []byte
	maxCarry int
	log      zerolog.Logger
	stats    *Stats
}

// NewScanner creates a scanner for the given response/spontaneous schema
// table. maxCarry bounds the carry buffer; a stalled partial frame is
// abandoned once the buffer would exceed it.
func NewScanner(packer *Packer, schemas map[string][]FieldType, maxCarry int, log zerolog.Logger, stats *Stats) *Scanner {
	keys := make([][]byte, 0, len(schemas))
	for k := range schemas {
		keys = append(keys, []byte(k))
	}
	return &Scanner{
		packer:   packer,
		schemas:  schemas,
		keys:     keys,
		maxCarry: maxCarry,
		log:      log,
		stats:    stats,
	}
}

// Push appends a freshly read chunk and returns every complete frame now
// decodable, in stream order. Per-frame parse failures are contained: the
// offending frame is discarded with a diagnostic and scanning continues.
// Push never blocks.
func (s *Scanner) Push(chunk []byte) []Frame {
	s.carry = append(s.carry, chunk...)

	var frames []Frame
	for {
		start, key := s.nearestKey(s.carry)
		if start < 0 {
			// No key in the buffer. Anything older than a potential
			// partial key at the tail is noise.
			s.discardNoise(len(s.carry) - (KeyLength - 1))
			return frames
		}
		s.discardNoise(start)

		schema := s.schemas[string(key)]
		body := s.carry[KeyLength:]
		values, end, err := s.packer.Unpack(body, schema)
		switch {
		case err == nil:
			frames = append(frames, Frame{Key: string(key), Values: values})
			s.carry = s.carry[KeyLength+end+1:]
			if s.stats != nil {
				s.stats.frameParsed()
			}
		case errors.Is(err, ErrTruncated):
			// Likely a partial tail frame; wait for more bytes unless the
			// carry buffer says this frame will never complete.
			if len(s.carry) <= s.maxCarry {
				return frames
			}
			s.log.Debug().Str("key", string(key)).Int("buffered", len(s.carry)).
				Msg("abandoning stalled partial frame")
			if s.stats != nil {
				s.stats.frameDiscarded(err)
			}
			s.carry = s.carry[KeyLength:]
		default:
			s.log.Debug().Str("key", string(key)).Err(err).Msg("discarding malformed frame")
			if s.stats != nil {
				s.stats.frameDiscarded(err)
			}
			s.carry = s.carry[KeyLength:]
		}
	}
}

// PendingBytes reports how many unconsumed bytes are buffered.
func (s *Scanner) PendingBytes() int { return len(s.carry) }

// nearestKey returns the start offset and key of the earliest registered
// key occurrence, or (-1, nil).
func (s *Scanner) nearestKey(buf []byte) (int, []byte) {
	best := -1
	var bestKey []byte
	for _, k := range s.keys {
		if i := bytes.Index(buf, k); i >= 0 && (best < 0 || i < best) {
			best = i
			bestKey = k
		}
	}
	return best, bestKey
}

// discardNoise drops n leading bytes that belong to no known frame.
func (s *Scanner) discardNoise(n int) {
	if n <= 0 {
		return
	}
	s.carry = s.carry[n:]
	if s.stats != nil {
		s.stats.noiseSkipped(n)
	}
}
