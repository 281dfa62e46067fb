// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package modem

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Stats tracks frame and error counters for one engine instance. All
// methods are safe for concurrent use; the reader loop increments while
// the CLI reads snapshots.
type Stats struct {
	mu        sync.Mutex
	startTime time.Time

	framesParsed    uint64
	formatErrors    uint64
	truncatedFrames uint64
	noiseBytes      uint64
	timeouts        uint64
	fragments       uint64
	fragmentGaps    uint64
}

// NewStats creates a zeroed statistics tracker.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) frameParsed() {
	s.mu.Lock()
	s.framesParsed++
	s.mu.Unlock()
}

func (s *Stats) frameDiscarded(err error) {
	s.mu.Lock()
	if errors.Is(err, ErrTruncated) {
		s.truncatedFrames++
	} else {
		s.formatErrors++
	}
	s.mu.Unlock()
}

func (s *Stats) noiseSkipped(n int) {
	s.mu.Lock()
	s.noiseBytes += uint64(n)
	s.mu.Unlock()
}

func (s *Stats) timeout() {
	s.mu.Lock()
	s.timeouts++
	s.mu.Unlock()
}

func (s *Stats) fragment(gap bool) {
	s.mu.Lock()
	s.fragments++
	if gap {
		s.fragmentGaps++
	}
	s.mu.Unlock()
}

// Reset zeroes all counters and restarts the rate clock.
func (s *Stats) Reset() {
	s.mu.Lock()
	s.startTime = time.Now()
	s.framesParsed = 0
	s.formatErrors = 0
	s.truncatedFrames = 0
	s.noiseBytes = 0
	s.timeouts = 0
	s.fragments = 0
	s.fragmentGaps = 0
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters with derived rates.
type Snapshot struct {
	Elapsed         time.Duration
	FramesParsed    uint64
	FormatErrors    uint64
	TruncatedFrames uint64
	NoiseBytes      uint64
	Timeouts        uint64
	Fragments       uint64
	FragmentGaps    uint64

	FrameRate float64 // frames/sec
	ErrorRate float64 // discarded frames/sec
}

// Snapshot returns a consistent copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Elapsed:         time.Since(s.startTime),
		FramesParsed:    s.framesParsed,
		FormatErrors:    s.formatErrors,
		TruncatedFrames: s.truncatedFrames,
		NoiseBytes:      s.noiseBytes,
		Timeouts:        s.timeouts,
		Fragments:       s.fragments,
		FragmentGaps:    s.fragmentGaps,
	}
	s.mu.Unlock()

	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.FrameRate = float64(snap.FramesParsed) / secs
		snap.ErrorRate = float64(snap.FormatErrors+snap.TruncatedFrames) / secs
	}
	return snap
}

// String returns a formatted statistics summary.
func (s Snapshot) String() string {
	out := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", s.Elapsed.Seconds())
	out += fmt.Sprintf("Frames Parsed:   %8d\n", s.FramesParsed)
	if s.FormatErrors > 0 {
		out += fmt.Sprintf("Format Errors:   %8d\n", s.FormatErrors)
	}
	if s.TruncatedFrames > 0 {
		out += fmt.Sprintf("Truncated:       %8d\n", s.TruncatedFrames)
	}
	if s.NoiseBytes > 0 {
		out += fmt.Sprintf("Noise Bytes:     %8d\n", s.NoiseBytes)
	}
	if s.Timeouts > 0 {
		out += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.Fragments > 0 {
		out += fmt.Sprintf("Fragments:       %8d (%d gaps)\n", s.Fragments, s.FragmentGaps)
	}
	out += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	out += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	out += "================================\n"
	return out
}
