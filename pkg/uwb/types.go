// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package uwb

import (
	"fmt"

	"github.com/decargroup/gouwb/pkg/modem"
)

// RangeMeasurement is one decoded TWR result, as seen by either side of
// the transaction. Timestamps and powers are raw device readings.
type RangeMeasurement struct {
	Neighbour int64
	Range     float32
	TX1, RX1  float32
	TX2, RX2  float32
	TX3, RX3  float32
	FPP1      float32
	FPP2      float32
}

// PassiveMeasurement is one decoded passive-listening observation of a
// TWR transaction between two other modules.
type PassiveMeasurement struct {
	Initiator        int64
	Target           int64
	RX1, RX2, RX3    float32
	TX1n, RX1n       float32
	TX2n, RX2n       float32
	TX3n, RX3n       float32
	FPP1, FPP2, FPP3 float32
}

// CIRMeasurement is the channel impulse response recorded during one TWR
// transaction: the accumulator window around the first path, plus the
// sub-tap first-path index.
type CIRMeasurement struct {
	FromID int64
	ToID   int64
	Index  float64 // first-path index, fractional
	Taps   []float32
}

// TWROptions select the flavour of a ranging transaction.
type TWROptions struct {
	TargetID     int64
	DSTwr        bool // double-sided TWR
	MeasAtTarget bool // also deliver the measurement at the target, as an EvtRange
	GetCIR       bool // also record the CIR, delivered as an EvtCIR
}

// fieldReader walks a decoded value list in schema order, latching the
// first type error so call sites stay flat.
type fieldReader struct {
	values []modem.Value
	pos    int
	err    error
}

func newFieldReader(values []modem.Value) *fieldReader {
	return &fieldReader{values: values}
}

func (r *fieldReader) next() (modem.Value, bool) {
	if r.err != nil || r.pos >= len(r.values) {
		if r.err == nil {
			r.err = fmt.Errorf("uwb: frame has %d fields, needed more", len(r.values))
		}
		return modem.Value{}, false
	}
	v := r.values[r.pos]
	r.pos++
	return v, true
}

func (r *fieldReader) int64() int64 {
	v, ok := r.next()
	if !ok {
		return 0
	}
	n, err := v.Int()
	if err != nil {
		r.err = err
	}
	return n
}

func (r *fieldReader) float() float32 {
	v, ok := r.next()
	if !ok {
		return 0
	}
	f, err := v.Float()
	if err != nil {
		r.err = err
	}
	return f
}

// DecodeRange decodes a TWR response or range event payload.
func DecodeRange(values []modem.Value) (RangeMeasurement, error) {
	r := newFieldReader(values)
	m := RangeMeasurement{
		Neighbour: r.int64(),
		Range:     r.float(),
		TX1:       r.float(),
		RX1:       r.float(),
		TX2:       r.float(),
		RX2:       r.float(),
		TX3:       r.float(),
		RX3:       r.float(),
		FPP1:      r.float(),
		FPP2:      r.float(),
	}
	if r.err != nil {
		return RangeMeasurement{}, fmt.Errorf("uwb: decode range: %w", r.err)
	}
	return m, nil
}

// DecodeCIR decodes a CIR event payload. The two index fields combine
// into one fractional first-path index.
func DecodeCIR(values []modem.Value) (CIRMeasurement, error) {
	r := newFieldReader(values)
	m := CIRMeasurement{
		FromID: r.int64(),
		ToID:   r.int64(),
	}
	idx, frac := r.int64(), r.int64()
	m.Index = float64(idx) + float64(frac)/1e3
	m.Taps = make([]float32, CIRTapCount)
	for i := range m.Taps {
		m.Taps[i] = r.float()
	}
	if r.err != nil {
		return CIRMeasurement{}, fmt.Errorf("uwb: decode cir: %w", r.err)
	}
	return m, nil
}

// DecodePassive decodes a passive-listening event payload.
func DecodePassive(values []modem.Value) (PassiveMeasurement, error) {
	r := newFieldReader(values)
	m := PassiveMeasurement{
		Initiator: r.int64(),
		Target:    r.int64(),
		RX1:       r.float(),
		RX2:       r.float(),
		RX3:       r.float(),
		TX1n:      r.float(),
		RX1n:      r.float(),
		TX2n:      r.float(),
		RX2n:      r.float(),
		TX3n:      r.float(),
		RX3n:      r.float(),
		FPP1:      r.float(),
		FPP2:      r.float(),
		FPP3:      r.float(),
	}
	if r.err != nil {
		return PassiveMeasurement{}, fmt.Errorf("uwb: decode passive: %w", r.err)
	}
	return m, nil
}
