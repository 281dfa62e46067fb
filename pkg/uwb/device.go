// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package uwb

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/decargroup/gouwb/pkg/modem"
)

// Options tune a Device's engine without exposing the full modem config.
type Options struct {
	Timeout     time.Duration // per-command response timeout
	Cooperative bool          // single-threaded scheduling, drained via WaitForMessages
	Logger      *zerolog.Logger
}

// Device is one UWB ranging module on the far end of a transport. It
// binds the catalog's schemas to a protocol engine and exposes the
// module's commands as typed calls.
//
// Command-style methods return ok=false when the module does not answer
// within the timeout; that is an expected outcome on a radio link, not
// an error.
type Device struct {
	m *modem.Modem

	maxFrameLen atomic.Int32 // 0 until negotiated
}

// Open creates a Device over the transport. The transport becomes owned
// by the device until Close.
func Open(t modem.Transport, opts Options) (*Device, error) {
	m, err := modem.New(t, modem.Config{
		CommandSchemas:   CommandSchemas(),
		ResponseSchemas:  ResponseSchemas(),
		Timeout:          opts.Timeout,
		Cooperative:      opts.Cooperative,
		FragmentCommand:  CmdFragment,
		FragmentResponse: RespFragment,
		FragmentEvent:    EvtFragment,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Device{m: m}, nil
}

// Close shuts the engine down and releases the transport.
func (d *Device) Close() error { return d.m.Close() }

// Modem exposes the underlying engine, for stats and raw callbacks.
func (d *Device) Modem() *modem.Modem { return d.m }

// GetID queries the module's id.
func (d *Device) GetID() (int64, bool, error) {
	values, ok, err := d.m.SendAndWait(CmdGetID, RespGetID)
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := values[0].Int()
	if err != nil {
		return 0, false, fmt.Errorf("uwb: get id: %w", err)
	}
	return id, true, nil
}

// SetIdle asks the module to stop whatever it is doing.
func (d *Device) SetIdle() (bool, error) {
	return d.boolExchange(CmdSetIdle, RespSetIdle)
}

// Reset restarts the module firmware.
func (d *Device) Reset() (bool, error) {
	return d.boolExchange(CmdReset, RespReset)
}

// SelfTest runs the firmware self-tests and returns the failing test id,
// or -1 when all pass.
func (d *Device) SelfTest() (int64, bool, error) {
	values, ok, err := d.m.SendAndWait(CmdSelfTest, RespSelfTest)
	if err != nil || !ok {
		return 0, false, err
	}
	code, err := values[0].Int()
	if err != nil {
		return 0, false, fmt.Errorf("uwb: self test: %w", err)
	}
	return code, true, nil
}

// SetPassiveListening toggles passive listening: when on, the module
// reports overheard TWR transactions as EvtPassive events.
func (d *Device) SetPassiveListening(enable bool) (bool, error) {
	values, ok, err := d.m.SendAndWait(CmdSetPassive, RespSetPassive, modem.Bool(enable))
	if err != nil || !ok {
		return false, err
	}
	acked, err := values[0].Bool()
	if err != nil {
		return false, fmt.Errorf("uwb: set passive: %w", err)
	}
	return acked, nil
}

// DoTWR runs one two-way-ranging transaction against a neighbour module.
func (d *Device) DoTWR(opts TWROptions) (RangeMeasurement, bool, error) {
	values, ok, err := d.m.SendAndWait(CmdDoTWR, RespDoTWR,
		modem.Int(opts.TargetID), modem.Bool(opts.DSTwr),
		modem.Bool(opts.MeasAtTarget), modem.Bool(opts.GetCIR))
	if err != nil || !ok {
		return RangeMeasurement{}, false, err
	}
	meas, err := DecodeRange(values)
	if err != nil {
		return RangeMeasurement{}, false, err
	}
	return meas, true, nil
}

// MaxFrameLength queries the module's frame length limit, caches it, and
// resizes the engine's long-message fragments to match. Safe for
// concurrent use; racing first calls may each query, which is harmless.
func (d *Device) MaxFrameLength() (int, bool, error) {
	if cached := d.maxFrameLen.Load(); cached > 0 {
		return int(cached), true, nil
	}
	values, ok, err := d.m.SendAndWait(CmdMaxFrameLen, RespMaxFrameLen)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := values[0].Int()
	if err != nil {
		return 0, false, fmt.Errorf("uwb: max frame length: %w", err)
	}
	d.maxFrameLen.Store(int32(n))
	d.m.SetMaxFrameLength(int(n))
	return int(n), true, nil
}

// Broadcast transmits an arbitrary payload over the radio as a fragment
// stream, negotiating the frame length limit first if needed.
func (d *Device) Broadcast(payload []byte) (bool, error) {
	if _, ok, err := d.MaxFrameLength(); err != nil || !ok {
		return false, err
	}
	return d.m.Broadcast(payload)
}

// BroadcastCBOR encodes v as CBOR and broadcasts it. The receiving side
// decodes with DecodeCBOR in its long-message callback.
func (d *Device) BroadcastCBOR(v any) (bool, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("uwb: encode broadcast: %w", err)
	}
	return d.Broadcast(data)
}

// DecodeCBOR decodes a long-message payload produced by BroadcastCBOR.
func DecodeCBOR(msg []byte, v any) error {
	if err := cbor.Unmarshal(msg, v); err != nil {
		return fmt.Errorf("uwb: decode broadcast: %w", err)
	}
	return nil
}

// RegisterRangeCallback fires fn for every range measurement delivered
// at this module as the target of a neighbour's TWR transaction.
// Malformed events are skipped.
func (d *Device) RegisterRangeCallback(fn func(RangeMeasurement)) {
	d.m.Register(EvtRange, func(values []modem.Value, _ any) {
		if meas, err := DecodeRange(values); err == nil {
			fn(meas)
		}
	}, nil)
}

// RegisterListeningCallback fires fn for every passively overheard TWR
// transaction.
func (d *Device) RegisterListeningCallback(fn func(PassiveMeasurement)) {
	d.m.Register(EvtPassive, func(values []modem.Value, _ any) {
		if meas, err := DecodePassive(values); err == nil {
			fn(meas)
		}
	}, nil)
}

// RegisterCIRCallback fires fn for every channel impulse response the
// module delivers; CIR events follow TWR transactions initiated with
// GetCIR.
func (d *Device) RegisterCIRCallback(fn func(CIRMeasurement)) {
	d.m.Register(EvtCIR, func(values []modem.Value, _ any) {
		if meas, err := DecodeCIR(values); err == nil {
			fn(meas)
		}
	}, nil)
}

// RegisterMessageCallback fires fn once per reassembled broadcast from a
// neighbour module; valid is false when fragments went missing.
func (d *Device) RegisterMessageCallback(fn func(msg []byte, valid bool)) error {
	return d.m.RegisterLongMessageCallback(fn)
}

// WaitForMessages drains pending spontaneous messages in cooperative
// mode, running callbacks on the caller's stack.
func (d *Device) WaitForMessages() error { return d.m.Pump() }

func (d *Device) boolExchange(cmdKey, respKey string) (bool, error) {
	values, ok, err := d.m.SendAndWait(cmdKey, respKey)
	if err != nil || !ok {
		return false, err
	}
	acked, err := values[0].Bool()
	if err != nil {
		return false, fmt.Errorf("uwb: %s: %w", cmdKey, err)
	}
	return acked, nil
}
