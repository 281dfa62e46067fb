// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

// Package uwb is the command catalog for DECAR UWB ranging modules: the
// message keys and field schemas the firmware speaks, typed wrappers for
// each command, and decoding of ranging measurements. The wire mechanics
// live in package modem; this package only describes the device.
package uwb

import "github.com/decargroup/gouwb/pkg/modem"

// Command keys (host → module) and their response keys (module → host).
const (
	CmdSetIdle     = "C00"
	CmdGetID       = "C01"
	CmdReset       = "C02"
	CmdSelfTest    = "C03"
	CmdSetPassive  = "C04"
	CmdDoTWR       = "C05"
	CmdFragment    = "C06"
	CmdMaxFrameLen = "C07"

	RespSetIdle     = "R00"
	RespGetID       = "R01"
	RespReset       = "R02"
	RespSelfTest    = "R03"
	RespSetPassive  = "R04"
	RespDoTWR       = "R05"
	RespFragment    = "R06"
	RespMaxFrameLen = "R07"
)

// Spontaneous keys (module → host, unsolicited).
const (
	// EvtRange delivers a range measurement at the target side of a TWR
	// transaction started by a neighbour.
	EvtRange = "S01"
	// EvtPassive delivers timestamps overheard while passively listening
	// to a TWR transaction between two other modules.
	EvtPassive = "S02"
	// EvtCIR delivers the channel impulse response accumulator window
	// recorded during a TWR transaction, when the initiator requested it.
	EvtCIR = "S03"
	// EvtFragment carries one countdown-prefixed long-message fragment.
	EvtFragment = "S04"
)

// CIRTapCount is the number of accumulator taps the firmware reports
// around the first path in one CIR event.
const CIRTapCount = 30

// twrFields is the field layout shared by the TWR response and the
// at-target range event: neighbour id, range, the three timestamp pairs
// of the double-sided exchange, and two first-path power readings. All
// timestamps and powers are opaque to the host; interpreting them is
// firmware-side.
var twrFields = []modem.FieldType{
	modem.FieldInt,   // neighbour id
	modem.FieldFloat, // range
	modem.FieldFloat, // tx1
	modem.FieldFloat, // rx1
	modem.FieldFloat, // tx2
	modem.FieldFloat, // rx2
	modem.FieldFloat, // tx3
	modem.FieldFloat, // rx3
	modem.FieldFloat, // fpp1
	modem.FieldFloat, // fpp2
}

// passiveFields is the layout of a passive-listening event: the two
// transacting module ids, the listener's own receive timestamps, the
// neighbour timestamps echoed in the overheard frames, and first-path
// power readings.
var passiveFields = []modem.FieldType{
	modem.FieldInt,   // initiator id
	modem.FieldInt,   // target id
	modem.FieldFloat, // rx1
	modem.FieldFloat, // rx2
	modem.FieldFloat, // rx3
	modem.FieldFloat, // tx1_n
	modem.FieldFloat, // rx1_n
	modem.FieldFloat, // tx2_n
	modem.FieldFloat, // rx2_n
	modem.FieldFloat, // tx3_n
	modem.FieldFloat, // rx3_n
	modem.FieldFloat, // fpp1
	modem.FieldFloat, // fpp2
	modem.FieldFloat, // fpp3
}

// cirFields is the layout of a CIR event: the two transacting module
// ids, the first-path index split into its integer part and thousandths,
// then the fixed accumulator window.
var cirFields = func() []modem.FieldType {
	fields := []modem.FieldType{
		modem.FieldInt, // from id
		modem.FieldInt, // to id
		modem.FieldInt, // first-path index, integer part
		modem.FieldInt, // first-path index, thousandths
	}
	for i := 0; i < CIRTapCount; i++ {
		fields = append(fields, modem.FieldFloat)
	}
	return fields
}()

// CommandSchemas returns the host-to-module schema table.
func CommandSchemas() map[string][]modem.FieldType {
	return map[string][]modem.FieldType{
		CmdSetIdle:     {},
		CmdGetID:       {},
		CmdReset:       {},
		CmdSelfTest:    {},
		CmdSetPassive:  {modem.FieldBool},
		CmdDoTWR:       {modem.FieldInt, modem.FieldBool, modem.FieldBool, modem.FieldBool},
		CmdFragment:    {modem.FieldBytes},
		CmdMaxFrameLen: {},
	}
}

// ResponseSchemas returns the module-to-host schema table, covering both
// solicited responses and spontaneous events.
func ResponseSchemas() map[string][]modem.FieldType {
	return map[string][]modem.FieldType{
		RespSetIdle:     {modem.FieldBool},
		RespGetID:       {modem.FieldInt},
		RespReset:       {modem.FieldBool},
		RespSelfTest:    {modem.FieldInt},
		RespSetPassive:  {modem.FieldBool},
		RespDoTWR:       twrFields,
		RespFragment:    {modem.FieldBool},
		RespMaxFrameLen: {modem.FieldInt},

		EvtRange:    twrFields,
		EvtPassive:  passiveFields,
		EvtCIR:      cirFields,
		EvtFragment: {modem.FieldBytes},
	}
}
