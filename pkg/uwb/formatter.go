// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package uwb

import (
	"fmt"
	"strings"
	"time"

	"github.com/decargroup/gouwb/pkg/modem"
)

// KeyName returns a human-readable name for a message key.
func KeyName(key string) string {
	switch key {
	case CmdSetIdle, RespSetIdle:
		return "SET_IDLE"
	case CmdGetID, RespGetID:
		return "GET_ID"
	case CmdReset, RespReset:
		return "RESET"
	case CmdSelfTest, RespSelfTest:
		return "SELF_TEST"
	case CmdSetPassive, RespSetPassive:
		return "SET_PASSIVE"
	case CmdDoTWR, RespDoTWR:
		return "DO_TWR"
	case CmdFragment, RespFragment, EvtFragment:
		return "FRAGMENT"
	case CmdMaxFrameLen, RespMaxFrameLen:
		return "MAX_FRAME_LEN"
	case EvtRange:
		return "RANGE_EVENT"
	case EvtPassive:
		return "PASSIVE_EVENT"
	case EvtCIR:
		return "CIR_EVENT"
	}
	return key
}

// FormatFrame renders one decoded frame as a timestamped log line.
func FormatFrame(f modem.Frame) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s (%s)", time.Now().Format("15:04:05.000"), KeyName(f.Key), f.Key)
	for i, v := range f.Values {
		if i == 0 {
			sb.WriteString(":")
		}
		fmt.Fprintf(&sb, " %s", v.String())
	}
	return sb.String()
}

// Format renders a range measurement for the console.
func (m RangeMeasurement) Format() string {
	return fmt.Sprintf("neighbour=%d range=%.3fm fpp=[%.1f %.1f] ts=[%.0f %.0f %.0f %.0f %.0f %.0f]",
		m.Neighbour, m.Range, m.FPP1, m.FPP2, m.TX1, m.RX1, m.TX2, m.RX2, m.TX3, m.RX3)
}

// Format renders a CIR measurement for the console, taps elided.
func (m CIRMeasurement) Format() string {
	return fmt.Sprintf("from=%d to=%d fp_idx=%.3f taps=%d",
		m.FromID, m.ToID, m.Index, len(m.Taps))
}

// Format renders a passive measurement for the console.
func (m PassiveMeasurement) Format() string {
	return fmt.Sprintf("initiator=%d target=%d rx=[%.0f %.0f %.0f] fpp=[%.1f %.1f %.1f]",
		m.Initiator, m.Target, m.RX1, m.RX2, m.RX3, m.FPP1, m.FPP2, m.FPP3)
}
