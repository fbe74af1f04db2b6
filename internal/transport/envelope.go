// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"encoding/json"
	"time"
)

// Command is the envelope carried on a PULL command endpoint.
type Command struct {
	MsgID     int             `json:"msg_ID"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

const (
	CmdStart          = "start"
	CmdStop           = "stop"
	CmdOff            = "off"
	CmdQuit           = "quit"
	CmdReconfigure    = "reconfigure"
	CmdSpecific       = "specific"
	CmdSimulateError  = "simulate_error"
)

// Status is the envelope published on a status PUB endpoint.
type Status struct {
	Module          string          `json:"module"`
	Timestamp       string          `json:"timestamp"` // ISO-8601, local, with TZ offset
	MsgID           int             `json:"msg_ID"`
	Type            string          `json:"type,omitempty"` // "event" or "error"
	Event           string          `json:"event,omitempty"`
	Error           string          `json:"error,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
	Acquisition     json.RawMessage `json:"acquisition,omitempty"`
	Digitizer       json.RawMessage `json:"digitizer,omitempty"`
	Statuses        json.RawMessage `json:"statuses,omitempty"`
	ActiveChannels  []int           `json:"active_channels,omitempty"`
	DisabledChannels []int          `json:"disabled_channels,omitempty"`
	Process         json.RawMessage `json:"process,omitempty"`
}

// NowISO8601 formats t the way status envelopes timestamp themselves:
// ISO-8601 in local time with an explicit UTC offset.
func NowISO8601(t time.Time) string {
	return t.Local().Format("2006-01-02T15:04:05.000-07:00")
}
