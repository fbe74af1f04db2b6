// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package analyzer implements the per-channel pluggable waveform
// analyzer (C6): a timestamp stage and an energy stage, each
// dynamically loaded from a user-specified library path, process every
// waveform and may emit zero, one, or many PSD events.
package analyzer

import (
	"encoding/json"
	"fmt"
	"plugin"

	"github.com/abcd-daq/abcd/internal/event"
)

// UserState is the opaque handle a plugin's init stage may return and
// every later call receives back, standing in for the C ABI's
// void* user_config.
type UserState interface{}

// TimestampPlugin is the first per-channel stage: it inspects the raw
// waveform and decides, for each sample index it selects, that a
// trigger occurred there. The reallocate_buffers contract from the
// original C ABI is replaced by ordinary slice growth: Analysis simply
// returns the trigger positions it found.
type TimestampPlugin struct {
	Init     func(cfg json.RawMessage) (UserState, error)
	Close    func(state UserState) error
	Analysis func(samples []int16, wf *event.Waveform, state UserState) (triggerPositions []int, err error)
}

// EnergyPlugin is the second per-channel stage: given one trigger
// position, it fills in the event's qshort/qlong/baseline fields (and
// may annotate additional waveform planes).
type EnergyPlugin struct {
	Init     func(cfg json.RawMessage) (UserState, error)
	Close    func(state UserState) error
	Analysis func(samples []int16, wf *event.Waveform, triggerPosition int, ev *event.Event, state UserState) error
}

// NullTimestamp is the built-in "Null" timestamp stage: it forwards
// the waveform untouched and selects exactly one event at sample 0,
// mirroring original_source/waan/src/libNull.c.
var NullTimestamp = TimestampPlugin{
	Analysis: func(samples []int16, wf *event.Waveform, state UserState) ([]int, error) {
		return []int{0}, nil
	},
}

// SimplePSD is the built-in energy stage grounded on
// original_source/waan/src/libSimplePSD.c: fixed-gate charge
// integration against a leading-samples baseline estimate, negative
// (non-positive) pulse polarity.
const (
	simplePSDBaselineSamples = 64
	simplePSDIntegrationStart = 110
	simplePSDGateShort        = 30
	simplePSDGateLong         = 90
)

var SimplePSD = EnergyPlugin{
	Analysis: func(samples []int16, wf *event.Waveform, triggerPosition int, ev *event.Event, state UserState) error {
		n := len(samples)

		var baseline float64
		nbase := simplePSDBaselineSamples
		if nbase > n {
			nbase = n
		}
		for i := 0; i < nbase; i++ {
			baseline += float64(samples[i])
		}
		if nbase > 0 {
			baseline /= float64(nbase)
		}

		var qshort, qlong float64
		for i := simplePSDIntegrationStart; i < simplePSDIntegrationStart+simplePSDGateShort && i < n; i++ {
			qshort += baseline - float64(samples[i])
		}
		for i := simplePSDIntegrationStart; i < simplePSDIntegrationStart+simplePSDGateLong && i < n; i++ {
			qlong += baseline - float64(samples[i])
		}

		ev.Timestamp = wf.Timestamp
		ev.Channel = wf.Channel
		ev.Qshort = clampU16(qshort)
		ev.Qlong = clampU16(qlong)
		ev.Baseline = clampU16(baseline) & 0xffff
		return nil
	},
}

// clampU16 saturates a double-precision accumulator into the event
// wire format's u16 fields, per §4.4's numeric contract.
func clampU16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}

// LoadTimestampPlugin opens a Go plugin object (compiled with
// -buildmode=plugin) and resolves its TimestampInit/TimestampAnalysis/
// TimestampClose symbols. Only the standard library exposes this
// dlopen-style loading of Go plugin code; there is no ecosystem
// substitute to reach for instead.
func LoadTimestampPlugin(path string) (TimestampPlugin, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return TimestampPlugin{}, fmt.Errorf("analyzer: could not open timestamp plugin %q: %w", path, err)
	}

	analysisSym, err := p.Lookup("TimestampAnalysis")
	if err != nil {
		return TimestampPlugin{}, fmt.Errorf("analyzer: plugin %q: %w", path, err)
	}
	analysis, ok := analysisSym.(func([]int16, *event.Waveform, UserState) ([]int, error))
	if !ok {
		return TimestampPlugin{}, fmt.Errorf("analyzer: plugin %q: TimestampAnalysis has the wrong signature", path)
	}

	tp := TimestampPlugin{Analysis: analysis}
	if sym, err := p.Lookup("TimestampInit"); err == nil {
		if fn, ok := sym.(func(json.RawMessage) (UserState, error)); ok {
			tp.Init = fn
		}
	}
	if sym, err := p.Lookup("TimestampClose"); err == nil {
		if fn, ok := sym.(func(UserState) error); ok {
			tp.Close = fn
		}
	}
	return tp, nil
}

// LoadEnergyPlugin is the energy-stage counterpart of
// LoadTimestampPlugin.
func LoadEnergyPlugin(path string) (EnergyPlugin, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return EnergyPlugin{}, fmt.Errorf("analyzer: could not open energy plugin %q: %w", path, err)
	}

	analysisSym, err := p.Lookup("EnergyAnalysis")
	if err != nil {
		return EnergyPlugin{}, fmt.Errorf("analyzer: plugin %q: %w", path, err)
	}
	analysis, ok := analysisSym.(func([]int16, *event.Waveform, int, *event.Event, UserState) error)
	if !ok {
		return EnergyPlugin{}, fmt.Errorf("analyzer: plugin %q: EnergyAnalysis has the wrong signature", path)
	}

	ep := EnergyPlugin{Analysis: analysis}
	if sym, err := p.Lookup("EnergyInit"); err == nil {
		if fn, ok := sym.(func(json.RawMessage) (UserState, error)); ok {
			ep.Init = fn
		}
	}
	if sym, err := p.Lookup("EnergyClose"); err == nil {
		if fn, ok := sym.(func(UserState) error); ok {
			ep.Close = fn
		}
	}
	return ep, nil
}
