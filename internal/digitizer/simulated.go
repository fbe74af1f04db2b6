// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digitizer

import (
	"encoding/json"
	"fmt"
	"math"
)

// simulated implements Digitizer for FastDAQ/FastPulseDetect: a pure
// in-process waveform generator standing in for the FWDAQ/FWPD
// firmware, so the controller state machine and the "-I" identify-only
// CLI path are exercisable without real hardware.
type simulated struct {
	common
	kind Kind
	ts   *timestampCorrector

	baseline     float64
	amplitude    float64
	recordLength int
	period       uint64 // raw ticks between bursts

	rawClock uint64
	armed    bool
	ready    bool
	pending  []Waveform
}

func newSimulated(name string, kind Kind, nchans int, tsBits uint) (*simulated, error) {
	if nchans <= 0 {
		return nil, newErr("newSimulated", Invalid, fmt.Errorf("channels number must be positive"))
	}
	d := &simulated{
		common:       newCommon(kind.String(), nchans),
		kind:         kind,
		ts:           newTimestampCorrector(tsBits),
		baseline:     64,
		amplitude:    4000,
		recordLength: 2048,
		period:       1000,
	}
	d.name = name
	return d, nil
}

type simulatedSettings struct {
	RecordLength int     `json:"record_length"`
	Baseline     float64 `json:"baseline"`
	Amplitude    float64 `json:"amplitude"`
	PeriodTicks  uint64  `json:"period_ticks"`
}

func (d *simulated) Initialize() error { return nil }

func (d *simulated) ReadConfig(settings json.RawMessage) error {
	if len(settings) == 0 {
		return nil
	}
	var s simulatedSettings
	if err := json.Unmarshal(settings, &s); err != nil {
		return newErr("ReadConfig", Invalid, err)
	}
	if s.RecordLength > 0 {
		d.recordLength = s.RecordLength
	}
	if s.Baseline > 0 {
		d.baseline = s.Baseline
	}
	if s.Amplitude > 0 {
		d.amplitude = s.Amplitude
	}
	if s.PeriodTicks > 0 {
		d.period = s.PeriodTicks
	}
	return nil
}

func (d *simulated) Configure() error { return nil }

func (d *simulated) StartAcquisition() error {
	d.armed = true
	return nil
}

func (d *simulated) RearmTrigger() error {
	d.ready = false
	return nil
}

func (d *simulated) StopAcquisition() error {
	d.armed = false
	return nil
}

func (d *simulated) ForceSoftwareTrigger() error {
	if !d.armed {
		return newErr("ForceSoftwareTrigger", NotReady, nil)
	}
	d.generate()
	return nil
}

func (d *simulated) ResetOverflow() error {
	return nil
}

func (d *simulated) AcquisitionReady() bool { return d.ready || len(d.pending) > 0 }
func (d *simulated) DataOverflow() bool     { return false }

// generate synthesizes one negative-polarity pulse per enabled channel
// at the current simulated clock position.
func (d *simulated) generate() {
	d.rawClock += d.period
	for ch := 0; ch < d.nchans; ch++ {
		if !d.IsChannelEnabled(ch) {
			continue
		}
		samples := make([]uint16, d.recordLength)
		peak := d.recordLength / 4
		tau := float64(d.recordLength) / 20
		for i := range samples {
			v := d.baseline
			if i >= peak {
				v -= d.amplitude * math.Exp(-float64(i-peak)/tau)
			}
			if v < 0 {
				v = 0
			}
			if v > math.MaxUint16 {
				v = math.MaxUint16
			}
			samples[i] = uint16(v)
		}
		d.pending = append(d.pending, Waveform{
			Channel:   uint8(ch),
			Timestamp: d.ts.Correct(d.rawClock),
			Samples:   samples,
		})
	}
	d.ready = true
}

func (d *simulated) GetWaveforms(dst []Waveform) ([]Waveform, error) {
	if !d.armed {
		return dst, newErr("GetWaveforms", NotReady, nil)
	}
	if len(d.pending) == 0 {
		d.generate()
	}
	dst = append(dst, d.pending...)
	d.pending = nil
	d.ready = false
	return dst, nil
}

func (d *simulated) Close() error { return nil }
