// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package status holds the owned accounting struct threaded through
// the acquisition controller and analyzer state functions — per
// DESIGN NOTES §9, there is no module-level/global mutable state;
// every counter and verbosity flag lives on a value the caller owns.
package status

import "time"

// Counters tracks per-channel event counts used to compute rates.
// Partial counters reset on every status publication; total counters
// reset only on each run start.
type Counters struct {
	Partial map[uint8]uint64
	Total   map[uint8]uint64

	PartialICR map[uint8]uint64 // triggers seen, before any cut
	TotalICR   map[uint8]uint64
}

// NewCounters returns a zeroed Counters ready for use.
func NewCounters() *Counters {
	return &Counters{
		Partial:    make(map[uint8]uint64),
		Total:      make(map[uint8]uint64),
		PartialICR: make(map[uint8]uint64),
		TotalICR:   make(map[uint8]uint64),
	}
}

// AddEvent increments both the partial and total counters for channel.
func (c *Counters) AddEvent(channel uint8) {
	c.Partial[channel]++
	c.Total[channel]++
}

// AddTrigger increments the ICR (input count rate) counters for
// channel, before any analysis cut is applied.
func (c *Counters) AddTrigger(channel uint8) {
	c.PartialICR[channel]++
	c.TotalICR[channel]++
}

// ResetPartial clears the partial counters, as done on every status
// publication.
func (c *Counters) ResetPartial() {
	c.Partial = make(map[uint8]uint64)
	c.PartialICR = make(map[uint8]uint64)
}

// ResetTotal clears the total counters, as done on every run start.
func (c *Counters) ResetTotal() {
	c.Total = make(map[uint8]uint64)
	c.TotalICR = make(map[uint8]uint64)
}

// Rates computes events/second for every channel with a non-zero
// partial count, given the elapsed time since the last reset.
func (c *Counters) Rates(elapsed time.Duration) map[uint8]float64 {
	rates := make(map[uint8]float64, len(c.Partial))
	secs := elapsed.Seconds()
	if secs <= 0 {
		return rates
	}
	for ch, n := range c.Partial {
		rates[ch] = float64(n) / secs
	}
	return rates
}

// ICRRates computes input-count-rates/second for every channel.
func (c *Counters) ICRRates(elapsed time.Duration) map[uint8]float64 {
	rates := make(map[uint8]float64, len(c.PartialICR))
	secs := elapsed.Seconds()
	if secs <= 0 {
		return rates
	}
	for ch, n := range c.PartialICR {
		rates[ch] = float64(n) / secs
	}
	return rates
}

// Verbosity controls how chatty the owning process's logger is.
type Verbosity int

const (
	Quiet Verbosity = iota
	Normal
	Verbose
	VeryVerbose
)
