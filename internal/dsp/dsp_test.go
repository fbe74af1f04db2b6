// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dsp_test

import (
	"math"
	"testing"

	"github.com/abcd-daq/abcd/internal/dsp"
)

func TestRunningMeanIdentityWindow(t *testing.T) {
	samples := []uint16{10, 20, 30, 40, 50, 60, 70}
	out := make([]float64, len(samples))
	if err := dsp.RunningMean(samples, 1, out); err != nil {
		t.Fatalf("running mean: %+v", err)
	}
	for i, s := range samples {
		if out[i] != float64(s) {
			t.Fatalf("running_mean(s,1)[%d] = %v, want %v", i, out[i], s)
		}
	}
}

func TestCumulativeSumFirstDifference(t *testing.T) {
	samples := []uint16{3, 1, 4, 1, 5, 9, 2, 6}
	cum := make([]uint64, len(samples))
	if err := dsp.CumulativeSum(samples, cum); err != nil {
		t.Fatalf("cumulative sum: %+v", err)
	}
	prev := uint64(0)
	for i, c := range cum {
		if got, want := c-prev, uint64(samples[i]); got != want {
			t.Fatalf("first difference at %d: got=%d, want=%d", i, got, want)
		}
		prev = c
	}
}

func TestIntegralBaselineSubtractZero(t *testing.T) {
	cum := []uint64{1, 3, 6, 10}
	out := make([]float64, len(cum))
	if err := dsp.IntegralBaselineSubtract(cum, 0, out); err != nil {
		t.Fatalf("integral baseline subtract: %+v", err)
	}
	for i, c := range cum {
		if out[i] != float64(c) {
			t.Fatalf("at %d: got=%v, want=%v", i, out[i], c)
		}
	}
}

func TestFilterBoundaryZeroAtOrigin(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5}
	out := make([]float64, len(samples))

	for name, run := range map[string]func() error{
		"CR":   func() error { return dsp.CRFilter(samples, 4, out) },
		"RC":   func() error { return dsp.RCFilter(samples, 4, out) },
		"RC4":  func() error { return dsp.RC4Filter(samples, 4, out) },
		"Trap": func() error { return dsp.TrapezoidalFilter(samples, 2, 1, dsp.Positive, out) },
		"Decay": func() error {
			return dsp.DecayCompensation(samples, 4, dsp.Positive, out)
		},
	} {
		t.Run(name, func(t *testing.T) {
			if err := run(); err != nil {
				t.Fatalf("%s: %+v", name, err)
			}
			if out[0] != 0 {
				t.Fatalf("%s: y[0] = %v, want 0", name, out[0])
			}
		})
	}
}

func TestCFDOutOfRangeClamps(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5}
	out := make([]float64, len(samples))
	if err := dsp.CFDSignal(samples, 10, 0.5, out); err != nil {
		t.Fatalf("cfd: %+v", err)
	}
	// delay 10 pushes every index before the start: delayed sample == samples[0].
	for i := range samples {
		want := 0.5*samples[0] - samples[i]
		if math.Abs(out[i]-want) > 1e-9 {
			t.Fatalf("cfd[%d] = %v, want %v", i, out[i], want)
		}
	}
}

func TestTrapezoidalOutOfRangeReadsX0(t *testing.T) {
	samples := []float64{5, 5, 5, 5, 5}
	out := make([]float64, len(samples))
	if err := dsp.TrapezoidalFilter(samples, 3, 2, dsp.Positive, out); err != nil {
		t.Fatalf("trapezoidal: %+v", err)
	}
	// Constant input with all history clamped to x[0] == x[n] keeps the
	// trapezoid at zero throughout.
	for i, v := range out {
		if v != 0 {
			t.Fatalf("trapezoidal[%d] = %v, want 0 for constant input", i, v)
		}
	}
}

func TestFindZeroCrossingTieBreakIsMidpoint(t *testing.T) {
	samples := []float64{-1, -1, 1, 1}
	idx, err := dsp.FindZeroCrossing(samples, 1, 2)
	if err != nil {
		t.Fatalf("find zero crossing: %+v", err)
	}
	if idx != 1 {
		t.Fatalf("tie-break index = %d, want 1 (midpoint of collapsed span)", idx)
	}
}

func TestWindingNumberPolygon(t *testing.T) {
	square := dsp.ClosePolygon([]dsp.Point{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
	})
	bb := dsp.ComputeBoundingBox(square)

	cases := []struct {
		p      dsp.Point
		inside bool
	}{
		{dsp.Point{X: 5, Y: 5}, true},
		{dsp.Point{X: -1, Y: 5}, false},
		{dsp.Point{X: 10, Y: 10}, false}, // half-open bbox edge
	}
	for _, tc := range cases {
		if got := dsp.InPolygon(tc.p, square, bb); got != tc.inside {
			t.Fatalf("InPolygon(%v) = %v, want %v", tc.p, got, tc.inside)
		}
	}
}

func TestClampU16Saturates(t *testing.T) {
	if got, want := dsp.ClampU16(-5), uint16(0); got != want {
		t.Fatalf("ClampU16(-5) = %d, want %d", got, want)
	}
	if got, want := dsp.ClampU16(1e9), uint16(math.MaxUint16); got != want {
		t.Fatalf("ClampU16(1e9) = %d, want %d", got, want)
	}
}
