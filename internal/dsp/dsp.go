// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dsp implements the numerical primitives shared by the waveform
// analysis plugins: running means, charge integrators, CR/RC-style
// shaping filters, constant-fraction timing, and polygon classification.
//
// Functions write into pre-sized buffers supplied by the caller;
// RC4Filter and FindFineZeroCrossing allocate scratch slices. Samples
// coming off a digitizer are u16; internal arithmetic is always float64.
package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Polarity selects which side of the baseline a pulse deviates to.
type Polarity int

const (
	Negative Polarity = -1
	Positive Polarity = 1
)

// ToDouble widens a u16 sample buffer into float64, writing into out.
// len(out) must be >= len(samples).
func ToDouble(samples []uint16, out []float64) {
	for i, s := range samples {
		out[i] = float64(s)
	}
}

// AddAndMultiplyConstant writes out[i] = (samples[i] + add) * mul.
func AddAndMultiplyConstant(samples []float64, add, mul float64, out []float64) {
	for i, s := range samples {
		out[i] = (s + add) * mul
	}
}

// CalculateSum returns the sum of samples[start:end].
func CalculateSum(samples []float64, start, end int) (float64, error) {
	if start > end || end > len(samples) {
		return 0, fmt.Errorf("dsp: invalid range [%d,%d) over %d samples", start, end, len(samples))
	}
	return floats.Sum(samples[start:end]), nil
}

// CalculateAverage returns the mean of samples[start:end], or 0 if the
// range is empty.
func CalculateAverage(samples []float64, start, end int) (float64, error) {
	if start > end || end > len(samples) {
		return 0, fmt.Errorf("dsp: invalid range [%d,%d) over %d samples", start, end, len(samples))
	}
	if start == end {
		return 0, nil
	}
	return stat.Mean(samples[start:end], nil), nil
}

// CalculateVar returns the variance of samples around baseline, with an
// (n-1) denominator, matching the reference pulse-shape estimator.
func CalculateVar(samples []uint16, baseline float64) float64 {
	n := len(samples)
	if n <= 1 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		d := float64(s) - baseline
		sum += d * d
	}
	return sum / float64(n-1)
}

// FindExtrema locates the index and value of the minimum and maximum of
// samples[start:end].
func FindExtrema(samples []float64, start, end int) (indexMin, indexMax int, minimum, maximum float64, err error) {
	if start > end || end > len(samples) {
		return 0, 0, 0, 0, fmt.Errorf("dsp: invalid range [%d,%d) over %d samples", start, end, len(samples))
	}
	indexMin, indexMax = start, start
	minimum, maximum = samples[start], samples[start]
	for i := start; i < end; i++ {
		if samples[i] < minimum {
			minimum = samples[i]
			indexMin = i
		}
		if samples[i] > maximum {
			maximum = samples[i]
			indexMax = i
		}
	}
	return indexMin, indexMax, minimum, maximum, nil
}

// RunningMean computes the recursive odd-window running mean of samples,
// writing into out (len(out) == len(samples) == n). W is rounded up to
// the next odd integer; the first and last W/2 points are set to the
// boundary average (copy-extended boundary, per the reference
// implementation).
func RunningMean(samples []uint16, w int, out []float64) error {
	n := len(samples)
	if len(out) != n {
		return fmt.Errorf("dsp: output length %d does not match input length %d", len(out), n)
	}
	if w < 1 {
		return fmt.Errorf("dsp: invalid window %d", w)
	}
	if w%2 == 0 {
		w++
	}
	if w > n {
		return fmt.Errorf("dsp: window %d larger than sample count %d", w, n)
	}

	p := (w - 1) / 2
	M := float64(w)

	var acc uint64
	for i := 0; i < w; i++ {
		acc += uint64(samples[i])
	}
	begin := float64(acc) / M
	for i := 0; i <= p; i++ {
		out[i] = begin
	}

	for i := p + 1; i < n-p; i++ {
		out[i] = out[i-1] + (float64(samples[i+p])-float64(samples[i-(p+1)]))/M
	}

	for i := n - p; i < n; i++ {
		out[i] = out[n-p-1]
	}

	return nil
}

// CumulativeSum writes the running integral of samples into out.
func CumulativeSum(samples []uint16, out []uint64) error {
	if len(out) != len(samples) {
		return fmt.Errorf("dsp: output length %d does not match input length %d", len(out), len(samples))
	}
	var total uint64
	for i, s := range samples {
		total += uint64(s)
		out[i] = total
	}
	return nil
}

// IntegralBaselineSubtract writes out[i] = cum[i] - (i+1)*baseline.
func IntegralBaselineSubtract(cum []uint64, baseline float64, out []float64) error {
	if len(out) != len(cum) {
		return fmt.Errorf("dsp: output length %d does not match input length %d", len(out), len(cum))
	}
	for i, c := range cum {
		out[i] = float64(c) - float64(i+1)*baseline
	}
	return nil
}

// clampedSample returns samples[i], clamping i into [0, len(samples)-1].
func clampedSample(samples []float64, i int) float64 {
	switch {
	case i < 0:
		return samples[0]
	case i >= len(samples):
		return samples[len(samples)-1]
	default:
		return samples[i]
	}
}

// CFDSignal computes the constant-fraction discriminator signal
// out[i] = fraction*samples[i-delay] - samples[i], with boundary
// samples clamped to the first/last element.
func CFDSignal(samples []float64, delay int, fraction float64, out []float64) error {
	if len(out) != len(samples) {
		return fmt.Errorf("dsp: output length %d does not match input length %d", len(out), len(samples))
	}
	for i := range samples {
		delayed := clampedSample(samples, i-delay)
		out[i] = fraction*delayed - samples[i]
	}
	return nil
}

// FindZeroCrossing bisects samples[L:R] for the single sign change
// expected in that span, returning its index. Ties (span collapsed to
// <=1 or an exact zero at the midpoint) resolve to the midpoint.
func FindZeroCrossing(samples []float64, l, r int) (int, error) {
	if l > r || r >= len(samples) {
		return 0, fmt.Errorf("dsp: invalid range [%d,%d] over %d samples", l, r, len(samples))
	}
	for {
		m := (l + r) / 2
		d := r - l
		if samples[m] == 0 || d <= 1 {
			return m, nil
		}
		if samples[l]*samples[m] > 0 {
			l = m
		} else {
			r = m
		}
	}
}

// FindFineZeroCrossing refines a zero-crossing index with a
// least-squares line fit over an odd window of w samples centered on
// idx, returning -q/m for the fitted line y = m*x + q. If w < 2, idx is
// returned unchanged. Errors if the window would run off the array.
func FindFineZeroCrossing(samples []float64, idx, w int) (float64, error) {
	if w < 2 {
		return float64(idx), nil
	}
	W := (w/2)*2 + 1
	half := W / 2
	if idx-half < 0 || idx+half+1 > len(samples) {
		return 0, fmt.Errorf("dsp: fine zero-crossing window [%d,%d] runs off %d samples", idx-half, idx+half, len(samples))
	}

	xs := make([]float64, W)
	ys := make([]float64, W)
	for i := 0; i < W; i++ {
		xs[i] = float64(idx - half + i)
		ys[i] = samples[idx-half+i]
	}

	q, m := stat.LinearRegression(xs, ys, nil, false)
	if m == 0 {
		return 0, fmt.Errorf("dsp: fine zero-crossing fit has zero slope")
	}
	return -q / m, nil
}

// singlePoleFilter implements the recursive single-pole filter used by
// DecayCompensation: y[0] = 0, y[n] = y[n-1] + f(x[n], x[n-1], factor).
func singlePoleFilter(samples []float64, factor float64, out []float64, step func(xn, xnm1, factor float64) float64) error {
	n := len(samples)
	if len(out) != n {
		return fmt.Errorf("dsp: output length %d does not match input length %d", len(out), n)
	}
	if n == 0 {
		return nil
	}
	out[0] = 0
	for i := 1; i < n; i++ {
		out[i] = out[i-1] + step(samples[i], samples[i-1], factor)
	}
	return nil
}

// DecayCompensation (pole-zero correction) compensates the exponential
// decay of tail pulses with time constant tau, for the given polarity.
func DecayCompensation(samples []float64, tau float64, pol Polarity, out []float64) error {
	factor := math.Exp(-1.0 / tau)
	if pol == Positive {
		return singlePoleFilter(samples, factor, out, func(xn, xnm1, f float64) float64 {
			return xn - xnm1*f
		})
	}
	return singlePoleFilter(samples, factor, out, func(xn, xnm1, f float64) float64 {
		const fullScale = math.MaxInt16
		return (fullScale - xn) - (fullScale-xnm1)*f
	})
}

// CRFilter applies a single-pole CR (differentiator) filter with decay
// constant tau: y[0] = 0, y[n] = factor*(y[n-1] + x[n] - x[n-1]).
func CRFilter(samples []float64, tau float64, out []float64) error {
	n := len(samples)
	if len(out) != n {
		return fmt.Errorf("dsp: output length %d does not match input length %d", len(out), n)
	}
	if n == 0 {
		return nil
	}
	factor := math.Exp(-1.0 / tau)
	out[0] = 0
	for i := 1; i < n; i++ {
		out[i] = factor * (out[i-1] + samples[i] - samples[i-1])
	}
	return nil
}

// RCFilter applies a single-pole RC (integrator) low-pass filter with
// decay constant tau.
func RCFilter(samples []float64, tau float64, out []float64) error {
	factor := math.Exp(-1.0 / tau)
	n := len(samples)
	if len(out) != n {
		return fmt.Errorf("dsp: output length %d does not match input length %d", len(out), n)
	}
	if n == 0 {
		return nil
	}
	out[0] = 0
	for i := 1; i < n; i++ {
		out[i] = factor*out[i-1] + (1-factor)*samples[i]
	}
	return nil
}

// RC4Filter applies four cascaded single-pole RC filter stages, the
// classic RC^4 shaping filter.
func RC4Filter(samples []float64, tau float64, out []float64) error {
	n := len(samples)
	if len(out) != n {
		return fmt.Errorf("dsp: output length %d does not match input length %d", len(out), n)
	}
	stage := append([]float64(nil), samples...)
	tmp := make([]float64, n)
	for s := 0; s < 4; s++ {
		if err := RCFilter(stage, tau, tmp); err != nil {
			return err
		}
		stage, tmp = tmp, stage
	}
	copy(out, stage)
	return nil
}

// TrapezoidalFilter applies the canonical recursive trapezoidal shaper
// with risetime k and flattop, l = k+flattop. Out-of-range reads of x
// are clamped to x[0].
func TrapezoidalFilter(samples []float64, k, flattop int, pol Polarity, out []float64) error {
	n := len(samples)
	if len(out) != n {
		return fmt.Errorf("dsp: output length %d does not match input length %d", len(out), n)
	}
	l := k + flattop
	at := func(i int) float64 {
		if i < 0 {
			return samples[0]
		}
		return samples[i]
	}
	if n == 0 {
		return nil
	}
	out[0] = 0
	sign := 1.0
	if pol == Negative {
		sign = -1.0
	}
	for i := 1; i < n; i++ {
		xn := at(i)
		xnk := at(i - k)
		xnl := at(i - l)
		xnkl := at(i - k - l)
		out[i] = out[i-1] + sign*((xn-xnk)-(xnl-xnkl))
	}
	return nil
}

// Risetime finds the first indices in [L,R] where the signal crosses
// the lo and hi levels on the rising slope.
func Risetime(samples []float64, l, r int, lo, hi float64) (idxLo, idxHi int, err error) {
	if l > r || r > len(samples) {
		return 0, 0, fmt.Errorf("dsp: invalid range [%d,%d) over %d samples", l, r, len(samples))
	}
	idxLo, idxHi = -1, -1
	for i := l; i < r; i++ {
		if idxLo < 0 && samples[i] >= lo {
			idxLo = i
		}
		if idxLo >= 0 && idxHi < 0 && samples[i] >= hi {
			idxHi = i
			break
		}
	}
	if idxLo < 0 || idxHi < 0 {
		return 0, 0, fmt.Errorf("dsp: risetime levels not crossed in [%d,%d)", l, r)
	}
	return idxLo, idxHi, nil
}

// ClampU16 clamps v into a valid uint16, saturating at MaxUint16 on
// overflow (per the event-codec numeric contract).
func ClampU16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
