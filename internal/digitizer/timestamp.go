// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digitizer

// timestampCorrector tracks the rolling correction applied to a board's
// raw, narrow hardware timestamp so the corrected sequence stays
// strictly monotonic across clock wraps. Every concrete variant embeds
// one, since wrap handling does not depend on how the raw samples were
// obtained.
type timestampCorrector struct {
	bits      uint
	threshold uint64 // 1 << (bits-1)
	modulus   uint64 // 1 << bits

	last      uint64
	offset    uint64
	overflows uint64
	seen      bool
}

func newTimestampCorrector(bits uint) *timestampCorrector {
	return &timestampCorrector{
		bits:      bits,
		threshold: 1 << (bits - 1),
		modulus:   1 << bits,
	}
}

// Correct folds a raw board timestamp t into the monotonic corrected
// timestamp space. On the first call it simply seeds last. On every
// subsequent call, if t appears to have gone backwards by more than
// half the clock's range it is treated as a wrap: the running offset
// advances by a full modulus and the overflow counter increments.
func (c *timestampCorrector) Correct(t uint64) uint64 {
	if !c.seen {
		c.seen = true
		c.last = t
		return t + c.offset
	}
	if t+c.threshold < c.last {
		c.offset += c.modulus
		c.overflows++
	}
	c.last = t
	return t + c.offset
}

// Overflows returns the number of wraps observed so far.
func (c *timestampCorrector) Overflows() uint64 { return c.overflows }
