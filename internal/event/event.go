// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event implements the bit-exact, always-little-endian wire and
// on-disk layout of the two ABCD record kinds: the fixed 16-byte PSD
// event and the variable-length waveform record.
package event

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Size is the exact, padding-free size in bytes of an encoded Event.
const Size = 16

// Event is a single PSD (pulse-shape discrimination) record.
type Event struct {
	Timestamp     uint64 // upper bits: clock ticks; lower F bits: sub-tick fraction
	Qshort        uint16 // short integration / short-shape observable
	Qlong         uint16 // long integration / energy observable
	Baseline      uint16 // baseline estimate, clamped into 16 bits
	Channel       uint8  // global channel id
	GroupCounter  uint8  // reserved tag / pileup flag
}

// Encode writes e into a freshly allocated 16-byte buffer.
func Encode(e Event) []byte {
	buf := make([]byte, Size)
	EncodeInto(e, buf)
	return buf
}

// EncodeInto writes e into buf, which must be at least Size bytes long.
func EncodeInto(e Event, buf []byte) {
	_ = buf[Size-1]
	binary.LittleEndian.PutUint64(buf[0:8], e.Timestamp)
	binary.LittleEndian.PutUint16(buf[8:10], e.Qshort)
	binary.LittleEndian.PutUint16(buf[10:12], e.Qlong)
	binary.LittleEndian.PutUint16(buf[12:14], e.Baseline)
	buf[14] = e.Channel
	buf[15] = e.GroupCounter
}

// Decode parses a 16-byte buffer into an Event.
func Decode(buf []byte) (Event, error) {
	if len(buf) < Size {
		return Event{}, xerrors.Errorf("event: short buffer (got=%d, want=%d)", len(buf), Size)
	}
	return Event{
		Timestamp:    binary.LittleEndian.Uint64(buf[0:8]),
		Qshort:       binary.LittleEndian.Uint16(buf[8:10]),
		Qlong:        binary.LittleEndian.Uint16(buf[10:12]),
		Baseline:     binary.LittleEndian.Uint16(buf[12:14]),
		Channel:      buf[14],
		GroupCounter: buf[15],
	}, nil
}

// PSD returns the pulse-shape-discrimination parameter (qlong-qshort)/qlong.
func (e Event) PSD() float64 {
	if e.Qlong == 0 {
		return 0
	}
	return float64(int32(e.Qlong)-int32(e.Qshort)) / float64(e.Qlong)
}

// Energy returns the long-gate charge integral used as the energy axis.
func (e Event) Energy() float64 {
	return float64(e.Qlong)
}

// DecodeFile splits a contiguous run of 16-byte event records, as found
// in an .ade file. It rejects a buffer whose length is not a multiple
// of Size.
func DecodeFile(buf []byte) ([]Event, error) {
	if len(buf)%Size != 0 {
		return nil, xerrors.Errorf("event: file length %d is not a multiple of %d", len(buf), Size)
	}
	n := len(buf) / Size
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		ev, err := Decode(buf[i*Size : (i+1)*Size])
		if err != nil {
			return nil, xerrors.Errorf("event: could not decode record %d: %w", i, err)
		}
		out[i] = ev
	}
	return out, nil
}

// EncodeFile concatenates the 16-byte encoding of every event in evs.
func EncodeFile(evs []Event) []byte {
	buf := make([]byte, len(evs)*Size)
	for i, e := range evs {
		EncodeInto(e, buf[i*Size:(i+1)*Size])
	}
	return buf
}
