// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// HeaderSize is the size in bytes of a Waveform's fixed header.
const HeaderSize = 14

// Waveform is a single variable-length waveform record: a header,
// samples_number i16 samples, and additional_waveforms planes of
// samples_number u8 each, used by plugins to carry visualization
// overlays (gates, triggers, filter traces) alongside the raw pulse.
type Waveform struct {
	Timestamp uint64
	Channel   uint8
	Samples   []int16
	Planes    [][]uint8 // each of length len(Samples)
}

// SamplesNumber returns the number of samples in the waveform.
func (w Waveform) SamplesNumber() uint32 { return uint32(len(w.Samples)) }

// AdditionalWaveforms returns the number of additional planes.
func (w Waveform) AdditionalWaveforms() uint8 { return uint8(len(w.Planes)) }

// Size returns size_of(waveform) = 14 + 2*N + A*N.
func (w Waveform) Size() int {
	n := len(w.Samples)
	return HeaderSize + 2*n + len(w.Planes)*n
}

// AppendPlane appends a new additional-waveform plane of the same
// length as Samples, zero-initialized, and returns it for the caller
// to fill in place.
func (w *Waveform) AppendPlane() []uint8 {
	p := make([]uint8, len(w.Samples))
	w.Planes = append(w.Planes, p)
	return p
}

// Encode appends the wire encoding of w to dst and returns the result.
func (w Waveform) Encode(dst []byte) ([]byte, error) {
	n := len(w.Samples)
	if n > 0xffffffff {
		return nil, xerrors.Errorf("event: waveform has too many samples (%d)", n)
	}
	for _, p := range w.Planes {
		if len(p) != n {
			return nil, xerrors.Errorf("event: plane length %d does not match samples_number %d", len(p), n)
		}
	}

	hdr := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(hdr[0:8], w.Timestamp)
	hdr[8] = w.Channel
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(n))
	hdr[13] = uint8(len(w.Planes))
	dst = append(dst, hdr...)

	for _, s := range w.Samples {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(s))
		dst = append(dst, b[0], b[1])
	}
	for _, p := range w.Planes {
		dst = append(dst, p...)
	}
	return dst, nil
}

// Reader walks a byte buffer containing zero or more concatenated
// waveform records, resynchronizing purely from header arithmetic: a
// transport message may pack many records back to back with no
// inter-record delimiters, so truncation can only be detected by
// comparing remaining bytes against the declared record size.
type Reader struct {
	buf []byte
}

// NewReader returns a Reader over buf. buf is not copied.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining reports the number of unconsumed bytes.
func (r *Reader) Remaining() int { return len(r.buf) }

// Next yields the next waveform in the buffer. It returns io.EOF-like
// nil,false,nil when the buffer is exactly exhausted, and an error if
// the remaining bytes are fewer than HeaderSize or less than the
// record's declared size — both cases are protocol-level truncation,
// to be warned about and skipped by the caller, never panicked on.
func (r *Reader) Next() (Waveform, bool, error) {
	if len(r.buf) == 0 {
		return Waveform{}, false, nil
	}
	if len(r.buf) < HeaderSize {
		return Waveform{}, false, xerrors.Errorf("event: truncated waveform header (got=%d bytes, want>=%d)", len(r.buf), HeaderSize)
	}

	hdr := r.buf[:HeaderSize]
	timestamp := binary.LittleEndian.Uint64(hdr[0:8])
	channel := hdr[8]
	samplesNumber := binary.LittleEndian.Uint32(hdr[9:13])
	additional := hdr[13]

	size := HeaderSize + 2*int(samplesNumber) + int(additional)*int(samplesNumber)
	if len(r.buf) < size {
		return Waveform{}, false, xerrors.Errorf("event: truncated waveform record (declared=%d bytes, remaining=%d)", size, len(r.buf))
	}

	rec := r.buf[:size]
	r.buf = r.buf[size:]

	samples := make([]int16, samplesNumber)
	off := HeaderSize
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(rec[off : off+2]))
		off += 2
	}

	var planes [][]uint8
	if additional > 0 {
		planes = make([][]uint8, additional)
		for a := 0; a < int(additional); a++ {
			plane := make([]uint8, samplesNumber)
			copy(plane, rec[off:off+int(samplesNumber)])
			off += int(samplesNumber)
			planes[a] = plane
		}
	}

	return Waveform{
		Timestamp: timestamp,
		Channel:   channel,
		Samples:   samples,
		Planes:    planes,
	}, true, nil
}
