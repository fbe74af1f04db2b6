// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digitizer

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/abcd-daq/abcd/internal/crc16"
)

// Legacy frame markers, adapted from dif.Readout's global/frame/trailer
// marker bytes: the legacy 2/4-channel boards predate FWDAQ/FWPD and
// talk over a byte-oriented link framed the same way.
const (
	legacyHeader  = 0xb4
	legacyTrailer = 0xa3
)

// legacy implements Digitizer for LegacyFast2ch/LegacyFast4ch, reading
// CRC-16 framed records off a byte stream instead of a DMA ring.
type legacy struct {
	common
	kind Kind
	ts   *timestampCorrector

	rw       io.ReadWriter
	r        *bufio.Reader
	overflow bool

	recordLen int
}

func newLegacy(name string, kind Kind, nchans int, tsBits uint) (*legacy, error) {
	if nchans <= 0 {
		return nil, newErr("newLegacy", Invalid, fmt.Errorf("channels number must be positive"))
	}
	d := &legacy{
		common: newCommon(kind.String(), nchans),
		kind:   kind,
		ts:     newTimestampCorrector(tsBits),
	}
	d.name = name
	return d, nil
}

// SetSource wires the byte stream the legacy frame reader consumes;
// callers provide a real serial/TCP connection in production and an
// in-memory pipe in tests.
func (d *legacy) SetSource(rw io.ReadWriter) {
	d.rw = rw
	d.r = bufio.NewReader(rw)
}

func (d *legacy) Initialize() error {
	if d.rw == nil {
		return newErr("Initialize", NotReady, fmt.Errorf("no source configured"))
	}
	return nil
}

type legacySettings struct {
	RecordLength int `json:"record_length"`
}

func (d *legacy) ReadConfig(settings json.RawMessage) error {
	if len(settings) == 0 {
		d.recordLen = 2048
		return nil
	}
	var s legacySettings
	if err := json.Unmarshal(settings, &s); err != nil {
		return newErr("ReadConfig", Invalid, err)
	}
	if s.RecordLength <= 0 {
		s.RecordLength = 2048
	}
	d.recordLen = s.RecordLength
	return nil
}

func (d *legacy) Configure() error {
	if d.rw == nil {
		return newErr("Configure", NotReady, fmt.Errorf("no source configured"))
	}
	return nil
}

func (d *legacy) StartAcquisition() error     { return nil }
func (d *legacy) RearmTrigger() error         { return nil }
func (d *legacy) StopAcquisition() error      { return nil }
func (d *legacy) ForceSoftwareTrigger() error { return newErr("ForceSoftwareTrigger", Unsupported, nil) }

func (d *legacy) ResetOverflow() error {
	d.overflow = false
	return nil
}

func (d *legacy) AcquisitionReady() bool { return d.r != nil && d.r.Buffered() > 0 }
func (d *legacy) DataOverflow() bool     { return d.overflow }

// GetWaveforms blocks for one complete frame off the legacy link, then
// drains any further frames already buffered without blocking again —
// the byte-oriented link has no DMA ring to poll, so the first frame
// is always a blocking read.
func (d *legacy) GetWaveforms(dst []Waveform) ([]Waveform, error) {
	if d.r == nil {
		return dst, newErr("GetWaveforms", NotReady, fmt.Errorf("no source configured"))
	}
	wf, err := d.readFrame()
	if err != nil {
		return dst, err
	}
	dst = append(dst, wf)

	for d.r.Buffered() > 0 {
		wf, err := d.readFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return dst, err
		}
		dst = append(dst, wf)
	}
	return dst, nil
}

func (d *legacy) readFrame() (Waveform, error) {
	crc := crc16.New(nil)
	r := io.TeeReader(d.r, hashWriter{crc})

	hdr := make([]byte, 1+1+8+2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Waveform{}, newErr("GetWaveforms", IO, err)
		}
		return Waveform{}, err
	}
	if hdr[0] != legacyHeader {
		d.overflow = true
		return Waveform{}, newErr("GetWaveforms", Invalid, fmt.Errorf("bad frame header 0x%x", hdr[0]))
	}
	channel := hdr[1]
	rawTS := binary.BigEndian.Uint64(hdr[2:10])
	nsamp := int(binary.BigEndian.Uint16(hdr[10:12]))

	samples := make([]uint16, nsamp)
	buf := make([]byte, 2*nsamp)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Waveform{}, newErr("GetWaveforms", IO, err)
	}
	for i := 0; i < nsamp; i++ {
		samples[i] = binary.BigEndian.Uint16(buf[2*i : 2*i+2])
	}

	trailer := make([]byte, 1)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return Waveform{}, newErr("GetWaveforms", IO, err)
	}
	if trailer[0] != legacyTrailer {
		return Waveform{}, newErr("GetWaveforms", Invalid, fmt.Errorf("bad frame trailer 0x%x", trailer[0]))
	}

	wantCRC := make([]byte, 2)
	if _, err := io.ReadFull(d.r, wantCRC); err != nil {
		return Waveform{}, newErr("GetWaveforms", IO, err)
	}
	gotCRC := crc.Sum16()
	recvCRC := binary.BigEndian.Uint16(wantCRC)
	if gotCRC != recvCRC {
		return Waveform{}, newErr("GetWaveforms", Invalid, fmt.Errorf("crc mismatch: got=0x%04x want=0x%04x", gotCRC, recvCRC))
	}

	return Waveform{
		Channel:   channel,
		Timestamp: d.ts.Correct(rawTS),
		Samples:   samples,
	}, nil
}

// hashWriter adapts crc16.Hash16 to io.Writer for use with io.TeeReader.
type hashWriter struct{ h crc16.Hash16 }

func (w hashWriter) Write(p []byte) (int, error) { return w.h.Write(p) }

func (d *legacy) Close() error {
	if c, ok := d.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
