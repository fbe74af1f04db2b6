// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digitizer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/abcd-daq/abcd/internal/mmap"
	"golang.org/x/sys/unix"
)

// wideDAQ implements Digitizer for the high-channel-count board family
// whose DMA ring lives in a /dev/shm segment shared with a kernel
// driver, adapted from eda.Device's os.OpenFile + mmap.HandleFrom
// pattern (board.go/device.go map the HPS-to-FPGA bus the same way).
//
// Ring layout (little-endian), one fixed-size record per slot:
//
//	u64 timestamp | u8 channel | u32 nsamples | u16 samples[nsamples]
type wideDAQ struct {
	common
	ts *timestampCorrector

	fd     *os.File
	mem    *mmap.Handle
	ring   []byte
	slot   int
	nslots int

	readHead int
	recordSz int
}

const wideDAQRecordHeader = 8 + 1 + 4 // timestamp + channel + nsamples

func newWideDAQ(name string, nchans int, tsBits uint) (*wideDAQ, error) {
	if nchans <= 0 {
		return nil, newErr("newWideDAQ", Invalid, fmt.Errorf("channels number must be positive"))
	}
	d := &wideDAQ{
		common: newCommon("WideDAQ", nchans),
		ts:     newTimestampCorrector(tsBits),
	}
	d.name = name
	return d, nil
}

type wideDAQSettings struct {
	ShmPath      string `json:"shm_path"`
	RecordLength int    `json:"record_length"`
	Slots        int    `json:"slots"`
}

func (d *wideDAQ) Initialize() error { return nil }

func (d *wideDAQ) ReadConfig(settings json.RawMessage) error {
	var s wideDAQSettings
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &s); err != nil {
			return newErr("ReadConfig", Invalid, err)
		}
	}
	if s.ShmPath == "" {
		return newErr("ReadConfig", Invalid, fmt.Errorf("shm_path is required for WideDAQ"))
	}
	if s.RecordLength <= 0 {
		s.RecordLength = 2048
	}
	if s.Slots <= 0 {
		s.Slots = 64
	}
	d.recordSz = wideDAQRecordHeader + 2*s.RecordLength
	d.nslots = s.Slots

	fd, err := os.OpenFile(s.ShmPath, os.O_RDWR, 0666)
	if err != nil {
		return newErr("ReadConfig", IO, err)
	}
	size := d.recordSz * d.nslots
	data, err := unix.Mmap(int(fd.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = fd.Close()
		return newErr("ReadConfig", IO, err)
	}
	d.fd = fd
	d.mem = mmap.HandleFrom(data)
	d.ring = data
	return nil
}

func (d *wideDAQ) Configure() error {
	if d.mem == nil {
		return newErr("Configure", NotReady, fmt.Errorf("ReadConfig must set shm_path first"))
	}
	return nil
}

func (d *wideDAQ) StartAcquisition() error     { return nil }
func (d *wideDAQ) RearmTrigger() error         { return nil }
func (d *wideDAQ) StopAcquisition() error      { return nil }
func (d *wideDAQ) ForceSoftwareTrigger() error { return newErr("ForceSoftwareTrigger", Unsupported, nil) }

func (d *wideDAQ) ResetOverflow() error {
	return nil
}

func (d *wideDAQ) AcquisitionReady() bool {
	return d.mem != nil && d.slotTimestamp(d.readHead) != 0
}

func (d *wideDAQ) DataOverflow() bool { return false }

func (d *wideDAQ) slotTimestamp(slot int) uint64 {
	off := slot * d.recordSz
	return binary.LittleEndian.Uint64(d.ring[off : off+8])
}

// GetWaveforms drains every ring slot with a non-zero timestamp
// starting at readHead, the way a DMA consumer walks a circular buffer
// behind a kernel producer.
func (d *wideDAQ) GetWaveforms(dst []Waveform) ([]Waveform, error) {
	if d.mem == nil {
		return dst, newErr("GetWaveforms", NotReady, fmt.Errorf("not configured"))
	}
	for i := 0; i < d.nslots; i++ {
		off := d.readHead * d.recordSz
		rawTS := binary.LittleEndian.Uint64(d.ring[off : off+8])
		if rawTS == 0 {
			break
		}
		channel := d.ring[off+8]
		nsamp := int(binary.LittleEndian.Uint32(d.ring[off+9 : off+13]))
		samples := make([]uint16, nsamp)
		base := off + wideDAQRecordHeader
		for s := 0; s < nsamp; s++ {
			samples[s] = binary.LittleEndian.Uint16(d.ring[base+2*s : base+2*s+2])
		}
		// mark the slot consumed
		binary.LittleEndian.PutUint64(d.ring[off:off+8], 0)

		dst = append(dst, Waveform{
			Channel:   channel,
			Timestamp: d.ts.Correct(rawTS),
			Samples:   samples,
		})
		d.readHead = (d.readHead + 1) % d.nslots
	}
	return dst, nil
}

func (d *wideDAQ) Close() error {
	var err error
	if d.mem != nil {
		err = d.mem.Close()
		d.mem = nil
	}
	if d.fd != nil {
		if e := d.fd.Close(); err == nil {
			err = e
		}
	}
	return err
}
