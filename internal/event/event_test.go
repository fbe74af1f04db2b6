// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event_test

import (
	"reflect"
	"testing"

	"github.com/abcd-daq/abcd/internal/event"
)

func TestEventRoundTrip(t *testing.T) {
	evs := []event.Event{
		{},
		{Timestamp: 1<<40 + 7, Qshort: 100, Qlong: 1000, Baseline: 64, Channel: 3, GroupCounter: 1},
		{Timestamp: ^uint64(0), Qshort: 0xffff, Qlong: 0xffff, Baseline: 0xffff, Channel: 0xff, GroupCounter: 0xff},
	}
	for _, want := range evs {
		buf := event.Encode(want)
		if len(buf) != event.Size {
			t.Fatalf("encode size = %d, want %d", len(buf), event.Size)
		}
		got, err := event.Decode(buf)
		if err != nil {
			t.Fatalf("decode: %+v", err)
		}
		if got != want {
			t.Fatalf("round-trip mismatch: got=%+v, want=%+v", got, want)
		}
	}
}

func TestEventFileRejectsBadLength(t *testing.T) {
	_, err := event.DecodeFile(make([]byte, event.Size+1))
	if err == nil {
		t.Fatalf("expected error for non-multiple-of-%d length", event.Size)
	}
}

func TestWaveformRoundTrip(t *testing.T) {
	w := event.Waveform{
		Timestamp: 123456789,
		Channel:   5,
		Samples:   []int16{10, 20, 30, -5, -100},
	}
	p0 := w.AppendPlane()
	for i := range p0 {
		p0[i] = uint8(i)
	}
	p1 := w.AppendPlane()
	for i := range p1 {
		p1[i] = uint8(2 * i)
	}

	buf, err := w.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %+v", err)
	}
	if len(buf) != w.Size() {
		t.Fatalf("encoded length = %d, want %d", len(buf), w.Size())
	}

	r := event.NewReader(buf)
	got, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%+v", ok, err)
	}
	if !reflect.DeepEqual(got.Samples, w.Samples) {
		t.Fatalf("samples mismatch: got=%v, want=%v", got.Samples, w.Samples)
	}
	if !reflect.DeepEqual(got.Planes, w.Planes) {
		t.Fatalf("planes mismatch: got=%v, want=%v", got.Planes, w.Planes)
	}
	if r.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", r.Remaining())
	}
}

func TestWaveformReaderConcatenatedRecords(t *testing.T) {
	a := event.Waveform{Timestamp: 1, Channel: 0, Samples: []int16{1, 2, 3}}
	b := event.Waveform{Timestamp: 2, Channel: 1, Samples: []int16{4, 5}}

	var buf []byte
	var err error
	buf, err = a.Encode(buf)
	if err != nil {
		t.Fatalf("encode a: %+v", err)
	}
	buf, err = b.Encode(buf)
	if err != nil {
		t.Fatalf("encode b: %+v", err)
	}

	r := event.NewReader(buf)
	for _, want := range []event.Waveform{a, b} {
		got, ok, err := r.Next()
		if err != nil || !ok {
			t.Fatalf("next: ok=%v err=%+v", ok, err)
		}
		if got.Timestamp != want.Timestamp || got.Channel != want.Channel {
			t.Fatalf("header mismatch: got=%+v, want=%+v", got, want)
		}
	}
	if _, ok, err := r.Next(); ok || err != nil {
		t.Fatalf("expected clean end of buffer, got ok=%v err=%+v", ok, err)
	}
}

func TestWaveformReaderTruncated(t *testing.T) {
	w := event.Waveform{Timestamp: 1, Channel: 0, Samples: []int16{1, 2, 3, 4}}
	buf, err := w.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %+v", err)
	}

	r := event.NewReader(buf[:len(buf)-1])
	if _, _, err := r.Next(); err == nil {
		t.Fatalf("expected truncation error")
	}

	r = event.NewReader(buf[:HeaderSizeMinusOne()])
	if _, _, err := r.Next(); err == nil {
		t.Fatalf("expected short-header error")
	}
}

func HeaderSizeMinusOne() int { return event.HeaderSize - 1 }
