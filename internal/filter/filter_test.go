// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package filter_test

import (
	"testing"

	"github.com/abcd-daq/abcd/internal/event"
	"github.com/abcd-daq/abcd/internal/filter"
	"github.com/abcd-daq/abcd/internal/transport"
)

// square polygon covering PSD in [0.4, 0.6] for energy in [0, 1000].
var squarePolygonJSON = []byte(`[
	{"x": 0, "y": 0.4},
	{"x": 1000, "y": 0.4},
	{"x": 1000, "y": 0.6},
	{"x": 0, "y": 0.6}
]`)

func TestLoadPolygonRejectsTooFewPoints(t *testing.T) {
	if _, _, err := filter.LoadPolygon([]byte(`[{"x":0,"y":0},{"x":1,"y":1}]`)); err == nil {
		t.Fatalf("expected an error for a 2-point polygon")
	}
}

func TestSelectClassifiesByPSD(t *testing.T) {
	polygon, bb, err := filter.LoadPolygon(squarePolygonJSON)
	if err != nil {
		t.Fatalf("LoadPolygon: %+v", err)
	}
	f := filter.New(polygon, bb)

	inside := event.Event{Qlong: 100, Qshort: 50} // PSD = 0.5
	outside := event.Event{Qlong: 100, Qshort: 95} // PSD = 0.05

	got := f.Select([]event.Event{inside, outside})
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 selected event, got %d", len(got))
	}
	if got[0] != inside {
		t.Fatalf("selected the wrong event: %+v", got[0])
	}
}

type fakeSource struct {
	msgs [][]byte
	i    int
}

func (f *fakeSource) TryRecv() ([]byte, bool, error) {
	if f.i >= len(f.msgs) {
		return nil, false, nil
	}
	m := f.msgs[f.i]
	f.i++
	return m, true, nil
}

type fakeSink struct {
	sent [][]byte
}

func (f *fakeSink) SendTopic(prefix string, msgID *uint64, payload []byte) error {
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func TestPollRepublishesOnlySelected(t *testing.T) {
	polygon, bb, err := filter.LoadPolygon(squarePolygonJSON)
	if err != nil {
		t.Fatalf("LoadPolygon: %+v", err)
	}
	f := filter.New(polygon, bb)

	evs := []event.Event{
		{Qlong: 100, Qshort: 50},
		{Qlong: 100, Qshort: 95},
	}
	payload := event.EncodeFile(evs)
	msg := transport.Frame(transport.Topic{Prefix: "data_abcd_events"}, payload)

	sink := &fakeSink{}
	f.Data = &fakeSource{msgs: [][]byte{msg}}
	f.Events = sink

	n, err := f.Poll()
	if err != nil {
		t.Fatalf("Poll: %+v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 message handled, got %d", n)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected exactly one republished buffer, got %d", len(sink.sent))
	}

	out, err := event.DecodeFile(sink.sent[0])
	if err != nil {
		t.Fatalf("decode: %+v", err)
	}
	if len(out) != 1 || out[0].Qshort != 50 {
		t.Fatalf("unexpected republished events: %+v", out)
	}
	if f.TotalEvents != 2 || f.TotalSelected != 1 {
		t.Fatalf("counters: total=%d selected=%d", f.TotalEvents, f.TotalSelected)
	}
}
