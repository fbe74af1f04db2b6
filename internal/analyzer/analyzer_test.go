// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analyzer_test

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"

	"github.com/abcd-daq/abcd/internal/analyzer"
	"github.com/abcd-daq/abcd/internal/config"
	"github.com/abcd-daq/abcd/internal/event"
	"github.com/abcd-daq/abcd/internal/transport"
)

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

// TestScenarioA reproduces §8 end-to-end scenario A: one waveform
// message, single 2048-sample record on channel 3, Null timestamp +
// SimplePSD energy, baseline=64, integration_start=110, gate_short=30,
// gate_long=90, negative polarity. Exactly one event is expected, with
// channel=3, the header's timestamp, and qshort/qlong matching the
// fixed-gate charge integral against the baseline.
func TestScenarioA(t *testing.T) {
	const (
		nsamples  = 2048
		baseline  = 64
		dip       = 60 // baseline - dip == 4 per sample inside the gates
		dipStart  = 110
		dipEnd    = 200 // covers both gate_short (30) and gate_long (90)
	)
	samples := make([]int16, nsamples)
	for i := range samples {
		samples[i] = baseline
	}
	for i := dipStart; i < dipEnd; i++ {
		samples[i] = dip
	}

	wf := event.Waveform{Timestamp: 0xdeadbeef, Channel: 3, Samples: samples}
	payload, err := wf.Encode(nil)
	if err != nil {
		t.Fatalf("encode waveform: %+v", err)
	}
	msg := transport.Frame(transport.Topic{Prefix: "data_abcd_waveforms"}, payload)

	a := analyzer.New()
	a.Channels[3] = analyzer.DefaultChannel()
	a.Data = &fakeSource{msgs: [][]byte{msg}}
	sink := &fakeSink{}
	a.EventPub = sink

	ctx := analyzer.Context{Ctx: context.Background(), Msg: &analyzer.Msgr{Logger: log.New(os.Stdout, "test: ", 0)}}
	n, err := a.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %+v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 message handled, got %d", n)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected exactly one published events buffer, got %d", len(sink.sent))
	}

	evs, err := event.DecodeFile(sink.sent[0])
	if err != nil {
		t.Fatalf("decode events: %+v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.Channel != 3 {
		t.Fatalf("channel = %d, want 3", ev.Channel)
	}
	if ev.Timestamp != wf.Timestamp {
		t.Fatalf("timestamp = %d, want %d", ev.Timestamp, wf.Timestamp)
	}
	if ev.Qshort != 30*4 {
		t.Fatalf("qshort = %d, want %d", ev.Qshort, 30*4)
	}
	if ev.Qlong != 90*4 {
		t.Fatalf("qlong = %d, want %d", ev.Qlong, 90*4)
	}
}

func TestUnknownChannelIsDisabledNotError(t *testing.T) {
	samples := make([]int16, 16)
	wf := event.Waveform{Timestamp: 1, Channel: 9, Samples: samples}
	payload, err := wf.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %+v", err)
	}
	msg := transport.Frame(transport.Topic{Prefix: "data_abcd_waveforms"}, payload)

	a := analyzer.New()
	a.Data = &fakeSource{msgs: [][]byte{msg}}
	sink := &fakeSink{}
	a.EventPub = sink

	ctx := analyzer.Context{Ctx: context.Background(), Msg: &analyzer.Msgr{Logger: log.New(os.Stdout, "test: ", 0)}}
	if _, err := a.Poll(ctx); err != nil {
		t.Fatalf("Poll: %+v", err)
	}
	if len(sink.sent) != 0 {
		t.Fatalf("expected no events published for an unconfigured channel")
	}
}

// TestReconfigureEnablesChannelMidRun covers Property 10: a
// "reconfigure" command arriving on Cmds mid-run must take effect on
// the very next Poll, the way RECEIVE_COMMANDS → READ_SOCKET cycles
// back in §4.3 without a restart. Channel 3 starts out unconfigured
// (waveforms on it are silently counted as disabled), then a
// reconfigure command enables it, and the same waveform now produces
// an event.
func TestReconfigureEnablesChannelMidRun(t *testing.T) {
	samples := make([]int16, 16)
	for i := range samples {
		samples[i] = 64
	}
	wf := event.Waveform{Timestamp: 42, Channel: 3, Samples: samples}
	payload, err := wf.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %+v", err)
	}
	msg := transport.Frame(transport.Topic{Prefix: "data_abcd_waveforms"}, payload)

	a := analyzer.New()
	sink := &fakeSink{}
	a.EventPub = sink
	ctx := analyzer.Context{Ctx: context.Background(), Msg: &analyzer.Msgr{Logger: log.New(os.Stdout, "test: ", 0)}}

	a.Data = &fakeSource{msgs: [][]byte{msg}}
	if _, err := a.Poll(ctx); err != nil {
		t.Fatalf("Poll (before reconfigure): %+v", err)
	}
	if len(sink.sent) != 0 {
		t.Fatalf("expected no events before channel 3 is configured")
	}

	channels := make([]config.Channel, 4)
	channels[3] = config.Channel{Enabled: true}
	cfg, err := json.Marshal(config.Config{Channels: channels})
	if err != nil {
		t.Fatalf("marshal config: %+v", err)
	}
	cmd, err := json.Marshal(transport.Command{Command: transport.CmdReconfigure, Arguments: cfg})
	if err != nil {
		t.Fatalf("marshal command: %+v", err)
	}

	a.Cmds = &fakeSource{msgs: [][]byte{cmd}}
	a.Data = &fakeSource{msgs: [][]byte{msg}}
	if _, err := a.Poll(ctx); err != nil {
		t.Fatalf("Poll (after reconfigure): %+v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected channel 3's waveform to produce an event once enabled, got %d published buffers", len(sink.sent))
	}
}
