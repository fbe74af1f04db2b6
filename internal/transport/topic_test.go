// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport_test

import (
	"testing"

	"github.com/abcd-daq/abcd/internal/transport"
)

func TestTopicRoundTrip(t *testing.T) {
	id := uint64(42)
	cases := []transport.Topic{
		{Prefix: "data_abcd_waveforms", PayloadBytes: 128},
		{Prefix: "data_abcd_events", MsgID: &id, PayloadBytes: 16},
	}
	for _, want := range cases {
		s := want.String()
		got, err := transport.ParseTopic(s)
		if err != nil {
			t.Fatalf("parse %q: %+v", s, err)
		}
		if got.Prefix != want.Prefix || got.PayloadBytes != want.PayloadBytes {
			t.Fatalf("round-trip mismatch for %q: got=%+v, want=%+v", s, got, want)
		}
		if (got.MsgID == nil) != (want.MsgID == nil) {
			t.Fatalf("msg id presence mismatch for %q", s)
		}
		if got.MsgID != nil && *got.MsgID != *want.MsgID {
			t.Fatalf("msg id mismatch for %q: got=%d, want=%d", s, *got.MsgID, *want.MsgID)
		}
	}
}

func TestFrameSplitRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	id := uint64(7)
	msg := transport.Frame(transport.Topic{Prefix: "data_abcd_events", MsgID: &id}, payload)

	topic, got, err := transport.SplitFrame(msg)
	if err != nil {
		t.Fatalf("split: %+v", err)
	}
	if topic.Prefix != "data_abcd_events" || topic.PayloadBytes != len(payload) {
		t.Fatalf("topic mismatch: %+v", topic)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: got=%v, want=%v", got, payload)
	}
}

func TestHasPrefixMatchesSubFilter(t *testing.T) {
	msg := transport.Frame(transport.Topic{Prefix: "data_abcd_waveforms"}, []byte("x"))
	if !transport.HasPrefix(msg, "data_abcd_waveforms") {
		t.Fatalf("expected prefix match")
	}
	if transport.HasPrefix(msg, "data_abcd_events") {
		t.Fatalf("unexpected prefix match")
	}
}
