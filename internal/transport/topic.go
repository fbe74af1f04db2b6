// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport implements the topic-framed pub/sub and pull
// sockets that carry waveform, event and status traffic between the
// acquisition controller, the analyzer, and the filter/selector
// stages. Every data-channel message is built as
// "<prefix>_v0[_n<msg_id>]_s<payload_bytes>\x00<payload>" — the NUL
// byte is never produced by the topic grammar itself, so it is a safe,
// unambiguous separator between the topic and the raw payload that
// follows it. Subscribers filter by the topic's prefix, which is
// exactly how the underlying nanomsg SUB socket already matches
// messages (a byte-prefix test against the start of the message).
package transport

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

const sep = 0x00

// Topic is a parsed data-channel topic frame.
type Topic struct {
	Prefix       string
	MsgID        *uint64 // nil if the prefix carries no message id
	PayloadBytes int
}

// String renders the topic grammar
// "<prefix>_v0[_n<msg_id>]_s<payload_bytes>".
func (t Topic) String() string {
	var b strings.Builder
	b.WriteString(t.Prefix)
	b.WriteString("_v0")
	if t.MsgID != nil {
		fmt.Fprintf(&b, "_n%d", *t.MsgID)
	}
	fmt.Fprintf(&b, "_s%d", t.PayloadBytes)
	return b.String()
}

// ParseTopic parses a topic string of the form
// "<prefix>_v0[_n<msg_id>]_s<payload_bytes>".
func ParseTopic(s string) (Topic, error) {
	i := strings.Index(s, "_v0")
	if i < 0 {
		return Topic{}, xerrors.Errorf("transport: topic %q has no _v0 marker", s)
	}
	t := Topic{Prefix: s[:i]}
	rest := s[i+len("_v0"):]

	if strings.HasPrefix(rest, "_n") {
		rest = rest[len("_n"):]
		j := strings.Index(rest, "_s")
		if j < 0 {
			return Topic{}, xerrors.Errorf("transport: topic %q has _n without trailing _s", s)
		}
		id, err := strconv.ParseUint(rest[:j], 10, 64)
		if err != nil {
			return Topic{}, xerrors.Errorf("transport: invalid msg_id in topic %q: %w", s, err)
		}
		t.MsgID = &id
		rest = rest[j:]
	}

	if !strings.HasPrefix(rest, "_s") {
		return Topic{}, xerrors.Errorf("transport: topic %q missing _s<bytes> suffix", s)
	}
	n, err := strconv.Atoi(rest[len("_s"):])
	if err != nil {
		return Topic{}, xerrors.Errorf("transport: invalid payload size in topic %q: %w", s, err)
	}
	t.PayloadBytes = n
	return t, nil
}

// Frame concatenates topic and payload into a single wire message.
func Frame(t Topic, payload []byte) []byte {
	t.PayloadBytes = len(payload)
	topic := t.String()
	out := make([]byte, 0, len(topic)+1+len(payload))
	out = append(out, topic...)
	out = append(out, sep)
	out = append(out, payload...)
	return out
}

// SplitFrame separates a wire message into its topic and payload,
// validating that the declared payload size matches what followed the
// separator.
func SplitFrame(msg []byte) (Topic, []byte, error) {
	i := indexByte(msg, sep)
	if i < 0 {
		return Topic{}, nil, xerrors.Errorf("transport: message has no topic/payload separator")
	}
	t, err := ParseTopic(string(msg[:i]))
	if err != nil {
		return Topic{}, nil, err
	}
	payload := msg[i+1:]
	if len(payload) != t.PayloadBytes {
		return Topic{}, nil, xerrors.Errorf("transport: declared payload size %d does not match actual %d", t.PayloadBytes, len(payload))
	}
	return t, payload, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// HasPrefix reports whether msg's topic begins with prefix, without
// fully parsing it — the same test a SUB socket subscription performs.
func HasPrefix(msg []byte, prefix string) bool {
	return len(msg) >= len(prefix) && string(msg[:len(prefix)]) == prefix
}
