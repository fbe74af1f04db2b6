// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"go.nanomsg.org/mangos/v3/protocol/sub"
	_ "go.nanomsg.org/mangos/v3/transport/tcp" // registers the tcp:// transport
	"golang.org/x/xerrors"
)

// pollInterval bounds how long a non-blocking Recv may wait before
// giving up: the acquisition and analyzer main loops must never block
// on an empty socket (§5, suspension points).
const pollInterval = time.Millisecond

// PubSocket publishes topic-framed messages: status frames, or
// waveform/event bursts on the data channel.
type PubSocket struct {
	sock mangos.Socket
}

// NewPub creates and binds a PUB socket at addr (e.g. "tcp://*:5555").
func NewPub(addr string) (*PubSocket, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, xerrors.Errorf("transport: could not create pub socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, xerrors.Errorf("transport: could not bind pub socket to %q: %w", addr, err)
	}
	return &PubSocket{sock: sock}, nil
}

// SendTopic frames payload under prefix (and optional msgID) and
// publishes it.
func (p *PubSocket) SendTopic(prefix string, msgID *uint64, payload []byte) error {
	msg := Frame(Topic{Prefix: prefix, MsgID: msgID}, payload)
	if err := p.sock.Send(msg); err != nil {
		return xerrors.Errorf("transport: could not publish topic %q: %w", prefix, err)
	}
	return nil
}

// Close releases the socket.
func (p *PubSocket) Close() error { return p.sock.Close() }

// SubSocket subscribes to topic-framed messages matching one or more
// prefixes. When discard is true the subscriber is conflating: only
// the most recently received message is kept, matching the spec's
// discard_messages back-pressure mode.
type SubSocket struct {
	sock mangos.Socket
}

// NewSub dials a SUB socket at addr and subscribes to every prefix.
func NewSub(addr string, prefixes []string, discard bool) (*SubSocket, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, xerrors.Errorf("transport: could not create sub socket: %w", err)
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, xerrors.Errorf("transport: could not dial sub socket to %q: %w", addr, err)
	}
	for _, prefix := range prefixes {
		if err := sock.SetOption(mangos.OptionSubscribe, []byte(prefix)); err != nil {
			sock.Close()
			return nil, xerrors.Errorf("transport: could not subscribe to %q: %w", prefix, err)
		}
	}
	if discard {
		// A shallow receive queue turns the subscriber into a
		// conflating one: the sender keeps publishing, and only the
		// freshest unread message survives once the queue is full.
		_ = sock.SetOption(mangos.OptionReadQLen, 1)
	}
	return &SubSocket{sock: sock}, nil
}

// TryRecv performs a bounded, non-blocking receive: it returns
// (nil, false, nil) if nothing is pending within pollInterval.
func (s *SubSocket) TryRecv() ([]byte, bool, error) {
	_ = s.sock.SetOption(mangos.OptionRecvDeadline, pollInterval)
	msg, err := s.sock.Recv()
	if err != nil {
		if xerrors.Is(err, mangos.ErrRecvTimeout) {
			return nil, false, nil
		}
		return nil, false, xerrors.Errorf("transport: recv failed: %w", err)
	}
	return msg, true, nil
}

// Close releases the socket.
func (s *SubSocket) Close() error { return s.sock.Close() }

// PullSocket receives command envelopes on a PULL endpoint.
type PullSocket struct {
	sock mangos.Socket
}

// NewPull creates and binds a PULL socket at addr.
func NewPull(addr string) (*PullSocket, error) {
	sock, err := pull.NewSocket()
	if err != nil {
		return nil, xerrors.Errorf("transport: could not create pull socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, xerrors.Errorf("transport: could not bind pull socket to %q: %w", addr, err)
	}
	return &PullSocket{sock: sock}, nil
}

// TryRecv performs a bounded, non-blocking receive.
func (p *PullSocket) TryRecv() ([]byte, bool, error) {
	_ = p.sock.SetOption(mangos.OptionRecvDeadline, pollInterval)
	msg, err := p.sock.Recv()
	if err != nil {
		if xerrors.Is(err, mangos.ErrRecvTimeout) {
			return nil, false, nil
		}
		return nil, false, xerrors.Errorf("transport: recv failed: %w", err)
	}
	return msg, true, nil
}

// Close releases the socket.
func (p *PullSocket) Close() error { return p.sock.Close() }

// PushSocket is the dialer-side counterpart of PullSocket, used by
// operator tools (e.g. abcd-ctl) that send commands into a running
// controller or analyzer.
type PushSocket struct {
	sock mangos.Socket
}

// NewPush dials a PUSH socket at addr.
func NewPush(addr string) (*PushSocket, error) {
	sock, err := push.NewSocket()
	if err != nil {
		return nil, xerrors.Errorf("transport: could not create push socket: %w", err)
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, xerrors.Errorf("transport: could not dial push socket to %q: %w", addr, err)
	}
	return &PushSocket{sock: sock}, nil
}

// Send sends a raw command envelope.
func (p *PushSocket) Send(msg []byte) error {
	if err := p.sock.Send(msg); err != nil {
		return xerrors.Errorf("transport: could not send command: %w", err)
	}
	return nil
}

// Close releases the socket.
func (p *PushSocket) Close() error { return p.sock.Close() }
