// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package acqctl implements the acquisition controller: a
// single-threaded state machine that owns a set of digitizers, drives
// them through configure/start/stop, and republishes waveforms and
// status on the transport layer. The state-action signature and
// logging texture echo go-daq/tdaq's Context/ctx.Msg convention
// (rpi/server.go, cmd/mim-rpi/main.go) without taking tdaq itself as a
// dependency: its fixed six-state lifecycle does not fit this
// package's ~30-state graph.
package acqctl

import (
	"context"
	"log"
)

// Msgr is the small Infof/Warnf/Errorf logger threaded through every
// state action, in place of tdaq's richer message-bus logger.
type Msgr struct {
	*log.Logger
}

func (m *Msgr) Infof(format string, args ...interface{}) {
	m.Printf("I: "+format, args...)
}

func (m *Msgr) Warnf(format string, args ...interface{}) {
	m.Printf("W: "+format, args...)
}

func (m *Msgr) Errorf(format string, args ...interface{}) {
	m.Printf("E: "+format, args...)
}

// Context is threaded through every state action, mirroring the
// ctx.Msg.Infof/Errorf call sites of the teacher's tdaq.Context.
type Context struct {
	Ctx context.Context
	Msg *Msgr
}
