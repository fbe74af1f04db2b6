// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analyzer

import (
	"context"
	"log"
)

// Msgr mirrors acqctl.Msgr: the small Infof/Warnf/Errorf logger
// threaded through the analyzer's own reduced state machine, echoing
// go-daq/tdaq's ctx.Msg convention without depending on tdaq.
type Msgr struct {
	*log.Logger
}

func (m *Msgr) Infof(format string, args ...interface{})  { m.Printf("I: "+format, args...) }
func (m *Msgr) Warnf(format string, args ...interface{})  { m.Printf("W: "+format, args...) }
func (m *Msgr) Errorf(format string, args ...interface{}) { m.Printf("E: "+format, args...) }

// Context is threaded through every dispatch call.
type Context struct {
	Ctx context.Context
	Msg *Msgr
}
