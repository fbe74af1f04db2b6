// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acqctl

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/abcd-daq/abcd/internal/config"
)

func testContext() Context {
	return Context{Ctx: context.Background(), Msg: &Msgr{log.New(os.Stdout, "test: ", 0)}}
}

// TestTerminationReachesStop exercises property 7: injecting the
// termination flag from any state leads to stop within a finite
// number of transitions, passing through the shutdown chain exactly
// once each.
func TestTerminationReachesStop(t *testing.T) {
	c := NewController()
	c.state = StateAcquisitionReceiveCommands
	c.Terminate()

	ctx := testContext()
	visited := map[State]int{}
	for i := 0; i < 64 && c.state != StateStop; i++ {
		visited[c.state]++
		next, err := c.step(ctx)
		if err != nil {
			t.Fatalf("step from %s: %v", c.state, err)
		}
		c.state = next
	}
	if c.state != StateStop {
		t.Fatalf("did not reach stop within bound, stuck at %s", c.state)
	}

	for _, want := range []State{StateClearMemory, StateDestroyDigitizer, StateDestroyControlUnit, StateCloseSockets, StateDestroyContext} {
		if visited[want] != 1 {
			t.Fatalf("state %s visited %d times, want exactly 1", want, visited[want])
		}
	}
}

func TestConfigureDigitizerChannelsNumber(t *testing.T) {
	c := NewController()
	c.cfg = config.Config{
		Global: config.Global{ChannelsPerBoard: 4},
		Cards: []config.Card{
			{Serial: "A", UserID: 0, Enabled: true, Model: "FastDAQ"},
			{Serial: "B", UserID: 1, Enabled: true, Model: "FastPulseDetect"},
			{Serial: "C", UserID: 2, Enabled: false, Model: "FastDAQ"},
		},
	}

	ctx := testContext()
	if _, err := c.doCreateDigitizers(ctx); err != nil {
		t.Fatalf("doCreateDigitizers: %+v", err)
	}
	if len(c.digitizers) != 2 {
		t.Fatalf("expected 2 enabled digitizers, got %d", len(c.digitizers))
	}

	next, err := c.doConfigureDigitizer(ctx)
	if err != nil {
		t.Fatalf("doConfigureDigitizer: %+v", err)
	}
	if next != StateAllocateMemory {
		t.Fatalf("unexpected next state: %s", next)
	}
	if c.channelsNumber != 8 {
		t.Fatalf("channels_number = %d, want 8 (max (user_id+1)*per_board)", c.channelsNumber)
	}
}

type fakeCmdSource struct {
	msgs [][]byte
	i    int
}

func (f *fakeCmdSource) TryRecv() ([]byte, bool, error) {
	if f.i >= len(f.msgs) {
		return nil, false, nil
	}
	m := f.msgs[f.i]
	f.i++
	return m, true, nil
}

func TestReceiveCommandsStart(t *testing.T) {
	c := NewController()
	c.Cmds = &fakeCmdSource{msgs: [][]byte{[]byte(`{"msg_ID":1,"command":"start"}`)}}

	next, err := c.doReceiveCommands(testContext())
	if err != nil {
		t.Fatalf("doReceiveCommands: %+v", err)
	}
	if next != StateStartAcquisition {
		t.Fatalf("got=%s, want=%s", next, StateStartAcquisition)
	}
}

func TestReceiveCommandsQuitLatchesTermination(t *testing.T) {
	c := NewController()
	c.Cmds = &fakeCmdSource{msgs: [][]byte{[]byte(`{"msg_ID":1,"command":"quit"}`)}}

	next, err := c.doReceiveCommands(testContext())
	if err != nil {
		t.Fatalf("doReceiveCommands: %+v", err)
	}
	if next != StateClearMemory {
		t.Fatalf("got=%s, want=%s", next, StateClearMemory)
	}
	if !c.terminate {
		t.Fatalf("expected termination flag to be latched")
	}
}

func TestAcquisitionErrorRestartChain(t *testing.T) {
	c := NewController()
	c.cfg = config.Config{
		Global: config.Global{ChannelsPerBoard: 2},
		Cards:  []config.Card{{Serial: "A", UserID: 0, Enabled: true, Model: "FastDAQ"}},
	}
	ctx := testContext()
	if _, err := c.doCreateDigitizers(ctx); err != nil {
		t.Fatalf("doCreateDigitizers: %+v", err)
	}
	if _, err := c.doConfigureDigitizer(ctx); err != nil {
		t.Fatalf("doConfigureDigitizer: %+v", err)
	}
	if _, err := c.doAllocateMemory(ctx); err != nil {
		t.Fatalf("doAllocateMemory: %+v", err)
	}

	order := []State{
		StateAcquisitionError,
		StateRestartPublishEvents,
		StateRestartStopAcquisition,
		StateRestartClearMemory,
		StateRestartDestroyDigitizer,
		StateRestartCreateDigitizer,
		StateRestartConfigureDigitizer,
		StateRestartAllocateMemory,
	}
	state := order[0]
	for _, want := range order {
		if state != want {
			t.Fatalf("got=%s, want=%s", state, want)
		}
		next, err := c.action(ctx, state)
		if err != nil {
			t.Fatalf("action(%s): %+v", state, err)
		}
		state = next
	}
	if state != StateStartAcquisition {
		t.Fatalf("restart chain should reconverge on start_acquisition, got %s", state)
	}
}
