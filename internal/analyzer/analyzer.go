// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analyzer

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/abcd-daq/abcd/internal/config"
	"github.com/abcd-daq/abcd/internal/event"
	"github.com/abcd-daq/abcd/internal/procmon"
	"github.com/abcd-daq/abcd/internal/status"
	"github.com/abcd-daq/abcd/internal/transport"
)

// DataSource abstracts the SUB-style waveform input socket.
type DataSource interface {
	TryRecv() ([]byte, bool, error)
}

// CommandSource abstracts a PULL-style command endpoint, matching
// acqctl's own minimal transport seam so the analyzer answers to the
// same command vocabulary while tests can substitute a fake.
type CommandSource interface {
	TryRecv() ([]byte, bool, error)
}

// TopicSink abstracts a PUB-style topic-framed publisher, matching
// acqctl's own minimal transport seam.
type TopicSink interface {
	SendTopic(prefix string, msgID *uint64, payload []byte) error
}

// Channel holds one configured analysis channel's plugin pair and
// running state.
type Channel struct {
	Enabled   bool
	Timestamp TimestampPlugin
	Energy    EnergyPlugin

	tsState  UserState
	enState  UserState
	opened   bool
}

// Analyzer is the per-channel pluggable waveform analyzer (C6): a
// separate process consuming the waveform topic, structurally
// identical in shape to the acquisition controller's reduced state
// machine (§4.3) but driving plugins instead of hardware.
type Analyzer struct {
	Msg *Msgr

	Data        DataSource
	Cmds        CommandSource
	StatusPub   TopicSink
	EventPub    TopicSink
	WaveformPub TopicSink

	ForwardWaveforms bool
	StatusPeriod     time.Duration

	Channels map[uint8]*Channel

	active   map[uint8]bool
	disabled map[uint8]bool
	counters *status.Counters

	eventMsgID    uint64
	waveformMsgID uint64
	lastStatus    time.Time
}

// New returns an Analyzer with the always-available Null/SimplePSD
// channel left for the caller to assign per configured channel.
func New() *Analyzer {
	return &Analyzer{
		Msg:          &Msgr{log.New(os.Stdout, "analyzer: ", 0)},
		Channels:     make(map[uint8]*Channel),
		active:       make(map[uint8]bool),
		disabled:     make(map[uint8]bool),
		counters:     status.NewCounters(),
		StatusPeriod: 5 * time.Second,
	}
}

// DefaultChannel returns a Channel wired to the built-in Null
// timestamp / SimplePSD energy pair, always available per §4.3.
func DefaultChannel() *Channel {
	return &Channel{Enabled: true, Timestamp: NullTimestamp, Energy: SimplePSD}
}

// ApplyConfig resolves a fresh channel set's plugin pairs and swaps
// them in, closing the previous set's opened plugins first — the
// mid-run reconfigure path of the analyzer's
// ⇄ RECEIVE_COMMANDS → READ_SOCKET cycle (§4.3, unchanged from the
// controller's own RECEIVE_COMMANDS/CONFIGURE_DIGITIZER handling).
// Channels not present (or not enabled) in channels are dropped.
func (a *Analyzer) ApplyConfig(channels []config.Channel) error {
	next := make(map[uint8]*Channel, len(channels))
	for i, cc := range channels {
		if !cc.Enabled {
			continue
		}
		num := uint8(i)

		ch := DefaultChannel()
		if cc.TimestampLibrary != "" {
			tp, err := LoadTimestampPlugin(cc.TimestampLibrary)
			if err != nil {
				return fmt.Errorf("channel %d: %w", num, err)
			}
			ch.Timestamp = tp
		}
		if cc.EnergyLibrary != "" {
			ep, err := LoadEnergyPlugin(cc.EnergyLibrary)
			if err != nil {
				return fmt.Errorf("channel %d: %w", num, err)
			}
			ch.Energy = ep
		}
		next[num] = ch
	}

	a.Close()
	a.Channels = next
	return nil
}

// Reconfigure applies a "reconfigure" command's JSON arguments, a
// full configuration document of which only the channels array is
// consulted.
func (a *Analyzer) Reconfigure(args json.RawMessage) error {
	var cfg config.Config
	if err := json.Unmarshal(args, &cfg); err != nil {
		return fmt.Errorf("could not parse reconfigure arguments: %w", err)
	}
	return a.ApplyConfig(cfg.Channels)
}

// pollCommands drains every command message currently available on
// Cmds, mirroring acqctl.Controller.doReceiveCommands's dispatch: the
// analyzer only understands "reconfigure", everything else is logged
// and ignored rather than erroring the whole process.
func (a *Analyzer) pollCommands(ctx Context) error {
	if a.Cmds == nil {
		return nil
	}
	for {
		msg, ok, err := a.Cmds.TryRecv()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		var cmd transport.Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			a.Msg.Warnf("malformed command: %v", err)
			continue
		}
		switch cmd.Command {
		case transport.CmdReconfigure:
			if err := a.Reconfigure(cmd.Arguments); err != nil {
				a.Msg.Errorf("reconfigure: %v", err)
			}
		default:
			a.Msg.Warnf("unsupported command %q", cmd.Command)
		}
	}
}

// openChannel lazily runs a channel's plugin Init hooks exactly once.
func (a *Analyzer) openChannel(ctx Context, ch *Channel) error {
	if ch.opened {
		return nil
	}
	if ch.Timestamp.Init != nil {
		st, err := ch.Timestamp.Init(nil)
		if err != nil {
			return fmt.Errorf("timestamp_init: %w", err)
		}
		ch.tsState = st
	}
	if ch.Energy.Init != nil {
		st, err := ch.Energy.Init(nil)
		if err != nil {
			return fmt.Errorf("energy_init: %w", err)
		}
		ch.enState = st
	}
	ch.opened = true
	return nil
}

// Close runs every opened channel's Close hooks, matching one init
// call to exactly one close call on reconfigure or shutdown.
func (a *Analyzer) Close() {
	for _, ch := range a.Channels {
		if !ch.opened {
			continue
		}
		if ch.Timestamp.Close != nil {
			if err := ch.Timestamp.Close(ch.tsState); err != nil {
				a.Msg.Warnf("timestamp_close: %v", err)
			}
		}
		if ch.Energy.Close != nil {
			if err := ch.Energy.Close(ch.enState); err != nil {
				a.Msg.Warnf("energy_close: %v", err)
			}
		}
		ch.opened = false
	}
}

// Poll drains every waveform message currently available on Data and
// dispatches each, returning the number handled.
func (a *Analyzer) Poll(ctx Context) (int, error) {
	if err := a.pollCommands(ctx); err != nil {
		return 0, err
	}

	n := 0
	for {
		msg, ok, err := a.Data.TryRecv()
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		topic, payload, err := transport.SplitFrame(msg)
		if err != nil {
			a.Msg.Warnf("malformed frame: %v", err)
			continue
		}
		if topic.Prefix != "data_abcd_waveforms" {
			continue
		}
		if err := a.handleMessage(ctx, payload); err != nil {
			a.Msg.Warnf("handle message: %v", err)
		}
		n++
	}
	if time.Since(a.lastStatus) >= a.StatusPeriod {
		a.publishStatus(ctx)
	}
	return n, nil
}

// handleMessage implements the dispatch loop of §4.3 for one
// topic-framed message: walk the buffer record by record, route
// disabled channels aside, run the plugin pair, and publish the
// resulting event (and, if enabled, waveform) buffers.
func (a *Analyzer) handleMessage(ctx Context, payload []byte) error {
	r := event.NewReader(payload)

	var eventsOut []byte
	var waveformsOut []byte

	for {
		wf, ok, err := r.Next()
		if err != nil {
			a.Msg.Warnf("truncated record, skipping rest of message: %v", err)
			break
		}
		if !ok {
			break
		}

		ch, known := a.Channels[wf.Channel]
		if !known || !ch.Enabled {
			a.disabled[wf.Channel] = true
			continue
		}
		a.active[wf.Channel] = true
		delete(a.disabled, wf.Channel)

		if err := a.openChannel(ctx, ch); err != nil {
			a.Msg.Errorf("channel %d: %v", wf.Channel, err)
			continue
		}

		triggers, err := ch.Timestamp.Analysis(wf.Samples, &wf, ch.tsState)
		if err != nil {
			a.Msg.Warnf("channel %d: timestamp_analysis: %v", wf.Channel, err)
			continue
		}

		for _, pos := range triggers {
			ev := event.Event{Timestamp: wf.Timestamp, Channel: wf.Channel}
			if err := ch.Energy.Analysis(wf.Samples, &wf, pos, &ev, ch.enState); err != nil {
				a.Msg.Warnf("channel %d: energy_analysis: %v", wf.Channel, err)
				continue
			}
			eventsOut = append(eventsOut, event.Encode(ev)...)
			a.counters.AddEvent(wf.Channel)
		}
		a.counters.AddTrigger(wf.Channel)

		if a.ForwardWaveforms {
			out, err := wf.Encode(waveformsOut)
			if err != nil {
				a.Msg.Warnf("channel %d: could not re-encode waveform: %v", wf.Channel, err)
			} else {
				waveformsOut = out
			}
		}
	}

	if len(eventsOut) > 0 && a.EventPub != nil {
		id := a.eventMsgID
		if err := a.EventPub.SendTopic("data_abcd_events", &id, eventsOut); err != nil {
			return err
		}
		a.eventMsgID++
	}
	if len(waveformsOut) > 0 && a.WaveformPub != nil {
		id := a.waveformMsgID
		if err := a.WaveformPub.SendTopic("data_abcd_waveforms", &id, waveformsOut); err != nil {
			return err
		}
		a.waveformMsgID++
	}
	return nil
}

func (a *Analyzer) publishStatus(ctx Context) {
	elapsed := time.Since(a.lastStatus)
	a.lastStatus = time.Now()

	active := make([]int, 0, len(a.active))
	for ch := range a.active {
		active = append(active, int(ch))
	}
	disabled := make([]int, 0, len(a.disabled))
	for ch := range a.disabled {
		disabled = append(disabled, int(ch))
	}

	st := transport.Status{
		Module:           "abcd-waan",
		Timestamp:        transport.NowISO8601(time.Now()),
		Type:             "event",
		Event:            "publish_status",
		ActiveChannels:   active,
		DisabledChannels: disabled,
	}
	if buf, err := json.Marshal(map[string]interface{}{
		"rates":     a.counters.Rates(elapsed),
		"ICR_rates": a.counters.ICRRates(elapsed),
	}); err == nil {
		st.Statuses = buf
	}
	if buf, err := json.Marshal(procmon.Sample()); err == nil {
		st.Process = buf
	}
	a.counters.ResetPartial()

	if a.StatusPub == nil {
		return
	}
	if buf, err := json.Marshal(st); err == nil {
		_ = a.StatusPub.SendTopic("status_abcd_waan", nil, buf)
	}
}
