// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acqctl

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/abcd-daq/abcd/internal/config"
	"github.com/abcd-daq/abcd/internal/digitizer"
	"github.com/abcd-daq/abcd/internal/event"
	"github.com/abcd-daq/abcd/internal/procmon"
	"github.com/abcd-daq/abcd/internal/status"
	"github.com/abcd-daq/abcd/internal/transport"
	"golang.org/x/sync/errgroup"
	"gopkg.in/gomail.v2"
)

// CommandSource abstracts a PULL-style command endpoint so tests can
// substitute a fake without standing up a real mangos socket.
type CommandSource interface {
	TryRecv() ([]byte, bool, error)
}

// TopicSink abstracts a PUB-style topic-framed publisher.
type TopicSink interface {
	SendTopic(prefix string, msgID *uint64, payload []byte) error
}

var (
	_ CommandSource = (*transport.PullSocket)(nil)
	_ TopicSink     = (*transport.PubSocket)(nil)
)

// Mailer sends the operator alert e-mail raised after repeated
// acquisition_error escalations. *gomail.Dialer satisfies it directly.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Controller is the single-threaded acquisition state machine (C4): it
// owns a set of digitizers keyed by serial, republishes their
// waveforms, and answers to the command socket.
type Controller struct {
	Msg *Msgr

	StatusPub TopicSink
	DataPub   TopicSink
	Cmds      CommandSource

	ScriptRunner ScriptRunner
	Mailer       Mailer
	AlertFrom    string
	AlertTo      string

	BasePeriod     time.Duration
	PublishTimeout time.Duration
	StatusPeriod   time.Duration

	cfg     config.Config
	scripts map[config.ScriptKey]config.Script

	digitizers      map[string]digitizer.Digitizer
	digitizerIndex  []string // serial, in digitizer_index order
	digitizerUserID map[string]int
	channelsNumber  int

	counters *status.Counters

	outBuf   []byte
	bufWater int

	waveformMsgID uint64
	eventMsgID    uint64
	statusMsgID   int

	lastPublish time.Time
	lastStatus  time.Time
	runStart    time.Time
	running     bool

	acqErrors      int
	acqErrorLimit  int
	terminate      bool
	simulateError  bool
	state          State
}

// NewController returns a Controller ready to run from state Start.
func NewController() *Controller {
	return &Controller{
		Msg:             &Msgr{log.New(os.Stdout, "acqctl: ", 0)},
		ScriptRunner:    ShellScriptRunner{},
		BasePeriod:      time.Millisecond,
		PublishTimeout:  500 * time.Millisecond,
		StatusPeriod:    5 * time.Second,
		digitizers:      make(map[string]digitizer.Digitizer),
		digitizerUserID: make(map[string]int),
		counters:        status.NewCounters(),
		acqErrorLimit:   3,
		state:           StateStart,
	}
}

// Terminate latches the termination flag observed at the top of the
// next loop iteration.
func (c *Controller) Terminate() { c.terminate = true }

// SimulateError injects the "simulate_error" condition observed by
// acquisition_receive_commands, for exercising the restart chain.
func (c *Controller) SimulateError() { c.simulateError = true }

// State returns the machine's current state, for tests and status
// reporting.
func (c *Controller) State() State { return c.state }

// Run drives the state machine until it reaches Stop or ctx.Ctx is
// canceled.
func (c *Controller) Run(ctx Context) error {
	ticker := time.NewTicker(c.BasePeriod)
	defer ticker.Stop()

	for c.state != StateStop {
		select {
		case <-ctx.Ctx.Done():
			c.terminate = true
		default:
		}

		next, err := c.step(ctx)
		if err != nil {
			ctx.Msg.Errorf("state %s: %v", c.state, err)
		}
		c.state = next

		<-ticker.C
	}
	return nil
}

// Step drives the machine through exactly one state transition and
// returns the state it lands in, for callers (such as the -I
// identify-only CLI path) that need finer control than Run's loop.
func (c *Controller) Step(ctx Context) (State, error) {
	next, err := c.step(ctx)
	c.state = next
	return next, err
}

// DigitizerNames returns the serials of every digitizer created by
// the most recent create_digitizer pass, in digitizer_index order.
func (c *Controller) DigitizerNames() []string {
	return append([]string(nil), c.digitizerIndex...)
}

// step executes exactly one state's pre-script/action/post-script and
// returns the next state.
func (c *Controller) step(ctx Context) (State, error) {
	if c.terminate {
		forced := terminatesTo(c.state)
		if forced != c.state {
			return forced, nil
		}
	}

	runScript(ctx, c.ScriptRunner, c.scripts, c.state, "pre", c.stateContext())
	next, err := c.action(ctx, c.state)
	runScript(ctx, c.ScriptRunner, c.scripts, c.state, "post", c.stateContext())
	return next, err
}

func (c *Controller) stateContext() map[string]interface{} {
	return map[string]interface{}{
		"state":   c.state.String(),
		"running": c.running,
	}
}

func (c *Controller) action(ctx Context, s State) (State, error) {
	switch s {
	case StateStart:
		return StateCreateContext, nil
	case StateCreateContext:
		return StateCreateSockets, nil
	case StateCreateSockets:
		return StateBindSockets, nil
	case StateBindSockets:
		return StateCreateControlUnit, nil
	case StateCreateControlUnit:
		return StateCreateDigitizer, nil
	case StateCreateDigitizer:
		return c.doCreateDigitizers(ctx)
	case StateReadConfig:
		return StateConfigureDigitizer, nil
	case StateConfigureDigitizer:
		return c.doConfigureDigitizer(ctx)
	case StateAllocateMemory:
		return c.doAllocateMemory(ctx)
	case StatePublishStatus:
		return c.doPublishStatus(ctx, StateReceiveCommands)
	case StateReceiveCommands:
		return c.doReceiveCommands(ctx)

	case StateStartAcquisition:
		return c.doStartAcquisition(ctx)
	case StateAcquisitionReceiveCommands:
		return c.doAcquisitionReceiveCommands(ctx)
	case StateReadData:
		return c.doReadData(ctx)
	case StatePublishEvents:
		return c.doPublishEvents(ctx)
	case StateAcquisitionPublishStatus:
		return c.doPublishStatus(ctx, StateAcquisitionReceiveCommands)

	case StateStopPublishEvents:
		_ = c.flush(ctx)
		return StateStopAcquisition, nil
	case StateStopAcquisition:
		c.doStopAcquisition(ctx)
		return StateReceiveCommands, nil

	case StateAcquisitionError:
		c.acqErrors++
		c.maybeAlert(ctx)
		return StateRestartPublishEvents, nil
	case StateRestartPublishEvents:
		_ = c.flush(ctx)
		return StateRestartStopAcquisition, nil
	case StateRestartStopAcquisition:
		c.doStopAcquisition(ctx)
		return StateRestartClearMemory, nil
	case StateRestartClearMemory:
		c.outBuf = nil
		return StateRestartDestroyDigitizer, nil
	case StateRestartDestroyDigitizer:
		c.closeDigitizers(ctx)
		return StateRestartCreateDigitizer, nil
	case StateRestartCreateDigitizer:
		if _, err := c.doCreateDigitizers(ctx); err != nil {
			return StateConfigureError, err
		}
		return StateRestartConfigureDigitizer, nil
	case StateRestartConfigureDigitizer:
		if _, err := c.doConfigureDigitizer(ctx); err != nil {
			return StateConfigureError, err
		}
		return StateRestartAllocateMemory, nil
	case StateRestartAllocateMemory:
		_, err := c.doAllocateMemory(ctx)
		return StateStartAcquisition, err

	case StateClearMemory:
		c.outBuf = nil
		return StateDestroyDigitizer, nil
	case StateDestroyDigitizer:
		c.closeDigitizers(ctx)
		return StateDestroyControlUnit, nil
	case StateDestroyControlUnit:
		return StateCloseSockets, nil
	case StateCloseSockets:
		return StateDestroyContext, nil
	case StateDestroyContext:
		return StateStop, nil
	case StateStop:
		return StateStop, nil

	case StateCommunicationError, StateParseError:
		return StateCloseSockets, fmt.Errorf("%s", s)

	case StateConfigureError:
		return StateReconfigureDestroyDigitizer, nil
	case StateReconfigureDestroyDigitizer:
		c.closeDigitizers(ctx)
		return StateRecreateDigitizer, nil
	case StateRecreateDigitizer:
		if _, err := c.doCreateDigitizers(ctx); err != nil {
			return StateConfigureError, err
		}
		return StateConfigureDigitizer, nil

	case StateDigitizerError:
		return StateReconfigureClearMemory, nil
	case StateReconfigureClearMemory:
		c.outBuf = nil
		return StateReconfigureDestroyDigitizer, nil

	default:
		return StateStop, fmt.Errorf("acqctl: unhandled state %s", s)
	}
}

func (c *Controller) maybeAlert(ctx Context) {
	if c.Mailer == nil || c.acqErrors < c.acqErrorLimit || c.AlertTo == "" {
		return
	}
	m := gomail.NewMessage()
	m.SetHeader("From", c.AlertFrom)
	m.SetHeader("To", c.AlertTo)
	m.SetHeader("Subject", "abcd-daq: repeated acquisition errors")
	m.SetBody("text/plain", fmt.Sprintf("controller has hit %d acquisition errors this run", c.acqErrors))
	if err := c.Mailer.DialAndSend(m); err != nil {
		ctx.Msg.Errorf("could not send operator alert: %v", err)
	}
}

// doCreateDigitizers instantiates (or re-instantiates) one Digitizer
// per enabled card in the loaded configuration.
func (c *Controller) doCreateDigitizers(ctx Context) (State, error) {
	c.digitizers = make(map[string]digitizer.Digitizer)
	c.digitizerIndex = nil

	for _, card := range c.cfg.Cards {
		if !card.Enabled {
			continue
		}
		kind, err := digitizer.ParseKind(card.Model)
		if err != nil {
			return StateConfigureError, fmt.Errorf("card %s: %w", card.Serial, err)
		}
		nchans := c.cfg.Global.ChannelsPerBoard
		if nchans <= 0 {
			nchans = 1
		}
		d, err := digitizer.New(kind, card.Serial, nchans)
		if err != nil {
			return StateConfigureError, fmt.Errorf("card %s: %w", card.Serial, err)
		}
		d.SetEnabled(true)
		c.digitizers[card.Serial] = d
		c.digitizerIndex = append(c.digitizerIndex, card.Serial)
	}
	return StateReadConfig, nil
}

// doConfigureDigitizer merges global settings, configures every
// enabled card, records digitizer_index -> user_id, computes
// channels_number, and parses the scripts map, per §4.2.
func (c *Controller) doConfigureDigitizer(ctx Context) (State, error) {
	c.digitizerUserID = make(map[string]int)
	perBoard := c.cfg.Global.ChannelsPerBoard
	if perBoard <= 0 {
		perBoard = 1
	}

	for i, ch := range c.cfg.Channels {
		if _, err := ch.TriggerMask(); err != nil {
			return StateConfigureError, fmt.Errorf("channel %d: %w", i, err)
		}
	}

	// Card bring-up is independent per board, so the barrier-shaped
	// fan-out runs through errgroup: every card must finish configuring
	// before the machine advances to allocate_memory, but none of them
	// waits on another. This stays outside the single-threaded
	// read_data/publish_events loop itself, per §5.
	grp, _ := errgroup.WithContext(ctx.Ctx)
	for _, card := range c.cfg.Cards {
		card := card
		if !card.Enabled {
			continue
		}
		d, ok := c.digitizers[card.Serial]
		if !ok {
			return StateConfigureError, fmt.Errorf("card %s: not present among created digitizers", card.Serial)
		}
		grp.Go(func() error {
			if err := d.ReadConfig(card.Settings); err != nil {
				return fmt.Errorf("card %s: read_config: %w", card.Serial, err)
			}
			if err := d.Configure(); err != nil {
				return fmt.Errorf("card %s: configure: %w", card.Serial, err)
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return StateConfigureError, err
	}

	maxChans := 0
	for _, card := range c.cfg.Cards {
		if !card.Enabled {
			continue
		}
		c.digitizerUserID[card.Serial] = card.UserID
		if n := (card.UserID + 1) * perBoard; n > maxChans {
			maxChans = n
		}
	}
	c.channelsNumber = maxChans
	c.scripts = c.cfg.ScriptMap()
	return StateAllocateMemory, nil
}

// doAllocateMemory pre-reserves the outgoing waveform buffer.
func (c *Controller) doAllocateMemory(ctx Context) (State, error) {
	maxRecords := c.cfg.Global.WaveformsBufferMax
	if maxRecords <= 0 {
		maxRecords = 64
	}
	const expectedSamples = 2048
	bufCap := maxRecords * (event.HeaderSize + 2*expectedSamples)
	c.outBuf = make([]byte, 0, bufCap)
	c.bufWater = bufCap * 9 / 10
	return StatePublishStatus, nil
}

func (c *Controller) doPublishStatus(ctx Context, next State) (State, error) {
	c.statusMsgID++
	st := transport.Status{
		Module:    "abcd-daq",
		Timestamp: transport.NowISO8601(time.Now()),
		MsgID:     c.statusMsgID,
		Type:      "event",
		Event:     c.state.String(),
	}
	if c.running {
		acq := map[string]interface{}{
			"running":    c.running,
			"runtime_s":  time.Since(c.runStart).Seconds(),
			"rates":      c.counters.Rates(time.Since(c.lastStatus)),
			"ICR_rates":  c.counters.ICRRates(time.Since(c.lastStatus)),
			"counts":     c.counters.Partial,
			"ICR_counts": c.counters.PartialICR,
		}
		if buf, err := json.Marshal(acq); err == nil {
			st.Acquisition = buf
		}
	}
	if buf, err := json.Marshal(procmon.Sample()); err == nil {
		st.Process = buf
	}

	c.lastStatus = time.Now()
	c.counters.ResetPartial()

	if c.StatusPub != nil {
		buf, _ := json.Marshal(st)
		if err := c.StatusPub.SendTopic("status_abcd", nil, buf); err != nil {
			return next, err
		}
	}
	return next, nil
}

func (c *Controller) doReceiveCommands(ctx Context) (State, error) {
	if c.Cmds == nil {
		return StateReceiveCommands, nil
	}
	msg, ok, err := c.Cmds.TryRecv()
	if err != nil {
		return StateCommunicationError, err
	}
	if !ok {
		return StatePublishStatus, nil
	}
	var cmd transport.Command
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return StateParseError, err
	}
	switch cmd.Command {
	case transport.CmdStart:
		return StateStartAcquisition, nil
	case transport.CmdReconfigure:
		return StateConfigureDigitizer, nil
	case transport.CmdSpecific:
		return StateReceiveCommands, nil
	case transport.CmdOff, transport.CmdQuit:
		c.terminate = true
		return StateClearMemory, nil
	default:
		return StateReceiveCommands, nil
	}
}

func (c *Controller) doStartAcquisition(ctx Context) (State, error) {
	for serial, d := range c.digitizers {
		if err := d.StartAcquisition(); err != nil {
			return StateAcquisitionError, fmt.Errorf("card %s: %w", serial, err)
		}
	}
	c.running = true
	c.runStart = time.Now()
	c.lastPublish = time.Now()
	c.lastStatus = time.Now()
	c.counters.ResetTotal()
	return StateAcquisitionReceiveCommands, nil
}

func (c *Controller) doAcquisitionReceiveCommands(ctx Context) (State, error) {
	if c.simulateError {
		c.simulateError = false
		return StateAcquisitionError, nil
	}
	if c.Cmds != nil {
		msg, ok, err := c.Cmds.TryRecv()
		if err != nil {
			return StateAcquisitionError, err
		}
		if ok {
			var cmd transport.Command
			if err := json.Unmarshal(msg, &cmd); err == nil {
				switch cmd.Command {
				case transport.CmdStop:
					return StateStopPublishEvents, nil
				case transport.CmdSimulateError:
					return StateAcquisitionError, nil
				}
			}
		}
	}
	return StateReadData, nil
}

func (c *Controller) doReadData(ctx Context) (State, error) {
	for _, serial := range c.digitizerIndex {
		d := c.digitizers[serial]
		if !d.IsEnabled() {
			continue
		}
		if d.DataOverflow() {
			_ = d.ResetOverflow()
			c.Msg.Warnf("card %s: data overflow, reset", serial)
			continue
		}
		if !d.AcquisitionReady() {
			continue
		}
		wfs, err := d.GetWaveforms(nil)
		if err != nil {
			return StateAcquisitionError, fmt.Errorf("card %s: %w", serial, err)
		}
		userID := c.digitizerUserID[serial]
		for _, wf := range wfs {
			globalChannel := uint8(userID*c.cfg.Global.ChannelsPerBoard) + wf.Channel
			samples := make([]int16, len(wf.Samples))
			for i, s := range wf.Samples {
				samples[i] = int16(s)
			}
			ev := event.Waveform{Timestamp: wf.Timestamp, Channel: globalChannel, Samples: samples}
			buf, err := ev.Encode(c.outBuf)
			if err != nil {
				c.Msg.Warnf("card %s: could not encode waveform: %v", serial, err)
				continue
			}
			c.outBuf = buf
			c.counters.AddTrigger(globalChannel)
			c.counters.AddEvent(globalChannel)
		}
		if err := d.RearmTrigger(); err != nil {
			return StateAcquisitionError, fmt.Errorf("card %s: rearm: %w", serial, err)
		}
	}

	publishDue := time.Since(c.lastPublish) >= c.PublishTimeout
	if len(c.outBuf) >= c.bufWater || publishDue {
		return StatePublishEvents, nil
	}
	return StateAcquisitionReceiveCommands, nil
}

func (c *Controller) doPublishEvents(ctx Context) (State, error) {
	if err := c.flush(ctx); err != nil {
		return StateAcquisitionError, err
	}
	if time.Since(c.lastStatus) >= c.StatusPeriod {
		return StateAcquisitionPublishStatus, nil
	}
	return StateReadData, nil
}

func (c *Controller) flush(ctx Context) error {
	if len(c.outBuf) == 0 {
		return nil
	}
	if c.DataPub != nil {
		id := c.waveformMsgID
		if err := c.DataPub.SendTopic("data_abcd_waveforms", &id, c.outBuf); err != nil {
			return err
		}
		c.waveformMsgID++
	}
	c.outBuf = c.outBuf[:0]
	c.lastPublish = time.Now()
	return nil
}

func (c *Controller) doStopAcquisition(ctx Context) {
	for serial, d := range c.digitizers {
		if err := d.StopAcquisition(); err != nil {
			c.Msg.Warnf("card %s: stop_acquisition: %v", serial, err)
		}
	}
	c.running = false
}

func (c *Controller) closeDigitizers(ctx Context) {
	var grp errgroup.Group
	for serial, d := range c.digitizers {
		serial, d := serial, d
		grp.Go(func() error {
			if err := d.Close(); err != nil {
				c.Msg.Warnf("card %s: close: %v", serial, err)
			}
			return nil
		})
	}
	_ = grp.Wait()
	c.digitizers = make(map[string]digitizer.Digitizer)
	c.digitizerIndex = nil
}

// LoadConfig parses and stores the configuration document used by the
// next configure_digitizer pass.
func (c *Controller) LoadConfig(data []byte) error {
	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}
	c.cfg = cfg

	g := cfg.Global
	if g.BasePeriodMS > 0 {
		c.BasePeriod = time.Duration(g.BasePeriodMS) * time.Millisecond
	}
	if g.PublishTimeoutMS > 0 {
		c.PublishTimeout = time.Duration(g.PublishTimeoutMS) * time.Millisecond
	}
	if g.StatusPeriodS > 0 {
		c.StatusPeriod = time.Duration(g.StatusPeriodS) * time.Second
	}
	if g.AlertEmail != "" {
		c.AlertTo = g.AlertEmail
	}
	if g.AcquisitionErrorLimit > 0 {
		c.acqErrorLimit = g.AcquisitionErrorLimit
	}
	return nil
}
