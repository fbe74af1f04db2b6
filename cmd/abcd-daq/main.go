// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command abcd-daq drives the acquisition controller state machine
// (C4): it reads the digitizer configuration file, creates and
// configures every enabled card, and then cycles through the
// read-data/publish-events loop until told to stop.
package main // import "github.com/abcd-daq/abcd/cmd/abcd-daq"

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abcd-daq/abcd/internal/acqctl"
	"github.com/abcd-daq/abcd/internal/transport"
)

func main() {
	log.Fatal(xmain(os.Args[1:]))
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("abcd-daq", flag.ContinueOnError)

		identify     = fset.Bool("I", false, "identify configured digitizers and exit")
		statAddr     = fset.String("S", "tcp://*:16183", "status PUB socket address to bind")
		dataAddr     = fset.String("D", "tcp://*:16181", "data PUB socket address to bind")
		cmdAddr      = fset.String("C", "tcp://*:16180", "commands PULL socket address to bind")
		cfgFile      = fset.String("f", "", "configuration file")
		basePeriodMS = fset.Int("T", 0, "base period, in milliseconds")
	)

	log.SetPrefix("abcd-daq: ")
	log.SetFlags(0)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}
	if *cfgFile == "" {
		return fmt.Errorf("missing required -f <configuration file> argument")
	}

	data, err := ioutil.ReadFile(*cfgFile)
	if err != nil {
		return fmt.Errorf("could not read configuration file: %w", err)
	}

	ctl := acqctl.NewController()
	if err := ctl.LoadConfig(data); err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	if *basePeriodMS > 0 {
		ctl.BasePeriod = time.Duration(*basePeriodMS) * time.Millisecond
	}

	if *identify {
		return runIdentify(ctl)
	}

	statusPub, err := transport.NewPub(*statAddr)
	if err != nil {
		return fmt.Errorf("could not bind status socket: %w", err)
	}
	defer statusPub.Close()

	dataPub, err := transport.NewPub(*dataAddr)
	if err != nil {
		return fmt.Errorf("could not bind data socket: %w", err)
	}
	defer dataPub.Close()

	cmdsPull, err := transport.NewPull(*cmdAddr)
	if err != nil {
		return fmt.Errorf("could not bind commands socket: %w", err)
	}
	defer cmdsPull.Close()

	ctl.StatusPub = statusPub
	ctl.DataPub = dataPub
	ctl.Cmds = cmdsPull

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	rctx := acqctl.Context{Ctx: sigCtx, Msg: ctl.Msg}
	return ctl.Run(rctx)
}

// runIdentify drives the controller just far enough to create and
// configure every digitizer, prints their identities, then lets the
// termination chain unwind — the -I fast path used to validate a
// configuration file against real or simulated hardware without
// starting a run.
func runIdentify(ctl *acqctl.Controller) error {
	ctx := acqctl.Context{Ctx: context.Background(), Msg: ctl.Msg}

	for ctl.State() != acqctl.StateReceiveCommands && ctl.State() != acqctl.StateConfigureError {
		if _, err := ctl.Step(ctx); err != nil {
			return fmt.Errorf("identify: state %s: %w", ctl.State(), err)
		}
	}
	if ctl.State() == acqctl.StateConfigureError {
		return fmt.Errorf("identify: configuration error")
	}

	for _, serial := range ctl.DigitizerNames() {
		fmt.Printf("%s\n", serial)
	}

	ctl.Terminate()
	for ctl.State() != acqctl.StateStop {
		if _, err := ctl.Step(ctx); err != nil {
			return fmt.Errorf("identify: state %s: %w", ctl.State(), err)
		}
	}
	return nil
}
