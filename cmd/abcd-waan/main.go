// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command abcd-waan is the per-channel pluggable waveform analyzer
// (C6): it consumes the waveform topic, runs each configured
// channel's timestamp/energy plugin pair, and republishes the
// resulting PSD events (and, if configured, re-framed waveforms).
package main // import "github.com/abcd-daq/abcd/cmd/abcd-waan"

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

	"github.com/abcd-daq/abcd/internal/analyzer"
	"github.com/abcd-daq/abcd/internal/config"
	"github.com/abcd-daq/abcd/internal/transport"
)

func main() {
	log.Fatal(xmain(os.Args[1:]))
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("abcd-waan", flag.ContinueOnError)

		dataAddr     = fset.String("S", "tcp://127.0.0.1:16181", "input data SUB socket address to connect to")
		statAddr     = fset.String("P", "tcp://*:16184", "status PUB socket address to bind")
		eventAddr    = fset.String("E", "tcp://*:16182", "events PUB socket address to bind")
		waveformAddr = fset.String("W", "", "re-framed waveforms PUB socket address to bind (disabled if empty)")
		cmdAddr      = fset.String("C", "tcp://*:16185", "commands PULL socket address to bind")
		cfgFile      = fset.String("f", "", "configuration file")
		period       = fset.Duration("T", 100*time.Millisecond, "poll period")
	)

	log.SetPrefix("abcd-waan: ")
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
	cfg, err := config.Parse(data)
	if err != nil {
		return fmt.Errorf("could not parse configuration: %w", err)
	}

	a := analyzer.New()
	if cfg.Global.ForwardWaveforms {
		a.ForwardWaveforms = true
	}
	if cfg.Global.StatusPeriodS > 0 {
		a.StatusPeriod = time.Duration(cfg.Global.StatusPeriodS) * time.Second
	}
	if err := a.ApplyConfig(cfg.Channels); err != nil {
		return fmt.Errorf("could not load channel plugins: %w", err)
	}

	dataSub, err := transport.NewSub(*dataAddr, []string{"data_abcd_waveforms"}, true)
	if err != nil {
		return fmt.Errorf("could not connect data socket: %w", err)
	}
	defer dataSub.Close()

	statusPub, err := transport.NewPub(*statAddr)
	if err != nil {
		return fmt.Errorf("could not bind status socket: %w", err)
	}
	defer statusPub.Close()

	eventPub, err := transport.NewPub(*eventAddr)
	if err != nil {
		return fmt.Errorf("could not bind events socket: %w", err)
	}
	defer eventPub.Close()

	cmdsPull, err := transport.NewPull(*cmdAddr)
	if err != nil {
		return fmt.Errorf("could not bind commands socket: %w", err)
	}
	defer cmdsPull.Close()

	a.Data = dataSub
	a.StatusPub = statusPub
	a.EventPub = eventPub
	a.Cmds = cmdsPull

	if *waveformAddr != "" {
		waveformPub, err := transport.NewPub(*waveformAddr)
		if err != nil {
			return fmt.Errorf("could not bind waveforms socket: %w", err)
		}
		defer waveformPub.Close()
		a.WaveformPub = waveformPub
	}
	defer a.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	rctx := analyzer.Context{Ctx: sigCtx, Msg: a.Msg}

	ticker := time.NewTicker(*period)
	defer ticker.Stop()
	for {
		select {
		case <-sigCtx.Done():
			return nil
		case <-ticker.C:
			if _, err := a.Poll(rctx); err != nil {
				a.Msg.Errorf("poll: %v", err)
			}
		}
	}
}
