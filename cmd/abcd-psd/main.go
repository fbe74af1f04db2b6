// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command abcd-psd runs the PSD polygon selector node (C7): it
// subscribes to the events topic, classifies every event by PSD
// against a user-supplied polygon in the (energy, PSD) plane, and
// republishes only the events that fall inside it.
package main // import "github.com/abcd-daq/abcd/cmd/abcd-psd"

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abcd-daq/abcd/internal/filter"
	"github.com/abcd-daq/abcd/internal/transport"
)

func main() {
	log.Fatal(xmain(os.Args[1:]))
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("abcd-psd", flag.ContinueOnError)

		subAddr  = fset.String("S", "tcp://127.0.0.1:16181", "SUB socket address to connect to")
		pubAddr  = fset.String("P", "tcp://*:16182", "PUB socket address to bind")
		period   = fset.Duration("T", 100*time.Millisecond, "base period")
	)

	log.SetPrefix("abcd-psd: ")
	log.SetFlags(0)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: abcd-psd [options] <polygon.json>")
	}

	raw, err := ioutil.ReadFile(fset.Arg(0))
	if err != nil {
		return fmt.Errorf("could not read polygon file: %w", err)
	}
	polygon, bb, err := filter.LoadPolygon(raw)
	if err != nil {
		return fmt.Errorf("could not load polygon: %w", err)
	}

	sub, err := transport.NewSub(*subAddr, []string{"data_abcd_events"}, true)
	if err != nil {
		return fmt.Errorf("could not create input socket: %w", err)
	}
	defer sub.Close()

	pub, err := transport.NewPub(*pubAddr)
	if err != nil {
		return fmt.Errorf("could not create output socket: %w", err)
	}
	defer pub.Close()

	f := filter.New(polygon, bb)
	f.Data = sub
	f.Events = pub
	f.Period = *period

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(stop)

	ticker := time.NewTicker(f.Period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			log.Printf("I: received termination signal, total=%d selected=%d", f.TotalEvents, f.TotalSelected)
			return nil
		case <-ticker.C:
			if _, err := f.Poll(); err != nil {
				log.Printf("E: poll: %+v", err)
			}
		}
	}
}
