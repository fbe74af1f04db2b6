// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command abcd-ascii reads an ABCD events file and exports it as a
// tab-separated ASCII table: counter, timestamp, qshort, qlong,
// channel.
package main // import "github.com/abcd-daq/abcd/cmd/abcd-ascii"

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"go-hep.org/x/hep/csvutil"

	"github.com/abcd-daq/abcd/internal/event"
)

func main() {
	log.Fatal(xmain(os.Args[1:]))
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("abcd-ascii", flag.ContinueOnError)

		output  = fset.String("o", "", "output file, defaults to stdout")
		verbose = fset.Bool("v", false, "verbose execution")
	)

	log.SetPrefix("abcd-ascii: ")
	log.SetFlags(0)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: abcd-ascii [options] <file_name>")
	}
	input := fset.Arg(0)

	raw, err := ioutil.ReadFile(input)
	if err != nil {
		return fmt.Errorf("could not read %q: %w", input, err)
	}
	evs, err := event.DecodeFile(raw)
	if err != nil {
		return fmt.Errorf("could not decode %q: %w", input, err)
	}

	out := *output
	if out == "" {
		out = "/dev/stdout"
	}

	w, err := csvutil.Create(out)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", out, err)
	}
	defer w.Close()
	w.Writer.Comma = '\t'

	if err := w.WriteRow("#N", "timestamp", "qshort", "qlong", "channel"); err != nil {
		return fmt.Errorf("could not write header: %w", err)
	}

	for i, ev := range evs {
		if err := w.WriteRow(i, ev.Timestamp, ev.Qshort, ev.Qlong, ev.Channel); err != nil {
			return fmt.Errorf("could not write row %d: %w", i, err)
		}
	}
	w.Writer.Flush()
	if err := w.Writer.Error(); err != nil {
		return fmt.Errorf("could not flush %q: %w", out, err)
	}

	if *verbose {
		log.Printf("exported %d events to %q", len(evs), out)
	}
	return nil
}
