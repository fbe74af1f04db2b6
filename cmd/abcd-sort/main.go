// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command abcd-sort reads an ABCD events file and rewrites it with
// every event ordered by increasing timestamp.
package main // import "github.com/abcd-daq/abcd/cmd/abcd-sort"

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"sort"

	"github.com/abcd-daq/abcd/internal/event"
)

func main() {
	log.Fatal(xmain(os.Args[1:]))
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("abcd-sort", flag.ContinueOnError)

		verbose = fset.Bool("v", false, "verbose execution")
		output  = fset.String("o", "", "output file, defaults to <input>.sorted")
	)

	log.SetPrefix("abcd-sort: ")
	log.SetFlags(0)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: abcd-sort [options] <file_name>")
	}
	input := fset.Arg(0)
	out := *output
	if out == "" {
		out = input + ".sorted"
	}

	raw, err := ioutil.ReadFile(input)
	if err != nil {
		return fmt.Errorf("could not read %q: %w", input, err)
	}
	evs, err := event.DecodeFile(raw)
	if err != nil {
		return fmt.Errorf("could not decode %q: %w", input, err)
	}
	if *verbose {
		log.Printf("read %d events from %q", len(evs), input)
	}

	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp < evs[j].Timestamp })

	if err := ioutil.WriteFile(out, event.EncodeFile(evs), 0644); err != nil {
		return fmt.Errorf("could not write %q: %w", out, err)
	}
	if *verbose {
		log.Printf("wrote %d sorted events to %q", len(evs), out)
	}
	return nil
}
