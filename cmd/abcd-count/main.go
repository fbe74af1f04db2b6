// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command abcd-count reads an ABCD events file and prints the number
// of events found for each channel.
package main // import "github.com/abcd-daq/abcd/cmd/abcd-count"

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
		fset = flag.NewFlagSet("abcd-count", flag.ContinueOnError)

		verbose = fset.Bool("v", false, "verbose execution")
	)

	log.SetPrefix("abcd-count: ")
	log.SetFlags(0)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: abcd-count [options] <file_name>")
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

	counters := make(map[uint8]int)
	for _, ev := range evs {
		counters[ev.Channel]++
	}

	if *verbose {
		log.Printf("total number of events: %d", len(evs))
	}

	channels := make([]int, 0, len(counters))
	for ch := range counters {
		channels = append(channels, int(ch))
	}
	sort.Ints(channels)

	for _, ch := range channels {
		fmt.Printf("%d %d\n", ch, counters[uint8(ch)])
	}
	return nil
}
