// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command abcd-condb inspects the conditions/calibration database:
// given a run epoch (or the most recently archived one, by default),
// it prints the card and channel presets archived under it.
package main // import "github.com/abcd-daq/abcd/cmd/abcd-condb"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/abcd-daq/abcd/internal/conddb"
)

func main() {
	log.Fatal(xmain(os.Args[1:]))
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("abcd-condb", flag.ContinueOnError)

		dbname = fset.String("db", "abcd_conditions", "conditions database name")
		epoch  = fset.String("run-epoch", "", "run epoch to inspect (default: most recently archived)")
	)

	log.SetPrefix("abcd-condb: ")
	log.SetFlags(0)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}

	db, err := conddb.Open(*dbname)
	if err != nil {
		return fmt.Errorf("could not open conditions db: %w", err)
	}
	defer db.Close()

	return doQuery(db, *epoch)
}

func doQuery(db *conddb.DB, runEpoch string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if runEpoch == "" {
		v, err := db.LastRunEpoch(ctx)
		if err != nil {
			return fmt.Errorf("could not get last run epoch: %w", err)
		}
		runEpoch = v
		log.Printf("run_epoch: %q", runEpoch)
	}

	cards, err := db.CardPresets(ctx, runEpoch)
	if err != nil {
		return fmt.Errorf("could not get card presets (run_epoch=%q): %w", runEpoch, err)
	}
	log.Printf("cards: %d", len(cards))
	for _, c := range cards {
		log.Printf(">>> serial=%s user_id=%d enabled=%t model=%s", c.Serial, c.UserID, c.Enabled, c.Model)
	}

	channels, err := db.ChannelPresets(ctx, runEpoch)
	if err != nil {
		return fmt.Errorf("could not get channel presets (run_epoch=%q): %w", runEpoch, err)
	}
	log.Printf("channels: %d", len(channels))
	for _, c := range channels {
		log.Printf(">>> channel=%d enabled=%t timestamp=%s energy=%s", c.Channel, c.Enabled, c.TimestampLibrary, c.EnergyLibrary)
	}

	return nil
}
