// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the conditions and
// configuration database for the acquisition pipeline: per-card and
// per-channel presets archived under a run epoch, so a configuration
// loaded from the JSON document on disk (internal/config) can also be
// reproduced from a database snapshot taken at any earlier run.
package conddb // import "github.com/abcd-daq/abcd/internal/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to retrieve and archive run
// conditions from the ABCD conditions database.
type DB struct {
	db   *sql.DB
	name string // name of the conditions database
}

// Open opens a connection to the conditions database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.db.Close()
}

// QueryContext exposes the underlying *sql.DB for ad-hoc queries.
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastRunEpoch returns the run_epoch identifier of the most recently
// archived configuration, or "" if the table is empty.
func (db *DB) LastRunEpoch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	epoch := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT run_epoch FROM runs ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return epoch, fmt.Errorf("conddb: could not query run epoch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := rows.Scan(&epoch); err != nil {
			return epoch, fmt.Errorf("conddb: could not get run epoch value: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return epoch, fmt.Errorf("conddb: could not scan db for run epoch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return epoch, fmt.Errorf("conddb: context error while retrieving run epoch: %w", err)
	}

	return epoch, nil
}

// CardPresets returns every card preset archived under runEpoch,
// ordered by serial.
func (db *DB) CardPresets(ctx context.Context, runEpoch string) ([]CardPreset, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cfg []CardPreset
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT serial, user_id, enabled, model, settings FROM card_presets
WHERE run_epoch=?
ORDER BY serial
`,
		runEpoch,
	)
	if err != nil {
		return cfg, fmt.Errorf("conddb: could not run card preset query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var c CardPreset
		if err := rows.Scan(&c.Serial, &c.UserID, &c.Enabled, &c.Model, &c.Settings); err != nil {
			return cfg, fmt.Errorf("conddb: could not scan row %d for card preset: %w", i, err)
		}
		i++
		cfg = append(cfg, c)
	}
	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: could not scan db for card presets: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: context error while retrieving card presets: %w", err)
	}

	return cfg, nil
}

// ChannelPresets returns every channel preset archived under
// runEpoch, ordered by channel.
func (db *DB) ChannelPresets(ctx context.Context, runEpoch string) ([]ChannelPreset, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cfg []ChannelPreset
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT channel, enabled, timestamp_library, energy_library, user_config FROM channel_presets
WHERE run_epoch=?
ORDER BY channel
`,
		runEpoch,
	)
	if err != nil {
		return cfg, fmt.Errorf("conddb: could not run channel preset query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var c ChannelPreset
		if err := rows.Scan(&c.Channel, &c.Enabled, &c.TimestampLibrary, &c.EnergyLibrary, &c.UserConfig); err != nil {
			return cfg, fmt.Errorf("conddb: could not scan row %d for channel preset: %w", i, err)
		}
		i++
		cfg = append(cfg, c)
	}
	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: could not scan db for channel presets: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: context error while retrieving channel presets: %w", err)
	}

	return cfg, nil
}

// ArchiveRun records a new run epoch together with its card and
// channel presets, so the configuration that produced a given run can
// be reproduced later by CardPresets/ChannelPresets.
func (db *DB) ArchiveRun(ctx context.Context, runEpoch string, cards []CardPreset, channels []ChannelPreset) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conddb: could not begin archive transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO runs (run_epoch, datetime) VALUES (?, NOW())", runEpoch); err != nil {
		tx.Rollback()
		return fmt.Errorf("conddb: could not insert run %q: %w", runEpoch, err)
	}

	for _, c := range cards {
		if _, err := tx.ExecContext(
			ctx,
			"INSERT INTO card_presets (run_epoch, serial, user_id, enabled, model, settings) VALUES (?, ?, ?, ?, ?, ?)",
			runEpoch, c.Serial, c.UserID, c.Enabled, c.Model, c.Settings,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("conddb: could not insert card preset %q: %w", c.Serial, err)
		}
	}

	for _, c := range channels {
		if _, err := tx.ExecContext(
			ctx,
			"INSERT INTO channel_presets (run_epoch, channel, enabled, timestamp_library, energy_library, user_config) VALUES (?, ?, ?, ?, ?, ?)",
			runEpoch, c.Channel, c.Enabled, c.TimestampLibrary, c.EnergyLibrary, c.UserConfig,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("conddb: could not insert channel preset %d: %w", c.Channel, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conddb: could not commit archive transaction: %w", err)
	}
	return nil
}
