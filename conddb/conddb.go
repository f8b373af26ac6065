// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the configuration database
// for storm devices.
package conddb // import "github.com/go-virt/irqstorm/conddb"

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

// DB exposes convenience methods to easily retrieve storm scenarios
// from the configuration database.
type DB struct {
	db   *sql.DB
	name string // name of the scenario database
}

// Open opens a connection to the scenario database dbname.
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

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// Scenario retrieves the storm scenario named name.
func (db *DB) Scenario(ctx context.Context, name string) (Scenario, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var sc Scenario
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier, name, burst, period_us, level, enabled, report_every FROM scenarios WHERE name=?",
		name,
	)
	if err != nil {
		return sc, fmt.Errorf("conddb: could not query scenario %q: %w", name, err)
	}
	defer rows.Close()

	ok := false
	for rows.Next() {
		err = rows.Scan(
			&sc.ID, &sc.Name,
			&sc.Burst, &sc.PeriodUS,
			&sc.Level, &sc.Enabled,
			&sc.ReportEvery,
		)
		if err != nil {
			return sc, fmt.Errorf("conddb: could not scan scenario %q: %w", name, err)
		}
		ok = true
	}

	if err := rows.Err(); err != nil {
		return sc, fmt.Errorf("conddb: could not scan db for scenario %q: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return sc, fmt.Errorf("conddb: context error while retrieving scenario %q: %w", name, err)
	}

	if !ok {
		return sc, fmt.Errorf("conddb: no scenario named %q", name)
	}

	return sc, nil
}

// LastScenario retrieves the most recently stored scenario.
func (db *DB) LastScenario(ctx context.Context) (Scenario, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var sc Scenario
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier, name, burst, period_us, level, enabled, report_every FROM scenarios ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return sc, fmt.Errorf("conddb: could not query last scenario: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(
			&sc.ID, &sc.Name,
			&sc.Burst, &sc.PeriodUS,
			&sc.Level, &sc.Enabled,
			&sc.ReportEvery,
		)
		if err != nil {
			return sc, fmt.Errorf("conddb: could not scan last scenario: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return sc, fmt.Errorf("conddb: could not scan db for last scenario: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return sc, fmt.Errorf("conddb: context error while retrieving last scenario: %w", err)
	}

	return sc, nil
}
