// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command storm-daq runs an interrupt storm in stand-alone mode: it
// hosts the virtual device and the driver loop in the same process
// and streams telemetry records to disk.
package main // import "github.com/go-virt/irqstorm/cmd/storm-daq"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-virt/irqstorm/conddb"
	"github.com/go-virt/irqstorm/drv"
	"github.com/go-virt/irqstorm/intc"
	"github.com/go-virt/irqstorm/internal/telfmt"
	"github.com/go-virt/irqstorm/storm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

func main() {
	var (
		line   = flag.Int("line", storm.DefaultLine, "interrupt line to storm")
		burst  = flag.Int("burst", storm.DefaultBurst, "pulses per timer expiry")
		period = flag.Int("period", storm.DefaultPeriodUS, "storm period (µs)")
		level  = flag.Bool("level", false, "level-triggered mode")
		every  = flag.Uint64("every", drv.DefaultReportEvery, "handled notifications between telemetry records")
		odir   = flag.String("o", ".", "output dir")
		shm    = flag.String("dev-shm", "", "path to the register mirror file (none if empty)")
		dbname = flag.String("db", "", "scenario database to read the device configuration from")
		scen   = flag.String("scenario", "", "scenario name (with -db; last stored scenario if empty)")
		dur    = flag.Duration("timeout", 0, "how long to storm (forever if 0)")
	)

	log.SetPrefix("storm-daq: ")
	log.SetFlags(0)

	flag.Parse()

	cfg := drv.Config{
		Line:     uint8(*line),
		Burst:    uint32(*burst),
		PeriodUS: uint32(*period),
		Level:    *level,
		Every:    *every,
	}

	if *dbname != "" {
		sc, err := scenario(*dbname, *scen)
		if err != nil {
			log.Fatalf("could not load scenario: %+v", err)
		}
		log.Printf("scenario %q: burst=%d period=%dµs level=%v every=%d",
			sc.Name, sc.Burst, sc.PeriodUS, sc.Level, sc.ReportEvery,
		)
		cfg.Burst = sc.Burst
		cfg.PeriodUS = sc.PeriodUS
		cfg.Level = sc.Level
		cfg.Every = sc.ReportEvery
	}

	log.Printf("line=%d burst=%d period=%dµs level=%v every=%d",
		cfg.Line, cfg.Burst, cfg.PeriodUS, cfg.Level, cfg.Every,
	)

	err := run(cfg, *odir, *shm, *dur)
	if err != nil {
		log.Fatalf("could not run storm-daq: %+v", err)
	}
}

func scenario(dbname, name string) (conddb.Scenario, error) {
	db, err := conddb.Open(dbname)
	if err != nil {
		return conddb.Scenario{}, fmt.Errorf("could not open %q db: %w", dbname, err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if name == "" {
		return db.LastScenario(ctx)
	}
	return db.Scenario(ctx, name)
}

func run(cfg drv.Config, odir, shm string, dur time.Duration) error {
	fname := filepath.Join(odir, fmt.Sprintf(
		"storm_%s.tel", time.Now().Format("2006-01-02-15h04m05s"),
	))
	out, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create telemetry file: %w", err)
	}
	defer out.Close()

	irq := intc.NewLine(uint64(cfg.Line))
	opts := []storm.Option{
		storm.WithLine(uint32(cfg.Line)),
		storm.WithBurst(cfg.Burst),
		storm.WithPeriod(cfg.PeriodUS),
		storm.WithLevelTriggered(cfg.Level),
	}
	if shm != "" {
		opts = append(opts, storm.WithDevSHM(shm))
	}

	dev, err := storm.New(irq, opts...)
	if err != nil {
		return fmt.Errorf("could not create storm device: %w", err)
	}
	defer dev.Close()

	enc := telfmt.NewEncoder(out)
	loop := drv.NewLoop(drv.DeviceIO{Dev: dev}, irq,
		drv.WithReportEvery(cfg.Every),
		drv.WithReportFunc(func(rec *drv.Record) {
			err := enc.Encode(rec)
			if err != nil {
				log.Printf("could not encode record %d: %+v", rec.Seq, err)
			}
			log.Printf(
				"rec[%04d]: handled=%d pulses=%d (+%d) timer-cb=%d (+%d)",
				rec.Seq, rec.Handled,
				rec.Tot.Pulses, rec.Delta.Pulses,
				rec.Tot.TimerCB, rec.Delta.TimerCB,
			)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if dur > 0 {
		ctx, cancel = context.WithTimeout(ctx, dur)
		defer cancel()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	var grp errgroup.Group
	grp.Go(func() error {
		err := loop.Run(ctx)
		switch {
		case xerrors.Is(err, intc.ErrClosed):
			return nil
		case xerrors.Is(err, context.Canceled):
			return nil
		case xerrors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return err
		}
	})
	grp.Go(func() error {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
		// the loop may be parked in its wait. closing the line is
		// what actually unblocks it.
		return irq.Close()
	})

	log.Printf("storming...")

	err = grp.Wait()
	if err != nil {
		return fmt.Errorf("could not run driver loop: %w", err)
	}

	log.Printf("handled %d notifications", loop.Handled())
	log.Printf("telemetry: %s", fname)
	return nil
}
