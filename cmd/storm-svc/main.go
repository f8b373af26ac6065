// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command storm-svc hosts a storm device and exposes it (registers
// and notification line) over TCP to out-of-process consumers such as
// storm-mon and storm-sh.
package main // import "github.com/go-virt/irqstorm/cmd/storm-svc"

import (
	"flag"
	"log"

	"github.com/go-virt/irqstorm/intc"
	"github.com/go-virt/irqstorm/storm"
)

func main() {
	var (
		addr   = flag.String("addr", ":9999", "storm-svc [addr]:port")
		line   = flag.Int("line", storm.DefaultLine, "interrupt line to storm")
		burst  = flag.Int("burst", storm.DefaultBurst, "pulses per timer expiry")
		period = flag.Int("period", storm.DefaultPeriodUS, "storm period (µs)")
		level  = flag.Bool("level", false, "level-triggered mode")
		start  = flag.Bool("enabled", true, "start with the storm enabled")
		shm    = flag.String("dev-shm", "", "path to the register mirror file (none if empty)")
	)

	log.SetPrefix("storm-svc: ")
	log.SetFlags(0)

	flag.Parse()

	irq := intc.NewLine(uint64(*line))
	opts := []storm.Option{
		storm.WithLine(uint32(*line)),
		storm.WithBurst(uint32(*burst)),
		storm.WithPeriod(uint32(*period)),
		storm.WithLevelTriggered(*level),
		storm.WithEnabled(*start),
	}
	if *shm != "" {
		opts = append(opts, storm.WithDevSHM(*shm))
	}

	dev, err := storm.New(irq, opts...)
	if err != nil {
		log.Fatalf("could not create storm device: %+v", err)
	}
	defer dev.Close()

	err = storm.Serve(*addr, dev, irq)
	if err != nil {
		log.Fatalf("could not serve storm device: %+v", err)
	}
}
