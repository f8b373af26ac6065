// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command storm-mon runs the driver loop as a TDAQ node, draining the
// notifications of a storm-svc device and publishing telemetry on its
// /telemetry end-point.
package main // import "github.com/go-virt/irqstorm/cmd/storm-mon"

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-virt/irqstorm/drv"
)

func main() {
	var (
		addr  = flag.String("storm-addr", "localhost:9999", "storm-svc address to dial")
		every = flag.Uint64("every", drv.DefaultReportEvery, "handled notifications between telemetry records")
	)

	cmd := flags.New()

	// two connections: the wait parks one of them, register traffic
	// goes over the other.
	acc, err := drv.Dial(*addr)
	if err != nil {
		log.Panicf("could not dial storm-svc: %+v", err)
	}
	defer acc.Close()

	ntf, err := drv.Dial(*addr)
	if err != nil {
		log.Panicf("could not dial storm-svc: %+v", err)
	}
	defer ntf.Close()

	mon := drv.NewServer(cmd.Args[0], acc, ntf, *every)

	srv := tdaq.New(cmd, os.Stdout)
	mon.Handle(srv)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
