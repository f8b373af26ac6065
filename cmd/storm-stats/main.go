// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command storm-stats summarizes a telemetry file and plots the
// per-record pulse rate distribution.
package main // import "github.com/go-virt/irqstorm/cmd/storm-stats"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-virt/irqstorm/drv"
	"github.com/go-virt/irqstorm/internal/telfmt"
	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"
)

func main() {
	var (
		oname = flag.String("o", "storm-rate.png", "output plot file")
		nbins = flag.Int("bins", 100, "number of histogram bins")
	)

	log.SetPrefix("storm-stats: ")
	log.SetFlags(0)

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing input telemetry file")
	}

	err := process(flag.Arg(0), *oname, *nbins)
	if err != nil {
		log.Fatalf("could not process %q: %+v", flag.Arg(0), err)
	}
}

func process(fname, oname string, nbins int) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open telemetry file: %w", err)
	}
	defer f.Close()

	recs, err := read(f)
	if err != nil {
		return fmt.Errorf("could not read telemetry records: %w", err)
	}
	if len(recs) == 0 {
		return fmt.Errorf("no telemetry records in %q", fname)
	}

	var (
		first = recs[0]
		last  = recs[len(recs)-1]
	)
	log.Printf("records:   %d", len(recs))
	log.Printf("span:      %v -> %v", first.When, last.When)
	log.Printf("handled:   %d", last.Handled)
	log.Printf("pulses:    %d", last.Tot.Pulses)
	log.Printf("timer-cb:  %d", last.Tot.TimerCB)
	log.Printf("cfg-wr:    %d", last.Tot.CfgWrites)
	log.Printf("en-toggle: %d", last.Tot.EnToggles)

	rates := make([]float64, 0, len(recs))
	for i, rec := range recs {
		if i == 0 {
			continue
		}
		dt := rec.When.Sub(recs[i-1].When).Seconds()
		if dt <= 0 {
			continue
		}
		rates = append(rates, float64(rec.Delta.Pulses)/dt)
	}
	if len(rates) == 0 {
		log.Printf("not enough records to plot a rate")
		return nil
	}

	min, max := rates[0], rates[0]
	for _, v := range rates {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		min, max = min-1, max+1
	}

	h := hbook.NewH1D(nbins, min, max)
	for _, v := range rates {
		h.Fill(v, 1)
	}
	log.Printf("rate:      mean=%.1f Hz rms=%.1f Hz", h.XMean(), h.XRMS())

	p := hplot.New()
	p.Title.Text = "storm pulse rate"
	p.X.Label.Text = "pulses/s"
	p.Y.Label.Text = "records"
	p.Add(hplot.NewH1D(h), hplot.NewGrid())

	err = p.Save(15*vg.Centimeter, -1, oname)
	if err != nil {
		return fmt.Errorf("could not save plot: %w", err)
	}
	log.Printf("plot:      %s", oname)
	return nil
}

func read(r io.Reader) ([]drv.Record, error) {
	var (
		recs []drv.Record
		dec  = telfmt.NewDecoder(r)
	)
	for {
		var rec drv.Record
		err := dec.Decode(&rec)
		if err != nil {
			if err == io.EOF {
				return recs, nil
			}
			return recs, fmt.Errorf("could not decode record %d: %w", len(recs), err)
		}
		recs = append(recs, rec)
	}
}
