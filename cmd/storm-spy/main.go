// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command storm-spy spies the content of storm registers through the
// shared-memory mirror of a running device.
package main // import "github.com/go-virt/irqstorm/cmd/storm-spy"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-virt/irqstorm/drv"
	"github.com/go-virt/irqstorm/internal/mmap"
	"github.com/go-virt/irqstorm/storm"
)

func main() {
	var (
		shm = flag.String("dev-shm", "/dev/shm/storm0", "register mirror file to spy")
	)

	log.SetPrefix("storm-spy: ")
	log.SetFlags(0)

	flag.Parse()

	// the mapping is shared read-write, so the file must be opened
	// read-write even though the spy never stores.
	f, err := os.OpenFile(*shm, os.O_RDWR, 0)
	if err != nil {
		log.Fatalf("could not open register mirror: %+v", err)
	}
	defer f.Close()

	win, err := mmap.Map(f, 0, storm.WinSize)
	if err != nil {
		log.Fatalf("could not map register mirror: %+v", err)
	}
	defer win.Close()

	fmt.Printf("------------------------------------------------\n")
	const layout = "2006-01-02 15:04:05 MST"
	fmt.Printf("%v\n", time.Now().Format(layout))

	acc := drv.WindowIO{R: win}

	regs := []struct {
		name  string
		off   uint32
		width int
	}{
		{"CTRL", storm.RegCtrl, 1},
		{"LINE", storm.RegLine, 1},
		{"BURST", storm.RegBurst, 1},
		{"STATUS", storm.RegStatus, 1},
		{"PERIOD_US", storm.RegPeriodUS, 4},
		{"TIMER_CB", storm.RegTimerCB, 4},
		{"CFG_WRITES", storm.RegCfgWr, 4},
		{"EN_TOGGLES", storm.RegEnTgl, 4},
	}
	for _, reg := range regs {
		var (
			v   uint32
			err error
		)
		switch reg.width {
		case 1:
			v8, e := acc.In8(reg.off)
			v, err = uint32(v8), e
		default:
			v, err = acc.In32(reg.off)
		}
		if err != nil {
			log.Fatalf("could not read %s: %+v", reg.name, err)
		}
		fmt.Printf("%-10s (0x%02x): 0x%08x\n", reg.name, reg.off, v)
	}

	pulses, err := drv.PulseCounter(acc).Read()
	if err != nil {
		log.Fatalf("could not read pulse counter: %+v", err)
	}
	fmt.Printf("%-10s (0x%02x): %d\n", "PULSES", storm.RegPulsesLO, pulses)
}
