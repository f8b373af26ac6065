// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command storm-env samples the LM75 temperature sensor of the bench
// hosting the storm processes, to correlate timer drift with the
// board environment.
package main // import "github.com/go-virt/irqstorm/cmd/storm-env"

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/go-daq/smbus"
)

const (
	tempReg = 0x00 // LM75 temperature register
)

func main() {
	var (
		bus  = flag.Int("bus", 1, "SMBus id to use")
		addr = flag.Int("addr", 0x48, "LM75 device address")
		freq = flag.Duration("freq", 30*time.Second, "sampling interval")
	)

	log.SetPrefix("storm-env: ")
	log.SetFlags(log.LstdFlags)

	flag.Parse()

	err := run(*bus, uint8(*addr), *freq)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(bus int, addr uint8, freq time.Duration) error {
	conn, err := smbus.Open(bus, addr)
	if err != nil {
		return fmt.Errorf("could not open smbus-%d: %w", bus, err)
	}
	defer conn.Close()

	tick := time.NewTicker(freq)
	defer tick.Stop()

	for range tick.C {
		temp, err := read(conn, addr)
		if err != nil {
			log.Printf("could not sample LM75: %+v", err)
			continue
		}
		log.Printf("temp: %.1f°C", temp)
	}
	return nil
}

// read samples the 9-bit LM75 temperature: a signed whole-degree byte
// and a half-degree bit.
func read(conn *smbus.Conn, addr uint8) (float64, error) {
	raw, err := conn.ReadWord(addr, tempReg)
	if err != nil {
		return 0, fmt.Errorf("could not read temperature register: %w", err)
	}
	// the LM75 returns the register MSB first.
	msb := uint8(raw & 0xff)
	lsb := uint8(raw >> 8)

	temp := float64(int8(msb))
	if lsb&0x80 != 0 {
		temp += 0.5
	}
	return temp, nil
}
