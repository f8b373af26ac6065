// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command storm-sh is an interactive shell to poke at a storm device
// served by storm-svc.
package main // import "github.com/go-virt/irqstorm/cmd/storm-sh"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-virt/irqstorm/drv"
	"github.com/go-virt/irqstorm/storm"
	"github.com/peterh/liner"
)

func main() {
	var (
		addr = flag.String("addr", "localhost:9999", "storm-svc address to dial")
	)

	log.SetPrefix("storm-sh: ")
	log.SetFlags(0)

	flag.Parse()

	err := run(*addr)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(addr string) error {
	conn, err := drv.Dial(addr)
	if err != nil {
		return fmt.Errorf("could not dial storm-svc %q: %w", addr, err)
	}
	defer conn.Close()

	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(func(line string) []string {
		var o []string
		for _, cmd := range []string{
			"rd ", "wr ", "status", "ack", "dump", "quit", "help",
		} {
			if strings.HasPrefix(cmd, strings.ToLower(line)) {
				o = append(o, cmd)
			}
		}
		return o
	})

	hist := filepath.Join(os.TempDir(), ".storm_sh_history")
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		o, err := term.Prompt("storm>> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				return nil
			}
			return err
		}
		if o == "" {
			continue
		}
		term.AppendHistory(o)

		quit, err := dispatch(conn, strings.Fields(o))
		if err != nil {
			log.Printf("%+v", err)
		}
		if quit {
			return nil
		}
	}
}

func dispatch(conn *drv.NetIO, args []string) (bool, error) {
	switch args[0] {
	case "rd":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: rd <offset>")
		}
		off, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return false, fmt.Errorf("invalid offset %q: %w", args[1], err)
		}
		v, err := conn.In32(uint32(off))
		if err != nil {
			return false, err
		}
		fmt.Printf("0x%02x: 0x%08x\n", off, v)

	case "wr":
		if len(args) != 3 {
			return false, fmt.Errorf("usage: wr <offset> <value>")
		}
		off, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return false, fmt.Errorf("invalid offset %q: %w", args[1], err)
		}
		v, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return false, fmt.Errorf("invalid value %q: %w", args[2], err)
		}
		err = conn.Out32(uint32(off), uint32(v))
		if err != nil {
			return false, err
		}

	case "status":
		v, err := conn.In8(storm.RegStatus)
		if err != nil {
			return false, err
		}
		fmt.Printf("status: 0x%02x (enabled=%v asserted=%v level=%v)\n",
			v,
			v&storm.StatusEnabled != 0,
			v&storm.StatusAsserted != 0,
			v&storm.StatusLevel != 0,
		)

	case "ack":
		err := conn.Out8(storm.RegAck, 1)
		if err != nil {
			return false, err
		}

	case "dump":
		txt, err := conn.Dump()
		if err != nil {
			return false, err
		}
		fmt.Print(txt)

	case "quit":
		return true, conn.Quit()

	case "help":
		fmt.Print(`commands:
 rd <offset>         read a register
 wr <offset> <value> write a register
 status              decode the STATUS register
 ack                 deassert the line (write ACK)
 dump                dump all registers
 quit                end the control session and exit
`)

	default:
		return false, fmt.Errorf("unknown command %q (try \"help\")", args[0])
	}
	return false, nil
}
