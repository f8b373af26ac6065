// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drv

import (
	"bytes"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-virt/irqstorm/storm"
)

func TestServerEnable(t *testing.T) {
	var (
		events []string
		acc    = newFakeAcc(&events)
		ntf    = &fakeNtf{log: &events}
	)
	acc.regs[storm.RegCtrl] = storm.CtrlLevel

	srv := NewServer("storm-mon", acc, ntf, 4)

	err := srv.enable(true)
	if err != nil {
		t.Fatalf("could not enable: %+v", err)
	}
	if got, want := acc.regs[storm.RegCtrl], uint32(storm.CtrlLevel|storm.CtrlEnable); got != want {
		t.Fatalf("ctrl after enable: got=0x%x, want=0x%x", got, want)
	}

	err = srv.enable(false)
	if err != nil {
		t.Fatalf("could not disable: %+v", err)
	}
	if got, want := acc.regs[storm.RegCtrl], uint32(storm.CtrlLevel); got != want {
		t.Fatalf("ctrl after disable: got=0x%x, want=0x%x", got, want)
	}
}

func TestServerPush(t *testing.T) {
	var (
		events []string
		acc    = newFakeAcc(&events)
		ntf    = &fakeNtf{log: &events}
	)
	srv := NewServer("storm-mon", acc, ntf, 4)
	srv.reset()

	when := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	srv.push(&Record{
		Seq:     3,
		When:    when,
		Handled: 12,
		Tot:     Samples{Pulses: 1 << 33, TimerCB: 100, CfgWrites: 2, EnToggles: 1},
		Delta:   Samples{Pulses: 128, TimerCB: 1},
	})

	select {
	case raw := <-srv.recs:
		dec := tdaq.NewDecoder(bytes.NewReader(raw))
		if got, want := dec.ReadU32(), uint32(3); got != want {
			t.Fatalf("seq: got=%d, want=%d", got, want)
		}
		if got, want := dec.ReadI64(), when.UnixMicro(); got != want {
			t.Fatalf("when: got=%d, want=%d", got, want)
		}
		if got, want := dec.ReadU64(), uint64(12); got != want {
			t.Fatalf("handled: got=%d, want=%d", got, want)
		}
		if got, want := dec.ReadU64(), uint64(1)<<33; got != want {
			t.Fatalf("tot.pulses: got=%d, want=%d", got, want)
		}
	default:
		t.Fatalf("no record pushed")
	}

	// a full queue drops records instead of stalling the loop.
	for i := 0; i < 2048; i++ {
		srv.push(&Record{Seq: uint32(i)})
	}
}

func TestLoopWiredByReset(t *testing.T) {
	var (
		events []string
		acc    = newFakeAcc(&events)
		ntf    = &fakeNtf{log: &events, badge: 5, left: 4}
	)
	srv := NewServer("storm-mon", acc, ntf, 4)
	srv.reset()

	for i := 0; i < 4; i++ {
		if err := srv.loop.Step(); err != nil {
			t.Fatalf("could not step loop: %+v", err)
		}
		if err := srv.loop.Step(); err != nil {
			t.Fatalf("could not step loop: %+v", err)
		}
	}
	if err := srv.loop.Step(); err != nil {
		t.Fatalf("could not step loop: %+v", err)
	}

	select {
	case <-srv.recs:
	default:
		t.Fatalf("report did not reach the telemetry queue")
	}
}
