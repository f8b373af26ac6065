// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drv

import (
	"context"
	"testing"

	"github.com/go-virt/irqstorm/storm"
	"golang.org/x/xerrors"
)

// fakeAcc is a scripted register window shared with the fake
// notifier through an event log, so tests can assert ordering.
type fakeAcc struct {
	regs map[uint32]uint32
	log  *[]string

	errIn  error
	errOut error
}

func newFakeAcc(log *[]string) *fakeAcc {
	return &fakeAcc{
		regs: make(map[uint32]uint32),
		log:  log,
	}
}

func (acc *fakeAcc) In8(off uint32) (uint8, error) {
	v, err := acc.In32(off)
	return uint8(v), err
}

func (acc *fakeAcc) In16(off uint32) (uint16, error) {
	v, err := acc.In32(off)
	return uint16(v), err
}

func (acc *fakeAcc) In32(off uint32) (uint32, error) {
	if acc.errIn != nil {
		return 0, acc.errIn
	}
	return acc.regs[off], nil
}

func (acc *fakeAcc) Out8(off uint32, v uint8) error {
	return acc.Out32(off, uint32(v))
}

func (acc *fakeAcc) Out16(off uint32, v uint16) error {
	return acc.Out32(off, uint32(v))
}

func (acc *fakeAcc) Out32(off uint32, v uint32) error {
	if acc.errOut != nil {
		return acc.errOut
	}
	if off == storm.RegAck && v != 0 {
		*acc.log = append(*acc.log, "dev-ack")
		acc.regs[storm.RegStatus] &^= storm.StatusAsserted
	}
	return nil
}

type fakeNtf struct {
	log    *[]string
	badge  uint64
	left   int
	ackErr error
}

func (ntf *fakeNtf) Wait() (uint64, error) {
	if ntf.left == 0 {
		return 0, xerrors.New("fake: no more notifications")
	}
	ntf.left--
	return ntf.badge, nil
}

func (ntf *fakeNtf) Ack() error {
	*ntf.log = append(*ntf.log, "ntf-ack")
	return ntf.ackErr
}

func TestLoopReportCadence(t *testing.T) {
	var (
		events []string
		acc    = newFakeAcc(&events)
		ntf    = &fakeNtf{log: &events, badge: 5, left: 8}
		recs   []Record
	)
	acc.regs[storm.RegPulsesLO] = 1000
	acc.regs[storm.RegTimerCB] = 10
	acc.regs[storm.RegCfgWr] = 1
	acc.regs[storm.RegEnTgl] = 2

	lp := NewLoop(acc, ntf,
		WithReportEvery(4),
		WithReportFunc(func(rec *Record) { recs = append(recs, *rec) }),
	)

	if got, want := lp.Phase(), PhaseWait; got != want {
		t.Fatalf("initial phase: got=%v, want=%v", got, want)
	}

	step := func() {
		t.Helper()
		err := lp.Step()
		if err != nil {
			t.Fatalf("could not step loop: %+v", err)
		}
	}

	for i := 0; i < 4; i++ {
		step() // wait
		step() // handle
	}
	if got, want := lp.Phase(), PhaseReport; got != want {
		t.Fatalf("phase after 4 handled: got=%v, want=%v", got, want)
	}
	step() // report

	acc.regs[storm.RegPulsesLO] = 1700
	acc.regs[storm.RegTimerCB] = 17

	for i := 0; i < 4; i++ {
		step()
		step()
	}
	step()

	if got, want := len(recs), 2; got != want {
		t.Fatalf("records: got=%d, want=%d", got, want)
	}
	if got, want := lp.Handled(), uint64(8); got != want {
		t.Fatalf("handled: got=%d, want=%d", got, want)
	}

	r0 := recs[0]
	if got, want := r0.Seq, uint32(0); got != want {
		t.Errorf("rec[0].seq: got=%d, want=%d", got, want)
	}
	if got, want := r0.Handled, uint64(4); got != want {
		t.Errorf("rec[0].handled: got=%d, want=%d", got, want)
	}
	if got, want := r0.Tot.Pulses, uint64(1000); got != want {
		t.Errorf("rec[0].tot.pulses: got=%d, want=%d", got, want)
	}
	if got, want := r0.Delta.Pulses, uint64(1000); got != want {
		t.Errorf("rec[0].delta.pulses: got=%d, want=%d", got, want)
	}

	r1 := recs[1]
	if got, want := r1.Seq, uint32(1); got != want {
		t.Errorf("rec[1].seq: got=%d, want=%d", got, want)
	}
	if got, want := r1.Tot.Pulses, uint64(1700); got != want {
		t.Errorf("rec[1].tot.pulses: got=%d, want=%d", got, want)
	}
	if got, want := r1.Delta.Pulses, uint64(700); got != want {
		t.Errorf("rec[1].delta.pulses: got=%d, want=%d", got, want)
	}
	if got, want := r1.Delta.TimerCB, uint32(7); got != want {
		t.Errorf("rec[1].delta.timer-cb: got=%d, want=%d", got, want)
	}
	if got, want := r1.Delta.CfgWrites, uint32(0); got != want {
		t.Errorf("rec[1].delta.cfg-writes: got=%d, want=%d", got, want)
	}
}

func TestLoopDeassertBeforeAck(t *testing.T) {
	var (
		events []string
		acc    = newFakeAcc(&events)
		ntf    = &fakeNtf{log: &events, badge: 5, left: 1}
	)
	acc.regs[storm.RegStatus] = storm.StatusEnabled | storm.StatusAsserted | storm.StatusLevel

	lp := NewLoop(acc, ntf, WithReportEvery(0))

	if err := lp.Step(); err != nil {
		t.Fatalf("could not step loop: %+v", err)
	}
	if err := lp.Step(); err != nil {
		t.Fatalf("could not step loop: %+v", err)
	}

	// the device deassert must land before the delivery-layer ack,
	// or the still-high line renews the notification at once.
	if len(events) != 2 || events[0] != "dev-ack" || events[1] != "ntf-ack" {
		t.Fatalf("invalid event order: %v", events)
	}
}

func TestLoopEdgeNoDeviceAck(t *testing.T) {
	var (
		events []string
		acc    = newFakeAcc(&events)
		ntf    = &fakeNtf{log: &events, badge: 5, left: 1}
	)
	acc.regs[storm.RegStatus] = storm.StatusEnabled

	lp := NewLoop(acc, ntf, WithReportEvery(0))
	if err := lp.Step(); err != nil {
		t.Fatalf("could not step loop: %+v", err)
	}
	if err := lp.Step(); err != nil {
		t.Fatalf("could not step loop: %+v", err)
	}

	// edge mode never writes ACK.
	if len(events) != 1 || events[0] != "ntf-ack" {
		t.Fatalf("invalid event order: %v", events)
	}
}

func TestLoopToleratesAckFailure(t *testing.T) {
	var (
		events []string
		acc    = newFakeAcc(&events)
		ntf    = &fakeNtf{log: &events, badge: 5, left: 3, ackErr: xerrors.New("fake: ack failed")}
	)

	lp := NewLoop(acc, ntf, WithReportEvery(0))
	for i := 0; i < 3; i++ {
		if err := lp.Step(); err != nil {
			t.Fatalf("could not step loop: %+v", err)
		}
		if err := lp.Step(); err != nil {
			t.Fatalf("could not step loop: %+v", err)
		}
	}
	if got, want := lp.Handled(), uint64(3); got != want {
		t.Fatalf("handled: got=%d, want=%d", got, want)
	}
}

func TestLoopRunStopsOnWaitError(t *testing.T) {
	var (
		events []string
		acc    = newFakeAcc(&events)
		ntf    = &fakeNtf{log: &events, badge: 5, left: 2}
	)

	lp := NewLoop(acc, ntf, WithReportEvery(0))
	err := lp.Run(context.Background())
	if err == nil {
		t.Fatalf("run should fail once the delivery layer is gone")
	}
	if got, want := lp.Handled(), uint64(2); got != want {
		t.Fatalf("handled: got=%d, want=%d", got, want)
	}
}

func TestLoopRunHonorsContext(t *testing.T) {
	var (
		events []string
		acc    = newFakeAcc(&events)
		ntf    = &fakeNtf{log: &events, badge: 5, left: 1 << 20}
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lp := NewLoop(acc, ntf, WithReportEvery(0))
	err := lp.Run(ctx)
	if !xerrors.Is(err, context.Canceled) {
		t.Fatalf("run error: got=%v, want=%v", err, context.Canceled)
	}
}
