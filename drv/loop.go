// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drv

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-virt/irqstorm/storm"
	"golang.org/x/xerrors"
)

// Notifier is the delivery layer the loop blocks on: a blocking
// receive yielding an opaque badge, and an acknowledgment that must
// happen once per delivered notification.
type Notifier interface {
	Wait() (uint64, error)
	Ack() error
}

// Phase is the driver loop state.
type Phase uint8

const (
	PhaseWait Phase = iota
	PhaseHandle
	PhaseReport
)

func (p Phase) String() string {
	switch p {
	case PhaseWait:
		return "wait"
	case PhaseHandle:
		return "handle"
	case PhaseReport:
		return "report"
	}
	return "invalid"
}

// Samples is one reading of the four device counters.
type Samples struct {
	Pulses    uint64
	TimerCB   uint32
	CfgWrites uint32
	EnToggles uint32
}

// Record is one telemetry record: the counter totals at sampling time
// and their deltas against the previous record.
type Record struct {
	Seq     uint32
	When    time.Time
	Handled uint64
	Tot     Samples
	Delta   Samples
}

// LoopOption configures a driver loop.
type LoopOption func(*Loop)

// WithReportEvery sets the number of handled notifications between
// two telemetry records.
func WithReportEvery(n uint64) LoopOption {
	return func(lp *Loop) { lp.every = n }
}

// WithReportFunc sets the telemetry sink invoked from the REPORT
// phase.
func WithReportFunc(f func(*Record)) LoopOption {
	return func(lp *Loop) { lp.report = f }
}

// Loop is the consumer notification-handling loop, a cyclic
// WAIT -> HANDLE -> (every Nth cycle) REPORT -> WAIT state machine
// with no terminal state. The wait is the sole blocking point; every
// other step is non-blocking register traffic.
type Loop struct {
	msg *log.Logger
	acc Accessor
	ntf Notifier

	every  uint64
	report func(*Record)

	phase   Phase
	badge   uint64
	handled uint64
	seq     uint32
	last    Samples
}

// NewLoop creates a driver loop draining ntf and talking to the
// device through acc.
func NewLoop(acc Accessor, ntf Notifier, opts ...LoopOption) *Loop {
	lp := &Loop{
		msg:   log.New(os.Stdout, "drv: ", 0),
		acc:   acc,
		ntf:   ntf,
		every: DefaultReportEvery,
	}
	for _, opt := range opts {
		opt(lp)
	}
	return lp
}

// Phase returns the current loop phase.
func (lp *Loop) Phase() Phase { return lp.phase }

// Handled returns the number of handled notifications.
func (lp *Loop) Handled() uint64 { return lp.handled }

// Step runs one phase of the state machine. It returns a non-nil
// error only when the delivery layer is gone; register-access and
// acknowledgment failures are logged and the loop moves on, since new
// notifications keep arriving for subsequent activity.
func (lp *Loop) Step() error {
	switch lp.phase {
	case PhaseWait:
		badge, err := lp.ntf.Wait()
		if err != nil {
			return xerrors.Errorf("drv: could not wait for notification: %w", err)
		}
		lp.badge = badge
		lp.handled++
		lp.phase = PhaseHandle

	case PhaseHandle:
		status, err := lp.acc.In8(storm.RegStatus)
		switch {
		case err != nil:
			lp.msg.Printf("could not read status: %+v", err)
		case status&storm.StatusLevel != 0 && status&storm.StatusAsserted != 0:
			// deassert before the delivery-layer ack: a line still
			// held high would renew the notification immediately.
			err = lp.acc.Out8(storm.RegAck, 1)
			if err != nil {
				lp.msg.Printf("could not deassert line: %+v", err)
			}
		}
		err = lp.ntf.Ack()
		if err != nil {
			lp.msg.Printf("could not ack notification (badge=0x%x): %+v", lp.badge, err)
		}
		lp.phase = PhaseWait
		if lp.every > 0 && lp.handled%lp.every == 0 {
			lp.phase = PhaseReport
		}

	case PhaseReport:
		lp.phase = PhaseWait
		tot, err := lp.sample()
		if err != nil {
			lp.msg.Printf("could not sample counters: %+v", err)
			return nil
		}
		rec := Record{
			Seq:     lp.seq,
			When:    time.Now(),
			Handled: lp.handled,
			Tot:     tot,
			Delta: Samples{
				Pulses:    tot.Pulses - lp.last.Pulses,
				TimerCB:   tot.TimerCB - lp.last.TimerCB,
				CfgWrites: tot.CfgWrites - lp.last.CfgWrites,
				EnToggles: tot.EnToggles - lp.last.EnToggles,
			},
		}
		lp.last = tot
		lp.seq++
		if lp.report != nil {
			lp.report(&rec)
		}
	}
	return nil
}

// sample reads the four device counters, pairing the split pulse
// counter halves with a stable read.
func (lp *Loop) sample() (Samples, error) {
	var (
		s   Samples
		err error
	)
	s.Pulses, err = PulseCounter(lp.acc).Read()
	if err != nil {
		return s, xerrors.Errorf("drv: could not read pulse counter: %w", err)
	}
	s.TimerCB, err = lp.acc.In32(storm.RegTimerCB)
	if err != nil {
		return s, xerrors.Errorf("drv: could not read timer-cb counter: %w", err)
	}
	s.CfgWrites, err = lp.acc.In32(storm.RegCfgWr)
	if err != nil {
		return s, xerrors.Errorf("drv: could not read cfg-writes counter: %w", err)
	}
	s.EnToggles, err = lp.acc.In32(storm.RegEnTgl)
	if err != nil {
		return s, xerrors.Errorf("drv: could not read en-toggles counter: %w", err)
	}
	return s, nil
}

// Run steps the loop until ctx is done or the delivery layer goes
// away. The loop itself has no timeout and no cancellation path: it
// is built to run for the process's lifetime.
func (lp *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		err := lp.Step()
		if err != nil {
			return err
		}
	}
}
