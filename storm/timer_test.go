// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storm

import (
	"testing"
	"time"
)

func TestScheduleNext(t *testing.T) {
	const period = 100 * time.Microsecond

	for _, tc := range []struct {
		name string
		late time.Duration // callback dispatch delay past the deadline
		want time.Duration // next deadline, relative to the old one
	}{
		{"on-time", 0, period},
		{"slightly-late", 30 * time.Microsecond, period},
		{"one-period-late", period, 2 * period},
		{"very-late", 10*period + 42*time.Microsecond, 11 * period},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clk := newTestClock()
			dev := &Device{
				clk:      clk,
				tmr:      clk.NewTimer(func() {}),
				ctrl:     CtrlEnable,
				periodUS: 100,
				deadline: clk.now,
			}

			old := dev.deadline
			clk.now = old.Add(tc.late)
			dev.scheduleNext()

			if got, want := dev.deadline, old.Add(tc.want); !got.Equal(want) {
				t.Fatalf("deadline: got=+%v, want=+%v", got.Sub(old), want.Sub(old))
			}
			if !dev.deadline.After(clk.now) {
				t.Fatalf("deadline must be in the future")
			}
			if !clk.tmr.armed || !clk.tmr.deadline.Equal(dev.deadline) {
				t.Fatalf("timer not armed at the new deadline")
			}
		})
	}
}

func TestPeriodFloor(t *testing.T) {
	dev := &Device{periodUS: 0}
	if got, want := dev.period(), 1*time.Microsecond; got != want {
		t.Fatalf("period floor: got=%v, want=%v", got, want)
	}

	dev.periodUS = 250
	if got, want := dev.period(), 250*time.Microsecond; got != want {
		t.Fatalf("period: got=%v, want=%v", got, want)
	}
}

func TestWallTimer(t *testing.T) {
	fired := make(chan int)
	clk := WallClock()
	tmr := clk.NewTimer(func() { fired <- 1 })
	defer tmr.Del()

	select {
	case <-fired:
		t.Fatalf("timer fired before being armed")
	case <-time.After(10 * time.Millisecond):
	}

	tmr.Mod(clk.Now().Add(1 * time.Millisecond))
	select {
	case <-fired:
	case <-time.After(1 * time.Second):
		t.Fatalf("timer did not fire")
	}
}
