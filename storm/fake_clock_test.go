// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storm

import (
	"time"
)

// testClock drives the device timer on virtual time. advance moves
// the clock forward and dispatches every deadline it crosses, in
// order, the way a timer wheel would.
type testClock struct {
	now time.Time
	tmr *testTimer
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1000, 0)}
}

func (clk *testClock) Now() time.Time { return clk.now }

func (clk *testClock) NewTimer(fn func()) Timer {
	clk.tmr = &testTimer{fn: fn}
	return clk.tmr
}

func (clk *testClock) advance(d time.Duration) {
	clk.now = clk.now.Add(d)
	for clk.tmr != nil && clk.tmr.armed && !clk.tmr.deadline.After(clk.now) {
		clk.tmr.armed = false
		clk.tmr.fn()
	}
}

type testTimer struct {
	fn       func()
	armed    bool
	deadline time.Time
}

func (t *testTimer) Mod(deadline time.Time) {
	t.armed = true
	t.deadline = deadline
}

func (t *testTimer) Del() { t.armed = false }

// testLine records the traffic the device drives on its interrupt
// line.
type testLine struct {
	raises int
	lowers int
	pulses int
}

func (l *testLine) Raise() { l.raises++ }
func (l *testLine) Lower() { l.lowers++ }
func (l *testLine) Pulse() { l.pulses++ }
