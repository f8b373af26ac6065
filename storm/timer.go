// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storm

import (
	"math"
	"time"
)

// Clock abstracts the time source driving the device timer, so tests
// can run the device on virtual time.
type Clock interface {
	Now() time.Time

	// NewTimer returns an unarmed deadline timer that invokes fn on
	// expiry.
	NewTimer(fn func()) Timer
}

// Timer is a single re-armable deadline timer.
type Timer interface {
	// Mod (re)arms the timer to fire at the given instant, replacing
	// any pending deadline.
	Mod(deadline time.Time)

	// Del cancels the pending deadline, if any.
	Del()
}

// WallClock returns the system clock.
func WallClock() Clock { return wallClock{} }

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) NewTimer(fn func()) Timer {
	t := time.AfterFunc(time.Duration(math.MaxInt64), fn)
	t.Stop()
	return &wallTimer{tm: t}
}

type wallTimer struct {
	tm *time.Timer
}

func (t *wallTimer) Mod(deadline time.Time) { t.tm.Reset(time.Until(deadline)) }
func (t *wallTimer) Del()                   { t.tm.Stop() }

func (dev *Device) period() time.Duration {
	us := dev.periodUS
	if us < 1 {
		us = 1
	}
	return time.Duration(us) * time.Microsecond
}

// scheduleFromNow (re)arms the timer one period from the current
// instant, replacing any pending deadline. Valid only while enabled.
func (dev *Device) scheduleFromNow() {
	if dev.ctrl&CtrlEnable == 0 || dev.tmr == nil {
		return
	}
	dev.deadline = dev.clk.Now().Add(dev.period())
	dev.tmr.Mod(dev.deadline)
}

// scheduleNext advances the deadline by exactly one period. A late
// callback resynchronizes by however many whole periods it takes to
// bring the deadline back into the future: missed ticks are dropped,
// never replayed as catch-up bursts.
func (dev *Device) scheduleNext() {
	if dev.ctrl&CtrlEnable == 0 || dev.tmr == nil {
		return
	}
	var (
		p   = dev.period()
		now = dev.clk.Now()
	)
	dev.deadline = dev.deadline.Add(p)
	if !dev.deadline.After(now) {
		missed := int64(now.Sub(dev.deadline)/p) + 1
		dev.deadline = dev.deadline.Add(time.Duration(missed) * p)
	}
	dev.tmr.Mod(dev.deadline)
}

// tick is the timer-expiry handler.
func (dev *Device) tick() {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	// a stale callback dispatched before a disable is a no-op.
	if dev.ctrl&CtrlEnable == 0 || dev.tmr == nil {
		return
	}

	dev.timerCB++
	switch {
	case dev.ctrl&CtrlLevel != 0:
		// the line stays high until acknowledged. ticks arriving
		// while it is still asserted are absorbed.
		if !dev.asserted {
			dev.irq.Raise()
			dev.asserted = true
			dev.pulses++
		}
	default:
		n := clampBurst(dev.burst)
		for i := uint32(0); i < n; i++ {
			dev.irq.Pulse()
		}
		dev.pulses += uint64(n)
	}
	dev.scheduleNext()
	dev.sync()
}

func clampBurst(v uint32) uint32 {
	switch {
	case v < 1:
		return 1
	case v > MaxBurst:
		return MaxBurst
	}
	return v
}
