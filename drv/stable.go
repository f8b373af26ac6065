// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drv

import (
	"github.com/go-virt/irqstorm/storm"
	"golang.org/x/xerrors"
)

// Counter64 composes a monotonic 64-bit counter exposed as two
// independently-read 32-bit registers.
type Counter64 struct {
	Lo func() (uint32, error)
	Hi func() (uint32, error)
}

// Read returns a value the counter held at some instant between the
// first and last register read. It reads high, low, high again and
// retries until both high halves agree: the high half only changes
// when the low half wraps, so equal highs rule out a wrap under the
// low read and the pairing is internally consistent. The retry is
// unbounded; updates are far rarer than reads, so it converges within
// a few attempts in practice.
func (c Counter64) Read() (uint64, error) {
	for {
		h1, err := c.Hi()
		if err != nil {
			return 0, xerrors.Errorf("drv: could not read counter high half: %w", err)
		}
		lo, err := c.Lo()
		if err != nil {
			return 0, xerrors.Errorf("drv: could not read counter low half: %w", err)
		}
		h2, err := c.Hi()
		if err != nil {
			return 0, xerrors.Errorf("drv: could not read counter high half: %w", err)
		}
		if h1 == h2 {
			return uint64(h2)<<32 | uint64(lo), nil
		}
	}
}

// PulseCounter returns the stable reader for the device pulse
// counter.
func PulseCounter(acc Accessor) Counter64 {
	return Counter64{
		Lo: func() (uint32, error) { return acc.In32(storm.RegPulsesLO) },
		Hi: func() (uint32, error) { return acc.In32(storm.RegPulsesHI) },
	}
}
