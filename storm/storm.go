// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storm models a virtual interrupt-storm peripheral: a
// register-driven device that emits interrupts on a configurable
// schedule, either as discrete pulse bursts or as a level line held
// until acknowledged.
package storm // import "github.com/go-virt/irqstorm/storm"

// Register offsets within the device window.
const (
	RegCtrl     = 0x00 // rw: bit0 ENABLE, bit1 LEVEL
	RegLine     = 0x01 // ro: configured interrupt line
	RegBurst    = 0x02 // rw: pulses per period in edge mode
	RegStatus   = 0x03 // ro: bit0 ENABLED, bit1 ASSERTED, bit2 LEVEL
	RegPeriodUS = 0x04 // rw: microseconds between ticks
	RegPulsesLO = 0x08 // ro: pulse counter, low half
	RegPulsesHI = 0x0c // ro: pulse counter, high half
	RegTimerCB  = 0x10 // ro: live timer-expiry invocations
	RegCfgWr    = 0x14 // ro: effective configuration changes
	RegEnTgl    = 0x18 // ro: effective ENABLE transitions
	RegAck      = 0x1c // wo: nonzero deasserts the line
)

// CTRL register bits.
const (
	CtrlEnable = 1 << 0
	CtrlLevel  = 1 << 1

	ctrlMask = CtrlEnable | CtrlLevel
)

// STATUS register bits.
const (
	StatusEnabled  = 1 << 0
	StatusAsserted = 1 << 1
	StatusLevel    = 1 << 2
)

const (
	// MaxBurst is the largest number of pulses emitted per period in
	// edge mode. Larger configured values are clamped at use, not at
	// write.
	MaxBurst = 100000

	// MaxLine is the highest valid interrupt line number.
	MaxLine = 15

	// WinSize is the size of the register window. Construction fails
	// for smaller mapped regions.
	WinSize = 0x20
)

// Default construction properties.
const (
	DefaultBase     = 0x560
	DefaultLine     = 5
	DefaultBurst    = 128
	DefaultPeriodUS = 100
)
