// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package drv holds the privileged consumer side of the storm device:
// the notification-handling loop that drains, acknowledges and
// reports on the interrupt stream.
package drv // import "github.com/go-virt/irqstorm/drv"

const (
	// DefaultReportEvery is the default number of handled
	// notifications between two telemetry records.
	DefaultReportEvery = 65536
)

// Config bundles the device and loop parameters of one acquisition.
type Config struct {
	Line     uint8
	Burst    uint32
	PeriodUS uint32
	Level    bool
	Every    uint64
}
