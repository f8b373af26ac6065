// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb // import "github.com/go-virt/irqstorm/conddb"

// Scenario describes a named storm-device configuration.
type Scenario struct {
	ID       int32  `json:"identifier"`
	Name     string `json:"name"`
	Burst    uint32 `json:"burst"`
	PeriodUS uint32 `json:"period_us"`
	Level    bool   `json:"level"`
	Enabled  bool   `json:"enabled"`

	// ReportEvery is the handled-interrupt count between two
	// telemetry reports of the driver loop.
	ReportEvery uint64 `json:"report_every"`
}
