// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storm

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Line is the interrupt-line primitive the device drives.
type Line interface {
	Raise()
	Lower()
	Pulse()
}

type nopLine struct{}

func (nopLine) Raise() {}
func (nopLine) Lower() {}
func (nopLine) Pulse() {}

type config struct {
	base     uint32
	size     uint32
	line     uint32
	burst    uint32
	periodUS uint32
	enabled  bool
	level    bool

	clk Clock
	shm string
}

func newConfig() config {
	return config{
		base:     DefaultBase,
		size:     WinSize,
		line:     DefaultLine,
		burst:    DefaultBurst,
		periodUS: DefaultPeriodUS,
		enabled:  true,
		clk:      wallClock{},
	}
}

// Option configures a storm device at construction time.
type Option func(*config)

// WithBase sets the base address of the register window.
func WithBase(v uint32) Option {
	return func(cfg *config) { cfg.base = v }
}

// WithWinSize sets the size of the mapped register window.
func WithWinSize(v uint32) Option {
	return func(cfg *config) { cfg.size = v }
}

// WithLine sets the interrupt line number (valid range [0..15]).
func WithLine(v uint32) Option {
	return func(cfg *config) { cfg.line = v }
}

// WithBurst sets the default pulses-per-period in edge mode.
func WithBurst(v uint32) Option {
	return func(cfg *config) { cfg.burst = v }
}

// WithPeriod sets the default tick period, in microseconds.
func WithPeriod(us uint32) Option {
	return func(cfg *config) { cfg.periodUS = us }
}

// WithEnabled selects whether the device starts enabled.
func WithEnabled(on bool) Option {
	return func(cfg *config) { cfg.enabled = on }
}

// WithLevelTriggered selects level mode at start.
func WithLevelTriggered(on bool) Option {
	return func(cfg *config) { cfg.level = on }
}

// WithClock substitutes the time source driving the device timer.
func WithClock(clk Clock) Option {
	return func(cfg *config) { cfg.clk = clk }
}

// WithDevSHM mirrors the register window into the given shared-memory
// file, so sibling processes can sample it.
func WithDevSHM(path string) Option {
	return func(cfg *config) { cfg.shm = path }
}

// Device is a virtual interrupt-storm peripheral. All of its mutable
// state is owned here and reached only through the register decode
// entry points and the timer-expiry handler.
type Device struct {
	msg *log.Logger
	mu  sync.Mutex

	base uint32
	size uint32
	line uint32

	clk Clock
	tmr Timer
	irq Line
	shm *mirror

	ctrl     uint8
	burst    uint32
	periodUS uint32

	asserted bool
	deadline time.Time

	pulses  uint64
	timerCB uint64
	cfgWr   uint64
	enTgl   uint64
}

// New creates a storm device driving the given interrupt line.
// Construction-time properties are validated before any timer
// resource is created.
func New(irq Line, opts ...Option) (*Device, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.line > MaxLine {
		return nil, fmt.Errorf("storm: line must be in range [0..%d] (got=%d)", MaxLine, cfg.line)
	}
	if cfg.size < WinSize {
		return nil, fmt.Errorf("storm: window size must be at least 0x%x (got=0x%x)", WinSize, cfg.size)
	}
	if irq == nil {
		irq = nopLine{}
	}

	dev := &Device{
		msg:      log.New(os.Stdout, "storm: ", 0),
		base:     cfg.base,
		size:     cfg.size,
		line:     cfg.line,
		clk:      cfg.clk,
		irq:      irq,
		burst:    cfg.burst,
		periodUS: cfg.periodUS,
	}

	if cfg.shm != "" {
		shm, err := newMirror(cfg.shm, cfg.size)
		if err != nil {
			return nil, fmt.Errorf("storm: could not create shm window: %w", err)
		}
		dev.shm = shm
	}

	dev.tmr = cfg.clk.NewTimer(dev.tick)

	dev.mu.Lock()
	defer dev.mu.Unlock()
	if cfg.level {
		dev.ctrl |= CtrlLevel
	}
	if cfg.enabled {
		dev.ctrl |= CtrlEnable
		dev.scheduleFromNow()
	}
	dev.sync()

	return dev, nil
}

// Close cancels any pending timer before tearing the device down.
func (dev *Device) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.tmr != nil {
		dev.tmr.Del()
		dev.tmr = nil
	}
	if dev.shm != nil {
		err := dev.shm.Close()
		dev.shm = nil
		if err != nil {
			return fmt.Errorf("storm: could not close shm window: %w", err)
		}
	}
	return nil
}

// Base returns the base address of the register window.
func (dev *Device) Base() uint32 { return dev.base }

// Size returns the size of the register window.
func (dev *Device) Size() uint32 { return dev.size }

// Line returns the configured interrupt line number.
func (dev *Device) Line() uint32 { return dev.line }

// Read decodes a register read of the given access width (1-4 bytes)
// at offset off. Undefined offsets read as zero.
func (dev *Device) Read(off uint32, size int) uint32 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return truncate(dev.read(off), size)
}

func (dev *Device) read(off uint32) uint32 {
	switch off {
	case RegCtrl:
		return uint32(dev.ctrl)
	case RegLine:
		return dev.line
	case RegBurst:
		return dev.burst
	case RegStatus:
		return uint32(dev.status())
	case RegPeriodUS:
		return dev.periodUS
	case RegPulsesLO:
		return uint32(dev.pulses)
	case RegPulsesHI:
		return uint32(dev.pulses >> 32)
	case RegTimerCB:
		return uint32(dev.timerCB)
	case RegCfgWr:
		return uint32(dev.cfgWr)
	case RegEnTgl:
		return uint32(dev.enTgl)
	default:
		return 0
	}
}

func (dev *Device) status() uint8 {
	var v uint8
	if dev.ctrl&CtrlEnable != 0 {
		v |= StatusEnabled
	}
	if dev.asserted {
		v |= StatusAsserted
	}
	if dev.ctrl&CtrlLevel != 0 {
		v |= StatusLevel
	}
	return v
}

// Write decodes a register write of the given access width (1-4
// bytes) at offset off. Writes to undefined or read-only offsets are
// dropped.
func (dev *Device) Write(off, v uint32, size int) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	v = truncate(v, size)
	switch off {
	case RegCtrl:
		dev.writeCtrl(uint8(v))
	case RegBurst:
		if v != dev.burst {
			dev.burst = v
			dev.cfgWr++
		}
	case RegPeriodUS:
		if v != dev.periodUS {
			dev.periodUS = v
			dev.cfgWr++
			// a new period takes effect immediately, not after the
			// stale deadline.
			if dev.ctrl&CtrlEnable != 0 {
				dev.scheduleFromNow()
			}
		}
	case RegAck:
		if v != 0 {
			dev.deassert()
		}
	default:
	}
	dev.sync()
}

func (dev *Device) writeCtrl(v uint8) {
	var (
		old      = dev.ctrl
		wasOn    = old&CtrlEnable != 0
		wasLevel = old&CtrlLevel != 0
	)

	cur := v & ctrlMask
	if cur != old {
		dev.cfgWr++
		dev.ctrl = cur
	}

	// dropping LEVEL force-deasserts, independent of ENABLE.
	if wasLevel && dev.ctrl&CtrlLevel == 0 {
		dev.deassert()
	}

	isOn := dev.ctrl&CtrlEnable != 0
	if isOn != wasOn {
		dev.enTgl++
	}

	switch {
	case isOn && !wasOn:
		dev.scheduleFromNow()
	case !isOn:
		if dev.tmr != nil {
			dev.tmr.Del()
		}
		dev.deassert()
	}
}

func (dev *Device) deassert() {
	if dev.asserted {
		dev.irq.Lower()
		dev.asserted = false
	}
}

func (dev *Device) sync() {
	if dev.shm != nil {
		dev.shm.sync(dev)
	}
}

// DumpRegisters writes a human-readable dump of the register window
// to w.
func (dev *Device) DumpRegisters(w io.Writer) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	for _, reg := range []struct {
		name string
		off  uint32
	}{
		{"ctrl", RegCtrl},
		{"line", RegLine},
		{"burst", RegBurst},
		{"status", RegStatus},
		{"period-us", RegPeriodUS},
		{"pulses-lo", RegPulsesLO},
		{"pulses-hi", RegPulsesHI},
		{"timer-cb", RegTimerCB},
		{"cfg-writes", RegCfgWr},
		{"en-toggles", RegEnTgl},
	} {
		_, err := fmt.Fprintf(w, "%-10s= 0x%08x\n", reg.name, dev.read(reg.off))
		if err != nil {
			return fmt.Errorf("storm: could not dump register %q: %w", reg.name, err)
		}
	}
	return nil
}

func truncate(v uint32, size int) uint32 {
	switch size {
	case 1:
		return v & 0xff
	case 2:
		return v & 0xffff
	case 3:
		return v & 0xffffff
	default:
		return v
	}
}
