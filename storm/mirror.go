// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storm

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-virt/irqstorm/internal/mmap"
)

// mirror keeps a live copy of the register window in a shared-memory
// file, so sibling processes can sample the device without going
// through the control socket.
type mirror struct {
	f   *os.File
	h   *mmap.Handle
	buf [4]byte
	err error
}

func newMirror(path string, span uint32) (*mirror, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("could not open window file %q: %w", path, err)
	}
	err = f.Truncate(int64(span))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("could not resize window file %q: %w", path, err)
	}
	h, err := mmap.Map(f, 0, int(span))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("could not map window file %q: %w", path, err)
	}
	return &mirror{f: f, h: h}, nil
}

func (m *mirror) Close() error {
	err := m.h.Close()
	if err != nil {
		_ = m.f.Close()
		return err
	}
	return m.f.Close()
}

// sync snapshots the device registers into the mapped window. Called
// with the device lock held. The two pulse-counter halves are distinct
// stores: samplers must pair them with a stable read.
func (m *mirror) sync(dev *Device) {
	m.writeU8(RegCtrl, dev.ctrl)
	m.writeU8(RegLine, uint8(dev.line))
	m.writeU8(RegBurst, uint8(dev.burst))
	m.writeU8(RegStatus, dev.status())
	m.writeU32(RegPeriodUS, dev.periodUS)
	m.writeU32(RegPulsesLO, uint32(dev.pulses))
	m.writeU32(RegPulsesHI, uint32(dev.pulses>>32))
	m.writeU32(RegTimerCB, uint32(dev.timerCB))
	m.writeU32(RegCfgWr, uint32(dev.cfgWr))
	m.writeU32(RegEnTgl, uint32(dev.enTgl))

	if m.err != nil {
		dev.msg.Printf("could not sync shm window: %+v", m.err)
		m.err = nil
	}
}

func (m *mirror) writeU8(off uint32, v uint8) {
	if m.err != nil {
		return
	}
	m.buf[0] = v
	_, m.err = m.h.WriteAt(m.buf[:1], int64(off))
}

func (m *mirror) writeU32(off, v uint32) {
	if m.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(m.buf[:4], v)
	_, m.err = m.h.WriteAt(m.buf[:4], int64(off))
}
