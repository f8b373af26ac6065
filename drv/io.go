// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drv

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/go-virt/irqstorm/storm"
	"golang.org/x/xerrors"
)

// Accessor provides byte/word/doubleword access to the device
// register window. Each access may fail; failures are recoverable
// conditions for the caller, not crashes.
type Accessor interface {
	In8(off uint32) (uint8, error)
	In16(off uint32) (uint16, error)
	In32(off uint32) (uint32, error)
	Out8(off uint32, v uint8) error
	Out16(off uint32, v uint16) error
	Out32(off uint32, v uint32) error
}

// DeviceIO adapts an in-process storm device to the Accessor
// interface. In-process register decode never fails.
type DeviceIO struct {
	Dev *storm.Device
}

func (acc DeviceIO) In8(off uint32) (uint8, error) {
	return uint8(acc.Dev.Read(off, 1)), nil
}

func (acc DeviceIO) In16(off uint32) (uint16, error) {
	return uint16(acc.Dev.Read(off, 2)), nil
}

func (acc DeviceIO) In32(off uint32) (uint32, error) {
	return acc.Dev.Read(off, 4), nil
}

func (acc DeviceIO) Out8(off uint32, v uint8) error {
	acc.Dev.Write(off, uint32(v), 1)
	return nil
}

func (acc DeviceIO) Out16(off uint32, v uint16) error {
	acc.Dev.Write(off, uint32(v), 2)
	return nil
}

func (acc DeviceIO) Out32(off uint32, v uint32) error {
	acc.Dev.Write(off, v, 4)
	return nil
}

var _ Accessor = (*DeviceIO)(nil)

// WindowIO samples a raw register-window snapshot, typically the
// device's shared-memory mirror. The window is read-only: writes do
// not reach the device decode logic and are refused.
type WindowIO struct {
	R io.ReaderAt
}

func (acc WindowIO) In8(off uint32) (uint8, error) {
	var buf [1]byte
	_, err := acc.R.ReadAt(buf[:], int64(off))
	if err != nil {
		return 0, xerrors.Errorf("drv: could not read window at 0x%x: %w", off, err)
	}
	return buf[0], nil
}

func (acc WindowIO) In16(off uint32) (uint16, error) {
	var buf [2]byte
	_, err := acc.R.ReadAt(buf[:], int64(off))
	if err != nil {
		return 0, xerrors.Errorf("drv: could not read window at 0x%x: %w", off, err)
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (acc WindowIO) In32(off uint32) (uint32, error) {
	var buf [4]byte
	_, err := acc.R.ReadAt(buf[:], int64(off))
	if err != nil {
		return 0, xerrors.Errorf("drv: could not read window at 0x%x: %w", off, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (acc WindowIO) Out8(off uint32, v uint8) error {
	return xerrors.Errorf("drv: window at 0x%x is read-only", off)
}

func (acc WindowIO) Out16(off uint32, v uint16) error {
	return xerrors.Errorf("drv: window at 0x%x is read-only", off)
}

func (acc WindowIO) Out32(off uint32, v uint32) error {
	return xerrors.Errorf("drv: window at 0x%x is read-only", off)
}

var _ Accessor = (*WindowIO)(nil)

// NetIO drives the storm control socket. It implements both the
// Accessor interface (rd/wr commands) and the Notifier interface
// (wait/ack commands); a consumer usually dials two connections so a
// blocked wait does not stall register accesses.
type NetIO struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

// Dial connects to a storm control server.
func Dial(addr string) (*NetIO, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, xerrors.Errorf("drv: could not dial storm-svc %q: %w", addr, err)
	}
	return &NetIO{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

func (c *NetIO) Close() error {
	return c.conn.Close()
}

func (c *NetIO) do(name string, args interface{}) (storm.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := storm.Request{Name: name}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return storm.Reply{}, xerrors.Errorf("drv: could not encode %q args: %w", name, err)
		}
		msg := json.RawMessage(raw)
		req.Args = &msg
	}

	err := c.enc.Encode(req)
	if err != nil {
		return storm.Reply{}, xerrors.Errorf("drv: could not send %q command: %w", name, err)
	}

	var rep storm.Reply
	err = c.dec.Decode(&rep)
	if err != nil {
		return storm.Reply{}, xerrors.Errorf("drv: could not receive %q reply: %w", name, err)
	}
	if rep.Msg != "ok" {
		return rep, xerrors.Errorf("drv: command %q failed: %s", name, rep.Msg)
	}
	return rep, nil
}

func (c *NetIO) in(off uint32, width int) (uint32, error) {
	rep, err := c.do("rd", [2]uint32{off, uint32(width)})
	if err != nil {
		return 0, err
	}
	return uint32(rep.Value), nil
}

func (c *NetIO) out(off, v uint32, width int) error {
	_, err := c.do("wr", [3]uint32{off, v, uint32(width)})
	return err
}

func (c *NetIO) In8(off uint32) (uint8, error) {
	v, err := c.in(off, 1)
	return uint8(v), err
}

func (c *NetIO) In16(off uint32) (uint16, error) {
	v, err := c.in(off, 2)
	return uint16(v), err
}

func (c *NetIO) In32(off uint32) (uint32, error) {
	return c.in(off, 4)
}

func (c *NetIO) Out8(off uint32, v uint8) error   { return c.out(off, uint32(v), 1) }
func (c *NetIO) Out16(off uint32, v uint16) error { return c.out(off, uint32(v), 2) }
func (c *NetIO) Out32(off uint32, v uint32) error { return c.out(off, v, 4) }

// Wait blocks until the server delivers a notification, returning its
// badge.
func (c *NetIO) Wait() (uint64, error) {
	rep, err := c.do("wait", nil)
	if err != nil {
		return 0, err
	}
	return rep.Value, nil
}

// Ack acknowledges the outstanding notification at the delivery
// layer.
func (c *NetIO) Ack() error {
	_, err := c.do("ack", nil)
	return err
}

// Dump returns the server-side register dump.
func (c *NetIO) Dump() (string, error) {
	rep, err := c.do("dump", nil)
	if err != nil {
		return "", err
	}
	return rep.Text, nil
}

// Quit ends the control session server-side.
func (c *NetIO) Quit() error {
	_, err := c.do("quit", nil)
	return err
}

var (
	_ Accessor = (*NetIO)(nil)
	_ Notifier = (*NetIO)(nil)
)
