// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package intc models the delivery layer between an interrupt line and
// its consumer: a latched notification with a badge, a blocking wait,
// and an acknowledge that must happen before the next notification for
// the line is released.
package intc // import "github.com/go-virt/irqstorm/intc"

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Wait and Ack once the line has been torn
// down.
var ErrClosed = errors.New("intc: line closed")

// Line is a single interrupt line bound to a notification object.
//
// Raise and Pulse latch a pending notification. Wait blocks until one
// is pending and no prior delivery is awaiting acknowledgment, then
// consumes it. Ack releases the line for the next delivery; if the
// line is still held high at that point, the notification re-latches
// immediately.
type Line struct {
	badge uint64

	mu   sync.Mutex
	cond *sync.Cond

	level    bool // line currently held high
	pending  bool // latched, not yet delivered
	inflight bool // delivered, not yet acknowledged
	closed   bool
}

// NewLine returns a line whose notifications carry the given badge.
func NewLine(badge uint64) *Line {
	l := &Line{badge: badge}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Badge returns the badge value delivered with notifications.
func (l *Line) Badge() uint64 { return l.badge }

// Raise drives the line high and latches a notification.
func (l *Line) Raise() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = true
	l.pending = true
	l.cond.Broadcast()
}

// Lower drives the line low. An already-latched notification stays
// latched.
func (l *Line) Lower() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = false
}

// Pulse latches a notification without holding the line high.
func (l *Line) Pulse() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = true
	l.cond.Broadcast()
}

// High reports whether the line is currently held high.
func (l *Line) High() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Wait blocks until a notification is deliverable and returns its
// badge. There is no timeout: the line is released only by Ack-gated
// redelivery or by Close.
func (l *Line) Wait() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for !l.closed && !(l.pending && !l.inflight) {
		l.cond.Wait()
	}
	if l.closed {
		return 0, ErrClosed
	}
	l.pending = false
	l.inflight = true
	return l.badge, nil
}

// Ack acknowledges the outstanding delivery. If the line is still held
// high, the notification re-latches at once.
func (l *Line) Ack() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.inflight = false
	if l.level {
		l.pending = true
	}
	l.cond.Broadcast()
	return nil
}

// Close tears the line down and unblocks any waiter.
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.cond.Broadcast()
	return nil
}
