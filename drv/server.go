// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drv

import (
	"bytes"
	"context"
	"errors"

	"github.com/go-daq/tdaq"
	"github.com/go-virt/irqstorm/storm"
	"golang.org/x/xerrors"
)

// Server exposes a driver loop as a TDAQ process: the run handler
// drains the notification line, and telemetry records are streamed on
// an output end-point. /start and /stop drive the device ENABLE bit.
type Server struct {
	name string

	acc   Accessor
	ntf   Notifier
	every uint64

	loop *Loop
	recs chan []byte
}

// NewServer creates a TDAQ server handler set around acc and ntf.
func NewServer(name string, acc Accessor, ntf Notifier, every uint64) *Server {
	return &Server{
		name:  name,
		acc:   acc,
		ntf:   ntf,
		every: every,
	}
}

// Handle registers the server's command, output and run handlers on
// srv.
func (srv *Server) Handle(tsrv *tdaq.Server) {
	tsrv.CmdHandle("/config", srv.OnConfig)
	tsrv.CmdHandle("/init", srv.OnInit)
	tsrv.CmdHandle("/reset", srv.OnReset)
	tsrv.CmdHandle("/start", srv.OnStart)
	tsrv.CmdHandle("/stop", srv.OnStop)
	tsrv.CmdHandle("/quit", srv.OnQuit)

	tsrv.OutputHandle("/telemetry", srv.telemetry)

	tsrv.RunHandle(srv.run)
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	line, err := srv.acc.In8(storm.RegLine)
	if err != nil {
		ctx.Msg.Errorf("could not read device line: %+v", err)
		return xerrors.Errorf("drv: could not read device line: %w", err)
	}
	ctx.Msg.Infof("storm device reports line=%d", line)
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	srv.reset()
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.reset()
	return nil
}

func (srv *Server) reset() {
	srv.recs = make(chan []byte, 1024)
	srv.loop = NewLoop(srv.acc, srv.ntf,
		WithReportEvery(srv.every),
		WithReportFunc(srv.push),
	)
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return srv.enable(true)
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return srv.enable(false)
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return srv.enable(false)
}

func (srv *Server) enable(on bool) error {
	ctrl, err := srv.acc.In8(storm.RegCtrl)
	if err != nil {
		return xerrors.Errorf("drv: could not read ctrl register: %w", err)
	}
	switch {
	case on:
		ctrl |= storm.CtrlEnable
	default:
		ctrl &^= storm.CtrlEnable
	}
	err = srv.acc.Out8(storm.RegCtrl, ctrl)
	if err != nil {
		return xerrors.Errorf("drv: could not write ctrl register: %w", err)
	}
	return nil
}

func (srv *Server) push(rec *Record) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(rec.Seq)
	enc.WriteI64(rec.When.UnixMicro())
	enc.WriteU64(rec.Handled)
	enc.WriteU64(rec.Tot.Pulses)
	enc.WriteU32(rec.Tot.TimerCB)
	enc.WriteU32(rec.Tot.CfgWrites)
	enc.WriteU32(rec.Tot.EnToggles)
	enc.WriteU64(rec.Delta.Pulses)
	enc.WriteU32(rec.Delta.TimerCB)
	enc.WriteU32(rec.Delta.CfgWrites)
	enc.WriteU32(rec.Delta.EnToggles)

	// drop rather than block: the loop must get back to its wait.
	select {
	case srv.recs <- buf.Bytes():
	default:
	}
}

func (srv *Server) telemetry(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.recs:
		dst.Body = data
	}
	return nil
}

func (srv *Server) run(ctx tdaq.Context) error {
	err := srv.loop.Run(ctx.Ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		ctx.Msg.Errorf("driver loop stopped: %+v", err)
		return err
	}
}
