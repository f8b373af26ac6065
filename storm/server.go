// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"github.com/go-virt/irqstorm/intc"
)

// Request is a control-server command.
type Request struct {
	Name string           `json:"name"`
	Args *json.RawMessage `json:"args,omitempty"`
}

// Reply is a control-server response. Msg is "ok" on success, an
// error description otherwise.
type Reply struct {
	Msg   string `json:"msg"`
	Value uint64 `json:"value,omitempty"`
	Text  string `json:"text,omitempty"`
}

// server allows to control a storm device over TCP, and to wait on
// and acknowledge its interrupt notifications.
type server struct {
	ctl net.Listener

	msg  *log.Logger
	dev  *Device
	line *intc.Line
}

// Serve exposes dev (and its notification line) on addr. Each
// connection runs its own command loop: a consumer typically keeps
// one connection blocked in "wait" and issues register accesses on
// another.
func Serve(addr string, dev *Device, line *intc.Line) error {
	srv, err := newServer(addr, dev, line)
	if err != nil {
		return fmt.Errorf("storm: could not create control server: %w", err)
	}
	return srv.serve()
}

func newServer(addr string, dev *Device, line *intc.Line) (*server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("storm: could not listen on %q: %w", addr, err)
	}

	srv := &server{
		ctl:  ctl,
		msg:  log.New(os.Stdout, "storm-svc: ", 0),
		dev:  dev,
		line: line,
	}
	return srv, nil
}

func (srv *server) serve() error {
	defer srv.close()

	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			return fmt.Errorf("storm: could not accept connection: %w", err)
		}
		go func() {
			err := srv.handle(conn)
			if err != nil {
				srv.msg.Printf("could not serve %v: %+v", conn.RemoteAddr(), err)
			}
		}()
	}
}

func (srv *server) handle(conn net.Conn) error {
	defer conn.Close()
	srv.msg.Printf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Printf("serving %v... [done]", conn.RemoteAddr())

	dec := json.NewDecoder(conn)
loop:
	for {
		var req Request
		err := dec.Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			srv.msg.Printf("could not decode command request: %+v", err)
			srv.reply(conn, Reply{}, err)
			continue
		}

		switch strings.ToLower(req.Name) {
		case "rd":
			var args [2]uint32 // offset, width
			err = srv.decodeArgs(req, &args)
			if err != nil {
				srv.reply(conn, Reply{}, err)
				continue
			}
			v := srv.dev.Read(args[0], int(args[1]))
			srv.reply(conn, Reply{Value: uint64(v)}, nil)

		case "wr":
			var args [3]uint32 // offset, value, width
			err = srv.decodeArgs(req, &args)
			if err != nil {
				srv.reply(conn, Reply{}, err)
				continue
			}
			srv.dev.Write(args[0], args[1], int(args[2]))
			srv.reply(conn, Reply{}, nil)

		case "wait":
			if srv.line == nil {
				srv.reply(conn, Reply{}, fmt.Errorf("storm: no notification line"))
				continue
			}
			badge, err := srv.line.Wait()
			srv.reply(conn, Reply{Value: badge}, err)
			if err != nil {
				break loop
			}

		case "ack":
			if srv.line == nil {
				srv.reply(conn, Reply{}, fmt.Errorf("storm: no notification line"))
				continue
			}
			srv.reply(conn, Reply{}, srv.line.Ack())

		case "dump":
			o := new(strings.Builder)
			err = srv.dev.DumpRegisters(o)
			srv.reply(conn, Reply{Text: o.String()}, err)

		case "quit":
			srv.reply(conn, Reply{}, nil)
			break loop

		default:
			srv.msg.Printf("unknown command name=%q", req.Name)
			srv.reply(conn, Reply{}, fmt.Errorf("storm: unknown command %q", req.Name))
		}
	}

	return nil
}

func (srv *server) decodeArgs(req Request, ptr interface{}) error {
	if req.Args == nil {
		return fmt.Errorf("storm: missing arguments for command %q", req.Name)
	}
	err := json.Unmarshal(*req.Args, ptr)
	if err != nil {
		return fmt.Errorf("storm: could not decode %q payload: %w", req.Name, err)
	}
	return nil
}

func (srv *server) reply(conn net.Conn, rep Reply, err error) {
	rep.Msg = "ok"
	if err != nil {
		rep.Msg = fmt.Sprintf("%+v", err)
	}
	_ = json.NewEncoder(conn).Encode(rep)
}

func (srv *server) close() {
	_ = srv.ctl.Close()
}
