// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	dir, err := os.MkdirTemp("", "storm-boot-")
	if err != nil {
		t.Fatalf("could not create tmpdir: %+v", err)
	}
	defer os.RemoveAll(dir)

	nap, err := exec.LookPath("sleep")
	if err != nil {
		t.Skipf("could not find sleep: %+v", err)
	}

	// copies under unique names, so the killall pass in run does not
	// reach unrelated processes.
	cmds := make([]string, 3)
	for i := range cmds {
		name := filepath.Join(dir, "storm-nap-"+strconv.Itoa(i))
		err := cp(name, nap)
		if err != nil {
			t.Fatalf("could not create test program: %+v", err)
		}
		cmds[i] = name
	}

	for _, tc := range []struct {
		name string
		cmds []*exec.Cmd
		mon  bool
		stop bool
	}{
		{
			name: "simple",
			cmds: []*exec.Cmd{
				exec.Command(cmds[0], "2"),
				exec.Command(cmds[1], "2"),
				exec.Command(cmds[2], "2"),
			},
		},
		{
			name: "simple-pmon",
			cmds: []*exec.Cmd{
				exec.Command(cmds[0], "2"),
				exec.Command(cmds[1], "2"),
				exec.Command(cmds[2], "2"),
			},
			mon: true,
		},
		{
			name: "simple-stop",
			cmds: []*exec.Cmd{
				exec.Command(cmds[0], "10"),
				exec.Command(cmds[1], "10"),
				exec.Command(cmds[2], "10"),
			},
			stop: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir, err := os.MkdirTemp("", "storm-boot-")
			if err != nil {
				t.Fatalf("could not create tmpdir: %+v", err)
			}
			defer os.RemoveAll(dir)

			stop := make(chan os.Signal, 1)
			if tc.stop {
				go func() {
					time.Sleep(2 * time.Second)
					stop <- os.Interrupt
				}()
			}
			err = run(tc.mon, 1*time.Second, tc.cmds, dir, stop)
			if err != nil {
				t.Fatalf("could not run processes: %+v", err)
			}
		})
	}
}

func cp(dst, src string) error {
	o, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	defer o.Close()

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(o, f)
	if err != nil {
		return err
	}
	return o.Close()
}
