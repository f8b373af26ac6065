// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drv

import (
	"sync/atomic"
	"testing"
)

func TestCounter64Torn(t *testing.T) {
	// scripted register reads reproducing a wrap of the low half
	// under the sampler: hi=0, lo=0xffffffff, hi=1 is inconsistent
	// and must be retried.
	var (
		his = []uint32{0, 1, 1, 1}
		los = []uint32{0xffffffff, 5}
		hi  int
		lo  int
	)
	cnt := Counter64{
		Lo: func() (uint32, error) {
			v := los[lo]
			lo++
			return v, nil
		},
		Hi: func() (uint32, error) {
			v := his[hi]
			hi++
			return v, nil
		},
	}

	v, err := cnt.Read()
	if err != nil {
		t.Fatalf("could not read counter: %+v", err)
	}
	if got, want := v, uint64(1)<<32|5; got != want {
		t.Fatalf("counter: got=0x%x, want=0x%x", got, want)
	}
	if got, want := hi, 4; got != want {
		t.Fatalf("high-half reads: got=%d, want=%d", got, want)
	}
}

func TestCounter64Racing(t *testing.T) {
	// a writer racing with the sampler must never produce a value
	// outside the [before, after] window of the full counter.
	var cnt uint64
	rd := Counter64{
		Lo: func() (uint32, error) { return uint32(atomic.LoadUint64(&cnt)), nil },
		Hi: func() (uint32, error) { return uint32(atomic.LoadUint64(&cnt) >> 32), nil },
	}

	stop := make(chan int)
	go func() {
		// start just below a wrap of the low half, so the test
		// actually crosses one.
		atomic.StoreUint64(&cnt, 0xffffff00)
		for {
			select {
			case <-stop:
				return
			default:
				atomic.AddUint64(&cnt, 1)
			}
		}
	}()
	defer close(stop)

	for i := 0; i < 1000; i++ {
		before := atomic.LoadUint64(&cnt)
		v, err := rd.Read()
		if err != nil {
			t.Fatalf("could not read counter: %+v", err)
		}
		after := atomic.LoadUint64(&cnt)
		if v < before || v > after {
			t.Fatalf("inconsistent read: got=0x%x, window=[0x%x, 0x%x]", v, before, after)
		}
	}
}
