// Copyright 2026 The go-virt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package telfmt implements the on-disk format for driver telemetry
// records.
//
// Each record is a single-byte header marker, a fixed-size
// little-endian payload and a trailing CRC-32 (IEEE) checksum of the
// payload.
package telfmt

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"
	"time"

	"github.com/go-virt/irqstorm/drv"
	"golang.org/x/xerrors"
)

const (
	recHeader = 0xb8 // record header marker

	payloadLen = 60
)

// Encoder writes telemetry records to an output stream.
// Encoder computes the CRC-32 checksum on the fly and appends it
// after each record payload.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc hash.Hash32
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
		crc: crc32.NewIEEE(),
	}
}

// Encode writes rec to the stream, followed by the CRC-32 checksum of
// its payload.
func (enc *Encoder) Encode(rec *drv.Record) error {
	if rec == nil {
		return nil
	}

	enc.crc.Reset()

	enc.writeU8(recHeader)
	if enc.err != nil {
		return xerrors.Errorf("telfmt: could not write record header marker: %w", enc.err)
	}

	enc.writeU32(rec.Seq)
	enc.writeI64(rec.When.UnixMicro())
	enc.writeU64(rec.Handled)
	enc.writeU64(rec.Tot.Pulses)
	enc.writeU32(rec.Tot.TimerCB)
	enc.writeU32(rec.Tot.CfgWrites)
	enc.writeU32(rec.Tot.EnToggles)
	enc.writeU64(rec.Delta.Pulses)
	enc.writeU32(rec.Delta.TimerCB)
	enc.writeU32(rec.Delta.CfgWrites)
	enc.writeU32(rec.Delta.EnToggles)

	crc := enc.crc.Sum32()
	binary.LittleEndian.PutUint32(enc.buf[:4], crc)
	enc.write(enc.buf[:4])

	if enc.err != nil {
		return xerrors.Errorf("telfmt: could not write record: %w", enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
}

func (enc *Encoder) writeU8(v uint8) {
	if enc.err != nil {
		return
	}
	enc.buf[0] = v
	_, enc.err = enc.w.Write(enc.buf[:1])
}

func (enc *Encoder) writeU32(v uint32) {
	const n = 4
	binary.LittleEndian.PutUint32(enc.buf[:n], v)
	_, _ = enc.crc.Write(enc.buf[:n]) // can not fail.
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU64(v uint64) {
	const n = 8
	binary.LittleEndian.PutUint64(enc.buf[:n], v)
	_, _ = enc.crc.Write(enc.buf[:n]) // can not fail.
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeI64(v int64) {
	enc.writeU64(uint64(v))
}

// Decoder reads (and validates) telemetry records from an underlying
// data source.
type Decoder struct {
	r   io.Reader
	buf []byte
}

// NewDecoder creates a decoder that reads and validates records
// from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 1+payloadLen+4),
	}
}

// Decode reads the next record from the stream into rec.
// Decode returns io.EOF when the stream ends on a record boundary.
func (dec *Decoder) Decode(rec *drv.Record) error {
	_, err := io.ReadFull(dec.r, dec.buf[:1])
	switch {
	case err == nil:
		// ok
	case xerrors.Is(err, io.EOF):
		return io.EOF
	default:
		return xerrors.Errorf("telfmt: could not read record header marker: %w", err)
	}

	if dec.buf[0] != recHeader {
		return xerrors.Errorf("telfmt: invalid record header marker (got=0x%x)", dec.buf[0])
	}

	_, err = io.ReadFull(dec.r, dec.buf[1:])
	if err != nil {
		if xerrors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return xerrors.Errorf("telfmt: could not read record payload: %w", err)
	}

	var (
		payload = dec.buf[1 : 1+payloadLen]
		compCRC = crc32.ChecksumIEEE(payload)
		recvCRC = binary.LittleEndian.Uint32(dec.buf[1+payloadLen:])
	)
	if compCRC != recvCRC {
		return xerrors.Errorf(
			"telfmt: inconsistent CRC: recv=0x%08x comp=0x%08x",
			recvCRC, compCRC,
		)
	}

	rec.Seq = binary.LittleEndian.Uint32(payload[0:4])
	rec.When = time.UnixMicro(int64(binary.LittleEndian.Uint64(payload[4:12]))).UTC()
	rec.Handled = binary.LittleEndian.Uint64(payload[12:20])
	rec.Tot.Pulses = binary.LittleEndian.Uint64(payload[20:28])
	rec.Tot.TimerCB = binary.LittleEndian.Uint32(payload[28:32])
	rec.Tot.CfgWrites = binary.LittleEndian.Uint32(payload[32:36])
	rec.Tot.EnToggles = binary.LittleEndian.Uint32(payload[36:40])
	rec.Delta.Pulses = binary.LittleEndian.Uint64(payload[40:48])
	rec.Delta.TimerCB = binary.LittleEndian.Uint32(payload[48:52])
	rec.Delta.CfgWrites = binary.LittleEndian.Uint32(payload[52:56])
	rec.Delta.EnToggles = binary.LittleEndian.Uint32(payload[56:60])

	return nil
}
