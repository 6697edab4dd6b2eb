// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records bus frames to a file and reads them back.
//
// A capture is a CBOR sequence: one [direction, unix_nanos, raw_frame] array
// per frame, appended back to back with no container.
package capture

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-faster/errors"

	"github.com/Thermoquad/rnetstat/internal/session"
)

// Record is one captured frame
type Record struct {
	_         struct{} `cbor:",toarray"`
	Direction uint8
	UnixNanos int64
	Raw       []byte
}

// Time returns the capture time
func (r Record) Time() time.Time {
	return time.Unix(0, r.UnixNanos)
}

// Inbound reports whether the frame was received rather than sent
func (r Record) Inbound() bool {
	return session.Direction(r.Direction) == session.Inbound
}

// Writer appends records to a capture stream
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *cbor.Encoder
	n   int
	err error
}

// NewWriter creates a capture writer
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{buf: buf, enc: cbor.NewEncoder(buf)}
}

// Write appends one record
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(rec); err != nil {
		w.err = errors.Wrap(err, "encode record")
		return w.err
	}
	w.n++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Flush writes buffered records to the underlying writer
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, "flush capture")
	}
	return w.err
}

// Observer returns a session observer that records every frame
func (w *Writer) Observer() session.Observer {
	return func(e session.Event) {
		if e.Frame == nil {
			return
		}
		w.Write(Record{
			Direction: uint8(e.Direction),
			UnixNanos: e.Time.UnixNano(),
			Raw:       e.Frame.Raw(),
		})
	}
}

// Reader reads records from a capture stream
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a capture reader
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(bufio.NewReader(r))}
}

// Next returns the next record, or io.EOF at the end of the capture
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, errors.Wrap(err, "decode record")
	}
	return rec, nil
}

// ReadAll reads every remaining record
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
