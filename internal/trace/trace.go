// Package trace records every latency sample to a compact on-disk trace.
// Samples are batched into snappy-compressed frames so a long run's full
// latency history stays cheap to keep; the file can be replayed afterwards
// for percentile analysis the interval reporter is too coarse for.
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/snappy"
)

// frameSamples is how many samples are buffered before a frame is
// compressed and flushed.
const frameSamples = 4096

const sampleBytes = 8

// Writer appends latency samples to a snappy-framed trace file. It has a
// single caller (the aggregator goroutine); Close must happen after the
// aggregator has drained.
type Writer struct {
	f   *os.File
	buf []byte
}

// NewWriter creates (truncating) the trace file at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	return &Writer{
		f:   f,
		buf: make([]byte, 0, frameSamples*sampleBytes),
	}, nil
}

// Record appends one sample, flushing a frame when the batch is full.
func (w *Writer) Record(d time.Duration) error {
	var rec [sampleBytes]byte
	binary.LittleEndian.PutUint64(rec[:], uint64(d))
	w.buf = append(w.buf, rec[:]...)

	if len(w.buf) >= frameSamples*sampleBytes {
		return w.flush()
	}
	return nil
}

// flush compresses the pending batch into one length-prefixed frame.
func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}

	frame := snappy.Encode(nil, w.buf)
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(frame)))

	if _, err := w.f.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write trace frame header: %w", err)
	}
	if _, err := w.f.Write(frame); err != nil {
		return fmt.Errorf("failed to write trace frame: %w", err)
	}

	w.buf = w.buf[:0]
	return nil
}

// Close flushes the final partial frame and closes the file.
func (w *Writer) Close() error {
	if err := w.flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// ReadAll decodes a trace file back into samples. Used by analysis tooling
// and tests.
func ReadAll(path string) ([]time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	var samples []time.Duration
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			if err == io.EOF {
				return samples, nil
			}
			return nil, fmt.Errorf("failed to read trace frame header: %w", err)
		}

		frame := make([]byte, binary.LittleEndian.Uint32(hdr[:]))
		if _, err := io.ReadFull(f, frame); err != nil {
			return nil, fmt.Errorf("failed to read trace frame: %w", err)
		}

		raw, err := snappy.Decode(nil, frame)
		if err != nil {
			return nil, fmt.Errorf("failed to decode trace frame: %w", err)
		}
		if len(raw)%sampleBytes != 0 {
			return nil, fmt.Errorf("corrupt trace frame: %d bytes", len(raw))
		}

		for off := 0; off < len(raw); off += sampleBytes {
			samples = append(samples, time.Duration(binary.LittleEndian.Uint64(raw[off:])))
		}
	}
}
